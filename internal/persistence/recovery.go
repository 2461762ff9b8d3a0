package persistence

import (
	"context"
	"fmt"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/observability"
)

// EventSource is the part of the event log recovery reads.
type EventSource interface {
	LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]*event.EventEnvelope, error)
}

// RecoveryResult describes how the core was rebuilt.
type RecoveryResult struct {
	SnapshotSequence int64 // -1 when started from genesis
	Replayed         int
	NextSequence     int64
}

// Recover restores the newest snapshot into c, when there is one, then
// replays every logged command after it. Each replayed command must
// reproduce the logged state hash.
func Recover(ctx context.Context, c *core.DeterministicCore, store SnapshotStore, log EventSource, batchSize int) (RecoveryResult, error) {
	logger := observability.NewLogger("recovery")
	res := RecoveryResult{SnapshotSequence: -1}
	if batchSize <= 0 {
		batchSize = 1000
	}

	if store != nil {
		stored, err := store.LoadLatest(ctx)
		if err != nil {
			return res, fmt.Errorf("load snapshot: %w", err)
		}
		if stored != nil {
			snap, err := core.DecodeSnapshot(stored.Data)
			if err != nil {
				return res, err
			}
			if err := c.RestoreSnapshot(snap); err != nil {
				return res, err
			}
			res.SnapshotSequence = snap.Sequence
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		from := c.NextSequence()
		envs, err := log.LoadEventsFrom(ctx, from, batchSize)
		if err != nil {
			return res, fmt.Errorf("load events from %d: %w", from, err)
		}
		for _, env := range envs {
			if err := c.Replay(env); err != nil {
				return res, err
			}
			res.Replayed++
		}
		if len(envs) < batchSize {
			break
		}
	}

	res.NextSequence = c.NextSequence()
	logger.Info().
		Int64("snapshot_sequence", res.SnapshotSequence).
		Int("replayed", res.Replayed).
		Int64("next_sequence", res.NextSequence).
		Msg("recovery complete")
	return res, nil
}
