package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StoredSnapshot is an encoded core snapshot plus the columns needed to
// pick one without decoding it.
type StoredSnapshot struct {
	Sequence  int64
	StateHash []byte
	Data      []byte
	CreatedAt time.Time
}

// SnapshotStore persists encoded snapshots. LoadLatest returns nil, nil
// when the store is empty.
type SnapshotStore interface {
	Save(ctx context.Context, snap StoredSnapshot) error
	LoadLatest(ctx context.Context) (*StoredSnapshot, error)
}

// SnapshotManager stores snapshots in event_log.snapshots.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// Save upserts the snapshot for its sequence.
func (sm *SnapshotManager) Save(ctx context.Context, snap StoredSnapshot) error {
	_, err := sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, snap.Data, snap.StateHash, core.SnapshotFormatVersion, len(snap.Data), snap.CreatedAt)
	return err
}

// LoadLatest loads the most recent snapshot.
func (sm *SnapshotManager) LoadLatest(ctx context.Context) (*StoredSnapshot, error) {
	var s StoredSnapshot
	err := sm.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash, data, created_at FROM event_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&s.Sequence, &s.StateHash, &s.Data, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &s, nil
}

// Snapshotter periodically captures the core state and writes it to a
// store. The capture runs on the core goroutine; encoding and the write
// do not.
type Snapshotter struct {
	runner   *core.Runner
	store    SnapshotStore
	interval time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger

	lastSeq int64
}

func NewSnapshotter(runner *core.Runner, store SnapshotStore, interval time.Duration, metrics *observability.Metrics) *Snapshotter {
	return &Snapshotter{
		runner:   runner,
		store:    store,
		interval: interval,
		metrics:  metrics,
		logger:   observability.NewLogger("snapshotter"),
		lastSeq:  -1,
	}
}

// Run takes a snapshot every interval until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.TakeSnapshot(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// TakeSnapshot captures and stores one snapshot. Nothing is written when no
// command committed since the previous one.
func (s *Snapshotter) TakeSnapshot(ctx context.Context) error {
	snap, err := s.runner.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Sequence < 0 || snap.Sequence == s.lastSeq {
		return nil
	}

	data, err := core.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	stored := StoredSnapshot{
		Sequence:  snap.Sequence,
		StateHash: append([]byte(nil), snap.StateHash[:]...),
		Data:      data,
		CreatedAt: snap.CreatedAt,
	}
	if err := s.store.Save(ctx, stored); err != nil {
		return fmt.Errorf("save snapshot %d: %w", snap.Sequence, err)
	}
	s.lastSeq = snap.Sequence

	if s.metrics != nil {
		s.metrics.SnapshotTaken.Inc()
		s.metrics.SnapshotSizeBytes.Set(float64(len(data)))
		s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	s.logger.Info().Int64("sequence", snap.Sequence).Int("bytes", len(data)).Msg("snapshot stored")
	return nil
}
