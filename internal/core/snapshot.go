package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/leverage"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"
)

// SnapshotFormatVersion is bumped whenever Snapshot changes shape.
const SnapshotFormatVersion = 1

// BalanceEntry is one non-zero custody balance.
type BalanceEntry struct {
	Account ledger.AccountKey `json:"account"`
	Balance int64             `json:"balance"`
}

// Snapshot is the full in-memory state after Sequence. Restoring it and
// replaying the event log from Sequence+1 reproduces the live core.
type Snapshot struct {
	Version         int                     `json:"version"`
	Sequence        int64                   `json:"sequence"` // last committed sequence, -1 before genesis
	StateHash       [32]byte                `json:"state_hash"`
	Protocol        *state.Protocol         `json:"protocol"`
	Collateral      []state.CollateralAsset `json:"collateral"`
	Borrowable      []state.BorrowableAsset `json:"borrowable"`
	Feeds           []oracle.PriceFeed      `json:"feeds"`
	Positions       []*state.Position       `json:"positions"`
	Pools           []*pool.Pool            `json:"pools"`
	Leverage        []*leverage.Position    `json:"leverage"`
	Balances        []BalanceEntry          `json:"balances"`
	SequenceState   map[string]int64        `json:"sequence_state"`   // partition -> next expected
	IdempotencyKeys []string                `json:"idempotency_keys"` // oldest first
	LastTimestamp   int64                   `json:"last_timestamp"`   // unix seconds of the newest command
	CreatedAt       time.Time               `json:"created_at"`
}

// Snapshot captures the core. Committed records are shared, not copied:
// the core never mutates them in place. Must run on the core goroutine.
func (c *DeterministicCore) Snapshot() *Snapshot {
	balances := c.balanceTracker.Snapshot()
	entries := make([]BalanceEntry, 0, len(balances))
	for k, v := range balances {
		if v != 0 {
			entries = append(entries, BalanceEntry{Account: k, Balance: v})
		}
	}
	sortBalances(entries)

	return &Snapshot{
		Version:         SnapshotFormatVersion,
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Protocol:        c.protocol,
		Collateral:      c.assets.CollateralAssets(),
		Borrowable:      c.assets.BorrowableAssets(),
		Feeds:           c.feeds.Snapshot(),
		Positions:       c.positions.AllPositions(),
		Pools:           c.pools.All(),
		Leverage:        c.leverageBook.All(),
		Balances:        entries,
		SequenceState:   c.sequenceValidator.Partitions(),
		IdempotencyKeys: c.idempotency.lru.Keys(),
		LastTimestamp:   c.lastTimestamp,
		CreatedAt:       time.Now().UTC(),
	}
}

// RestoreSnapshot replaces the core's state with snap. Must run before
// the core processes any command.
func (c *DeterministicCore) RestoreSnapshot(snap *Snapshot) error {
	if snap.Version != SnapshotFormatVersion {
		return fmt.Errorf("snapshot format %d, want %d", snap.Version, SnapshotFormatVersion)
	}
	if snap.Protocol == nil {
		return fmt.Errorf("snapshot at %d has no protocol", snap.Sequence)
	}

	c.sequence = snap.Sequence + 1
	c.lastTimestamp = snap.LastTimestamp
	c.hasher.SetPrevHash(snap.StateHash)

	balances := make(map[ledger.AccountKey]int64, len(snap.Balances))
	for _, b := range snap.Balances {
		balances[b.Account] = b.Balance
	}
	c.balanceTracker.Restore(balances)

	protocol := snap.Protocol.Clone()
	c.protocol = protocol
	c.assets.Restore(snap.Collateral, snap.Borrowable)
	c.feeds.Restore(snap.Feeds)
	c.positions.Restore(snap.Positions)
	c.pools.Restore(snap.Pools)
	c.leverageBook.Restore(snap.Leverage)

	for partition, next := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, next)
	}
	c.WarmLRU(snap.IdempotencyKeys)

	if err := c.validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("snapshot at %d: %w", snap.Sequence, err)
	}
	c.logger.Info().
		Int64("sequence", snap.Sequence).
		Int("positions", len(snap.Positions)).
		Int("pools", len(snap.Pools)).
		Msg("state restored from snapshot")
	return nil
}

// WarmLRU loads recently committed composite keys into the dedup cache.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// EncodeSnapshot serializes snap for a snapshot store.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Replay re-applies a persisted command during recovery. Durable dedup is
// bypassed since every logged command is in the log, and no outputs are
// emitted. The recomputed state hash must match the logged one.
func (c *DeterministicCore) Replay(env *event.EventEnvelope) error {
	if env.Sequence != c.sequence {
		return fmt.Errorf("replay: log sequence %d, core expects %d", env.Sequence, c.sequence)
	}
	evt, err := event.Decode(env.EventType, env.Payload)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}

	out := c.out
	c.out = Outputs{}
	c.replaying = true
	defer func() {
		c.out = out
		c.replaying = false
	}()

	res, err := c.ProcessEvent(evt)
	if err != nil {
		return fmt.Errorf("replay seq %d (%s): %w", env.Sequence, env.EventType, err)
	}
	if res.Duplicate || res.Stale {
		return fmt.Errorf("replay seq %d (%s): command was not applied", env.Sequence, env.EventType)
	}
	if res.StateHash != env.StateHash {
		return fmt.Errorf("replay seq %d: state hash %x, logged %x", env.Sequence, res.StateHash, env.StateHash)
	}
	if c.metrics != nil {
		c.metrics.ReplayEventsTotal.Inc()
	}
	return nil
}

func sortBalances(entries []BalanceEntry) {
	paths := make(map[ledger.AccountKey]string, len(entries))
	for _, e := range entries {
		paths[e.Account] = e.Account.AccountPath()
	}
	sort.Slice(entries, func(i, j int) bool {
		return paths[entries[i].Account] < paths[entries[j].Account]
	})
}
