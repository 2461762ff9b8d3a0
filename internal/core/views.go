package core

import (
	"LendLedger/internal/ledger"
	"LendLedger/internal/leverage"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// Read accessors. They return committed records, which callers must treat
// as read-only, and must run on the core goroutine (see Runner.View).

// NextSequence is the sequence the next committed command receives.
func (c *DeterministicCore) NextSequence() int64 {
	return c.sequence
}

// LastTimestamp is the unix time of the newest committed command.
func (c *DeterministicCore) LastTimestamp() int64 {
	return c.lastTimestamp
}

// StateHash returns the chain tip.
func (c *DeterministicCore) StateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

func (c *DeterministicCore) Protocol() *state.Protocol {
	return c.protocol
}

func (c *DeterministicCore) CollateralAssets() []state.CollateralAsset {
	return c.assets.CollateralAssets()
}

func (c *DeterministicCore) BorrowableAssets() []state.BorrowableAsset {
	return c.assets.BorrowableAssets()
}

// Position returns nil when owner has no position.
func (c *DeterministicCore) Position(owner uuid.UUID) *state.Position {
	return c.positions.GetPosition(owner)
}

func (c *DeterministicCore) Positions() []*state.Position {
	return c.positions.AllPositions()
}

// Evaluate values owner's position at now.
func (c *DeterministicCore) Evaluate(owner uuid.UUID, now int64) (*state.Valuation, error) {
	pos := c.positions.GetPosition(owner)
	if pos == nil {
		return nil, state.ErrPositionNotFound
	}
	return state.Evaluator{Assets: c.assets, Prices: c.feeds}.Evaluate(pos, now)
}

func (c *DeterministicCore) Pool(asset ledger.AssetID) (*pool.Pool, bool) {
	return c.pools.Get(asset)
}

func (c *DeterministicCore) Pools() []*pool.Pool {
	return c.pools.All()
}

func (c *DeterministicCore) Leverage(id uuid.UUID) (*leverage.Position, error) {
	return c.leverageBook.Get(id)
}

func (c *DeterministicCore) LeverageByOwner(owner uuid.UUID) []*leverage.Position {
	return c.leverageBook.ByOwner(owner)
}

func (c *DeterministicCore) Balance(key ledger.AccountKey) int64 {
	return c.balanceTracker.GetBalance(key)
}

func (c *DeterministicCore) Feed(asset ledger.AssetID) (oracle.PriceFeed, bool) {
	return c.feeds.Feed(asset)
}

func (c *DeterministicCore) Feeds() []oracle.PriceFeed {
	return c.feeds.Snapshot()
}

// ExpectedSourceSequence returns the next accepted sequence on partition.
func (c *DeterministicCore) ExpectedSourceSequence(partition string) int64 {
	return c.sequenceValidator.GetExpectedSequence(partition)
}

// Decimals returns the registered token decimals of asset.
func (c *DeterministicCore) Decimals(asset ledger.AssetID) (int, error) {
	return c.assets.Decimals(asset)
}
