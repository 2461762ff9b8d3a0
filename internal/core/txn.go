package core

import (
	"fmt"
	"sort"

	"LendLedger/internal/event"
	"LendLedger/internal/leverage"
	"LendLedger/internal/ledger"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// txn is the working set of one command. Records are cloned on first touch
// and custody transfers are staged; nothing reaches the core until commit.
type txn struct {
	core    *DeterministicCore
	now     int64
	staging *ledger.Staging

	protocol  *state.Protocol
	assets    *state.AssetRegistry
	positions map[uuid.UUID]*state.Position
	pools     map[ledger.AssetID]*pool.Pool
	newPools  map[ledger.AssetID]bool
	leverage  map[uuid.UUID]*leverage.Position
	feeds     []ledger.AssetID
	events    []event.DomainEvent
}

func (c *DeterministicCore) begin(evt event.Event) *txn {
	now := evt.OccurredAt().Unix()
	return &txn{
		core:      c,
		now:       now,
		staging:   ledger.NewStaging(c.balanceTracker, evt.EventType().String()+":"+evt.IdempotencyKey(), now),
		protocol:  c.protocol.Clone(),
		assets:    c.assets.Clone(),
		positions: make(map[uuid.UUID]*state.Position),
		pools:     make(map[ledger.AssetID]*pool.Pool),
		newPools:  make(map[ledger.AssetID]bool),
		leverage:  make(map[uuid.UUID]*leverage.Position),
	}
}

func (t *txn) emit(e event.DomainEvent) {
	t.events = append(t.events, e)
}

// env exposes the working set to the domain packages.
func (t *txn) env() *state.Env {
	return &state.Env{
		Protocol: t.protocol,
		Assets:   t.assets,
		Prices:   t.core.feeds,
		Pools:    t,
		Custody:  t.staging,
		Now:      t.now,
	}
}

// position returns the working copy of owner's position. With create set a
// missing position is opened.
func (t *txn) position(owner uuid.UUID, create bool) (*state.Position, error) {
	if p, ok := t.positions[owner]; ok {
		return p, nil
	}
	if p := t.core.positions.GetPosition(owner); p != nil {
		clone := p.Clone()
		t.positions[owner] = clone
		return clone, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", state.ErrPositionNotFound, owner)
	}
	p := state.NewPosition(owner, t.now)
	t.positions[owner] = p
	t.emit(event.PositionCreated{Owner: owner})
	return p, nil
}

// pool returns the working copy of the pool for asset.
func (t *txn) pool(asset ledger.AssetID) (*pool.Pool, error) {
	if p, ok := t.pools[asset]; ok {
		return p, nil
	}
	p, ok := t.core.pools.Get(asset)
	if !ok {
		return nil, fmt.Errorf("%w: no pool for %s", state.ErrAssetNotSupported, asset)
	}
	clone := p.Clone()
	t.pools[asset] = clone
	return clone, nil
}

// createPool opens an empty pool inside the transaction.
func (t *txn) createPool(asset ledger.AssetID, cfg pool.Config) error {
	if _, ok := t.core.pools.Get(asset); ok || t.newPools[asset] {
		return fmt.Errorf("%w: pool for %s already exists", state.ErrInvalidConfig, asset)
	}
	p, err := pool.New(asset, cfg)
	if err != nil {
		return err
	}
	t.pools[asset] = p
	t.newPools[asset] = true
	return nil
}

// Liquidity implements state.LiquiditySource over the working set.
func (t *txn) Liquidity(asset ledger.AssetID) (state.Liquidity, error) {
	return t.pool(asset)
}

func (t *txn) leveragePosition(id uuid.UUID) (*leverage.Position, error) {
	if p, ok := t.leverage[id]; ok {
		return p, nil
	}
	p, err := t.core.leverageBook.Get(id)
	if err != nil {
		return nil, err
	}
	clone := p.Clone()
	t.leverage[id] = clone
	return clone, nil
}

// committed is what a successful txn produced, in deterministic order.
type committed struct {
	positions []*state.Position
	pools     []*pool.Pool
	leverage  []*leverage.Position
}

// commit installs the working set into the core. The batch has already been
// applied to the balance tracker.
func (t *txn) commit() committed {
	c := t.core
	c.protocol = t.protocol
	c.assets = t.assets

	var out committed
	for _, p := range t.positions {
		c.positions.Put(p)
		out.positions = append(out.positions, p)
	}
	for _, p := range t.pools {
		c.pools.Put(p)
		out.pools = append(out.pools, p)
	}
	for _, p := range t.leverage {
		c.leverageBook.Put(p)
		out.leverage = append(out.leverage, p)
	}
	sort.Slice(out.positions, func(i, j int) bool {
		return out.positions[i].Owner.String() < out.positions[j].Owner.String()
	})
	sort.Slice(out.pools, func(i, j int) bool { return out.pools[i].Asset < out.pools[j].Asset })
	sort.Slice(out.leverage, func(i, j int) bool {
		return out.leverage[i].ID.String() < out.leverage[j].ID.String()
	})
	return out
}
