package pool

import (
	"fmt"
	"sort"

	"LendLedger/internal/ledger"
	"LendLedger/internal/state"
)

// Book holds the committed pools, one per borrowable asset.
type Book struct {
	pools map[ledger.AssetID]*Pool
}

func NewBook() *Book {
	return &Book{pools: make(map[ledger.AssetID]*Pool)}
}

// Create registers an empty pool for asset.
func (b *Book) Create(asset ledger.AssetID, cfg Config) (*Pool, error) {
	if _, ok := b.pools[asset]; ok {
		return nil, fmt.Errorf("%w: pool for %s already exists", state.ErrInvalidConfig, asset)
	}
	p, err := New(asset, cfg)
	if err != nil {
		return nil, err
	}
	b.pools[asset] = p
	return p, nil
}

func (b *Book) Get(asset ledger.AssetID) (*Pool, bool) {
	p, ok := b.pools[asset]
	return p, ok
}

// Put replaces the committed pool for its asset.
func (b *Book) Put(p *Pool) {
	b.pools[p.Asset] = p
}

// All returns pools ordered by asset.
func (b *Book) All() []*Pool {
	out := make([]*Pool, 0, len(b.pools))
	for _, p := range b.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (b *Book) Restore(pools []*Pool) {
	b.pools = make(map[ledger.AssetID]*Pool, len(pools))
	for _, p := range pools {
		b.pools[p.Asset] = p
	}
}

// Liquidity implements state.LiquiditySource over the committed pools.
func (b *Book) Liquidity(asset ledger.AssetID) (state.Liquidity, error) {
	p, ok := b.pools[asset]
	if !ok {
		return nil, fmt.Errorf("%w: no pool for %s", state.ErrAssetNotSupported, asset)
	}
	return p, nil
}
