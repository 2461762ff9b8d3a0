// Package leverage composes position ledger calls into leveraged entries
// and exits: borrow, swap and redeposit until a target multiplier.
package leverage

import (
	"fmt"
	"sort"

	"LendLedger/internal/ledger"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// Position is one leveraged trade layered on an owner's lending position.
// Closed trades stay in the book marked inactive.
type Position struct {
	ID                uuid.UUID
	Owner             uuid.UUID
	CollateralAsset   ledger.AssetID
	BorrowAsset       ledger.AssetID
	InitialCollateral int64
	TotalCollateral   int64
	TotalBorrowed     int64
	Multiplier        int64
	EntryPriceUSD     int64
	IsLong            bool
	Active            bool
	OpenedAt          int64
	ClosedAt          int64
	RealizedPnLUSD    int64
}

func (p *Position) Clone() *Position {
	out := *p
	return &out
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.Owner[:]...)
	buf = append(buf, byte(p.CollateralAsset), byte(p.CollateralAsset>>8))
	buf = append(buf, byte(p.BorrowAsset), byte(p.BorrowAsset>>8))
	for _, v := range []int64{
		p.InitialCollateral, p.TotalCollateral, p.TotalBorrowed, p.Multiplier,
		p.EntryPriceUSD, p.OpenedAt, p.ClosedAt, p.RealizedPnLUSD,
	} {
		buf = append(buf,
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
			byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
	var flags byte
	if p.IsLong {
		flags |= 1
	}
	if p.Active {
		flags |= 2
	}
	return append(buf, flags)
}

// Book holds every leverage position by id.
type Book struct {
	positions map[uuid.UUID]*Position
}

func NewBook() *Book {
	return &Book{positions: make(map[uuid.UUID]*Position)}
}

func (b *Book) Get(id uuid.UUID) (*Position, error) {
	p, ok := b.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrLeverageNotFound, id)
	}
	return p, nil
}

func (b *Book) Put(p *Position) {
	b.positions[p.ID] = p
}

// ByOwner returns the owner's leverage positions ordered by open time.
func (b *Book) ByOwner(owner uuid.UUID) []*Position {
	var out []*Position
	for _, p := range b.positions {
		if p.Owner == owner {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

func (b *Book) All() []*Position {
	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

func (b *Book) Restore(positions []*Position) {
	b.positions = make(map[uuid.UUID]*Position, len(positions))
	for _, p := range positions {
		b.positions[p.ID] = p
	}
}

func sortPositions(ps []*Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].OpenedAt != ps[j].OpenedAt {
			return ps[i].OpenedAt < ps[j].OpenedAt
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}
