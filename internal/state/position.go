package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/ledger"

	"github.com/google/uuid"
)

// CollateralDeposit is one collateral entry of a position.
type CollateralDeposit struct {
	Asset  ledger.AssetID
	Amount int64 // base units of Asset
}

// BorrowedAmount is one debt entry of a position.
type BorrowedAmount struct {
	Asset           ledger.AssetID
	Principal       int64
	AccruedInterest int64
}

// Owed returns principal plus accrued interest.
func (b BorrowedAmount) Owed() (int64, error) {
	return fpmath.CheckedAdd(b.Principal, b.AccruedInterest)
}

// CollateralFloor is the amount of an asset GAD will never liquidate.
type CollateralFloor struct {
	Asset  ledger.AssetID
	Amount int64
}

// Position is the per-owner lending position. Collaterals and Borrows are
// bounded lists kept in insertion order; zero entries are pruned at the end
// of every operation.
type Position struct {
	Owner       uuid.UUID
	Collaterals []CollateralDeposit
	Borrows     []BorrowedAmount
	Floors      []CollateralFloor

	GadEnabled            bool
	TotalGadLiquidatedUSD int64
	Reputation            Reputation

	CreatedAt    int64
	LastUpdate   int64
	LastAccrual  int64
	LastGadCrank int64

	Version int64
}

// NewPosition returns an empty position with GAD enabled. The crank clock
// starts at creation so a first crank never sees the whole epoch elapsed.
func NewPosition(owner uuid.UUID, now int64) *Position {
	return &Position{
		Owner:        owner,
		GadEnabled:   true,
		CreatedAt:    now,
		LastUpdate:   now,
		LastAccrual:  now,
		LastGadCrank: now,
	}
}

// CollateralAmount returns the deposited amount of asset, 0 if none.
func (p *Position) CollateralAmount(asset ledger.AssetID) int64 {
	for _, c := range p.Collaterals {
		if c.Asset == asset {
			return c.Amount
		}
	}
	return 0
}

// Borrow returns the debt entry for asset.
func (p *Position) Borrow(asset ledger.AssetID) (BorrowedAmount, bool) {
	for _, b := range p.Borrows {
		if b.Asset == asset {
			return b, true
		}
	}
	return BorrowedAmount{}, false
}

func (p *Position) HasDebt() bool {
	for _, b := range p.Borrows {
		if b.Principal > 0 || b.AccruedInterest > 0 {
			return true
		}
	}
	return false
}

// HasPrincipal reports whether any borrow still carries principal, the
// only base interest accrues on.
func (p *Position) HasPrincipal() bool {
	for _, b := range p.Borrows {
		if b.Principal > 0 {
			return true
		}
	}
	return false
}

// Floor returns the GAD floor for asset.
func (p *Position) Floor(asset ledger.AssetID) int64 {
	for _, f := range p.Floors {
		if f.Asset == asset {
			return f.Amount
		}
	}
	return 0
}

// collateralEntry finds or inserts the entry for asset.
func (p *Position) collateralEntry(asset ledger.AssetID) (*CollateralDeposit, error) {
	for i := range p.Collaterals {
		if p.Collaterals[i].Asset == asset {
			return &p.Collaterals[i], nil
		}
	}
	if len(p.Collaterals) >= MaxCollateralTypes {
		return nil, fmt.Errorf("%w: position already holds %d collateral types", ErrMaxCollateralTypesReached, len(p.Collaterals))
	}
	p.Collaterals = append(p.Collaterals, CollateralDeposit{Asset: asset})
	return &p.Collaterals[len(p.Collaterals)-1], nil
}

func (p *Position) borrowEntry(asset ledger.AssetID) (*BorrowedAmount, error) {
	for i := range p.Borrows {
		if p.Borrows[i].Asset == asset {
			return &p.Borrows[i], nil
		}
	}
	if len(p.Borrows) >= MaxBorrowTypes {
		return nil, fmt.Errorf("%w: position already holds %d borrow types", ErrMaxBorrowTypesReached, len(p.Borrows))
	}
	p.Borrows = append(p.Borrows, BorrowedAmount{Asset: asset})
	return &p.Borrows[len(p.Borrows)-1], nil
}

// AddCollateral increases the entry for asset, creating it if needed.
func (p *Position) AddCollateral(asset ledger.AssetID, amount int64) error {
	entry, err := p.collateralEntry(asset)
	if err != nil {
		return err
	}
	sum, err := fpmath.CheckedAdd(entry.Amount, amount)
	if err != nil {
		return err
	}
	entry.Amount = sum
	return nil
}

// RemoveCollateral decreases the entry for asset.
func (p *Position) RemoveCollateral(asset ledger.AssetID, amount int64) error {
	for i := range p.Collaterals {
		if p.Collaterals[i].Asset != asset {
			continue
		}
		if p.Collaterals[i].Amount < amount {
			return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientCollateral, asset, p.Collaterals[i].Amount, amount)
		}
		p.Collaterals[i].Amount -= amount
		return nil
	}
	return fmt.Errorf("%w: no %s collateral", ErrInsufficientCollateral, asset)
}

// AddPrincipal increases the debt entry for asset, creating it if needed.
func (p *Position) AddPrincipal(asset ledger.AssetID, amount int64) error {
	entry, err := p.borrowEntry(asset)
	if err != nil {
		return err
	}
	sum, err := fpmath.CheckedAdd(entry.Principal, amount)
	if err != nil {
		return err
	}
	entry.Principal = sum
	return nil
}

// Amortize applies amount to the debt entry for asset, accrued interest
// first, then principal. amount must not exceed the amount owed.
func (p *Position) Amortize(asset ledger.AssetID, amount int64) (interestPaid, principalPaid int64, err error) {
	for i := range p.Borrows {
		b := &p.Borrows[i]
		if b.Asset != asset {
			continue
		}
		owed, err := b.Owed()
		if err != nil {
			return 0, 0, err
		}
		if amount > owed {
			return 0, 0, fmt.Errorf("%w: repay %d exceeds owed %d", ErrInvalidAmount, amount, owed)
		}
		interestPaid = fpmath.Min64(amount, b.AccruedInterest)
		principalPaid = amount - interestPaid
		b.AccruedInterest -= interestPaid
		b.Principal -= principalPaid
		return interestPaid, principalPaid, nil
	}
	return 0, 0, fmt.Errorf("%w: no %s debt", ErrInvalidAmount, asset)
}

// SetFloor records the GAD floor for asset; a zero amount clears it.
func (p *Position) SetFloor(asset ledger.AssetID, amount int64) {
	for i := range p.Floors {
		if p.Floors[i].Asset == asset {
			if amount == 0 {
				p.Floors = append(p.Floors[:i], p.Floors[i+1:]...)
			} else {
				p.Floors[i].Amount = amount
			}
			return
		}
	}
	if amount > 0 {
		p.Floors = append(p.Floors, CollateralFloor{Asset: asset, Amount: amount})
	}
}

// Prune drops zero-amount collateral and fully repaid borrow entries.
func (p *Position) Prune() {
	collaterals := p.Collaterals[:0]
	for _, c := range p.Collaterals {
		if c.Amount != 0 {
			collaterals = append(collaterals, c)
		}
	}
	p.Collaterals = collaterals

	borrows := p.Borrows[:0]
	for _, b := range p.Borrows {
		if b.Principal != 0 || b.AccruedInterest != 0 {
			borrows = append(borrows, b)
		}
	}
	p.Borrows = borrows
}

// Touch records an operation at now and refreshes the account age.
func (p *Position) Touch(now int64) {
	p.LastUpdate = now
	if now > p.CreatedAt {
		p.Reputation.AccountAgeDays = uint32((now - p.CreatedAt) / SecondsPerDay)
	}
	p.Version++
}

// Clone returns a deep copy for copy-on-write updates.
func (p *Position) Clone() *Position {
	out := *p
	out.Collaterals = append([]CollateralDeposit(nil), p.Collaterals...)
	out.Borrows = append([]BorrowedAmount(nil), p.Borrows...)
	out.Floors = append([]CollateralFloor(nil), p.Floors...)
	return &out
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 192)

	buf = append(buf, p.Owner[:]...)

	buf = append(buf, byte(len(p.Collaterals)))
	for _, c := range p.Collaterals {
		buf = appendUint16LE(buf, uint16(c.Asset))
		buf = appendInt64LE(buf, c.Amount)
	}

	buf = append(buf, byte(len(p.Borrows)))
	for _, b := range p.Borrows {
		buf = appendUint16LE(buf, uint16(b.Asset))
		buf = appendInt64LE(buf, b.Principal)
		buf = appendInt64LE(buf, b.AccruedInterest)
	}

	buf = append(buf, byte(len(p.Floors)))
	for _, f := range p.Floors {
		buf = appendUint16LE(buf, uint16(f.Asset))
		buf = appendInt64LE(buf, f.Amount)
	}

	buf = appendBool(buf, p.GadEnabled)
	buf = appendInt64LE(buf, p.TotalGadLiquidatedUSD)
	buf = p.Reputation.appendCanonical(buf)

	buf = appendInt64LE(buf, p.CreatedAt)
	buf = appendInt64LE(buf, p.LastUpdate)
	buf = appendInt64LE(buf, p.LastAccrual)
	buf = appendInt64LE(buf, p.LastGadCrank)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func appendUint32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint16LE(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}
