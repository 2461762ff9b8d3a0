package state

import (
	"fmt"
	"sort"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/ledger"

	"github.com/google/uuid"
)

// Protocol is the process-wide configuration and aggregate state. It is
// created once at genesis and passed explicitly to every operation.
type Protocol struct {
	Initialized        bool
	Admin              uuid.UUID
	Treasury           uuid.UUID
	Paused             bool
	TotalCollateralUSD int64
	TotalBorrowedUSD   int64
	// InsuranceFund mirrors the system insurance account per asset.
	InsuranceFund map[ledger.AssetID]int64
}

func NewProtocol() *Protocol {
	return &Protocol{InsuranceFund: make(map[ledger.AssetID]int64)}
}

// Initialize runs once; a second call fails.
func (p *Protocol) Initialize(admin, treasury uuid.UUID) error {
	if p.Initialized {
		return fmt.Errorf("%w: protocol already initialized", ErrInvalidConfig)
	}
	if admin == uuid.Nil || treasury == uuid.Nil {
		return fmt.Errorf("%w: admin and treasury are required", ErrInvalidConfig)
	}
	p.Initialized = true
	p.Admin = admin
	p.Treasury = treasury
	return nil
}

func (p *Protocol) IsAdmin(caller uuid.UUID) bool {
	return p.Initialized && caller == p.Admin
}

// AddCollateralUSD and the other aggregate helpers saturate at zero on the
// way down: prices move between deposit and withdrawal.
func (p *Protocol) AddCollateralUSD(v int64) error {
	sum, err := fpmath.CheckedAdd(p.TotalCollateralUSD, v)
	if err != nil {
		return err
	}
	p.TotalCollateralUSD = sum
	return nil
}

func (p *Protocol) SubCollateralUSD(v int64) {
	p.TotalCollateralUSD = fpmath.SaturatingSub(p.TotalCollateralUSD, v)
}

func (p *Protocol) AddBorrowedUSD(v int64) error {
	sum, err := fpmath.CheckedAdd(p.TotalBorrowedUSD, v)
	if err != nil {
		return err
	}
	p.TotalBorrowedUSD = sum
	return nil
}

func (p *Protocol) SubBorrowedUSD(v int64) {
	p.TotalBorrowedUSD = fpmath.SaturatingSub(p.TotalBorrowedUSD, v)
}

func (p *Protocol) AddInsurance(asset ledger.AssetID, amount int64) error {
	sum, err := fpmath.CheckedAdd(p.InsuranceFund[asset], amount)
	if err != nil {
		return err
	}
	p.InsuranceFund[asset] = sum
	return nil
}

func (p *Protocol) Clone() *Protocol {
	out := *p
	out.InsuranceFund = make(map[ledger.AssetID]int64, len(p.InsuranceFund))
	for k, v := range p.InsuranceFund {
		out.InsuranceFund[k] = v
	}
	return &out
}

// CanonicalBytes encodes the protocol deterministically for state hashing.
func (p *Protocol) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)
	buf = appendBool(buf, p.Initialized)
	buf = append(buf, p.Admin[:]...)
	buf = append(buf, p.Treasury[:]...)
	buf = appendBool(buf, p.Paused)
	buf = appendInt64LE(buf, p.TotalCollateralUSD)
	buf = appendInt64LE(buf, p.TotalBorrowedUSD)

	assets := make([]ledger.AssetID, 0, len(p.InsuranceFund))
	for a := range p.InsuranceFund {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
	for _, a := range assets {
		buf = appendUint16LE(buf, uint16(a))
		buf = appendInt64LE(buf, p.InsuranceFund[a])
	}
	return buf
}
