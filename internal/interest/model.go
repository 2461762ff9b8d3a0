// Package interest implements the utilisation-based two-slope borrow curve
// and per-borrow interest accrual.
package interest

import (
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/holiman/uint256"
)

const (
	// SecondsPerYear is a 365.25-day year.
	SecondsPerYear int64 = 31_557_600

	// MinAccrualInterval throttles accrual; shorter gaps are a no-op.
	MinAccrualInterval int64 = 3_600
)

// Params are the curve coefficients, all in basis points.
type Params struct {
	BaseRateBps           int64 `toml:"base_rate_bps" json:"base_rate_bps"`
	Slope1Bps             int64 `toml:"slope1_bps" json:"slope1_bps"`
	Slope2Bps             int64 `toml:"slope2_bps" json:"slope2_bps"`
	OptimalUtilizationBps int64 `toml:"optimal_utilization_bps" json:"optimal_utilization_bps"`
	ProtocolFeeBps        int64 `toml:"protocol_fee_bps" json:"protocol_fee_bps"`
}

// DefaultParams: 3% base, +8% to the 80% kink, +75% above it, 20% fee.
func DefaultParams() Params {
	return Params{
		BaseRateBps:           300,
		Slope1Bps:             800,
		Slope2Bps:             7_500,
		OptimalUtilizationBps: 8_000,
		ProtocolFeeBps:        2_000,
	}
}

func (p Params) Validate() error {
	if p.BaseRateBps < 0 || p.Slope1Bps < 0 || p.Slope2Bps < 0 {
		return fmt.Errorf("rate coefficients must be non-negative: base=%d slope1=%d slope2=%d",
			p.BaseRateBps, p.Slope1Bps, p.Slope2Bps)
	}
	if p.OptimalUtilizationBps <= 0 || p.OptimalUtilizationBps > fpmath.BpsDenominator {
		return fmt.Errorf("optimal_utilization_bps must be in (0, 10000], got %d", p.OptimalUtilizationBps)
	}
	if p.ProtocolFeeBps < 0 || p.ProtocolFeeBps > fpmath.BpsDenominator {
		return fmt.Errorf("protocol_fee_bps must be in [0, 10000], got %d", p.ProtocolFeeBps)
	}
	if p.BaseRateBps+p.Slope1Bps+p.Slope2Bps > 100*fpmath.BpsDenominator {
		return fmt.Errorf("max borrow rate above 10000%% APR")
	}
	return nil
}

// Model evaluates the curve for one borrowable asset.
type Model struct {
	params Params
}

func NewModel(params Params) *Model {
	return &Model{params: params}
}

func (m *Model) Params() Params {
	return m.params
}

// UtilizationBps returns borrowed/deposits in bps, 0 when deposits is 0 and
// saturating at 10000.
func UtilizationBps(totalDeposits, totalBorrowed int64) int64 {
	if totalDeposits <= 0 || totalBorrowed <= 0 {
		return 0
	}
	if totalBorrowed >= totalDeposits {
		return fpmath.BpsDenominator
	}
	u, err := fpmath.RatioBps(totalBorrowed, totalDeposits)
	if err != nil {
		return fpmath.BpsDenominator
	}
	return u
}

// BorrowRateBps returns the annual borrow rate for the pool state.
func (m *Model) BorrowRateBps(totalDeposits, totalBorrowed int64) int64 {
	p := m.params
	if totalDeposits <= 0 {
		return p.BaseRateBps
	}
	u := UtilizationBps(totalDeposits, totalBorrowed)

	if u <= p.OptimalUtilizationBps {
		variable, _ := fpmath.MulDiv(p.Slope1Bps, u, p.OptimalUtilizationBps, fpmath.RoundDown)
		return p.BaseRateBps + variable
	}

	rate := p.BaseRateBps + p.Slope1Bps
	headroom := fpmath.BpsDenominator - p.OptimalUtilizationBps
	if headroom <= 0 {
		return rate
	}
	excess, _ := fpmath.MulDiv(p.Slope2Bps, u-p.OptimalUtilizationBps, headroom, fpmath.RoundDown)
	return rate + excess
}

// SupplyRateBps is the LP yield: borrow rate scaled by utilisation, net of
// the protocol fee.
func (m *Model) SupplyRateBps(totalDeposits, totalBorrowed int64) int64 {
	borrowRate := m.BorrowRateBps(totalDeposits, totalBorrowed)
	u := UtilizationBps(totalDeposits, totalBorrowed)
	gross, _ := fpmath.MulDiv(borrowRate, u, fpmath.BpsDenominator, fpmath.RoundDown)
	net, _ := fpmath.MulDiv(gross, fpmath.BpsDenominator-m.params.ProtocolFeeBps, fpmath.BpsDenominator, fpmath.RoundDown)
	return net
}

// ProtocolFee splits interest paid into the protocol's share.
func (m *Model) ProtocolFee(interestPaid int64) (int64, error) {
	return fpmath.ApplyBps(interestPaid, m.params.ProtocolFeeBps)
}

// Accrue returns principal * rateBps * elapsed / (SecondsPerYear * 10000),
// truncated. The product is formed in 256 bits; a result above int64 is
// ErrOverflow.
func Accrue(principal, rateBps, elapsedSeconds int64) (int64, error) {
	if principal < 0 || rateBps < 0 {
		return 0, fpmath.ErrNegative
	}
	if principal == 0 || rateBps == 0 || elapsedSeconds <= 0 {
		return 0, nil
	}

	num, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(principal)), uint256.NewInt(uint64(rateBps)))
	if overflow {
		return 0, fpmath.ErrOverflow
	}
	num, overflow = num.MulOverflow(num, uint256.NewInt(uint64(elapsedSeconds)))
	if overflow {
		return 0, fpmath.ErrOverflow
	}
	denom := uint256.NewInt(uint64(SecondsPerYear) * uint64(fpmath.BpsDenominator))
	num.Div(num, denom)

	if !num.IsUint64() || num.Uint64() > uint64(1<<63-1) {
		return 0, fpmath.ErrOverflow
	}
	return int64(num.Uint64()), nil
}

// AccrualDue reports whether enough time passed since lastAccrual.
func AccrualDue(lastAccrual, now int64) bool {
	return now-lastAccrual >= MinAccrualInterval
}
