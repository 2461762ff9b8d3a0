package leverage

import (
	"fmt"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// Params bounds the orchestrator loops.
type Params struct {
	MinMultiplier int64 `toml:"min_multiplier" json:"min_multiplier"`
	MaxMultiplier int64 `toml:"max_multiplier" json:"max_multiplier"`
	MaxSteps      int   `toml:"max_steps" json:"max_steps"`
	// UnwindBufferBps over-sells collateral on close to absorb slippage.
	UnwindBufferBps int64 `toml:"unwind_buffer_bps" json:"unwind_buffer_bps"`
}

func DefaultParams() Params {
	return Params{MinMultiplier: 2, MaxMultiplier: 5, MaxSteps: 16, UnwindBufferBps: 100}
}

func (p Params) Validate() error {
	if p.MinMultiplier < 2 || p.MaxMultiplier < p.MinMultiplier {
		return fmt.Errorf("%w: multiplier range [%d, %d]", state.ErrInvalidConfig, p.MinMultiplier, p.MaxMultiplier)
	}
	if p.MaxSteps <= 0 {
		return fmt.Errorf("%w: max_steps must be > 0", state.ErrInvalidConfig)
	}
	if p.UnwindBufferBps < 0 || p.UnwindBufferBps >= fpmath.BpsDenominator {
		return fmt.Errorf("%w: unwind_buffer_bps must be in [0, 10000)", state.ErrInvalidConfig)
	}
	return nil
}

// Orchestrator drives leveraged entries and exits through the position
// ledger. Every step passes the ledger's own checks.
type Orchestrator struct {
	params  Params
	swapper Swapper
}

func NewOrchestrator(params Params, swapper Swapper) (*Orchestrator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{params: params, swapper: swapper}, nil
}

type OpenRequest struct {
	ID                    uuid.UUID
	CollateralAsset       ledger.AssetID
	BorrowAsset           ledger.AssetID
	InitialCollateral     int64
	Multiplier            int64
	MinCollateralReceived int64
	Short                 bool
}

// Open deposits the initial collateral, then borrows, swaps and redeposits
// until (multiplier-1) times the initial value is borrowed.
func (o *Orchestrator) Open(env *state.Env, pos *state.Position, req OpenRequest) (*Position, error) {
	if req.Multiplier < o.params.MinMultiplier || req.Multiplier > o.params.MaxMultiplier {
		return nil, fmt.Errorf("%w: multiplier %d outside [%d, %d]",
			state.ErrInvalidAmount, req.Multiplier, o.params.MinMultiplier, o.params.MaxMultiplier)
	}
	if req.CollateralAsset == req.BorrowAsset {
		return nil, fmt.Errorf("%w: collateral and borrow asset are both %s", state.ErrInvalidAmount, req.CollateralAsset)
	}
	if _, err := state.Deposit(env, pos, req.CollateralAsset, req.InitialCollateral); err != nil {
		return nil, err
	}

	ev := env.Evaluator()
	entryPrice, err := env.Prices.Price(req.CollateralAsset, env.Now)
	if err != nil {
		return nil, err
	}
	initialUSD, err := ev.CollateralUSD(req.CollateralAsset, req.InitialCollateral, env.Now)
	if err != nil {
		return nil, err
	}
	targetUSD, err := fpmath.CheckedMul(initialUSD, req.Multiplier-1)
	if err != nil {
		return nil, err
	}
	target, err := ev.TokenAmount(req.BorrowAsset, targetUSD, env.Now)
	if err != nil {
		return nil, err
	}

	var borrowed, received int64
	for step := 0; step < o.params.MaxSteps && borrowed < target; step++ {
		headroom, err := o.borrowHeadroom(env, pos, req.BorrowAsset)
		if err != nil {
			return nil, err
		}
		amount := fpmath.Min64(target-borrowed, headroom)
		if amount == 0 {
			break
		}
		if _, err := state.Borrow(env, pos, req.BorrowAsset, amount); err != nil {
			return nil, err
		}
		out, err := o.swapper.Swap(env, pos.Owner, req.BorrowAsset, req.CollateralAsset, amount)
		if err != nil {
			return nil, err
		}
		if _, err := state.Deposit(env, pos, req.CollateralAsset, out); err != nil {
			return nil, err
		}
		borrowed += amount
		received += out
	}
	if borrowed < target {
		return nil, fmt.Errorf("%w: %dx needs %d %s of debt, collateral supports %d",
			state.ErrExceedsLTV, req.Multiplier, target, req.BorrowAsset, borrowed)
	}

	total := req.InitialCollateral + received
	if total < req.MinCollateralReceived {
		return nil, fmt.Errorf("%w: received %d, minimum %d", state.ErrSlippageExceeded, total, req.MinCollateralReceived)
	}
	return &Position{
		ID:                req.ID,
		Owner:             pos.Owner,
		CollateralAsset:   req.CollateralAsset,
		BorrowAsset:       req.BorrowAsset,
		InitialCollateral: req.InitialCollateral,
		TotalCollateral:   total,
		TotalBorrowed:     borrowed,
		Multiplier:        req.Multiplier,
		EntryPriceUSD:     entryPrice,
		IsLong:            !req.Short,
		Active:            true,
		OpenedAt:          env.Now,
	}, nil
}

// borrowHeadroom is how much more of asset the position can borrow.
func (o *Orchestrator) borrowHeadroom(env *state.Env, pos *state.Position, asset ledger.AssetID) (int64, error) {
	ev := env.Evaluator()
	v, err := ev.Evaluate(pos, env.Now)
	if err != nil {
		return 0, err
	}
	capacity, err := v.CapacityUSD()
	if err != nil {
		return 0, err
	}
	if capacity <= v.BorrowUSD {
		return 0, nil
	}
	return ev.TokenAmount(asset, capacity-v.BorrowUSD, env.Now)
}

// Settle records the collateral actually held after an external swap.
func (o *Orchestrator) Settle(pos *state.Position, lp *Position, newTotal int64) error {
	if !lp.Active {
		return fmt.Errorf("%w: %s", state.ErrLeverageInactive, lp.ID)
	}
	if newTotal < lp.InitialCollateral {
		return fmt.Errorf("%w: total %d below initial %d", state.ErrInvalidAmount, newTotal, lp.InitialCollateral)
	}
	if have := pos.CollateralAmount(lp.CollateralAsset); newTotal > have {
		return fmt.Errorf("%w: position holds %d %s", state.ErrInsufficientCollateral, have, lp.CollateralAsset)
	}
	lp.TotalCollateral = newTotal
	return nil
}

// CloseResult summarises a closed leverage position.
type CloseResult struct {
	Repaid             int64
	CollateralSold     int64
	CollateralReturned int64
	PnLUSD             int64
}

// Close repays the trade's debt interest first, from the wallet and then by
// selling tracked collateral, and withdraws what is left. Each repay and
// withdrawal is checked by the position ledger.
func (o *Orchestrator) Close(env *state.Env, pos *state.Position, lp *Position) (*CloseResult, error) {
	if !lp.Active {
		return nil, fmt.Errorf("%w: %s", state.ErrLeverageInactive, lp.ID)
	}
	if _, err := state.AccrueInterest(env, pos, false); err != nil {
		return nil, err
	}

	var remaining int64
	if entry, ok := pos.Borrow(lp.BorrowAsset); ok {
		owed, err := entry.Owed()
		if err != nil {
			return nil, err
		}
		attributable, err := fpmath.CheckedAdd(lp.TotalBorrowed, entry.AccruedInterest)
		if err != nil {
			return nil, err
		}
		remaining = fpmath.Min64(owed, attributable)
	}

	res := &CloseResult{}
	wallet := ledger.WalletAccount(pos.Owner, lp.BorrowAsset)
	for step := 0; remaining > 0; step++ {
		if step >= 2*o.params.MaxSteps {
			return nil, fmt.Errorf("%w: could not unwind %d %s", state.ErrExceedsLTV, remaining, lp.BorrowAsset)
		}
		if bal := env.Custody.Balance(wallet); bal > 0 {
			r, err := state.Repay(env, pos, lp.BorrowAsset, fpmath.Min64(bal, remaining))
			if err != nil {
				return nil, err
			}
			remaining -= r.Repaid
			res.Repaid += r.Repaid
			continue
		}
		sell, err := o.unwindAmount(env, pos, lp, remaining, res.CollateralSold)
		if err != nil {
			return nil, err
		}
		if sell == 0 {
			return nil, fmt.Errorf("%w: no collateral can be released to repay %d %s", state.ErrExceedsLTV, remaining, lp.BorrowAsset)
		}
		if _, err := state.Withdraw(env, pos, lp.CollateralAsset, sell); err != nil {
			return nil, err
		}
		if _, err := o.swapper.Swap(env, pos.Owner, lp.CollateralAsset, lp.BorrowAsset, sell); err != nil {
			return nil, err
		}
		res.CollateralSold += sell
	}

	ev := env.Evaluator()
	current, err := ev.CollateralUSD(lp.CollateralAsset, lp.TotalCollateral, env.Now)
	if err != nil {
		return nil, err
	}
	decimals, err := env.Assets.Decimals(lp.CollateralAsset)
	if err != nil {
		return nil, err
	}
	entry, err := fpmath.TokenToUSD(lp.TotalCollateral, lp.EntryPriceUSD, decimals)
	if err != nil {
		return nil, err
	}
	borrowedUSD, err := ev.DebtUSD(lp.BorrowAsset, lp.TotalBorrowed, env.Now)
	if err != nil {
		return nil, err
	}
	res.PnLUSD = current - entry - borrowedUSD

	rest := fpmath.Min64(lp.TotalCollateral-res.CollateralSold, pos.CollateralAmount(lp.CollateralAsset))
	if rest > 0 {
		if _, err := state.Withdraw(env, pos, lp.CollateralAsset, rest); err != nil {
			return nil, err
		}
		res.CollateralReturned = rest
	}

	lp.Active = false
	lp.ClosedAt = env.Now
	lp.RealizedPnLUSD = res.PnLUSD
	return res, nil
}

// unwindAmount is the collateral to sell for remaining debt, grossed up by
// the unwind buffer and bounded by what the position can release.
func (o *Orchestrator) unwindAmount(env *state.Env, pos *state.Position, lp *Position, remaining, sold int64) (int64, error) {
	ev := env.Evaluator()
	needUSD, err := ev.DebtUSD(lp.BorrowAsset, remaining, env.Now)
	if err != nil {
		return 0, err
	}
	needUSD, err = fpmath.MulDiv(needUSD, fpmath.BpsDenominator+o.params.UnwindBufferBps, fpmath.BpsDenominator, fpmath.RoundUp)
	if err != nil {
		return 0, err
	}
	need, err := ev.TokenAmount(lp.CollateralAsset, needUSD, env.Now)
	if err != nil {
		return 0, err
	}
	need++

	v, err := ev.Evaluate(pos, env.Now)
	if err != nil {
		return 0, err
	}
	capacity, err := v.CapacityUSD()
	if err != nil {
		return 0, err
	}
	cfg, err := env.Assets.Collateral(lp.CollateralAsset)
	if err != nil {
		return 0, err
	}
	// Removing x USD of this asset lowers capacity by about x*(ltv+bonus);
	// keep one bps of collateral plus a unit as margin for rounding.
	headroom := capacity - v.BorrowUSD - v.CollateralUSD/fpmath.BpsDenominator - 2
	if headroom <= 0 {
		return 0, nil
	}
	releasableUSD, err := fpmath.MulDiv(headroom, fpmath.BpsDenominator, cfg.MaxLTVBps+v.BonusBps, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	releasable, err := ev.TokenAmount(lp.CollateralAsset, releasableUSD, env.Now)
	if err != nil {
		return 0, err
	}

	sell := fpmath.Min64(need, releasable)
	sell = fpmath.Min64(sell, lp.TotalCollateral-sold)
	sell = fpmath.Min64(sell, pos.CollateralAmount(lp.CollateralAsset))
	if sell < 0 {
		return 0, nil
	}
	return sell, nil
}
