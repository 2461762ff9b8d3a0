package gad

import (
	"fmt"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// DebtRepayment is the part of one borrow entry retired by a crank.
type DebtRepayment struct {
	Asset         ledger.AssetID
	USD           int64
	InterestPaid  int64
	PrincipalPaid int64
}

// Execution describes one successful crank.
type Execution struct {
	Owner            uuid.UUID
	Cranker          uuid.UUID
	Asset            ledger.AssetID
	Elapsed          int64
	RateBpsPerDay    int64
	LiquidatedAmount int64
	RewardAmount     int64
	LiquidatedUSD    int64
	RewardUSD        int64
	DebtReducedUSD   int64
	LTVBeforeBps     int64
	LTVAfterBps      int64
	Repayments       []DebtRepayment
}

// Engine runs GAD cranks. It is stateless apart from its parameters.
type Engine struct {
	params Params
}

func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{params: params}, nil
}

func (e *Engine) Params() Params {
	return e.params
}

// Crank deleverages pos by the slice of collateral its rate and the time
// since the last crank allow. On error the caller discards env and pos.
func (e *Engine) Crank(env *state.Env, pos *state.Position, cranker uuid.UUID) (*Execution, error) {
	if !pos.GadEnabled {
		return nil, state.ErrGadDisabled
	}
	if !pos.HasDebt() {
		return nil, state.ErrNoDebtToDeleverage
	}
	elapsed := env.Now - pos.LastGadCrank
	if elapsed < e.params.MinCrankIntervalSeconds {
		return nil, fmt.Errorf("%w: %ds since last crank, need %ds", state.ErrCrankTooSoon, elapsed, e.params.MinCrankIntervalSeconds)
	}
	if _, err := state.AccrueInterest(env, pos, false); err != nil {
		return nil, err
	}

	ev := env.Evaluator()
	before, err := ev.Evaluate(pos, env.Now)
	if err != nil {
		return nil, err
	}
	if before.CollateralUSD == 0 {
		return nil, state.ErrInsufficientCollateral
	}
	if before.LTVBps <= before.EffectiveMaxLTVBps {
		return nil, fmt.Errorf("%w: ltv %d bps, max %d bps", state.ErrLtvBelowGadThreshold, before.LTVBps, before.EffectiveMaxLTVBps)
	}
	rate := RateBpsPerDay(before.LTVBps, before.EffectiveMaxLTVBps, e.params.MaxRateBpsPerDay)

	target := largestCollateral(before.Collateral)
	window := fpmath.Min64(elapsed, e.params.MaxCrankWindowSeconds)
	liquidated, err := fpmath.MulMulDiv(target.Amount, rate, window, fpmath.BpsDenominator*state.SecondsPerDay, fpmath.RoundDown)
	if err != nil {
		return nil, err
	}
	liquidated, reward, err := e.capAtFloor(liquidated, target.Amount-pos.Floor(target.Asset))
	if err != nil {
		return nil, err
	}
	if liquidated == 0 {
		return nil, fmt.Errorf("%w: %s at floor or rate too low", state.ErrNothingToLiquidate, target.Asset)
	}

	exec := &Execution{
		Owner:            pos.Owner,
		Cranker:          cranker,
		Asset:            target.Asset,
		Elapsed:          elapsed,
		RateBpsPerDay:    rate,
		LiquidatedAmount: liquidated,
		RewardAmount:     reward,
		LTVBeforeBps:     before.LTVBps,
	}
	if exec.LiquidatedUSD, err = ev.CollateralUSD(target.Asset, liquidated, env.Now); err != nil {
		return nil, err
	}
	if exec.RewardUSD, err = ev.CollateralUSD(target.Asset, reward, env.Now); err != nil {
		return nil, err
	}

	reduction := fpmath.Min64(exec.LiquidatedUSD, before.BorrowUSD)
	if err := e.retireDebt(env, pos, before, reduction, exec); err != nil {
		return nil, err
	}
	if err := e.seizeCollateral(env, pos, exec); err != nil {
		return nil, err
	}

	pos.LastGadCrank = env.Now
	if pos.TotalGadLiquidatedUSD, err = fpmath.CheckedAdd(pos.TotalGadLiquidatedUSD, exec.LiquidatedUSD); err != nil {
		return nil, err
	}
	pos.Reputation.RecordGadEvent()
	pos.Prune()
	pos.Touch(env.Now)

	after, err := ev.Evaluate(pos, env.Now)
	if err != nil {
		return nil, err
	}
	exec.LTVAfterBps = after.LTVBps
	return exec, nil
}

// capAtFloor shrinks liquidated so liquidated+reward fits in room.
func (e *Engine) capAtFloor(liquidated, room int64) (int64, int64, error) {
	if room <= 0 {
		return 0, 0, nil
	}
	reward, err := fpmath.ApplyBps(liquidated, e.params.CrankerRewardBps)
	if err != nil {
		return 0, 0, err
	}
	if liquidated+reward <= room {
		return liquidated, reward, nil
	}
	liquidated, err = fpmath.MulDiv(room, fpmath.BpsDenominator, fpmath.BpsDenominator+e.params.CrankerRewardBps, fpmath.RoundDown)
	if err != nil {
		return 0, 0, err
	}
	for liquidated > 0 {
		if reward, err = fpmath.ApplyBps(liquidated, e.params.CrankerRewardBps); err != nil {
			return 0, 0, err
		}
		if liquidated+reward <= room {
			break
		}
		liquidated--
	}
	if liquidated == 0 {
		return 0, 0, nil
	}
	return liquidated, reward, nil
}

// retireDebt spreads reductionUSD over the debt entries pro rata by value,
// the rounding remainder going to the largest entry. Each entry is paid
// interest first from the GAD settlement account.
func (e *Engine) retireDebt(env *state.Env, pos *state.Position, v *state.Valuation, reductionUSD int64, exec *Execution) error {
	if reductionUSD == 0 || v.BorrowUSD == 0 {
		return nil
	}
	shares := make([]int64, len(v.Debt))
	var assigned int64
	largest := 0
	for i, d := range v.Debt {
		share, err := fpmath.MulDiv(reductionUSD, d.USD, v.BorrowUSD, fpmath.RoundDown)
		if err != nil {
			return err
		}
		shares[i] = share
		assigned += share
		if d.USD > v.Debt[largest].USD || (d.USD == v.Debt[largest].USD && d.Asset < v.Debt[largest].Asset) {
			largest = i
		}
	}
	shares[largest] = fpmath.Min64(shares[largest]+reductionUSD-assigned, v.Debt[largest].USD)

	ev := env.Evaluator()
	for i, d := range v.Debt {
		if shares[i] == 0 {
			continue
		}
		tokens, err := ev.TokenAmount(d.Asset, shares[i], env.Now)
		if err != nil {
			return err
		}
		entry, ok := pos.Borrow(d.Asset)
		if !ok {
			continue
		}
		owed, err := entry.Owed()
		if err != nil {
			return err
		}
		tokens = fpmath.Min64(tokens, owed)
		if tokens == 0 {
			continue
		}

		interestPaid, principalPaid, err := pos.Amortize(d.Asset, tokens)
		if err != nil {
			return err
		}
		liq, err := env.Pools.Liquidity(d.Asset)
		if err != nil {
			return err
		}
		settlement, err := liq.Settle(env.Custody, ledger.GadSettlementAccount(d.Asset), principalPaid, interestPaid)
		if err != nil {
			return err
		}
		cfg, err := env.Assets.Borrowable(d.Asset)
		if err != nil {
			return err
		}
		cfg.TotalBorrowed = fpmath.SaturatingSub(cfg.TotalBorrowed, principalPaid)
		if err := env.Protocol.AddInsurance(d.Asset, settlement.Insurance); err != nil {
			return err
		}
		env.Protocol.SubBorrowedUSD(shares[i])

		exec.DebtReducedUSD += shares[i]
		exec.Repayments = append(exec.Repayments, DebtRepayment{
			Asset:         d.Asset,
			USD:           shares[i],
			InterestPaid:  interestPaid,
			PrincipalPaid: principalPaid,
		})
	}
	return nil
}

// seizeCollateral sends the liquidated slice to the treasury and the reward
// to the cranker's wallet.
func (e *Engine) seizeCollateral(env *state.Env, pos *state.Position, exec *Execution) error {
	total := exec.LiquidatedAmount + exec.RewardAmount
	if err := pos.RemoveCollateral(exec.Asset, total); err != nil {
		return err
	}
	vault := ledger.CollateralVault(pos.Owner, exec.Asset)
	if err := env.Custody.Transfer(ledger.JournalTypeGadLiquidation, vault, ledger.TreasuryAccount(exec.Asset), exec.LiquidatedAmount); err != nil {
		return err
	}
	if err := env.Custody.Transfer(ledger.JournalTypeGadCrankerReward, vault, ledger.WalletAccount(exec.Cranker, exec.Asset), exec.RewardAmount); err != nil {
		return err
	}
	cfg, err := env.Assets.Collateral(exec.Asset)
	if err != nil {
		return err
	}
	cfg.TotalDeposited = fpmath.SaturatingSub(cfg.TotalDeposited, total)
	env.Protocol.SubCollateralUSD(exec.LiquidatedUSD + exec.RewardUSD)
	return nil
}

// largestCollateral picks the entry with the highest USD value, ties going
// to the lowest asset id.
func largestCollateral(values []state.AssetValue) state.AssetValue {
	best := values[0]
	for _, v := range values[1:] {
		if v.USD > best.USD || (v.USD == best.USD && v.Asset < best.Asset) {
			best = v
		}
	}
	return best
}
