package state

import (
	"fmt"

	"LendLedger/internal/interest"
	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
)

// Liquidity is the lending pool of one borrowable asset as seen by the
// position ledger.
type Liquidity interface {
	Available() int64
	BorrowRateBps() int64
	// Lend moves amount from the pool vault to `to` and books it as borrowed.
	Lend(c ledger.Custody, to ledger.AccountKey, amount int64) error
	// Settle moves principal+interest from `from` into the pool, routing
	// the interest between treasury, insurance fund and lenders.
	Settle(c ledger.Custody, from ledger.AccountKey, principal, interest int64) (Settlement, error)
}

// Settlement is how repaid interest was distributed.
type Settlement struct {
	ProtocolFee int64
	Insurance   int64
	ToLenders   int64
}

// LiquiditySource resolves the pool for a borrowable asset.
type LiquiditySource interface {
	Liquidity(asset ledger.AssetID) (Liquidity, error)
}

// Env is everything a position operation may read or write besides the
// position itself. All records are transaction-scoped copies; the caller
// discards them on error.
type Env struct {
	Protocol *Protocol
	Assets   *AssetRegistry
	Prices   Pricer
	Pools    LiquiditySource
	Custody  ledger.Custody
	Now      int64
}

func (e *Env) Evaluator() Evaluator {
	return Evaluator{Assets: e.Assets, Prices: e.Prices}
}

type DepositResult struct {
	Asset     ledger.AssetID
	Amount    int64
	USD       int64
	NewAmount int64
}

type WithdrawResult struct {
	Asset       ledger.AssetID
	Amount      int64
	USD         int64
	Remaining   int64
	LTVAfterBps int64
}

type BorrowResult struct {
	Asset              ledger.AssetID
	Amount             int64
	USD                int64
	LTVAfterBps        int64
	EffectiveMaxLTVBps int64
}

type RepayResult struct {
	Asset         ledger.AssetID
	Requested     int64
	Repaid        int64
	InterestPaid  int64
	PrincipalPaid int64
	USD           int64
	RemainingOwed int64
	Settlement    Settlement
}

type AccruedInterest struct {
	Asset   ledger.AssetID
	RateBps int64
	Amount  int64
}

type AccrualResult struct {
	Elapsed int64
	Skipped bool
	Entries []AccruedInterest
}

// Deposit moves amount of asset from the owner's wallet into the
// position's collateral vault.
func Deposit(env *Env, pos *Position, asset ledger.AssetID, amount int64) (*DepositResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit %d", ErrInvalidAmount, amount)
	}
	cfg, err := env.Assets.ActiveCollateral(asset)
	if err != nil {
		return nil, err
	}
	usd, err := env.Evaluator().CollateralUSD(asset, amount, env.Now)
	if err != nil {
		return nil, err
	}
	if err := pos.AddCollateral(asset, amount); err != nil {
		return nil, err
	}
	if err := env.Custody.Transfer(ledger.JournalTypeCollateralDeposit,
		ledger.WalletAccount(pos.Owner, asset), ledger.CollateralVault(pos.Owner, asset), amount); err != nil {
		return nil, err
	}
	if cfg.TotalDeposited, err = fpmath.CheckedAdd(cfg.TotalDeposited, amount); err != nil {
		return nil, err
	}
	if err := env.Protocol.AddCollateralUSD(usd); err != nil {
		return nil, err
	}

	pos.Prune()
	pos.Touch(env.Now)
	return &DepositResult{Asset: asset, Amount: amount, USD: usd, NewAmount: pos.CollateralAmount(asset)}, nil
}

// Withdraw returns collateral to the owner's wallet. With outstanding debt
// the remaining collateral must still support it.
func Withdraw(env *Env, pos *Position, asset ledger.AssetID, amount int64) (*WithdrawResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdraw %d", ErrInvalidAmount, amount)
	}
	cfg, err := env.Assets.Collateral(asset)
	if err != nil {
		return nil, err
	}
	if _, err := AccrueInterest(env, pos, false); err != nil {
		return nil, err
	}
	ev := env.Evaluator()
	usd, err := ev.CollateralUSD(asset, amount, env.Now)
	if err != nil {
		return nil, err
	}
	probe := pos.Clone()
	if err := probe.RemoveCollateral(asset, amount); err != nil {
		return nil, err
	}

	res := &WithdrawResult{Asset: asset, Amount: amount, USD: usd, Remaining: probe.CollateralAmount(asset)}
	if probe.HasDebt() {
		after, err := ev.Evaluate(probe, env.Now)
		if err != nil {
			return nil, err
		}
		ok, err := after.Supports(after.BorrowUSD)
		if err != nil {
			return nil, err
		}
		if !ok || after.CollateralUSD == 0 {
			return nil, fmt.Errorf("%w: debt $%d against post-withdrawal collateral $%d at %d bps",
				ErrExceedsLTV, after.BorrowUSD, after.CollateralUSD, after.EffectiveMaxLTVBps)
		}
		res.LTVAfterBps = after.LTVBps
	}

	if err := pos.RemoveCollateral(asset, amount); err != nil {
		return nil, err
	}
	if err := env.Custody.Transfer(ledger.JournalTypeCollateralWithdraw,
		ledger.CollateralVault(pos.Owner, asset), ledger.WalletAccount(pos.Owner, asset), amount); err != nil {
		return nil, err
	}
	cfg.TotalDeposited = fpmath.SaturatingSub(cfg.TotalDeposited, amount)
	env.Protocol.SubCollateralUSD(usd)

	pos.Prune()
	pos.Touch(env.Now)
	return res, nil
}

// Borrow lends amount of asset from its pool to the owner's wallet when the
// position's collateral supports the new total debt.
func Borrow(env *Env, pos *Position, asset ledger.AssetID, amount int64) (*BorrowResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: borrow %d", ErrInvalidAmount, amount)
	}
	cfg, err := env.Assets.ActiveBorrowable(asset)
	if err != nil {
		return nil, err
	}
	liq, err := env.Pools.Liquidity(asset)
	if err != nil {
		return nil, err
	}
	if avail := liq.Available(); avail < amount {
		return nil, fmt.Errorf("%w: %s pool has %d, requested %d", ErrInsufficientLiquidity, asset, avail, amount)
	}
	if _, err := AccrueInterest(env, pos, false); err != nil {
		return nil, err
	}

	ev := env.Evaluator()
	v, err := ev.Evaluate(pos, env.Now)
	if err != nil {
		return nil, err
	}
	usd, err := ev.DebtUSD(asset, amount, env.Now)
	if err != nil {
		return nil, err
	}
	total, err := fpmath.CheckedAdd(v.BorrowUSD, usd)
	if err != nil {
		return nil, err
	}
	ok, err := v.Supports(total)
	if err != nil {
		return nil, err
	}
	if !ok || v.CollateralUSD == 0 {
		return nil, fmt.Errorf("%w: debt $%d would exceed %d bps of collateral $%d",
			ErrExceedsLTV, total, v.EffectiveMaxLTVBps, v.CollateralUSD)
	}

	hadDebt := pos.HasDebt()
	if err := pos.AddPrincipal(asset, amount); err != nil {
		return nil, err
	}
	if !hadDebt {
		// Deleveraging time counts from when debt exists.
		pos.LastGadCrank = env.Now
	}
	if err := liq.Lend(env.Custody, ledger.WalletAccount(pos.Owner, asset), amount); err != nil {
		return nil, err
	}
	if cfg.TotalBorrowed, err = fpmath.CheckedAdd(cfg.TotalBorrowed, amount); err != nil {
		return nil, err
	}
	if err := env.Protocol.AddBorrowedUSD(usd); err != nil {
		return nil, err
	}
	ltvAfter, err := fpmath.RatioBps(total, v.CollateralUSD)
	if err != nil {
		return nil, err
	}

	pos.Touch(env.Now)
	return &BorrowResult{
		Asset:              asset,
		Amount:             amount,
		USD:                usd,
		LTVAfterBps:        ltvAfter,
		EffectiveMaxLTVBps: v.EffectiveMaxLTVBps,
	}, nil
}

// Repay pays down debt in asset from the owner's wallet, interest first.
// Amounts above what is owed are capped.
func Repay(env *Env, pos *Position, asset ledger.AssetID, amount int64) (*RepayResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: repay %d", ErrInvalidAmount, amount)
	}
	return repayFrom(env, pos, asset, amount, ledger.WalletAccount(pos.Owner, asset))
}

func repayFrom(env *Env, pos *Position, asset ledger.AssetID, amount int64, payer ledger.AccountKey) (*RepayResult, error) {
	cfg, err := env.Assets.Borrowable(asset)
	if err != nil {
		return nil, err
	}
	if _, err := AccrueInterest(env, pos, false); err != nil {
		return nil, err
	}
	entry, ok := pos.Borrow(asset)
	if !ok {
		return nil, fmt.Errorf("%w: no outstanding %s debt", ErrInvalidAmount, asset)
	}
	owed, err := entry.Owed()
	if err != nil {
		return nil, err
	}
	repay := fpmath.Min64(amount, owed)
	usd, err := env.Evaluator().DebtUSD(asset, repay, env.Now)
	if err != nil {
		return nil, err
	}
	liq, err := env.Pools.Liquidity(asset)
	if err != nil {
		return nil, err
	}

	interestPaid, principalPaid, err := pos.Amortize(asset, repay)
	if err != nil {
		return nil, err
	}
	settlement, err := liq.Settle(env.Custody, payer, principalPaid, interestPaid)
	if err != nil {
		return nil, err
	}
	cfg.TotalBorrowed = fpmath.SaturatingSub(cfg.TotalBorrowed, principalPaid)
	env.Protocol.SubBorrowedUSD(usd)
	if err := env.Protocol.AddInsurance(asset, settlement.Insurance); err != nil {
		return nil, err
	}
	pos.Reputation.RecordRepayment(usd)

	pos.Prune()
	pos.Touch(env.Now)
	return &RepayResult{
		Asset:         asset,
		Requested:     amount,
		Repaid:        repay,
		InterestPaid:  interestPaid,
		PrincipalPaid: principalPaid,
		USD:           usd,
		RemainingOwed: owed - repay,
		Settlement:    settlement,
	}, nil
}

// AccrueInterest adds simple interest on every borrow since LastAccrual at
// the pool's current borrow rate. Unless force is set, calls within
// interest.MinAccrualInterval of the last accrual are skipped. LastAccrual
// only moves when interest was booked, or when there is no principal to
// accrue on, so truncated dust is carried into the next accrual.
func AccrueInterest(env *Env, pos *Position, force bool) (*AccrualResult, error) {
	elapsed := env.Now - pos.LastAccrual
	res := &AccrualResult{Elapsed: elapsed}
	if elapsed <= 0 {
		res.Skipped = true
		return res, nil
	}
	if !pos.HasPrincipal() {
		pos.LastAccrual = env.Now
		res.Skipped = true
		return res, nil
	}
	if !force && !interest.AccrualDue(pos.LastAccrual, env.Now) {
		res.Skipped = true
		return res, nil
	}

	type accrual struct {
		index  int
		amount int64
		rate   int64
	}
	pending := make([]accrual, 0, len(pos.Borrows))
	booked := false
	for i := range pos.Borrows {
		b := &pos.Borrows[i]
		if b.Principal == 0 {
			continue
		}
		liq, err := env.Pools.Liquidity(b.Asset)
		if err != nil {
			return nil, err
		}
		rate := liq.BorrowRateBps()
		amt, err := interest.Accrue(b.Principal, rate, elapsed)
		if err != nil {
			return nil, err
		}
		pending = append(pending, accrual{index: i, amount: amt, rate: rate})
		if amt > 0 {
			booked = true
		}
	}
	if !booked {
		res.Skipped = true
		return res, nil
	}

	for _, a := range pending {
		b := &pos.Borrows[a.index]
		var err error
		if b.AccruedInterest, err = fpmath.CheckedAdd(b.AccruedInterest, a.amount); err != nil {
			return nil, err
		}
		res.Entries = append(res.Entries, AccruedInterest{Asset: b.Asset, RateBps: a.rate, Amount: a.amount})
	}
	pos.LastAccrual = env.Now
	return res, nil
}

// ConfigureGad toggles GAD and sets per-asset collateral floors. A floor
// above the current deposit is rejected.
func ConfigureGad(env *Env, pos *Position, enabled bool, floors []CollateralFloor) error {
	for _, f := range floors {
		if f.Amount < 0 {
			return fmt.Errorf("%w: floor %d", ErrInvalidAmount, f.Amount)
		}
		if _, err := env.Assets.Collateral(f.Asset); err != nil {
			return err
		}
		if have := pos.CollateralAmount(f.Asset); f.Amount > have {
			return fmt.Errorf("%w: floor %d above deposited %d %s", ErrBelowCollateralFloor, f.Amount, have, f.Asset)
		}
	}
	pos.GadEnabled = enabled
	for _, f := range floors {
		pos.SetFloor(f.Asset, f.Amount)
	}
	pos.Touch(env.Now)
	return nil
}
