package gad_test

import (
	"errors"
	"testing"

	"LendLedger/internal/gad"
	"LendLedger/internal/interest"
	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

const (
	t0      = int64(1_700_000_000)
	hour    = int64(3_600)
	oneSOL  = int64(1_000_000_000)
	oneUSDC = int64(1_000_000)
)

type fixture struct {
	env     *state.Env
	feeds   *oracle.FeedBook
	staging *ledger.Staging
	engine  *gad.Engine
	pos     *state.Position
}

// newLeveragedFixture builds a 10 SOL position that borrowed $750 at $100/SOL,
// then marks SOL down to $83.333333 so the position sits at 90% LTV.
func newLeveragedFixture(t *testing.T) *fixture {
	t.Helper()
	staging := ledger.NewStaging(ledger.NewBalanceTracker(), "gad-test", t0)

	assets := state.NewAssetRegistry()
	if err := assets.RegisterCollateral(state.CollateralAsset{
		Asset: ledger.AssetSOL, MaxLTVBps: 7500, LiquidationThreshold: 8000, Decimals: 9, Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := assets.RegisterBorrowable(state.BorrowableAsset{
		Asset: ledger.AssetUSDC, Decimals: 6, Rates: interest.DefaultParams(), Active: true,
	}); err != nil {
		t.Fatal(err)
	}

	feeds := oracle.NewFeedBook(oracle.DefaultParams())
	if err := feeds.Initialize(ledger.AssetSOL, 100*oneUSDC, t0); err != nil {
		t.Fatal(err)
	}
	if err := feeds.Initialize(ledger.AssetUSDC, oneUSDC, t0); err != nil {
		t.Fatal(err)
	}

	pools := pool.NewBook()
	usdcPool, err := pools.Create(ledger.AssetUSDC, pool.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	lp := uuid.New()
	credit(t, staging, ledger.WalletAccount(lp, ledger.AssetUSDC), 1_000_000*oneUSDC)
	if _, err := usdcPool.Deposit(staging, lp, 1_000_000*oneUSDC); err != nil {
		t.Fatal(err)
	}

	env := &state.Env{
		Protocol: state.NewProtocol(),
		Assets:   assets,
		Prices:   feeds,
		Pools:    pools,
		Custody:  staging,
		Now:      t0,
	}
	pos := state.NewPosition(uuid.New(), t0)
	credit(t, staging, ledger.WalletAccount(pos.Owner, ledger.AssetSOL), 10*oneSOL)
	if _, err := state.Deposit(env, pos, ledger.AssetSOL, 10*oneSOL); err != nil {
		t.Fatal(err)
	}
	if _, err := state.Borrow(env, pos, ledger.AssetUSDC, 750*oneUSDC); err != nil {
		t.Fatal(err)
	}

	engine, err := gad.NewEngine(gad.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{env: env, feeds: feeds, staging: staging, engine: engine, pos: pos}
	f.advance(t, hour)
	return f
}

func credit(t *testing.T, c ledger.Custody, to ledger.AccountKey, amount int64) {
	t.Helper()
	if err := c.Transfer(ledger.JournalTypeWalletCredit, ledger.BridgeAccount(to.AssetID), to, amount); err != nil {
		t.Fatalf("credit %s: %v", to.AccountPath(), err)
	}
}

// advance moves the clock and republishes prices so valuations stay fresh.
func (f *fixture) advance(t *testing.T, seconds int64) {
	t.Helper()
	f.env.Now += seconds
	if err := f.feeds.Override(ledger.AssetSOL, 83_333_333, f.env.Now); err != nil {
		t.Fatal(err)
	}
	if err := f.feeds.Override(ledger.AssetUSDC, oneUSDC, f.env.Now); err != nil {
		t.Fatal(err)
	}
}

func TestRateBpsPerDay(t *testing.T) {
	cases := []struct {
		ltv, max, want int64
	}{
		{7000, 7500, 0},
		{7500, 7500, 0},
		{7509, 7500, 0},
		{7510, 7500, 1},
		{7600, 7500, 100},
		{7800, 7500, 900},
		{9000, 7500, 1000},
		{1 << 40, 7500, 1000},
	}
	for _, tc := range cases {
		if got := gad.RateBpsPerDay(tc.ltv, tc.max, 1000); got != tc.want {
			t.Errorf("RateBpsPerDay(%d, %d) = %d, want %d", tc.ltv, tc.max, got, tc.want)
		}
	}
}

// $1000-ish collateral at 90% LTV deleverages at the capped 1000 bps/day;
// one hour liquidates 1/24 of 10%, about 0.4167% of the collateral.
func TestCrank_OneHourAtCappedRate(t *testing.T) {
	f := newLeveragedFixture(t)
	cranker := uuid.New()

	exec, err := f.engine.Crank(f.env, f.pos, cranker)
	if err != nil {
		t.Fatalf("crank: %v", err)
	}
	if exec.LTVBeforeBps != 9000 {
		t.Errorf("ltv before: got %d, want 9000", exec.LTVBeforeBps)
	}
	if exec.RateBpsPerDay != 1000 {
		t.Errorf("rate: got %d, want 1000", exec.RateBpsPerDay)
	}
	if exec.LiquidatedAmount != 41_666_666 {
		t.Errorf("liquidated: got %d, want 41666666", exec.LiquidatedAmount)
	}
	if exec.RewardAmount != 208_333 {
		t.Errorf("reward: got %d, want 208333", exec.RewardAmount)
	}
	if exec.LTVAfterBps >= exec.LTVBeforeBps {
		t.Errorf("ltv did not fall: %d -> %d", exec.LTVBeforeBps, exec.LTVAfterBps)
	}
	if exec.DebtReducedUSD != exec.LiquidatedUSD {
		t.Errorf("debt reduced %d, liquidated usd %d", exec.DebtReducedUSD, exec.LiquidatedUSD)
	}

	if got := f.staging.Balance(ledger.TreasuryAccount(ledger.AssetSOL)); got != exec.LiquidatedAmount {
		t.Errorf("treasury SOL: got %d", got)
	}
	if got := f.staging.Balance(ledger.WalletAccount(cranker, ledger.AssetSOL)); got != exec.RewardAmount {
		t.Errorf("cranker reward: got %d", got)
	}
	if got := f.staging.Balance(ledger.GadSettlementAccount(ledger.AssetUSDC)); got != -exec.DebtReducedUSD {
		t.Errorf("gad settlement: got %d, want %d", got, -exec.DebtReducedUSD)
	}
	if got := f.pos.CollateralAmount(ledger.AssetSOL); got != 10*oneSOL-41_666_666-208_333 {
		t.Errorf("collateral left: got %d", got)
	}
	if f.pos.Reputation.GadEvents != 1 || f.pos.LastGadCrank != f.env.Now {
		t.Errorf("crank bookkeeping: events=%d last=%d", f.pos.Reputation.GadEvents, f.pos.LastGadCrank)
	}
}

// A position that borrowed a week after opening and went over the limit an
// hour later is deleveraged for that hour only.
func TestCrank_FirstCrankCountsFromBorrow(t *testing.T) {
	f := newLeveragedFixture(t)

	pos := state.NewPosition(uuid.New(), f.env.Now)
	credit(t, f.staging, ledger.WalletAccount(pos.Owner, ledger.AssetSOL), 10*oneSOL)
	if _, err := state.Deposit(f.env, pos, ledger.AssetSOL, 10*oneSOL); err != nil {
		t.Fatal(err)
	}
	f.advance(t, 7*state.SecondsPerDay)
	if _, err := state.Borrow(f.env, pos, ledger.AssetUSDC, 600*oneUSDC); err != nil {
		t.Fatal(err)
	}

	f.env.Now += hour
	if err := f.feeds.Override(ledger.AssetSOL, 66_666_666, f.env.Now); err != nil {
		t.Fatal(err)
	}
	if err := f.feeds.Override(ledger.AssetUSDC, oneUSDC, f.env.Now); err != nil {
		t.Fatal(err)
	}

	exec, err := f.engine.Crank(f.env, pos, uuid.New())
	if err != nil {
		t.Fatalf("crank: %v", err)
	}
	if exec.RateBpsPerDay != 1000 {
		t.Fatalf("rate: got %d, want 1000", exec.RateBpsPerDay)
	}
	if exec.LiquidatedAmount != 41_666_666 {
		t.Errorf("liquidated: got %d, want one hour's worth 41666666", exec.LiquidatedAmount)
	}
}

func TestCrank_UpdatesRegistryTotals(t *testing.T) {
	f := newLeveragedFixture(t)
	sol, err := f.env.Assets.Collateral(ledger.AssetSOL)
	if err != nil {
		t.Fatal(err)
	}
	usdc, err := f.env.Assets.Borrowable(ledger.AssetUSDC)
	if err != nil {
		t.Fatal(err)
	}
	depositedBefore, borrowedBefore := sol.TotalDeposited, usdc.TotalBorrowed

	exec, err := f.engine.Crank(f.env, f.pos, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if want := depositedBefore - exec.LiquidatedAmount - exec.RewardAmount; sol.TotalDeposited != want {
		t.Errorf("SOL deposited: got %d, want %d", sol.TotalDeposited, want)
	}
	var principal int64
	for _, r := range exec.Repayments {
		principal += r.PrincipalPaid
	}
	if principal == 0 {
		t.Fatal("crank repaid no principal")
	}
	if want := borrowedBefore - principal; usdc.TotalBorrowed != want {
		t.Errorf("USDC borrowed: got %d, want %d", usdc.TotalBorrowed, want)
	}
}

func TestCrank_Guards(t *testing.T) {
	f := newLeveragedFixture(t)
	if _, err := f.engine.Crank(f.env, f.pos, uuid.New()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Crank(f.env, f.pos, uuid.New()); !errors.Is(err, state.ErrCrankTooSoon) {
		t.Errorf("second crank in the same hour: expected ErrCrankTooSoon, got %v", err)
	}

	f.advance(t, hour)
	f.pos.GadEnabled = false
	if _, err := f.engine.Crank(f.env, f.pos, uuid.New()); !errors.Is(err, state.ErrGadDisabled) {
		t.Errorf("expected ErrGadDisabled, got %v", err)
	}

	healthy := state.NewPosition(uuid.New(), t0)
	if _, err := f.engine.Crank(f.env, healthy, uuid.New()); !errors.Is(err, state.ErrNoDebtToDeleverage) {
		t.Errorf("expected ErrNoDebtToDeleverage, got %v", err)
	}
}

func TestCrank_BelowThreshold(t *testing.T) {
	f := newLeveragedFixture(t)
	if err := f.feeds.Override(ledger.AssetSOL, 100*oneUSDC, f.env.Now); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Crank(f.env, f.pos, uuid.New()); !errors.Is(err, state.ErrLtvBelowGadThreshold) {
		t.Fatalf("expected ErrLtvBelowGadThreshold, got %v", err)
	}
}

func TestCrank_NeverBreachesFloor(t *testing.T) {
	f := newLeveragedFixture(t)
	floor := 10*oneSOL - 20_000_000
	if err := state.ConfigureGad(f.env, f.pos, true, []state.CollateralFloor{{Asset: ledger.AssetSOL, Amount: floor}}); err != nil {
		t.Fatal(err)
	}

	var err error
	for i := 0; i < 10; i++ {
		_, err = f.engine.Crank(f.env, f.pos, uuid.New())
		if got := f.pos.CollateralAmount(ledger.AssetSOL); got < floor {
			t.Fatalf("crank %d: collateral %d below floor %d", i, got, floor)
		}
		if err != nil {
			break
		}
		f.advance(t, hour)
	}
	if !errors.Is(err, state.ErrNothingToLiquidate) {
		t.Fatalf("expected cranking to stop with ErrNothingToLiquidate, got %v", err)
	}
}

// ratio is debt/collateral at 1e12 precision, finer than whole bps.
func (f *fixture) ratio(t *testing.T) (int64, *state.Valuation) {
	t.Helper()
	v, err := f.env.Evaluator().Evaluate(f.pos, f.env.Now)
	if err != nil {
		t.Fatal(err)
	}
	r, err := fpmath.MulDiv(v.BorrowUSD, 1_000_000_000_000, v.CollateralUSD, fpmath.RoundDown)
	if err != nil {
		t.Fatal(err)
	}
	return r, v
}

func TestCrank_ConvergesToHealthy(t *testing.T) {
	f := newLeveragedFixture(t)
	f.advance(t, state.SecondsPerDay)

	var (
		err  error
		last *state.Valuation
	)
	for i := 0; i < 500; i++ {
		// Settle interest first so the crank itself only deleverages.
		if _, err := state.AccrueInterest(f.env, f.pos, true); err != nil {
			t.Fatal(err)
		}
		before, v := f.ratio(t)
		last = v

		var exec *gad.Execution
		exec, err = f.engine.Crank(f.env, f.pos, uuid.New())
		if err != nil {
			break
		}
		after, _ := f.ratio(t)
		if after >= before || exec.LTVAfterBps > exec.LTVBeforeBps {
			t.Fatalf("crank %d: ltv %d -> %d did not decrease", i, exec.LTVBeforeBps, exec.LTVAfterBps)
		}
		f.advance(t, state.SecondsPerDay)
	}

	switch {
	case errors.Is(err, state.ErrLtvBelowGadThreshold):
	case errors.Is(err, state.ErrNothingToLiquidate):
		if rate := gad.RateBpsPerDay(last.LTVBps, last.EffectiveMaxLTVBps, 1000); rate != 0 {
			t.Fatalf("halted with rate %d at ltv %d", rate, last.LTVBps)
		}
	default:
		t.Fatalf("cranking did not halt cleanly: %v", err)
	}
	if last.LTVBps > 7510 {
		t.Errorf("final ltv %d not near max", last.LTVBps)
	}
}
