package pool_test

import (
	"testing"

	"LendLedger/internal/ledger"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newStaging() *ledger.Staging {
	return ledger.NewStaging(ledger.NewBalanceTracker(), "pool-test", 1_700_000_000)
}

func fundWallet(t *testing.T, c ledger.Custody, owner uuid.UUID, amount int64) {
	t.Helper()
	require.NoError(t, c.Transfer(ledger.JournalTypeWalletCredit,
		ledger.BridgeAccount(ledger.AssetUSDC), ledger.WalletAccount(owner, ledger.AssetUSDC), amount))
}

func newPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.New(ledger.AssetUSDC, pool.DefaultConfig())
	require.NoError(t, err)
	return p
}

func requireVaultInvariant(t *testing.T, c ledger.Custody, p *pool.Pool) {
	t.Helper()
	require.Equal(t, p.TotalDeposits-p.TotalBorrowed, c.Balance(ledger.PoolLiquidity(p.Asset)),
		"vault must equal deposits minus borrowed")
	require.Equal(t, -p.TotalShares, c.Balance(ledger.ShareSupplyAccount(p.Asset)),
		"share supply must mirror total shares")
}

func TestDeposit_FirstDepositMintsOneToOne(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	lp := uuid.New()
	fundWallet(t, c, lp, 1_000)

	shares, err := p.Deposit(c, lp, 1_000)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), shares)
	require.Equal(t, int64(1_000), c.Balance(ledger.LpShareAccount(lp, ledger.AssetUSDC)))
	requireVaultInvariant(t, c, p)
}

func TestDeposit_ProportionalAfterInterest(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	a, b := uuid.New(), uuid.New()
	fundWallet(t, c, a, 1_000)
	fundWallet(t, c, b, 1_000)
	_, err := p.Deposit(c, a, 1_000)
	require.NoError(t, err)

	// 200 of interest from a borrower: 10 skimmed, 190 to lenders.
	payer := ledger.WalletAccount(uuid.New(), ledger.AssetUSDC)
	require.NoError(t, c.Transfer(ledger.JournalTypeWalletCredit, ledger.BridgeAccount(ledger.AssetUSDC), payer, 200))
	accrual, err := p.AccrueInterest(c, payer, 200)
	require.NoError(t, err)
	require.Equal(t, int64(10), accrual.Insurance)
	require.Equal(t, int64(190), accrual.ToLenders)
	require.Equal(t, int64(1_190), p.TotalDeposits)
	require.Equal(t, int64(10), c.Balance(ledger.InsuranceFundAccount(ledger.AssetUSDC)))

	shares, err := p.Deposit(c, b, 1_000)
	require.NoError(t, err)
	require.Equal(t, int64(840), shares) // 1000 * 1000 / 1190, truncated
	requireVaultInvariant(t, c, p)
}

func TestWithdraw_IsInverseAndNeverDilutes(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	lp := uuid.New()
	fundWallet(t, c, lp, 10_000)
	_, err := p.Deposit(c, lp, 7_000)
	require.NoError(t, err)

	payer := ledger.WalletAccount(uuid.New(), ledger.AssetUSDC)
	require.NoError(t, c.Transfer(ledger.JournalTypeWalletCredit, ledger.BridgeAccount(ledger.AssetUSDC), payer, 333))
	_, err = p.AccrueInterest(c, payer, 333)
	require.NoError(t, err)

	before, err := p.ExchangeRate()
	require.NoError(t, err)
	for _, shares := range []int64{1, 17, 999, 3} {
		_, err := p.Withdraw(c, lp, shares)
		require.NoError(t, err)
		after, err := p.ExchangeRate()
		require.NoError(t, err)
		require.GreaterOrEqual(t, after, before, "exchange rate dropped after withdrawing %d shares", shares)
		before = after
		requireVaultInvariant(t, c, p)
	}
}

func TestWithdraw_Errors(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	lp := uuid.New()
	fundWallet(t, c, lp, 1_000)
	_, err := p.Deposit(c, lp, 1_000)
	require.NoError(t, err)

	_, err = p.Withdraw(c, uuid.New(), 10)
	require.ErrorIs(t, err, state.ErrNoLpShares)

	borrower := ledger.WalletAccount(uuid.New(), ledger.AssetUSDC)
	require.NoError(t, p.Lend(c, borrower, 900))
	_, err = p.Withdraw(c, lp, 500)
	require.ErrorIs(t, err, state.ErrInsufficientLiquidity)

	_, err = p.Withdraw(c, lp, 0)
	require.ErrorIs(t, err, state.ErrInvalidAmount)
}

func TestLendAndSettle_RoutesInterest(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	lp := uuid.New()
	fundWallet(t, c, lp, 100_000)
	_, err := p.Deposit(c, lp, 100_000)
	require.NoError(t, err)

	borrower := uuid.New()
	wallet := ledger.WalletAccount(borrower, ledger.AssetUSDC)
	require.NoError(t, p.Lend(c, wallet, 50_000))
	require.Equal(t, int64(50_000), p.TotalBorrowed)
	require.Equal(t, int64(5_000), p.UtilizationBps())
	requireVaultInvariant(t, c, p)

	fundWallet(t, c, borrower, 1_000)
	s, err := p.Settle(c, wallet, 50_000, 1_000)
	require.NoError(t, err)
	require.Equal(t, int64(200), s.ProtocolFee) // 20%
	require.Equal(t, int64(40), s.Insurance)    // 5% of the remaining 800
	require.Equal(t, int64(760), s.ToLenders)
	require.Equal(t, int64(200), c.Balance(ledger.TreasuryAccount(ledger.AssetUSDC)))
	require.Equal(t, int64(0), p.TotalBorrowed)
	require.Equal(t, int64(100_760), p.TotalDeposits)
	requireVaultInvariant(t, c, p)
}

func TestLend_InsufficientLiquidity(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	err := p.Lend(c, ledger.WalletAccount(uuid.New(), ledger.AssetUSDC), 1)
	require.ErrorIs(t, err, state.ErrInsufficientLiquidity)
}

func TestRates_FollowUtilization(t *testing.T) {
	p := newPool(t)
	p.TotalDeposits = 1_000_000
	p.TotalBorrowed = 800_000
	require.Equal(t, int64(1_100), p.BorrowRateBps())
	require.Less(t, p.SupplyRateBps(), p.BorrowRateBps())
}

func TestFlashLoan_RepaidWithFee(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	lp := uuid.New()
	fundWallet(t, c, lp, 1_000_000)
	_, err := p.Deposit(c, lp, 1_000_000)
	require.NoError(t, err)

	borrower := uuid.New()
	fundWallet(t, c, borrower, 1_000) // covers the fee
	var seen int64
	res, err := p.FlashLoan(c, borrower, 400_000, func(c ledger.Custody, who uuid.UUID, asset ledger.AssetID, amount, fee int64) error {
		seen = c.Balance(ledger.WalletAccount(who, asset))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(401_000), seen)
	require.Equal(t, int64(200), res.Fee) // 5 bps
	require.Equal(t, int64(800), c.Balance(ledger.WalletAccount(borrower, ledger.AssetUSDC)))
	require.Equal(t, int64(1_000_190), p.TotalDeposits)
	requireVaultInvariant(t, c, p)
}

func TestFlashLoan_NotRepaid(t *testing.T) {
	c := newStaging()
	p := newPool(t)
	lp := uuid.New()
	fundWallet(t, c, lp, 1_000_000)
	_, err := p.Deposit(c, lp, 1_000_000)
	require.NoError(t, err)

	borrower := uuid.New()
	sink := ledger.SwapVenueAccount(ledger.AssetUSDC)
	_, err = p.FlashLoan(c, borrower, 10_000, func(c ledger.Custody, who uuid.UUID, asset ledger.AssetID, amount, fee int64) error {
		return c.Transfer(ledger.JournalTypeSwap, ledger.WalletAccount(who, asset), sink, amount)
	})
	require.ErrorIs(t, err, state.ErrFlashLoanNotRepaid)
}

func TestBook_CreateTwiceFails(t *testing.T) {
	b := pool.NewBook()
	_, err := b.Create(ledger.AssetUSDC, pool.DefaultConfig())
	require.NoError(t, err)
	_, err = b.Create(ledger.AssetUSDC, pool.DefaultConfig())
	require.ErrorIs(t, err, state.ErrInvalidConfig)

	cfg := pool.DefaultConfig()
	cfg.InsuranceFeeBps = 20_000
	_, err = b.Create(ledger.AssetEURC, cfg)
	require.ErrorIs(t, err, state.ErrInvalidConfig)
}
