// Package pool implements share-based lending pool accounting: LP deposits
// and withdrawals, lending to positions, interest routing and flash loans.
package pool

import (
	"fmt"

	"LendLedger/internal/interest"
	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// ExchangeRateScale is the fixed-point scale of ExchangeRate.
const ExchangeRateScale int64 = 1_000_000

// Pool is the liquidity pool of one borrowable asset. The vault account
// always holds TotalDeposits - TotalBorrowed.
type Pool struct {
	Asset           ledger.AssetID
	Rates           interest.Params
	InsuranceFeeBps int64
	FlashLoanFeeBps int64

	TotalDeposits      int64
	TotalShares        int64
	TotalBorrowed      int64
	InterestEarned     int64 // credited to lenders
	ProtocolFees       int64 // sent to treasury
	InsuranceCollected int64
}

// Config is the creation-time configuration of a pool.
type Config struct {
	Rates           interest.Params
	InsuranceFeeBps int64
	FlashLoanFeeBps int64
}

func DefaultConfig() Config {
	return Config{
		Rates:           interest.DefaultParams(),
		InsuranceFeeBps: state.DefaultInsuranceFeeBps,
		FlashLoanFeeBps: state.DefaultFlashLoanFeeBps,
	}
}

func (c Config) Validate() error {
	if err := c.Rates.Validate(); err != nil {
		return fmt.Errorf("%w: %v", state.ErrInvalidConfig, err)
	}
	if c.InsuranceFeeBps < 0 || c.InsuranceFeeBps > fpmath.BpsDenominator {
		return fmt.Errorf("%w: insurance_fee_bps %d", state.ErrInvalidConfig, c.InsuranceFeeBps)
	}
	if c.FlashLoanFeeBps < 0 || c.FlashLoanFeeBps > fpmath.BpsDenominator {
		return fmt.Errorf("%w: flash_loan_fee_bps %d", state.ErrInvalidConfig, c.FlashLoanFeeBps)
	}
	return nil
}

func New(asset ledger.AssetID, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		Asset:           asset,
		Rates:           cfg.Rates,
		InsuranceFeeBps: cfg.InsuranceFeeBps,
		FlashLoanFeeBps: cfg.FlashLoanFeeBps,
	}, nil
}

func (p *Pool) Clone() *Pool {
	out := *p
	return &out
}

// Available is the idle liquidity that can be lent or withdrawn.
func (p *Pool) Available() int64 {
	return fpmath.SaturatingSub(p.TotalDeposits, p.TotalBorrowed)
}

func (p *Pool) UtilizationBps() int64 {
	return interest.UtilizationBps(p.TotalDeposits, p.TotalBorrowed)
}

func (p *Pool) BorrowRateBps() int64 {
	return interest.NewModel(p.Rates).BorrowRateBps(p.TotalDeposits, p.TotalBorrowed)
}

func (p *Pool) SupplyRateBps() int64 {
	return interest.NewModel(p.Rates).SupplyRateBps(p.TotalDeposits, p.TotalBorrowed)
}

// ExchangeRate is the value of one share in asset units, scaled by
// ExchangeRateScale. An empty pool is at par.
func (p *Pool) ExchangeRate() (int64, error) {
	if p.TotalShares == 0 {
		return ExchangeRateScale, nil
	}
	return fpmath.MulDiv(p.TotalDeposits, ExchangeRateScale, p.TotalShares, fpmath.RoundDown)
}

// SharesForDeposit mints 1:1 into an empty pool, otherwise proportionally,
// truncated in the pool's favour.
func (p *Pool) SharesForDeposit(amount int64) (int64, error) {
	if p.TotalShares == 0 || p.TotalDeposits == 0 {
		return amount, nil
	}
	return fpmath.MulDiv(amount, p.TotalShares, p.TotalDeposits, fpmath.RoundDown)
}

// AmountForShares is the exact inverse of SharesForDeposit, truncated.
func (p *Pool) AmountForShares(shares int64) (int64, error) {
	if p.TotalShares == 0 {
		return 0, nil
	}
	return fpmath.MulDiv(shares, p.TotalDeposits, p.TotalShares, fpmath.RoundDown)
}

// Deposit moves amount from the provider's wallet into the vault and mints
// shares to the provider's share account.
func (p *Pool) Deposit(c ledger.Custody, provider uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: lp deposit %d", state.ErrInvalidAmount, amount)
	}
	shares, err := p.SharesForDeposit(amount)
	if err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, fmt.Errorf("%w: deposit %d mints no shares", state.ErrInvalidAmount, amount)
	}
	deposits, err := fpmath.CheckedAdd(p.TotalDeposits, amount)
	if err != nil {
		return 0, err
	}
	totalShares, err := fpmath.CheckedAdd(p.TotalShares, shares)
	if err != nil {
		return 0, err
	}

	if err := c.Transfer(ledger.JournalTypeLpDeposit,
		ledger.WalletAccount(provider, p.Asset), ledger.PoolLiquidity(p.Asset), amount); err != nil {
		return 0, err
	}
	if err := c.Transfer(ledger.JournalTypeLpDeposit,
		ledger.ShareSupplyAccount(p.Asset), ledger.LpShareAccount(provider, p.Asset), shares); err != nil {
		return 0, err
	}
	p.TotalDeposits = deposits
	p.TotalShares = totalShares
	return shares, nil
}

// Withdraw burns shares and pays their value out of idle liquidity.
func (p *Pool) Withdraw(c ledger.Custody, provider uuid.UUID, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("%w: lp withdraw %d shares", state.ErrInvalidAmount, shares)
	}
	held := c.Balance(ledger.LpShareAccount(provider, p.Asset))
	if held < shares {
		return 0, fmt.Errorf("%w: holds %d, requested %d", state.ErrNoLpShares, held, shares)
	}
	amount, err := p.AmountForShares(shares)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: %d shares redeem nothing", state.ErrInvalidAmount, shares)
	}
	if avail := p.Available(); amount > avail {
		return 0, fmt.Errorf("%w: %d available, %d requested", state.ErrInsufficientLiquidity, avail, amount)
	}

	if err := c.Transfer(ledger.JournalTypeLpWithdraw,
		ledger.LpShareAccount(provider, p.Asset), ledger.ShareSupplyAccount(p.Asset), shares); err != nil {
		return 0, err
	}
	if err := c.Transfer(ledger.JournalTypeLpWithdraw,
		ledger.PoolLiquidity(p.Asset), ledger.WalletAccount(provider, p.Asset), amount); err != nil {
		return 0, err
	}
	p.TotalDeposits -= amount
	p.TotalShares -= shares
	return amount, nil
}

// Lend implements state.Liquidity.
func (p *Pool) Lend(c ledger.Custody, to ledger.AccountKey, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: lend %d", state.ErrInvalidAmount, amount)
	}
	if avail := p.Available(); amount > avail {
		return fmt.Errorf("%w: %d available, %d requested", state.ErrInsufficientLiquidity, avail, amount)
	}
	borrowed, err := fpmath.CheckedAdd(p.TotalBorrowed, amount)
	if err != nil {
		return err
	}
	if err := c.Transfer(ledger.JournalTypeBorrow, ledger.PoolLiquidity(p.Asset), to, amount); err != nil {
		return err
	}
	p.TotalBorrowed = borrowed
	return nil
}

// Settle implements state.Liquidity. The protocol fee share of interest goes
// to the treasury; the rest accrues to the pool through AccrueInterest.
func (p *Pool) Settle(c ledger.Custody, from ledger.AccountKey, principal, interestPaid int64) (state.Settlement, error) {
	var s state.Settlement
	if principal < 0 || interestPaid < 0 {
		return s, fmt.Errorf("%w: settle %d/%d", state.ErrInvalidAmount, principal, interestPaid)
	}
	if principal > p.TotalBorrowed {
		return s, fmt.Errorf("%w: principal %d exceeds borrowed %d", state.ErrInvalidAmount, principal, p.TotalBorrowed)
	}
	if err := c.Transfer(ledger.JournalTypeRepayPrincipal, from, ledger.PoolLiquidity(p.Asset), principal); err != nil {
		return s, err
	}
	p.TotalBorrowed -= principal

	fee, err := interest.NewModel(p.Rates).ProtocolFee(interestPaid)
	if err != nil {
		return s, err
	}
	if err := c.Transfer(ledger.JournalTypeProtocolFee, from, ledger.TreasuryAccount(p.Asset), fee); err != nil {
		return s, err
	}
	if p.ProtocolFees, err = fpmath.CheckedAdd(p.ProtocolFees, fee); err != nil {
		return s, err
	}
	s.ProtocolFee = fee

	accrual, err := p.AccrueInterest(c, from, interestPaid-fee)
	if err != nil {
		return s, err
	}
	s.Insurance = accrual.Insurance
	s.ToLenders = accrual.ToLenders
	return s, nil
}

// Accrual is how an interest or fee amount was split.
type Accrual struct {
	Insurance int64
	ToLenders int64
}

// AccrueInterest moves amount from `from`: InsuranceFeeBps of it to the
// insurance fund, the rest into the vault as lender yield. Shares are not
// minted, so the exchange rate rises.
func (p *Pool) AccrueInterest(c ledger.Custody, from ledger.AccountKey, amount int64) (Accrual, error) {
	var a Accrual
	if amount < 0 {
		return a, fmt.Errorf("%w: accrue %d", state.ErrInvalidAmount, amount)
	}
	if amount == 0 {
		return a, nil
	}
	skim, err := fpmath.ApplyBps(amount, p.InsuranceFeeBps)
	if err != nil {
		return a, err
	}
	lenders := amount - skim
	deposits, err := fpmath.CheckedAdd(p.TotalDeposits, lenders)
	if err != nil {
		return a, err
	}
	if err := c.Transfer(ledger.JournalTypeInsuranceSkim, from, ledger.InsuranceFundAccount(p.Asset), skim); err != nil {
		return a, err
	}
	if err := c.Transfer(ledger.JournalTypeRepayInterest, from, ledger.PoolLiquidity(p.Asset), lenders); err != nil {
		return a, err
	}
	p.TotalDeposits = deposits
	p.InterestEarned += lenders
	p.InsuranceCollected += skim
	return Accrual{Insurance: skim, ToLenders: lenders}, nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Pool) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, byte(p.Asset), byte(p.Asset>>8))
	for _, v := range []int64{
		p.TotalDeposits, p.TotalShares, p.TotalBorrowed,
		p.InterestEarned, p.ProtocolFees, p.InsuranceCollected,
	} {
		buf = append(buf,
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
			byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
	return buf
}
