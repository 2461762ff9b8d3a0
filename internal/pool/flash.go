package pool

import (
	"fmt"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// FlashReceiver runs while the borrower holds the flash-loaned funds. It must
// leave amount+fee in the borrower's wallet when it returns.
type FlashReceiver func(c ledger.Custody, borrower uuid.UUID, asset ledger.AssetID, amount, fee int64) error

// FlashLoanResult reports a completed flash loan.
type FlashLoanResult struct {
	Amount  int64
	Fee     int64
	Accrual Accrual
}

// FlashFee is amount*FlashLoanFeeBps/10000 rounded up.
func (p *Pool) FlashFee(amount int64) (int64, error) {
	return fpmath.MulDiv(amount, p.FlashLoanFeeBps, fpmath.BpsDenominator, fpmath.RoundUp)
}

// FlashLoan lends amount to the borrower's wallet, runs fn, then pulls back
// amount+fee. Any shortfall fails the loan; the caller discards the
// transaction so no transfer survives.
func (p *Pool) FlashLoan(c ledger.Custody, borrower uuid.UUID, amount int64, fn FlashReceiver) (*FlashLoanResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: flash loan %d", state.ErrInvalidAmount, amount)
	}
	if avail := p.Available(); amount > avail {
		return nil, fmt.Errorf("%w: %d available, %d requested", state.ErrInsufficientLiquidity, avail, amount)
	}
	fee, err := p.FlashFee(amount)
	if err != nil {
		return nil, err
	}
	due, err := fpmath.CheckedAdd(amount, fee)
	if err != nil {
		return nil, err
	}

	wallet := ledger.WalletAccount(borrower, p.Asset)
	if err := c.Transfer(ledger.JournalTypeFlashLoan, ledger.PoolLiquidity(p.Asset), wallet, amount); err != nil {
		return nil, err
	}
	if fn != nil {
		if err := fn(c, borrower, p.Asset, amount, fee); err != nil {
			return nil, fmt.Errorf("flash receiver: %w", err)
		}
	}
	if have := c.Balance(wallet); have < due {
		return nil, fmt.Errorf("%w: wallet holds %d, owes %d", state.ErrFlashLoanNotRepaid, have, due)
	}
	if err := c.Transfer(ledger.JournalTypeFlashRepay, wallet, ledger.PoolLiquidity(p.Asset), amount); err != nil {
		return nil, err
	}
	accrual, err := p.AccrueInterest(c, wallet, fee)
	if err != nil {
		return nil, err
	}
	return &FlashLoanResult{Amount: amount, Fee: fee, Accrual: accrual}, nil
}
