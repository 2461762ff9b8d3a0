package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientFunds is returned when a transfer would drive a constrained
// account below zero.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances without checks.
// Used by replay and tests; live flows go through ApplyBatch.
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch or none of them. The batch is
// rejected if any constrained account would end negative.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	deltas := make(map[AccountKey]int64)
	for _, j := range batch.Journals {
		deltas[j.DebitAccount] += j.Amount
		deltas[j.CreditAccount] -= j.Amount
	}
	for key, delta := range deltas {
		if key.MayGoNegative() {
			continue
		}
		if bt.balances[key]+delta < 0 {
			return fmt.Errorf("%w: %s has %d, batch moves %d",
				ErrInsufficientFunds, key.AccountPath(), bt.balances[key], delta)
		}
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetWalletBalance returns the owner's free custody balance.
func (bt *BalanceTracker) GetWalletBalance(owner uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(WalletAccount(owner, assetID))
}

// GetCollateralBalance returns the owner's collateral vault balance.
func (bt *BalanceTracker) GetCollateralBalance(owner uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(CollateralVault(owner, assetID))
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing and snapshots)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances with the given snapshot.
func (bt *BalanceTracker) Restore(snapshot map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(snapshot))
	for k, v := range snapshot {
		if v != 0 {
			bt.balances[k] = v
		}
	}
}
