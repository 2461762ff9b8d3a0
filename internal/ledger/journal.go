package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeWalletCredit JournalType = iota
	JournalTypeWalletDebit
	JournalTypeCollateralDeposit
	JournalTypeCollateralWithdraw
	JournalTypeBorrow
	JournalTypeRepayPrincipal
	JournalTypeRepayInterest
	JournalTypeProtocolFee
	JournalTypeInsuranceSkim
	JournalTypeGadLiquidation
	JournalTypeGadCrankerReward
	JournalTypeGadDebtSettlement
	JournalTypeLpDeposit
	JournalTypeLpWithdraw
	JournalTypeFlashLoan
	JournalTypeFlashRepay
	JournalTypeSwap
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeWalletCredit:
		return "wallet_credit"
	case JournalTypeWalletDebit:
		return "wallet_debit"
	case JournalTypeCollateralDeposit:
		return "collateral_deposit"
	case JournalTypeCollateralWithdraw:
		return "collateral_withdraw"
	case JournalTypeBorrow:
		return "borrow"
	case JournalTypeRepayPrincipal:
		return "repay_principal"
	case JournalTypeRepayInterest:
		return "repay_interest"
	case JournalTypeProtocolFee:
		return "protocol_fee"
	case JournalTypeInsuranceSkim:
		return "insurance_skim"
	case JournalTypeGadLiquidation:
		return "gad_liquidation"
	case JournalTypeGadCrankerReward:
		return "gad_cranker_reward"
	case JournalTypeGadDebtSettlement:
		return "gad_debt_settlement"
	case JournalTypeLpDeposit:
		return "lp_deposit"
	case JournalTypeLpWithdraw:
		return "lp_withdraw"
	case JournalTypeFlashLoan:
		return "flash_loan"
	case JournalTypeFlashRepay:
		return "flash_repay"
	case JournalTypeSwap:
		return "swap"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source command
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        int64       // Base units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Command timestamp (unix seconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from credit to debit account, so
// every entry is balanced by construction and so is any batch of them.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s mixes assets", j.JournalID)
		}
	}

	return nil
}
