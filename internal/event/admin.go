package event

import (
	"LendLedger/internal/interest"

	"github.com/google/uuid"
)

// InitializeProtocol is the genesis command. The caller becomes admin.
type InitializeProtocol struct {
	Header
	Treasury uuid.UUID `json:"treasury"`
}

func (e *InitializeProtocol) EventType() EventType { return EventTypeInitializeProtocol }

type RegisterCollateral struct {
	Header
	Asset                   string `json:"asset"`
	Oracle                  string `json:"oracle"`
	MaxLTVBps               int64  `json:"max_ltv_bps"`
	LiquidationThresholdBps int64  `json:"liquidation_threshold_bps"`
	LiquidationBonusBps     int64  `json:"liquidation_bonus_bps"`
	Decimals                int    `json:"decimals"`
}

func (e *RegisterCollateral) EventType() EventType { return EventTypeRegisterCollateral }

// RegisterBorrowable lists an asset for borrowing and opens its pool.
// Zero rate and fee fields take the defaults.
type RegisterBorrowable struct {
	Header
	Asset           string           `json:"asset"`
	Oracle          string           `json:"oracle"`
	Decimals        int              `json:"decimals"`
	Rates           *interest.Params `json:"rates,omitempty"`
	InsuranceFeeBps int64            `json:"insurance_fee_bps,omitempty"`
	FlashLoanFeeBps int64            `json:"flash_loan_fee_bps,omitempty"`
}

func (e *RegisterBorrowable) EventType() EventType { return EventTypeRegisterBorrowable }

type SetPaused struct {
	Header
	Paused bool `json:"paused"`
}

func (e *SetPaused) EventType() EventType { return EventTypeSetPaused }

type SetAssetActive struct {
	Header
	Asset  string `json:"asset"`
	Active bool   `json:"active"`
}

func (e *SetAssetActive) EventType() EventType { return EventTypeSetAssetActive }
