package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for inbound commands
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeInitializeProtocol
	EventTypeRegisterCollateral
	EventTypeRegisterBorrowable
	EventTypeInitializePriceFeed
	EventTypeUpdatePrice
	EventTypeSyncOraclePrice
	EventTypeSetPaused
	EventTypeSetAssetActive
	EventTypeWalletCredit
	EventTypeWalletDebit
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeBorrow
	EventTypeRepay
	EventTypeAccrueInterest
	EventTypeConfigureGad
	EventTypeCrankGad
	EventTypeLpDeposit
	EventTypeLpWithdraw
	EventTypeFlashLoan
	EventTypeOpenLeverage
	EventTypeSettleLeverage
	EventTypeCloseLeverage
)

var eventTypeNames = map[EventType]string{
	EventTypeInitializeProtocol:  "InitializeProtocol",
	EventTypeRegisterCollateral:  "RegisterCollateral",
	EventTypeRegisterBorrowable:  "RegisterBorrowable",
	EventTypeInitializePriceFeed: "InitializePriceFeed",
	EventTypeUpdatePrice:         "UpdatePrice",
	EventTypeSyncOraclePrice:     "SyncOraclePrice",
	EventTypeSetPaused:           "SetPaused",
	EventTypeSetAssetActive:      "SetAssetActive",
	EventTypeWalletCredit:        "WalletCredit",
	EventTypeWalletDebit:         "WalletDebit",
	EventTypeDeposit:             "Deposit",
	EventTypeWithdraw:            "Withdraw",
	EventTypeBorrow:              "Borrow",
	EventTypeRepay:               "Repay",
	EventTypeAccrueInterest:      "AccrueInterest",
	EventTypeConfigureGad:        "ConfigureGad",
	EventTypeCrankGad:            "CrankGad",
	EventTypeLpDeposit:           "LpDeposit",
	EventTypeLpWithdraw:          "LpWithdraw",
	EventTypeFlashLoan:           "FlashLoan",
	EventTypeOpenLeverage:        "OpenLeverage",
	EventTypeSettleLeverage:      "SettleLeverage",
	EventTypeCloseLeverage:       "CloseLeverage",
}

func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// ParseEventType is the inverse of String.
func ParseEventType(name string) (EventType, bool) {
	for et, n := range eventTypeNames {
		if n == name {
			return et, true
		}
	}
	return EventTypeUnknown, false
}

// IsAdmin reports whether commands of this type require the protocol admin.
func (et EventType) IsAdmin() bool {
	switch et {
	case EventTypeInitializeProtocol, EventTypeRegisterCollateral, EventTypeRegisterBorrowable,
		EventTypeInitializePriceFeed, EventTypeUpdatePrice, EventTypeSetPaused,
		EventTypeSetAssetActive, EventTypeWalletCredit:
		return true
	}
	return false
}

// EventEnvelope wraps every command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	EventType EventType

	// Source partition ("" for unsequenced commands)
	Partition string

	Caller uuid.UUID

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded command
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all inbound commands implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	EventType() EventType

	// Caller is the authenticated identity issuing the command.
	Caller() uuid.UUID

	// Partition names the upstream ordering stream, "" when unsequenced.
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// OccurredAt is the command's versioned time; the core never reads the clock.
	OccurredAt() time.Time
}

// Header carries the fields every command shares.
type Header struct {
	Key       string    `json:"idempotency_key"`
	CallerID  uuid.UUID `json:"caller"`
	Timestamp time.Time `json:"timestamp"`
}

func (h Header) IdempotencyKey() string { return h.Key }
func (h Header) Caller() uuid.UUID      { return h.CallerID }
func (h Header) OccurredAt() time.Time  { return h.Timestamp }
func (h Header) Partition() string      { return "" }
func (h Header) SourceSequence() int64  { return 0 }
