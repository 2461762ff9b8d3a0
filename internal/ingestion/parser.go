package ingestion

import (
	"errors"
	"fmt"
	"strings"

	"LendLedger/internal/event"

	"github.com/google/uuid"
)

// MaxPayloadBytes bounds a single inbound command.
const MaxPayloadBytes = 64 << 10

// CommandSubjectPrefix is the root of every inbound command subject:
// lend.commands.{group}.{EventType}.
const CommandSubjectPrefix = "lend.commands"

var (
	ErrUnknownSubject = errors.New("ingestion: unknown subject")
	ErrInvalidPayload = errors.New("ingestion: invalid payload")
)

// Group is the subject segment that partitions commands by producer.
func Group(et event.EventType) string {
	switch et {
	case event.EventTypeInitializeProtocol, event.EventTypeRegisterCollateral,
		event.EventTypeRegisterBorrowable, event.EventTypeSetPaused, event.EventTypeSetAssetActive:
		return "admin"
	case event.EventTypeInitializePriceFeed, event.EventTypeUpdatePrice, event.EventTypeSyncOraclePrice:
		return "oracle"
	case event.EventTypeWalletCredit, event.EventTypeWalletDebit:
		return "bridge"
	case event.EventTypeAccrueInterest, event.EventTypeCrankGad:
		return "crank"
	case event.EventTypeLpDeposit, event.EventTypeLpWithdraw, event.EventTypeFlashLoan:
		return "pool"
	case event.EventTypeOpenLeverage, event.EventTypeSettleLeverage, event.EventTypeCloseLeverage:
		return "leverage"
	default:
		return "position"
	}
}

// Subject returns the inbound subject for et.
func Subject(et event.EventType) string {
	return CommandSubjectPrefix + "." + Group(et) + "." + et.String()
}

// EventTypeFromSubject resolves the command type from the last subject
// token and checks it was published under the right group.
func EventTypeFromSubject(subject string) (event.EventType, error) {
	if !strings.HasPrefix(subject, CommandSubjectPrefix+".") {
		return event.EventTypeUnknown, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	tokens := strings.Split(subject, ".")
	if len(tokens) != 4 {
		return event.EventTypeUnknown, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	et, ok := event.ParseEventType(tokens[3])
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	if Group(et) != tokens[2] {
		return event.EventTypeUnknown, fmt.Errorf("%w: %s belongs under %s", ErrUnknownSubject, et, Group(et))
	}
	return et, nil
}

// ParseRawEvent converts an inbound message into a typed command.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	et, err := EventTypeFromSubject(raw.Subject)
	if err != nil {
		return nil, err
	}
	return ParseCommand(et, raw.Data)
}

// ParseCommand decodes and validates the JSON body of a command.
func ParseCommand(et event.EventType, data []byte) (event.Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidPayload, et)
	}
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrInvalidPayload, et, len(data), MaxPayloadBytes)
	}
	evt, err := event.Decode(et, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := ValidateHeader(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// ValidateHeader rejects commands the core could never accept.
func ValidateHeader(evt event.Event) error {
	if strings.TrimSpace(evt.IdempotencyKey()) == "" {
		return fmt.Errorf("%w: %s missing idempotency_key", ErrInvalidPayload, evt.EventType())
	}
	if evt.OccurredAt().IsZero() {
		return fmt.Errorf("%w: %s missing timestamp", ErrInvalidPayload, evt.EventType())
	}
	if evt.Caller() == uuid.Nil {
		return fmt.Errorf("%w: %s missing caller", ErrInvalidPayload, evt.EventType())
	}
	if evt.SourceSequence() < 0 {
		return fmt.Errorf("%w: %s negative sequence", ErrInvalidPayload, evt.EventType())
	}
	return nil
}
