package event

import "github.com/google/uuid"

// OpenLeverage loops borrow, swap and deposit until the multiplier is
// reached. ID is chosen by the caller so retries address the same position.
type OpenLeverage struct {
	Header
	ID                    uuid.UUID `json:"id"`
	CollateralAsset       string    `json:"collateral_asset"`
	BorrowAsset           string    `json:"borrow_asset"`
	InitialCollateral     int64     `json:"initial_collateral"`
	Multiplier            int64     `json:"multiplier"`
	MinCollateralReceived int64     `json:"min_collateral_received"`
	Short                 bool      `json:"short,omitempty"`
}

func (e *OpenLeverage) EventType() EventType { return EventTypeOpenLeverage }

type SettleLeverage struct {
	Header
	ID                 uuid.UUID `json:"id"`
	NewTotalCollateral int64     `json:"new_total_collateral"`
}

func (e *SettleLeverage) EventType() EventType { return EventTypeSettleLeverage }

type CloseLeverage struct {
	Header
	ID uuid.UUID `json:"id"`
}

func (e *CloseLeverage) EventType() EventType { return EventTypeCloseLeverage }
