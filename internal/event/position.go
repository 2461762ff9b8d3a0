package event

import "github.com/google/uuid"

// Position commands act on the caller's own position.

type Deposit struct {
	Header
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (e *Deposit) EventType() EventType { return EventTypeDeposit }

type Withdraw struct {
	Header
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (e *Withdraw) EventType() EventType { return EventTypeWithdraw }

type Borrow struct {
	Header
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (e *Borrow) EventType() EventType { return EventTypeBorrow }

type Repay struct {
	Header
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (e *Repay) EventType() EventType { return EventTypeRepay }

type Floor struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type ConfigureGad struct {
	Header
	Enabled bool    `json:"enabled"`
	Floors  []Floor `json:"floors,omitempty"`
}

func (e *ConfigureGad) EventType() EventType { return EventTypeConfigureGad }

// AccrueInterest is a permissionless crank on Owner's position.
type AccrueInterest struct {
	Header
	Owner uuid.UUID `json:"owner"`
}

func (e *AccrueInterest) EventType() EventType { return EventTypeAccrueInterest }

// CrankGad is a permissionless crank; the caller receives the reward.
type CrankGad struct {
	Header
	Owner uuid.UUID `json:"owner"`
}

func (e *CrankGad) EventType() EventType { return EventTypeCrankGad }
