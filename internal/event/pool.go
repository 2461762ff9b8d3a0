package event

type LpDeposit struct {
	Header
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (e *LpDeposit) EventType() EventType { return EventTypeLpDeposit }

type LpWithdraw struct {
	Header
	Asset  string `json:"asset"`
	Shares int64  `json:"shares"`
}

func (e *LpWithdraw) EventType() EventType { return EventTypeLpWithdraw }

// FlashLoan borrows Amount for the duration of one command. Receiver names
// an in-process callback registered with the core.
type FlashLoan struct {
	Header
	Asset    string `json:"asset"`
	Amount   int64  `json:"amount"`
	Receiver string `json:"receiver"`
}

func (e *FlashLoan) EventType() EventType { return EventTypeFlashLoan }
