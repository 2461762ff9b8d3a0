package event

import "github.com/google/uuid"

// WalletCredit books funds that arrived from an external chain into the
// owner's custody wallet. Sequenced strictly per chain.
type WalletCredit struct {
	Header
	Owner    uuid.UUID `json:"owner"`
	Asset    string    `json:"asset"`
	Amount   int64     `json:"amount"`
	Chain    string    `json:"chain"`
	Sequence int64     `json:"sequence"`
}

func (e *WalletCredit) EventType() EventType  { return EventTypeWalletCredit }
func (e *WalletCredit) Partition() string     { return "bridge:" + e.Chain }
func (e *WalletCredit) SourceSequence() int64 { return e.Sequence }

// WalletDebit sends funds from the caller's wallet out to the external chain.
type WalletDebit struct {
	Header
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (e *WalletDebit) EventType() EventType { return EventTypeWalletDebit }
