package event

// InitializePriceFeed creates the feed for an asset with a seed price.
type InitializePriceFeed struct {
	Header
	Asset    string `json:"asset"`
	PriceUSD int64  `json:"price_usd"`
}

func (e *InitializePriceFeed) EventType() EventType { return EventTypeInitializePriceFeed }

// UpdatePrice is the admin override of a feed.
type UpdatePrice struct {
	Header
	Asset    string `json:"asset"`
	PriceUSD int64  `json:"price_usd"`
}

func (e *UpdatePrice) EventType() EventType { return EventTypeUpdatePrice }

// SyncOraclePrice carries a raw oracle account. Anyone may submit one; the
// quote is accepted only if it passes the age and confidence gates.
type SyncOraclePrice struct {
	Header
	Asset    string `json:"asset"`
	Account  []byte `json:"account"`
	Sequence int64  `json:"sequence"`
}

func (e *SyncOraclePrice) EventType() EventType  { return EventTypeSyncOraclePrice }
func (e *SyncOraclePrice) Partition() string     { return "oracle:" + e.Asset }
func (e *SyncOraclePrice) SourceSequence() int64 { return e.Sequence }
