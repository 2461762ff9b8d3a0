package query

// ProtocolResponse is the global protocol state.
type ProtocolResponse struct {
	Admin              string            `json:"admin"`
	Treasury           string            `json:"treasury"`
	Paused             bool              `json:"paused"`
	TotalCollateralUSD Amount            `json:"total_collateral_usd"`
	TotalBorrowedUSD   Amount            `json:"total_borrowed_usd"`
	InsuranceFund      map[string]Amount `json:"insurance_fund"`
	StateHash          string            `json:"state_hash"`
	AsOfSequence       int64             `json:"as_of_sequence"`
}

// AssetLine is one priced asset entry of a position.
type AssetLine struct {
	Asset    string `json:"asset"`
	Amount   Amount `json:"amount"`
	Interest Amount `json:"accrued_interest"`
	USD      Amount `json:"usd"`
}

// PositionResponse is a position valued at query time.
type PositionResponse struct {
	Owner      string      `json:"owner"`
	Collateral []AssetLine `json:"collateral"`
	Borrows    []AssetLine `json:"borrows"`

	CollateralUSD      Amount `json:"collateral_usd"`
	BorrowUSD          Amount `json:"borrow_usd"`
	LTVBps             int64  `json:"ltv_bps"`
	LTVPercent         string `json:"ltv_percent"`
	EffectiveMaxLTVBps int64  `json:"effective_max_ltv_bps"`
	ReputationBonusBps int64  `json:"reputation_bonus_bps"`
	ReputationScore    int64  `json:"reputation_score"`
	Status             string `json:"status"`
	// PriceError is set when a feed is stale; the USD figures are then empty.
	PriceError string `json:"price_error,omitempty"`

	GadEnabled            bool   `json:"gad_enabled"`
	TotalGadLiquidatedUSD Amount `json:"total_gad_liquidated_usd"`
	LastGadCrank          int64  `json:"last_gad_crank"`
	Version               int64  `json:"version"`
	AsOfSequence          int64  `json:"as_of_sequence"`
}

// PoolResponse is a lending pool with its derived rates.
type PoolResponse struct {
	Asset              string `json:"asset"`
	TotalDeposits      Amount `json:"total_deposits"`
	TotalShares        int64  `json:"total_shares"`
	TotalBorrowed      Amount `json:"total_borrowed"`
	Available          Amount `json:"available"`
	InterestEarned     Amount `json:"interest_earned"`
	ProtocolFees       Amount `json:"protocol_fees"`
	InsuranceCollected Amount `json:"insurance_collected"`
	UtilizationBps     int64  `json:"utilization_bps"`
	BorrowRateBps      int64  `json:"borrow_rate_bps"`
	SupplyRateBps      int64  `json:"supply_rate_bps"`
	BorrowAPR          string `json:"borrow_apr_percent"`
	SupplyAPR          string `json:"supply_apr_percent"`
	ExchangeRate       string `json:"exchange_rate"`
	AsOfSequence       int64  `json:"as_of_sequence"`
}

// PriceResponse is one oracle feed.
type PriceResponse struct {
	Asset       string `json:"asset"`
	PriceUSD    Amount `json:"price_usd"`
	Confidence  Amount `json:"confidence_usd"`
	LastUpdate  int64  `json:"last_update"`
	LastPublish int64  `json:"last_publish"`
	Source      string `json:"source"`
}

// LeverageResponse is one leveraged position.
type LeverageResponse struct {
	ID              string `json:"id"`
	Owner           string `json:"owner"`
	CollateralAsset string `json:"collateral_asset"`
	BorrowAsset     string `json:"borrow_asset"`
	TotalCollateral Amount `json:"total_collateral"`
	TotalBorrowed   Amount `json:"total_borrowed"`
	Multiplier      int64  `json:"multiplier"`
	EntryPriceUSD   Amount `json:"entry_price_usd"`
	IsLong          bool   `json:"is_long"`
	Active          bool   `json:"active"`
	OpenedAt        int64  `json:"opened_at"`
	ClosedAt        int64  `json:"closed_at,omitempty"`
	RealizedPnLUSD  Amount `json:"realized_pnl_usd"`
}

// GadHistoryResponse is one GAD execution.
type GadHistoryResponse struct {
	Sequence         int64  `json:"sequence"`
	Cranker          string `json:"cranker"`
	Asset            string `json:"asset"`
	RateBpsPerDay    int64  `json:"rate_bps_per_day"`
	LiquidatedAmount int64  `json:"liquidated_amount"`
	RewardAmount     int64  `json:"reward_amount"`
	LiquidatedUSD    Amount `json:"liquidated_usd"`
	DebtReducedUSD   Amount `json:"debt_reduced_usd"`
	LTVBeforeBps     int64  `json:"ltv_before_bps"`
	LTVAfterBps      int64  `json:"ltv_after_bps"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
