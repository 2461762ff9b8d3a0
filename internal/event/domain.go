package event

import "github.com/google/uuid"

// DomainEvent is a fact emitted by the core after a command commits.
// Amounts are raw token units; *USD fields are 6-decimal USD.
type DomainEvent interface {
	Name() string
}

// Emitted pairs a domain event with the command sequence that produced it.
type Emitted struct {
	Sequence int64       `json:"sequence"`
	Name     string      `json:"name"`
	Event    DomainEvent `json:"event"`
}

type ProtocolInitialized struct {
	Admin    uuid.UUID `json:"admin"`
	Treasury uuid.UUID `json:"treasury"`
}

type CollateralRegistered struct {
	Asset                   string `json:"asset"`
	MaxLTVBps               int64  `json:"max_ltv_bps"`
	LiquidationThresholdBps int64  `json:"liquidation_threshold_bps"`
	LiquidationBonusBps     int64  `json:"liquidation_bonus_bps"`
	Decimals                int    `json:"decimals"`
}

type BorrowableRegistered struct {
	Asset    string `json:"asset"`
	Decimals int    `json:"decimals"`
}

type PriceUpdated struct {
	Asset    string `json:"asset"`
	PriceUSD int64  `json:"price_usd"`
	Source   string `json:"source"`
}

type ProtocolPaused struct {
	Paused bool `json:"paused"`
}

type AssetStatusChanged struct {
	Asset  string `json:"asset"`
	Active bool   `json:"active"`
}

type WalletCredited struct {
	Owner  uuid.UUID `json:"owner"`
	Asset  string    `json:"asset"`
	Amount int64     `json:"amount"`
	Chain  string    `json:"chain"`
}

type WalletDebited struct {
	Owner  uuid.UUID `json:"owner"`
	Asset  string    `json:"asset"`
	Amount int64     `json:"amount"`
}

type PositionCreated struct {
	Owner uuid.UUID `json:"owner"`
}

type CollateralDeposited struct {
	Owner     uuid.UUID `json:"owner"`
	Asset     string    `json:"asset"`
	Amount    int64     `json:"amount"`
	USD       int64     `json:"usd"`
	NewAmount int64     `json:"new_amount"`
}

type CollateralWithdrawn struct {
	Owner       uuid.UUID `json:"owner"`
	Asset       string    `json:"asset"`
	Amount      int64     `json:"amount"`
	USD         int64     `json:"usd"`
	Remaining   int64     `json:"remaining"`
	LTVAfterBps int64     `json:"ltv_after_bps"`
}

type Borrowed struct {
	Owner              uuid.UUID `json:"owner"`
	Asset              string    `json:"asset"`
	Amount             int64     `json:"amount"`
	USD                int64     `json:"usd"`
	LTVAfterBps        int64     `json:"ltv_after_bps"`
	EffectiveMaxLTVBps int64     `json:"effective_max_ltv_bps"`
}

type Repaid struct {
	Owner         uuid.UUID `json:"owner"`
	Asset         string    `json:"asset"`
	Amount        int64     `json:"amount"`
	InterestPaid  int64     `json:"interest_paid"`
	PrincipalPaid int64     `json:"principal_paid"`
	USD           int64     `json:"usd"`
	RemainingOwed int64     `json:"remaining_owed"`
}

type InterestAccrued struct {
	Owner   uuid.UUID `json:"owner"`
	Asset   string    `json:"asset"`
	RateBps int64     `json:"rate_bps"`
	Amount  int64     `json:"amount"`
	Elapsed int64     `json:"elapsed_seconds"`
}

type GadConfigured struct {
	Owner   uuid.UUID `json:"owner"`
	Enabled bool      `json:"enabled"`
	Floors  []Floor   `json:"floors,omitempty"`
}

type GadExecuted struct {
	Owner            uuid.UUID `json:"owner"`
	Cranker          uuid.UUID `json:"cranker"`
	Asset            string    `json:"asset"`
	Elapsed          int64     `json:"elapsed_seconds"`
	RateBpsPerDay    int64     `json:"rate_bps_per_day"`
	LiquidatedAmount int64     `json:"liquidated_amount"`
	RewardAmount     int64     `json:"reward_amount"`
	LiquidatedUSD    int64     `json:"liquidated_usd"`
	RewardUSD        int64     `json:"reward_usd"`
	DebtReducedUSD   int64     `json:"debt_reduced_usd"`
	LTVBeforeBps     int64     `json:"ltv_before_bps"`
	LTVAfterBps      int64     `json:"ltv_after_bps"`
}

type LpDeposited struct {
	Provider uuid.UUID `json:"provider"`
	Asset    string    `json:"asset"`
	Amount   int64     `json:"amount"`
	Shares   int64     `json:"shares"`
}

type LpWithdrawn struct {
	Provider uuid.UUID `json:"provider"`
	Asset    string    `json:"asset"`
	Shares   int64     `json:"shares"`
	Amount   int64     `json:"amount"`
}

type PoolInterestAccrued struct {
	Asset       string `json:"asset"`
	ProtocolFee int64  `json:"protocol_fee"`
	Insurance   int64  `json:"insurance"`
	ToLenders   int64  `json:"to_lenders"`
}

type FlashLoanExecuted struct {
	Borrower uuid.UUID `json:"borrower"`
	Asset    string    `json:"asset"`
	Amount   int64     `json:"amount"`
	Fee      int64     `json:"fee"`
}

type LeverageOpened struct {
	ID              uuid.UUID `json:"id"`
	Owner           uuid.UUID `json:"owner"`
	CollateralAsset string    `json:"collateral_asset"`
	BorrowAsset     string    `json:"borrow_asset"`
	TotalCollateral int64     `json:"total_collateral"`
	TotalBorrowed   int64     `json:"total_borrowed"`
	Multiplier      int64     `json:"multiplier"`
	EntryPriceUSD   int64     `json:"entry_price_usd"`
}

type LeverageSettled struct {
	ID              uuid.UUID `json:"id"`
	Owner           uuid.UUID `json:"owner"`
	TotalCollateral int64     `json:"total_collateral"`
}

type LeverageClosed struct {
	ID                 uuid.UUID `json:"id"`
	Owner              uuid.UUID `json:"owner"`
	Repaid             int64     `json:"repaid"`
	CollateralSold     int64     `json:"collateral_sold"`
	CollateralReturned int64     `json:"collateral_returned"`
	PnLUSD             int64     `json:"pnl_usd"`
}

func (ProtocolInitialized) Name() string  { return "ProtocolInitialized" }
func (CollateralRegistered) Name() string { return "CollateralRegistered" }
func (BorrowableRegistered) Name() string { return "BorrowableRegistered" }
func (PriceUpdated) Name() string         { return "PriceUpdated" }
func (ProtocolPaused) Name() string       { return "ProtocolPaused" }
func (AssetStatusChanged) Name() string   { return "AssetStatusChanged" }
func (WalletCredited) Name() string       { return "WalletCredited" }
func (WalletDebited) Name() string        { return "WalletDebited" }
func (PositionCreated) Name() string      { return "PositionCreated" }
func (CollateralDeposited) Name() string  { return "CollateralDeposited" }
func (CollateralWithdrawn) Name() string  { return "CollateralWithdrawn" }
func (Borrowed) Name() string             { return "Borrowed" }
func (Repaid) Name() string               { return "Repaid" }
func (InterestAccrued) Name() string      { return "InterestAccrued" }
func (GadConfigured) Name() string        { return "GadConfigured" }
func (GadExecuted) Name() string          { return "GadExecuted" }
func (LpDeposited) Name() string          { return "LpDeposited" }
func (LpWithdrawn) Name() string          { return "LpWithdrawn" }
func (PoolInterestAccrued) Name() string  { return "PoolInterestAccrued" }
func (FlashLoanExecuted) Name() string    { return "FlashLoanExecuted" }
func (LeverageOpened) Name() string       { return "LeverageOpened" }
func (LeverageSettled) Name() string      { return "LeverageSettled" }
func (LeverageClosed) Name() string       { return "LeverageClosed" }
