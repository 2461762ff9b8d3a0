package query

import "github.com/shopspring/decimal"

// usdDecimals is the fixed-point scale of every *_usd integer.
const usdDecimals = 6

// Amount is an integer base-unit quantity with its human-readable form.
type Amount struct {
	Raw     int64  `json:"raw"`
	Display string `json:"display"`
}

func amountOf(raw int64, decimals int) Amount {
	return Amount{Raw: raw, Display: decimal.New(raw, -int32(decimals)).String()}
}

func usd(raw int64) Amount { return amountOf(raw, usdDecimals) }

// bpsPercent renders basis points as a percentage string, 7500 -> "75".
func bpsPercent(bps int64) string {
	return decimal.New(bps, -2).String()
}

// WalletBalance is one custody wallet line.
type WalletBalance struct {
	Asset   string `json:"asset"`
	Balance Amount `json:"balance"`
}

// BalanceResponse lists an owner's custody balances across every known
// asset: the free wallet, posted collateral and LP shares.
type BalanceResponse struct {
	Owner        string          `json:"owner"`
	Wallet       []WalletBalance `json:"wallet"`
	Collateral   []WalletBalance `json:"collateral"`
	LpShares     []WalletBalance `json:"lp_shares"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

