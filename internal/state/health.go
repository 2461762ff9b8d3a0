package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/ledger"
)

// Pricer supplies freshness- and confidence-checked 6-decimal USD prices.
// *oracle.FeedBook satisfies it.
type Pricer interface {
	Price(asset ledger.AssetID, now int64) (int64, error)
}

// AssetValue is one priced collateral or debt entry.
type AssetValue struct {
	Asset  ledger.AssetID
	Amount int64
	USD    int64
}

// Valuation is the priced risk picture of a position at one instant.
type Valuation struct {
	Collateral []AssetValue
	Debt       []AssetValue

	CollateralUSD int64
	BorrowUSD     int64

	// BaseMaxLTVBps is the value-weighted max LTV of the collateral.
	BaseMaxLTVBps      int64
	BonusBps           int64
	EffectiveMaxLTVBps int64

	// LTVBps is BorrowUSD*10000/CollateralUSD; zero without debt.
	LTVBps int64
}

// CapacityUSD is the most debt the collateral supports.
func (v *Valuation) CapacityUSD() (int64, error) {
	return fpmath.MulDiv(v.CollateralUSD, v.EffectiveMaxLTVBps, fpmath.BpsDenominator, fpmath.RoundDown)
}

// Supports reports whether borrowUSD of debt stays within capacity.
func (v *Valuation) Supports(borrowUSD int64) (bool, error) {
	if borrowUSD == 0 {
		return true, nil
	}
	capacity, err := v.CapacityUSD()
	if err != nil {
		return false, err
	}
	return borrowUSD <= capacity, nil
}

// Healthy reports whether the position is within its effective max LTV.
func (v *Valuation) Healthy() bool {
	return v.BorrowUSD == 0 || (v.CollateralUSD > 0 && v.LTVBps <= v.EffectiveMaxLTVBps)
}

// Evaluator prices positions against the asset registry.
type Evaluator struct {
	Assets *AssetRegistry
	Prices Pricer
}

// CollateralUSD values amount of a collateral asset, rounding down.
func (e Evaluator) CollateralUSD(asset ledger.AssetID, amount int64, now int64) (int64, error) {
	decimals, err := e.Assets.Decimals(asset)
	if err != nil {
		return 0, err
	}
	price, err := e.Prices.Price(asset, now)
	if err != nil {
		return 0, err
	}
	return fpmath.TokenToUSD(amount, price, decimals)
}

// DebtUSD values amount of a borrowed asset, rounding up.
func (e Evaluator) DebtUSD(asset ledger.AssetID, amount int64, now int64) (int64, error) {
	decimals, err := e.Assets.Decimals(asset)
	if err != nil {
		return 0, err
	}
	price, err := e.Prices.Price(asset, now)
	if err != nil {
		return 0, err
	}
	return fpmath.TokenToUSDUp(amount, price, decimals)
}

// TokenAmount converts usd into base units of asset, rounding down.
func (e Evaluator) TokenAmount(asset ledger.AssetID, usd int64, now int64) (int64, error) {
	decimals, err := e.Assets.Decimals(asset)
	if err != nil {
		return 0, err
	}
	price, err := e.Prices.Price(asset, now)
	if err != nil {
		return 0, err
	}
	return fpmath.USDToToken(usd, price, decimals)
}

// Evaluate prices every entry of pos. Any stale or untrusted price fails
// the whole valuation.
func (e Evaluator) Evaluate(pos *Position, now int64) (*Valuation, error) {
	v := &Valuation{
		Collateral: make([]AssetValue, 0, len(pos.Collaterals)),
		Debt:       make([]AssetValue, 0, len(pos.Borrows)),
		BonusBps:   pos.Reputation.LTVBonusBps(),
	}

	// weighted accumulates value*max_ltv; divided by total value below.
	var weighted int64
	for _, c := range pos.Collaterals {
		if c.Amount == 0 {
			continue
		}
		cfg, err := e.Assets.Collateral(c.Asset)
		if err != nil {
			return nil, err
		}
		usd, err := e.CollateralUSD(c.Asset, c.Amount, now)
		if err != nil {
			return nil, fmt.Errorf("value %s collateral: %w", c.Asset, err)
		}
		v.Collateral = append(v.Collateral, AssetValue{Asset: c.Asset, Amount: c.Amount, USD: usd})
		if v.CollateralUSD, err = fpmath.CheckedAdd(v.CollateralUSD, usd); err != nil {
			return nil, err
		}
		part, err := fpmath.CheckedMul(usd, cfg.MaxLTVBps)
		if err != nil {
			return nil, err
		}
		if weighted, err = fpmath.CheckedAdd(weighted, part); err != nil {
			return nil, err
		}
	}

	for _, b := range pos.Borrows {
		owed, err := b.Owed()
		if err != nil {
			return nil, err
		}
		if owed == 0 {
			continue
		}
		usd, err := e.DebtUSD(b.Asset, owed, now)
		if err != nil {
			return nil, fmt.Errorf("value %s debt: %w", b.Asset, err)
		}
		v.Debt = append(v.Debt, AssetValue{Asset: b.Asset, Amount: owed, USD: usd})
		if v.BorrowUSD, err = fpmath.CheckedAdd(v.BorrowUSD, usd); err != nil {
			return nil, err
		}
	}

	if v.CollateralUSD > 0 {
		v.BaseMaxLTVBps = weighted / v.CollateralUSD
	} else {
		v.BaseMaxLTVBps = DefaultMaxLTVBps
	}
	v.EffectiveMaxLTVBps = v.BaseMaxLTVBps + v.BonusBps

	if v.BorrowUSD > 0 && v.CollateralUSD > 0 {
		ltv, err := fpmath.RatioBps(v.BorrowUSD, v.CollateralUSD)
		if err != nil {
			return nil, err
		}
		v.LTVBps = ltv
	}
	return v, nil
}
