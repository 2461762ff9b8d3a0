package state

import (
	"fmt"
	"sort"

	"LendLedger/internal/interest"
	"LendLedger/internal/ledger"
)

// CollateralAsset is the risk configuration of an asset accepted as collateral.
type CollateralAsset struct {
	Asset                ledger.AssetID
	Oracle               string // oracle account reference
	MaxLTVBps            int64
	LiquidationThreshold int64 // bps
	LiquidationBonus     int64 // bps
	Decimals             int
	Active               bool
	TotalDeposited       int64
}

// BorrowableAsset is the configuration of an asset that can be borrowed.
type BorrowableAsset struct {
	Asset         ledger.AssetID
	Oracle        string
	Decimals      int
	Rates         interest.Params
	Active        bool
	TotalBorrowed int64
}

// ValidateCollateral checks collateral parameters are within range:
// 0 < max_ltv < liquidation_threshold <= 10000, bonus < 10000, decimals <= 18.
func ValidateCollateral(c *CollateralAsset) error {
	if c.MaxLTVBps <= 0 || c.MaxLTVBps >= 10_000 {
		return fmt.Errorf("%w: max_ltv_bps must be in (0, 10000), got %d", ErrInvalidConfig, c.MaxLTVBps)
	}
	if c.LiquidationThreshold < c.MaxLTVBps || c.LiquidationThreshold > 10_000 {
		return fmt.Errorf("%w: liquidation_threshold (%d) must be in [max_ltv, 10000]", ErrInvalidConfig, c.LiquidationThreshold)
	}
	if c.LiquidationBonus < 0 || c.LiquidationBonus >= 10_000 {
		return fmt.Errorf("%w: liquidation_bonus must be in [0, 10000), got %d", ErrInvalidConfig, c.LiquidationBonus)
	}
	if c.Decimals < 0 || c.Decimals > 18 {
		return fmt.Errorf("%w: decimals must be in [0, 18], got %d", ErrInvalidConfig, c.Decimals)
	}
	if _, ok := ledger.GetAssetName(c.Asset); !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotSupported, c.Asset)
	}
	return nil
}

func ValidateBorrowable(b *BorrowableAsset) error {
	if b.Decimals < 0 || b.Decimals > 18 {
		return fmt.Errorf("%w: decimals must be in [0, 18], got %d", ErrInvalidConfig, b.Decimals)
	}
	if _, ok := ledger.GetAssetName(b.Asset); !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotSupported, b.Asset)
	}
	if err := b.Rates.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// AssetRegistry holds the registered collateral and borrowable assets.
type AssetRegistry struct {
	collateral map[ledger.AssetID]*CollateralAsset
	borrowable map[ledger.AssetID]*BorrowableAsset
}

func NewAssetRegistry() *AssetRegistry {
	return &AssetRegistry{
		collateral: make(map[ledger.AssetID]*CollateralAsset),
		borrowable: make(map[ledger.AssetID]*BorrowableAsset),
	}
}

// RegisterCollateral adds a new collateral asset. Re-registration fails.
func (r *AssetRegistry) RegisterCollateral(c CollateralAsset) error {
	if err := ValidateCollateral(&c); err != nil {
		return err
	}
	if _, exists := r.collateral[c.Asset]; exists {
		return fmt.Errorf("%w: collateral %s already registered", ErrInvalidConfig, c.Asset)
	}
	r.collateral[c.Asset] = &c
	return nil
}

// RegisterBorrowable adds a new borrowable asset. Re-registration fails.
func (r *AssetRegistry) RegisterBorrowable(b BorrowableAsset) error {
	if err := ValidateBorrowable(&b); err != nil {
		return err
	}
	if _, exists := r.borrowable[b.Asset]; exists {
		return fmt.Errorf("%w: borrowable %s already registered", ErrInvalidConfig, b.Asset)
	}
	r.borrowable[b.Asset] = &b
	return nil
}

func (r *AssetRegistry) Collateral(asset ledger.AssetID) (*CollateralAsset, error) {
	c, ok := r.collateral[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a collateral asset", ErrAssetNotSupported, asset)
	}
	return c, nil
}

func (r *AssetRegistry) Borrowable(asset ledger.AssetID) (*BorrowableAsset, error) {
	b, ok := r.borrowable[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not borrowable", ErrAssetNotSupported, asset)
	}
	return b, nil
}

// ActiveCollateral is Collateral that also fails for deactivated assets.
func (r *AssetRegistry) ActiveCollateral(asset ledger.AssetID) (*CollateralAsset, error) {
	c, err := r.Collateral(asset)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, fmt.Errorf("%w: collateral %s", ErrAssetNotActive, asset)
	}
	return c, nil
}

func (r *AssetRegistry) ActiveBorrowable(asset ledger.AssetID) (*BorrowableAsset, error) {
	b, err := r.Borrowable(asset)
	if err != nil {
		return nil, err
	}
	if !b.Active {
		return nil, fmt.Errorf("%w: borrowable %s", ErrAssetNotActive, asset)
	}
	return b, nil
}

// SetActive toggles the active flag of every registration of asset.
func (r *AssetRegistry) SetActive(asset ledger.AssetID, active bool) error {
	c, cok := r.collateral[asset]
	b, bok := r.borrowable[asset]
	if !cok && !bok {
		return fmt.Errorf("%w: %s", ErrAssetNotSupported, asset)
	}
	if cok {
		c.Active = active
	}
	if bok {
		b.Active = active
	}
	return nil
}

// Decimals returns the decimals of asset from whichever registration exists.
func (r *AssetRegistry) Decimals(asset ledger.AssetID) (int, error) {
	if c, ok := r.collateral[asset]; ok {
		return c.Decimals, nil
	}
	if b, ok := r.borrowable[asset]; ok {
		return b.Decimals, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrAssetNotSupported, asset)
}

// Clone returns a deep copy for copy-on-write updates.
func (r *AssetRegistry) Clone() *AssetRegistry {
	out := NewAssetRegistry()
	for k, v := range r.collateral {
		c := *v
		out.collateral[k] = &c
	}
	for k, v := range r.borrowable {
		b := *v
		out.borrowable[k] = &b
	}
	return out
}

// CollateralAssets returns the collateral configurations ordered by asset.
func (r *AssetRegistry) CollateralAssets() []CollateralAsset {
	out := make([]CollateralAsset, 0, len(r.collateral))
	for _, c := range r.collateral {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (r *AssetRegistry) BorrowableAssets() []BorrowableAsset {
	out := make([]BorrowableAsset, 0, len(r.borrowable))
	for _, b := range r.borrowable {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// Restore replaces the registry contents from a snapshot.
func (r *AssetRegistry) Restore(collateral []CollateralAsset, borrowable []BorrowableAsset) {
	r.collateral = make(map[ledger.AssetID]*CollateralAsset, len(collateral))
	r.borrowable = make(map[ledger.AssetID]*BorrowableAsset, len(borrowable))
	for i := range collateral {
		c := collateral[i]
		r.collateral[c.Asset] = &c
	}
	for i := range borrowable {
		b := borrowable[i]
		r.borrowable[b.Asset] = &b
	}
}
