package oracle

import (
	"fmt"
	"sort"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
)

// Params gates which prices the core accepts.
type Params struct {
	StalenessSeconds  int64 `toml:"staleness_seconds" json:"staleness_seconds"`       // max feed age for valuations
	MaxSyncAgeSeconds int64 `toml:"max_sync_age_seconds" json:"max_sync_age_seconds"` // max quote age accepted by Sync
	MaxConfidenceBps  int64 `toml:"max_confidence_bps" json:"max_confidence_bps"`     // max confidence/price ratio
}

func DefaultParams() Params {
	return Params{
		StalenessSeconds:  300,
		MaxSyncAgeSeconds: 60,
		MaxConfidenceBps:  500,
	}
}

func (p Params) Validate() error {
	if p.StalenessSeconds <= 0 {
		return fmt.Errorf("staleness_seconds must be positive, got %d", p.StalenessSeconds)
	}
	if p.MaxSyncAgeSeconds <= 0 || p.MaxSyncAgeSeconds > p.StalenessSeconds {
		return fmt.Errorf("max_sync_age_seconds must be in (0, %d], got %d", p.StalenessSeconds, p.MaxSyncAgeSeconds)
	}
	if p.MaxConfidenceBps <= 0 || p.MaxConfidenceBps > fpmath.BpsDenominator {
		return fmt.Errorf("max_confidence_bps must be in (0, 10000], got %d", p.MaxConfidenceBps)
	}
	return nil
}

// Source records which path last wrote a feed.
type Source uint8

const (
	SourceAdmin Source = iota
	SourceSync
)

func (s Source) String() string {
	if s == SourceSync {
		return "sync"
	}
	return "admin"
}

// PriceFeed is the accepted price for one asset.
type PriceFeed struct {
	Asset         ledger.AssetID
	PriceUSD      int64 // 6-decimal USD
	ConfidenceUSD int64 // 6-decimal USD
	LastUpdate    int64 // unix seconds
	LastPublish   int64 // publish time of the last synced quote
	Source        Source
}

// FeedBook holds one PriceFeed per asset. Not thread-safe; owned by the core.
type FeedBook struct {
	params Params
	feeds  map[ledger.AssetID]*PriceFeed
}

func NewFeedBook(params Params) *FeedBook {
	return &FeedBook{
		params: params,
		feeds:  make(map[ledger.AssetID]*PriceFeed),
	}
}

func (b *FeedBook) Params() Params {
	return b.params
}

// Initialize creates the feed for asset with a bootstrap price.
func (b *FeedBook) Initialize(asset ledger.AssetID, priceUSD, now int64) error {
	if _, ok := b.feeds[asset]; ok {
		return fmt.Errorf("%w: feed for %s already initialized", ErrInvalidOracle, asset)
	}
	if priceUSD <= 0 {
		return fmt.Errorf("%w: initial price must be positive", ErrInvalidOracle)
	}
	b.feeds[asset] = &PriceFeed{
		Asset:      asset,
		PriceUSD:   priceUSD,
		LastUpdate: now,
		Source:     SourceAdmin,
	}
	return nil
}

// Override injects a price directly. It needs no source quote and is the
// bootstrap/fallback path; readers still apply the staleness gate.
func (b *FeedBook) Override(asset ledger.AssetID, priceUSD, now int64) error {
	if priceUSD <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidOracle)
	}
	feed, ok := b.feeds[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPriceFeed, asset)
	}
	feed.PriceUSD = priceUSD
	feed.ConfidenceUSD = 0
	feed.LastUpdate = now
	feed.Source = SourceAdmin
	return nil
}

// Sync accepts a raw quote after age and confidence checks. A quote not
// newer than the last synced one is ignored and reports applied=false.
func (b *FeedBook) Sync(asset ledger.AssetID, q Quote, now int64) (applied bool, err error) {
	feed, ok := b.feeds[asset]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoPriceFeed, asset)
	}
	if q.IsStale(now, b.params.MaxSyncAgeSeconds) {
		return false, fmt.Errorf("%w: quote for %s published %ds ago", ErrStalePrice, asset, now-q.PublishTime)
	}
	if q.Price <= 0 {
		return false, fmt.Errorf("%w: non-positive price %d", ErrInvalidOracle, q.Price)
	}
	if conf := q.ConfidenceBps(); conf > b.params.MaxConfidenceBps {
		return false, fmt.Errorf("%w: confidence %d bps exceeds %d", ErrInvalidOracle, conf, b.params.MaxConfidenceBps)
	}
	if feed.Source == SourceSync && q.PublishTime <= feed.LastPublish {
		return false, nil
	}

	price, err := q.ToUSD6()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidOracle, err)
	}
	if price == 0 {
		return false, fmt.Errorf("%w: price truncates to zero", ErrInvalidOracle)
	}
	conf, err := q.ConfUSD6()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidOracle, err)
	}

	feed.PriceUSD = price
	feed.ConfidenceUSD = conf
	feed.LastUpdate = q.PublishTime
	feed.LastPublish = q.PublishTime
	feed.Source = SourceSync
	return true, nil
}

// Price returns the accepted 6-decimal USD price for asset at now.
func (b *FeedBook) Price(asset ledger.AssetID, now int64) (int64, error) {
	feed, ok := b.feeds[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPriceFeed, asset)
	}
	if now-feed.LastUpdate > b.params.StalenessSeconds {
		return 0, fmt.Errorf("%w: %s last updated %ds ago", ErrStalePrice, asset, now-feed.LastUpdate)
	}
	if feed.PriceUSD <= 0 {
		return 0, fmt.Errorf("%w: %s has no positive price", ErrInvalidOracle, asset)
	}
	confBps, err := fpmath.RatioBps(feed.ConfidenceUSD, feed.PriceUSD)
	if err != nil || confBps > b.params.MaxConfidenceBps {
		return 0, fmt.Errorf("%w: %s confidence too wide", ErrInvalidOracle, asset)
	}
	return feed.PriceUSD, nil
}

// USDValue values amount base units of asset (with the given decimals).
func (b *FeedBook) USDValue(asset ledger.AssetID, amount int64, decimals int, now int64) (int64, error) {
	price, err := b.Price(asset, now)
	if err != nil {
		return 0, err
	}
	return fpmath.TokenToUSD(amount, price, decimals)
}

// TokenAmount converts a USD value into base units of asset.
func (b *FeedBook) TokenAmount(asset ledger.AssetID, usd int64, decimals int, now int64) (int64, error) {
	price, err := b.Price(asset, now)
	if err != nil {
		return 0, err
	}
	return fpmath.USDToToken(usd, price, decimals)
}

// Feed returns a copy of the feed for asset.
func (b *FeedBook) Feed(asset ledger.AssetID) (PriceFeed, bool) {
	feed, ok := b.feeds[asset]
	if !ok {
		return PriceFeed{}, false
	}
	return *feed, true
}

// Snapshot returns all feeds ordered by asset.
func (b *FeedBook) Snapshot() []PriceFeed {
	out := make([]PriceFeed, 0, len(b.feeds))
	for _, f := range b.feeds {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// Restore replaces all feeds.
func (b *FeedBook) Restore(feeds []PriceFeed) {
	b.feeds = make(map[ledger.AssetID]*PriceFeed, len(feeds))
	for i := range feeds {
		f := feeds[i]
		b.feeds[f.Asset] = &f
	}
}
