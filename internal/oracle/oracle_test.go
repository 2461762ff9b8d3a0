package oracle_test

import (
	"errors"
	"testing"

	"LendLedger/internal/ledger"
	"LendLedger/internal/oracle"
)

// ============================================================================
// Test: Quote conversion
// ============================================================================

func TestQuote_ToUSD6(t *testing.T) {
	cases := []struct {
		name  string
		price int64
		expo  int32
		want  int64
	}{
		{"expo -8 divides", 15_000_000_000, -8, 150_000_000},
		{"expo -6 is identity", 150_000_000, -6, 150_000_000},
		{"expo -4 multiplies", 1_500_000, -4, 150_000_000},
		{"truncates never rounds up", 15_000_000_099, -8, 150_000_000},
		{"non-positive is zero", -5, -8, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := oracle.Quote{Price: tc.price, Expo: tc.expo}.ToUSD6()
			if err != nil {
				t.Fatalf("ToUSD6: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestQuote_ConfidenceBps(t *testing.T) {
	q := oracle.Quote{Price: 15_000_000_000, Conf: 150_000_000, Expo: -8}
	if got := q.ConfidenceBps(); got != 100 {
		t.Errorf("1%% confidence: got %d bps, want 100", got)
	}
	if got := (oracle.Quote{Price: 0, Conf: 1}).ConfidenceBps(); got != 10_000 {
		t.Errorf("zero price: got %d bps, want 10000", got)
	}
}

func TestDecodeAccount_RoundTrip(t *testing.T) {
	q := oracle.Quote{Price: 15_000_000_000, Conf: 7_500_000, Expo: -8, PublishTime: 1_700_000_000}
	got, err := oracle.DecodeAccount(oracle.EncodeAccount(q))
	if err != nil {
		t.Fatalf("DecodeAccount: %v", err)
	}
	if got != q {
		t.Errorf("decoded %+v, want %+v", got, q)
	}
}

func TestDecodeAccount_Short(t *testing.T) {
	_, err := oracle.DecodeAccount(make([]byte, 239))
	if !errors.Is(err, oracle.ErrInvalidOracle) {
		t.Fatalf("expected ErrInvalidOracle, got %v", err)
	}
}

// ============================================================================
// Test: FeedBook gates
// ============================================================================

func newBook(t *testing.T) *oracle.FeedBook {
	t.Helper()
	b := oracle.NewFeedBook(oracle.DefaultParams())
	if err := b.Initialize(ledger.AssetSOL, 150_000_000, 1_000); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b
}

func TestFeedBook_StalePriceRejected(t *testing.T) {
	b := newBook(t)

	// 400s after the last update against a 300s threshold.
	_, err := b.USDValue(ledger.AssetSOL, 10_000_000_000, 9, 1_400)
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}

	got, err := b.USDValue(ledger.AssetSOL, 10_000_000_000, 9, 1_300)
	if err != nil {
		t.Fatalf("USDValue at threshold: %v", err)
	}
	if got != 1_500_000_000 {
		t.Errorf("10 SOL at $150: got %d, want 1_500_000_000", got)
	}
}

func TestFeedBook_UnknownAsset(t *testing.T) {
	b := newBook(t)
	_, err := b.Price(ledger.AssetEURC, 1_000)
	if !errors.Is(err, oracle.ErrNoPriceFeed) {
		t.Fatalf("expected ErrNoPriceFeed, got %v", err)
	}
}

func TestFeedBook_SyncAgeGate(t *testing.T) {
	b := newBook(t)
	q := oracle.Quote{Price: 16_000_000_000, Conf: 1_000_000, Expo: -8, PublishTime: 1_000}

	_, err := b.Sync(ledger.AssetSOL, q, 1_061)
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("61s old quote: expected ErrStalePrice, got %v", err)
	}

	applied, err := b.Sync(ledger.AssetSOL, q, 1_060)
	if err != nil || !applied {
		t.Fatalf("60s old quote should apply: applied=%v err=%v", applied, err)
	}
	price, err := b.Price(ledger.AssetSOL, 1_060)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if price != 160_000_000 {
		t.Errorf("price: got %d, want 160_000_000", price)
	}
}

func TestFeedBook_SyncConfidenceGate(t *testing.T) {
	b := newBook(t)
	// 6% confidence interval.
	q := oracle.Quote{Price: 10_000_000_000, Conf: 600_000_000, Expo: -8, PublishTime: 1_000}
	_, err := b.Sync(ledger.AssetSOL, q, 1_000)
	if !errors.Is(err, oracle.ErrInvalidOracle) {
		t.Fatalf("expected ErrInvalidOracle, got %v", err)
	}
	feed, _ := b.Feed(ledger.AssetSOL)
	if feed.PriceUSD != 150_000_000 {
		t.Errorf("rejected quote must not change the feed, price=%d", feed.PriceUSD)
	}
}

func TestFeedBook_OutOfOrderQuoteIgnored(t *testing.T) {
	b := newBook(t)
	newer := oracle.Quote{Price: 16_000_000_000, Expo: -8, PublishTime: 1_010}
	older := oracle.Quote{Price: 12_000_000_000, Expo: -8, PublishTime: 1_005}

	if _, err := b.Sync(ledger.AssetSOL, newer, 1_020); err != nil {
		t.Fatalf("sync newer: %v", err)
	}
	applied, err := b.Sync(ledger.AssetSOL, older, 1_020)
	if err != nil {
		t.Fatalf("sync older: %v", err)
	}
	if applied {
		t.Error("older quote must be ignored")
	}
	feed, _ := b.Feed(ledger.AssetSOL)
	if feed.PriceUSD != 160_000_000 {
		t.Errorf("price: got %d, want 160_000_000", feed.PriceUSD)
	}
}

func TestFeedBook_OverrideRefreshesFeed(t *testing.T) {
	b := newBook(t)
	if err := b.Override(ledger.AssetSOL, 100_000_000, 5_000); err != nil {
		t.Fatalf("Override: %v", err)
	}
	price, err := b.Price(ledger.AssetSOL, 5_100)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if price != 100_000_000 {
		t.Errorf("price: got %d", price)
	}
}

func TestParams_Validate(t *testing.T) {
	if err := oracle.DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	bad := oracle.DefaultParams()
	bad.MaxSyncAgeSeconds = 600
	if err := bad.Validate(); err == nil {
		t.Error("sync age above staleness must be rejected")
	}
}
