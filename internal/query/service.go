package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/gad"
	"LendLedger/internal/ledger"
	"LendLedger/internal/leverage"
	"LendLedger/internal/observability"
	"LendLedger/internal/pool"
	"LendLedger/internal/projection"
	"LendLedger/internal/state"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Viewer runs a read-only function on the core goroutine. *core.Runner
// implements it.
type Viewer interface {
	View(ctx context.Context, fn func(c *core.DeterministicCore)) error
}

// QueryService answers reads. Live state comes from the core through
// Viewer, so responses are consistent as of AsOfSequence; journal history
// and integrity checks read Postgres.
type QueryService struct {
	viewer  Viewer
	db      *sql.DB
	history *projection.GadHistoryProjection
	cache   *ristretto.Cache
	ttl     time.Duration
	metrics *observability.Metrics

	// now is the clock positions are valued at.
	now func() time.Time
}

// Options tune a QueryService. Zero values pick defaults.
type Options struct {
	// CacheTTL bounds staleness of cached pool and price reads.
	CacheTTL time.Duration
	Clock    func() time.Time
}

// NewQueryService builds the service; db and history may be nil, in which
// case the reads that need them return ErrUnavailable.
func NewQueryService(viewer Viewer, db *sql.DB, history *projection.GadHistoryProjection, metrics *observability.Metrics, opts Options) (*QueryService, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &QueryService{
		viewer:  viewer,
		db:      db,
		history: history,
		cache:   cache,
		ttl:     opts.CacheTTL,
		metrics: metrics,
		now:     opts.Clock,
	}, nil
}

// ErrUnavailable is returned by reads whose backing store is not configured.
var ErrUnavailable = errors.New("query: backing store unavailable")

// Close releases the cache.
func (qs *QueryService) Close() {
	qs.cache.Close()
}

// GetProtocol returns the global protocol state.
func (qs *QueryService) GetProtocol(ctx context.Context) (*ProtocolResponse, error) {
	var resp *ProtocolResponse
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		p := c.Protocol()
		hash := c.StateHash()
		resp = &ProtocolResponse{
			Admin:              p.Admin.String(),
			Treasury:           p.Treasury.String(),
			Paused:             p.Paused,
			TotalCollateralUSD: usd(p.TotalCollateralUSD),
			TotalBorrowedUSD:   usd(p.TotalBorrowedUSD),
			InsuranceFund:      make(map[string]Amount, len(p.InsuranceFund)),
			StateHash:          hex.EncodeToString(hash[:]),
			AsOfSequence:       c.NextSequence() - 1,
		}
		for asset, amt := range p.InsuranceFund {
			dec, _ := c.Decimals(asset)
			resp.InsuranceFund[asset.String()] = amountOf(amt, dec)
		}
	})
	return resp, err
}

// GetBalances returns the owner's custody balances for every registered asset.
func (qs *QueryService) GetBalances(ctx context.Context, owner uuid.UUID) (*BalanceResponse, error) {
	var resp *BalanceResponse
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		resp = &BalanceResponse{Owner: owner.String(), AsOfSequence: c.NextSequence() - 1}
		for _, asset := range registeredAssets(c) {
			dec, _ := c.Decimals(asset)
			if b := c.Balance(ledger.WalletAccount(owner, asset)); b != 0 {
				resp.Wallet = append(resp.Wallet, WalletBalance{Asset: asset.String(), Balance: amountOf(b, dec)})
			}
			if b := c.Balance(ledger.CollateralVault(owner, asset)); b != 0 {
				resp.Collateral = append(resp.Collateral, WalletBalance{Asset: asset.String(), Balance: amountOf(b, dec)})
			}
			if b := c.Balance(ledger.LpShareAccount(owner, asset)); b != 0 {
				resp.LpShares = append(resp.LpShares, WalletBalance{Asset: asset.String(), Balance: amountOf(b, dec)})
			}
		}
	})
	return resp, err
}

// GetPosition values owner's position at the service clock.
func (qs *QueryService) GetPosition(ctx context.Context, owner uuid.UUID) (*PositionResponse, error) {
	var (
		resp    *PositionResponse
		viewErr error
	)
	now := qs.now().Unix()
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		pos := c.Position(owner)
		if pos == nil {
			viewErr = state.ErrPositionNotFound
			return
		}
		resp = &PositionResponse{
			Owner:                 owner.String(),
			ReputationBonusBps:    pos.Reputation.LTVBonusBps(),
			ReputationScore:       pos.Reputation.Score(),
			GadEnabled:            pos.GadEnabled,
			TotalGadLiquidatedUSD: usd(pos.TotalGadLiquidatedUSD),
			LastGadCrank:          pos.LastGadCrank,
			Version:               pos.Version,
			AsOfSequence:          c.NextSequence() - 1,
		}

		v, err := c.Evaluate(owner, now)
		if err != nil {
			resp.PriceError = err.Error()
			resp.Status = "Unknown"
			for _, cd := range pos.Collaterals {
				dec, _ := c.Decimals(cd.Asset)
				resp.Collateral = append(resp.Collateral, AssetLine{Asset: cd.Asset.String(), Amount: amountOf(cd.Amount, dec)})
			}
			for _, b := range pos.Borrows {
				dec, _ := c.Decimals(b.Asset)
				resp.Borrows = append(resp.Borrows, AssetLine{
					Asset: b.Asset.String(), Amount: amountOf(b.Principal, dec), Interest: amountOf(b.AccruedInterest, dec),
				})
			}
			return
		}

		for _, av := range v.Collateral {
			dec, _ := c.Decimals(av.Asset)
			resp.Collateral = append(resp.Collateral, AssetLine{Asset: av.Asset.String(), Amount: amountOf(av.Amount, dec), USD: usd(av.USD)})
		}
		for _, av := range v.Debt {
			dec, _ := c.Decimals(av.Asset)
			line := AssetLine{Asset: av.Asset.String(), Amount: amountOf(av.Amount, dec), USD: usd(av.USD)}
			if b, ok := pos.Borrow(av.Asset); ok {
				line.Interest = amountOf(b.AccruedInterest, dec)
			}
			resp.Borrows = append(resp.Borrows, line)
		}
		resp.CollateralUSD = usd(v.CollateralUSD)
		resp.BorrowUSD = usd(v.BorrowUSD)
		resp.LTVBps = v.LTVBps
		resp.LTVPercent = bpsPercent(v.LTVBps)
		resp.EffectiveMaxLTVBps = v.EffectiveMaxLTVBps
		resp.Status = gad.StatusOf(v).String()
	})
	if err != nil {
		return nil, err
	}
	return resp, viewErr
}

// GetPool returns one pool. Results are cached for the cache TTL.
func (qs *QueryService) GetPool(ctx context.Context, asset string) (*PoolResponse, error) {
	id, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrAssetNotSupported, asset)
	}
	key := "pool:" + asset
	if v, ok := qs.cache.Get(key); ok {
		qs.cacheResult("hit")
		return v.(*PoolResponse), nil
	}
	qs.cacheResult("miss")

	var resp *PoolResponse
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		p, ok := c.Pool(id)
		if !ok {
			return
		}
		resp = poolResponse(c, p)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no pool for %s", state.ErrAssetNotSupported, asset)
	}
	qs.cache.SetWithTTL(key, resp, 1, qs.ttl)
	return resp, nil
}

// GetPools returns every pool.
func (qs *QueryService) GetPools(ctx context.Context) ([]*PoolResponse, error) {
	var out []*PoolResponse
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		for _, p := range c.Pools() {
			out = append(out, poolResponse(c, p))
		}
	})
	return out, err
}

func poolResponse(c *core.DeterministicCore, p *pool.Pool) *PoolResponse {
	dec, _ := c.Decimals(p.Asset)
	resp := &PoolResponse{
		Asset:              p.Asset.String(),
		TotalDeposits:      amountOf(p.TotalDeposits, dec),
		TotalShares:        p.TotalShares,
		TotalBorrowed:      amountOf(p.TotalBorrowed, dec),
		Available:          amountOf(p.Available(), dec),
		InterestEarned:     amountOf(p.InterestEarned, dec),
		ProtocolFees:       amountOf(p.ProtocolFees, dec),
		InsuranceCollected: amountOf(p.InsuranceCollected, dec),
		UtilizationBps:     p.UtilizationBps(),
		BorrowRateBps:      p.BorrowRateBps(),
		SupplyRateBps:      p.SupplyRateBps(),
		AsOfSequence:       c.NextSequence() - 1,
	}
	resp.BorrowAPR = bpsPercent(resp.BorrowRateBps)
	resp.SupplyAPR = bpsPercent(resp.SupplyRateBps)
	if rate, err := p.ExchangeRate(); err == nil {
		resp.ExchangeRate = decimal.New(rate, 0).Div(decimal.New(pool.ExchangeRateScale, 0)).String()
	}
	return resp
}

// GetPrices returns every oracle feed. Results are cached for the cache TTL.
func (qs *QueryService) GetPrices(ctx context.Context) ([]PriceResponse, error) {
	const key = "prices"
	if v, ok := qs.cache.Get(key); ok {
		qs.cacheResult("hit")
		return v.([]PriceResponse), nil
	}
	qs.cacheResult("miss")

	var out []PriceResponse
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		for _, f := range c.Feeds() {
			out = append(out, PriceResponse{
				Asset:       f.Asset.String(),
				PriceUSD:    usd(f.PriceUSD),
				Confidence:  usd(f.ConfidenceUSD),
				LastUpdate:  f.LastUpdate,
				LastPublish: f.LastPublish,
				Source:      f.Source.String(),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	qs.cache.SetWithTTL(key, out, 1, qs.ttl)
	return out, nil
}

// GetLeverage returns one leveraged position.
func (qs *QueryService) GetLeverage(ctx context.Context, id uuid.UUID) (*LeverageResponse, error) {
	var (
		resp    *LeverageResponse
		viewErr error
	)
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		lp, err := c.Leverage(id)
		if err != nil {
			viewErr = err
			return
		}
		resp = leverageResponse(c, lp)
	})
	if err != nil {
		return nil, err
	}
	return resp, viewErr
}

// GetLeverageByOwner returns an owner's leveraged positions.
func (qs *QueryService) GetLeverageByOwner(ctx context.Context, owner uuid.UUID) ([]*LeverageResponse, error) {
	var out []*LeverageResponse
	err := qs.viewer.View(ctx, func(c *core.DeterministicCore) {
		for _, lp := range c.LeverageByOwner(owner) {
			out = append(out, leverageResponse(c, lp))
		}
	})
	return out, err
}

func leverageResponse(c *core.DeterministicCore, lp *leverage.Position) *LeverageResponse {
	cdec, _ := c.Decimals(lp.CollateralAsset)
	bdec, _ := c.Decimals(lp.BorrowAsset)
	return &LeverageResponse{
		ID:              lp.ID.String(),
		Owner:           lp.Owner.String(),
		CollateralAsset: lp.CollateralAsset.String(),
		BorrowAsset:     lp.BorrowAsset.String(),
		TotalCollateral: amountOf(lp.TotalCollateral, cdec),
		TotalBorrowed:   amountOf(lp.TotalBorrowed, bdec),
		Multiplier:      lp.Multiplier,
		EntryPriceUSD:   usd(lp.EntryPriceUSD),
		IsLong:          lp.IsLong,
		Active:          lp.Active,
		OpenedAt:        lp.OpenedAt,
		ClosedAt:        lp.ClosedAt,
		RealizedPnLUSD:  usd(lp.RealizedPnLUSD),
	}
}

// GetGadHistory returns an owner's recent GAD executions, newest first.
func (qs *QueryService) GetGadHistory(_ context.Context, owner uuid.UUID, limit int) ([]GadHistoryResponse, error) {
	if qs.history == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries := qs.history.QueryByOwner(owner, limit)
	out := make([]GadHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, GadHistoryResponse{
			Sequence:         e.Sequence,
			Cranker:          e.Cranker.String(),
			Asset:            e.Asset,
			RateBpsPerDay:    e.RateBpsPerDay,
			LiquidatedAmount: e.LiquidatedAmount,
			RewardAmount:     e.RewardAmount,
			LiquidatedUSD:    usd(e.LiquidatedUSD),
			DebtReducedUSD:   usd(e.DebtReducedUSD),
			LTVBeforeBps:     e.LTVBeforeBps,
			LTVAfterBps:      e.LTVAfterBps,
		})
	}
	return out, nil
}

// GetJournalHistory returns journal entries touching the owner's accounts
// with pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	owner uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	if qs.db == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	accountPrefix := fmt.Sprintf("user:%s:%%", owner)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the persisted hash chain and that every asset's
// projected balances sum to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	if qs.db == nil {
		return nil, ErrUnavailable
	}
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedAsset
		if err := balanceRows.Scan(&u.AssetID, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) cacheResult(result string) {
	if qs.metrics != nil {
		qs.metrics.QueryCacheHit.WithLabelValues(result).Inc()
	}
}

// registeredAssets lists every collateral and borrowable asset once, in
// registration order.
func registeredAssets(c *core.DeterministicCore) []ledger.AssetID {
	seen := make(map[ledger.AssetID]bool)
	var out []ledger.AssetID
	for _, a := range c.CollateralAssets() {
		if !seen[a.Asset] {
			seen[a.Asset] = true
			out = append(out, a.Asset)
		}
	}
	for _, b := range c.BorrowableAssets() {
		if !seen[b.Asset] {
			seen[b.Asset] = true
			out = append(out, b.Asset)
		}
	}
	return out
}
