package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/leverage"
	"LendLedger/internal/observability"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"

	"github.com/rs/zerolog"
)

// execer is satisfied by *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ProjectionWorker keeps the read-model tables in Postgres up to date.
// The core feeds it with non-blocking sends, so outputs can be dropped;
// the tables are eventually consistent and RebuildProjections restores them
// from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	history   *GadHistoryProjection
	logger    zerolog.Logger
	lastSeq   int64
}

// NewProjectionWorker builds a worker. db may be nil, in which case only
// the in-memory history is maintained.
func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, history *GadHistoryProjection) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		history:   history,
		logger:    observability.NewLogger("projection"),
		lastSeq:   -1,
	}
}

// LastSequence is the last output the worker handled.
func (pw *ProjectionWorker) LastSequence() int64 { return pw.lastSeq }

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			seq := output.Envelope.Sequence
			if pw.history != nil {
				pw.history.Apply(output)
			}
			if pw.db != nil {
				if err := pw.processOutput(ctx, output); err != nil {
					pw.logger.Warn().Int64("sequence", seq).Err(err).Msg("projection update failed")
				}
			}
			pw.lastSeq = seq
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence
	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := updateBalance(ctx, tx, j.DebitAccount.AccountPath(), uint16(j.AssetID), j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
			if err := updateBalance(ctx, tx, j.CreditAccount.AccountPath(), uint16(j.AssetID), -j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}
	for _, p := range output.Positions {
		if err := upsertPosition(ctx, tx, p, seq); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}
	for _, p := range output.Pools {
		if err := upsertPool(ctx, tx, p, seq); err != nil {
			return fmt.Errorf("pool projection: %w", err)
		}
	}
	for _, lp := range output.Leverage {
		if err := upsertLeverage(ctx, tx, lp, seq); err != nil {
			return fmt.Errorf("leverage projection: %w", err)
		}
	}
	for _, e := range output.Events {
		if g, ok := e.Event.(event.GadExecuted); ok {
			if err := insertGad(ctx, tx, e.Sequence, g); err != nil {
				return fmt.Errorf("gad projection: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalance applies a signed delta; debits increase a balance.
func updateBalance(ctx context.Context, tx execer, path string, asset uint16, delta, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, path, asset, delta, seq)
	return err
}

type assetAmount struct {
	Asset    string `json:"asset"`
	Amount   int64  `json:"amount"`
	Interest int64  `json:"interest,omitempty"`
}

func upsertPosition(ctx context.Context, tx execer, p *state.Position, seq int64) error {
	collaterals := make([]assetAmount, 0, len(p.Collaterals))
	for _, c := range p.Collaterals {
		collaterals = append(collaterals, assetAmount{Asset: c.Asset.String(), Amount: c.Amount})
	}
	borrows := make([]assetAmount, 0, len(p.Borrows))
	for _, b := range p.Borrows {
		borrows = append(borrows, assetAmount{Asset: b.Asset.String(), Amount: b.Principal, Interest: b.AccruedInterest})
	}
	cj, err := json.Marshal(collaterals)
	if err != nil {
		return err
	}
	bj, err := json.Marshal(borrows)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(owner, collaterals, borrows, gad_enabled, total_gad_liquidated_usd, last_update, version, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner) DO UPDATE SET
			collaterals = $2, borrows = $3, gad_enabled = $4, total_gad_liquidated_usd = $5,
			last_update = $6, version = $7, last_sequence = $8
	`, p.Owner.String(), string(cj), string(bj), p.GadEnabled, p.TotalGadLiquidatedUSD, p.LastUpdate, p.Version, seq)
	return err
}

func upsertPool(ctx context.Context, tx execer, p *pool.Pool, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pools
			(asset, total_deposits, total_shares, total_borrowed, interest_earned, protocol_fees,
			 insurance_collected, utilization_bps, borrow_rate_bps, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (asset) DO UPDATE SET
			total_deposits = $2, total_shares = $3, total_borrowed = $4, interest_earned = $5,
			protocol_fees = $6, insurance_collected = $7, utilization_bps = $8, borrow_rate_bps = $9,
			last_sequence = $10
	`, p.Asset.String(), p.TotalDeposits, p.TotalShares, p.TotalBorrowed, p.InterestEarned, p.ProtocolFees,
		p.InsuranceCollected, p.UtilizationBps(), p.BorrowRateBps(), seq)
	return err
}

func upsertLeverage(ctx context.Context, tx execer, lp *leverage.Position, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.leverage_positions
			(id, owner, collateral_asset, borrow_asset, total_collateral, total_borrowed, multiplier,
			 entry_price_usd, active, realized_pnl_usd, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			total_collateral = $5, total_borrowed = $6, active = $9, realized_pnl_usd = $10, last_sequence = $11
	`, lp.ID.String(), lp.Owner.String(), lp.CollateralAsset.String(), lp.BorrowAsset.String(),
		lp.TotalCollateral, lp.TotalBorrowed, lp.Multiplier, lp.EntryPriceUSD, lp.Active, lp.RealizedPnLUSD, seq)
	return err
}

func insertGad(ctx context.Context, tx execer, seq int64, g event.GadExecuted) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.gad_history
			(sequence, owner, cranker, asset, rate_bps_per_day, liquidated_amount, reward_amount,
			 liquidated_usd, debt_reduced_usd, ltv_before_bps, ltv_after_bps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (sequence, owner) DO NOTHING
	`, seq, g.Owner.String(), g.Cranker.String(), g.Asset, g.RateBpsPerDay, g.LiquidatedAmount, g.RewardAmount,
		g.LiquidatedUSD, g.DebtReducedUSD, g.LTVBeforeBps, g.LTVAfterBps)
	return err
}

// RebuildProjections rebuilds the balance projection from the journal.
// Position, pool and leverage tables are overwritten by the next output
// that touches each row.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	logger := observability.NewLogger("projection")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.gad_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT account_path, asset_id, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, asset_id, amount AS delta, sequence FROM event_log.journal
			UNION ALL
			SELECT credit_account, asset_id, -amount, sequence FROM event_log.journal
		) moves
		GROUP BY account_path, asset_id
	`); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Info().Msg("projection rebuild complete")
	return nil
}
