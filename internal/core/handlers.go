package core

import (
	"fmt"

	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/leverage"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

func (c *DeterministicCore) dispatch(t *txn, evt event.Event) error {
	switch e := evt.(type) {
	case *event.InitializeProtocol:
		return c.handleInitializeProtocol(t, e)
	case *event.RegisterCollateral:
		return c.handleRegisterCollateral(t, e)
	case *event.RegisterBorrowable:
		return c.handleRegisterBorrowable(t, e)
	case *event.InitializePriceFeed:
		return c.handleInitializePriceFeed(t, e)
	case *event.UpdatePrice:
		return c.handleUpdatePrice(t, e)
	case *event.SyncOraclePrice:
		return c.handleSyncOraclePrice(t, e)
	case *event.SetPaused:
		t.protocol.Paused = e.Paused
		t.emit(event.ProtocolPaused{Paused: e.Paused})
		return nil
	case *event.SetAssetActive:
		return c.handleSetAssetActive(t, e)
	case *event.WalletCredit:
		return c.handleWalletCredit(t, e)
	case *event.WalletDebit:
		return c.handleWalletDebit(t, e)
	case *event.Deposit:
		return c.handleDeposit(t, e)
	case *event.Withdraw:
		return c.handleWithdraw(t, e)
	case *event.Borrow:
		return c.handleBorrow(t, e)
	case *event.Repay:
		return c.handleRepay(t, e)
	case *event.AccrueInterest:
		return c.handleAccrueInterest(t, e)
	case *event.ConfigureGad:
		return c.handleConfigureGad(t, e)
	case *event.CrankGad:
		return c.handleCrankGad(t, e)
	case *event.LpDeposit:
		return c.handleLpDeposit(t, e)
	case *event.LpWithdraw:
		return c.handleLpWithdraw(t, e)
	case *event.FlashLoan:
		return c.handleFlashLoan(t, e)
	case *event.OpenLeverage:
		return c.handleOpenLeverage(t, e)
	case *event.SettleLeverage:
		return c.handleSettleLeverage(t, e)
	case *event.CloseLeverage:
		return c.handleCloseLeverage(t, e)
	default:
		return fmt.Errorf("%w: unknown event type %T", state.ErrInvalidCommand, evt)
	}
}

func assetID(name string) (ledger.AssetID, error) {
	id, ok := ledger.GetAssetID(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", state.ErrAssetNotSupported, name)
	}
	return id, nil
}

// --- Admin ---

func (c *DeterministicCore) handleInitializeProtocol(t *txn, e *event.InitializeProtocol) error {
	if err := t.protocol.Initialize(e.Caller(), e.Treasury); err != nil {
		return err
	}
	t.emit(event.ProtocolInitialized{Admin: e.Caller(), Treasury: e.Treasury})
	return nil
}

func (c *DeterministicCore) handleRegisterCollateral(t *txn, e *event.RegisterCollateral) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	err = t.assets.RegisterCollateral(state.CollateralAsset{
		Asset:                asset,
		Oracle:               e.Oracle,
		MaxLTVBps:            e.MaxLTVBps,
		LiquidationThreshold: e.LiquidationThresholdBps,
		LiquidationBonus:     e.LiquidationBonusBps,
		Decimals:             e.Decimals,
		Active:               true,
	})
	if err != nil {
		return err
	}
	t.emit(event.CollateralRegistered{
		Asset:                   e.Asset,
		MaxLTVBps:               e.MaxLTVBps,
		LiquidationThresholdBps: e.LiquidationThresholdBps,
		LiquidationBonusBps:     e.LiquidationBonusBps,
		Decimals:                e.Decimals,
	})
	return nil
}

func (c *DeterministicCore) handleRegisterBorrowable(t *txn, e *event.RegisterBorrowable) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	cfg := pool.DefaultConfig()
	if e.Rates != nil {
		cfg.Rates = *e.Rates
	}
	if e.InsuranceFeeBps != 0 {
		cfg.InsuranceFeeBps = e.InsuranceFeeBps
	}
	if e.FlashLoanFeeBps != 0 {
		cfg.FlashLoanFeeBps = e.FlashLoanFeeBps
	}
	err = t.assets.RegisterBorrowable(state.BorrowableAsset{
		Asset:    asset,
		Oracle:   e.Oracle,
		Decimals: e.Decimals,
		Rates:    cfg.Rates,
		Active:   true,
	})
	if err != nil {
		return err
	}
	if err := t.createPool(asset, cfg); err != nil {
		return err
	}
	t.emit(event.BorrowableRegistered{Asset: e.Asset, Decimals: e.Decimals})
	return nil
}

func (c *DeterministicCore) handleSetAssetActive(t *txn, e *event.SetAssetActive) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	if err := t.assets.SetActive(asset, e.Active); err != nil {
		return err
	}
	t.emit(event.AssetStatusChanged{Asset: e.Asset, Active: e.Active})
	return nil
}

// --- Oracle ---
// Feed writes are the last step of each handler, so a rejected command
// never leaves a partial feed update behind.

func (c *DeterministicCore) handleInitializePriceFeed(t *txn, e *event.InitializePriceFeed) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	if err := c.feeds.Initialize(asset, e.PriceUSD, t.now); err != nil {
		return err
	}
	c.priceAccepted(t, asset, e.Asset, e.PriceUSD, oracle.SourceAdmin)
	return nil
}

func (c *DeterministicCore) handleUpdatePrice(t *txn, e *event.UpdatePrice) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	if err := c.feeds.Override(asset, e.PriceUSD, t.now); err != nil {
		return err
	}
	c.priceAccepted(t, asset, e.Asset, e.PriceUSD, oracle.SourceAdmin)
	return nil
}

func (c *DeterministicCore) handleSyncOraclePrice(t *txn, e *event.SyncOraclePrice) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	q, err := oracle.DecodeAccount(e.Account)
	if err != nil {
		return err
	}
	applied, err := c.feeds.Sync(asset, q, t.now)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	feed, _ := c.feeds.Feed(asset)
	c.priceAccepted(t, asset, e.Asset, feed.PriceUSD, oracle.SourceSync)
	return nil
}

func (c *DeterministicCore) priceAccepted(t *txn, asset ledger.AssetID, name string, price int64, src oracle.Source) {
	t.feeds = append(t.feeds, asset)
	t.emit(event.PriceUpdated{Asset: name, PriceUSD: price, Source: src.String()})
	if c.metrics != nil {
		c.metrics.OraclePriceUSD.WithLabelValues(name).Set(float64(price) / 1e6)
	}
}

// --- Bridge ---

func (c *DeterministicCore) handleWalletCredit(t *txn, e *event.WalletCredit) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	if e.Amount <= 0 {
		return fmt.Errorf("%w: credit %d", state.ErrInvalidAmount, e.Amount)
	}
	if e.Owner == uuid.Nil {
		return fmt.Errorf("%w: credit without owner", state.ErrInvalidCommand)
	}
	if err := t.staging.Transfer(ledger.JournalTypeWalletCredit,
		ledger.BridgeAccount(asset), ledger.WalletAccount(e.Owner, asset), e.Amount); err != nil {
		return err
	}
	t.emit(event.WalletCredited{Owner: e.Owner, Asset: e.Asset, Amount: e.Amount, Chain: e.Chain})
	return nil
}

func (c *DeterministicCore) handleWalletDebit(t *txn, e *event.WalletDebit) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	if e.Amount <= 0 {
		return fmt.Errorf("%w: debit %d", state.ErrInvalidAmount, e.Amount)
	}
	if err := t.staging.Transfer(ledger.JournalTypeWalletDebit,
		ledger.WalletAccount(e.Caller(), asset), ledger.BridgeAccount(asset), e.Amount); err != nil {
		return err
	}
	t.emit(event.WalletDebited{Owner: e.Caller(), Asset: e.Asset, Amount: e.Amount})
	return nil
}

// --- Position ledger ---

func (c *DeterministicCore) handleDeposit(t *txn, e *event.Deposit) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	pos, err := t.position(e.Caller(), true)
	if err != nil {
		return err
	}
	res, err := state.Deposit(t.env(), pos, asset, e.Amount)
	if err != nil {
		return err
	}
	t.emit(event.CollateralDeposited{
		Owner: pos.Owner, Asset: e.Asset, Amount: res.Amount, USD: res.USD, NewAmount: res.NewAmount,
	})
	return nil
}

func (c *DeterministicCore) handleWithdraw(t *txn, e *event.Withdraw) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	pos, err := t.position(e.Caller(), false)
	if err != nil {
		return err
	}
	res, err := state.Withdraw(t.env(), pos, asset, e.Amount)
	if err != nil {
		return err
	}
	t.emit(event.CollateralWithdrawn{
		Owner: pos.Owner, Asset: e.Asset, Amount: res.Amount, USD: res.USD,
		Remaining: res.Remaining, LTVAfterBps: res.LTVAfterBps,
	})
	return nil
}

func (c *DeterministicCore) handleBorrow(t *txn, e *event.Borrow) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	pos, err := t.position(e.Caller(), false)
	if err != nil {
		return err
	}
	res, err := state.Borrow(t.env(), pos, asset, e.Amount)
	if err != nil {
		return err
	}
	t.emit(event.Borrowed{
		Owner: pos.Owner, Asset: e.Asset, Amount: res.Amount, USD: res.USD,
		LTVAfterBps: res.LTVAfterBps, EffectiveMaxLTVBps: res.EffectiveMaxLTVBps,
	})
	return nil
}

func (c *DeterministicCore) handleRepay(t *txn, e *event.Repay) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	pos, err := t.position(e.Caller(), false)
	if err != nil {
		return err
	}
	res, err := state.Repay(t.env(), pos, asset, e.Amount)
	if err != nil {
		return err
	}
	t.emit(event.Repaid{
		Owner: pos.Owner, Asset: e.Asset, Amount: res.Repaid, InterestPaid: res.InterestPaid,
		PrincipalPaid: res.PrincipalPaid, USD: res.USD, RemainingOwed: res.RemainingOwed,
	})
	if res.InterestPaid > 0 {
		t.emit(event.PoolInterestAccrued{
			Asset:       e.Asset,
			ProtocolFee: res.Settlement.ProtocolFee,
			Insurance:   res.Settlement.Insurance,
			ToLenders:   res.Settlement.ToLenders,
		})
	}
	return nil
}

func (c *DeterministicCore) handleAccrueInterest(t *txn, e *event.AccrueInterest) error {
	pos, err := t.position(e.Owner, false)
	if err != nil {
		return err
	}
	res, err := state.AccrueInterest(t.env(), pos, false)
	if err != nil {
		return err
	}
	for _, a := range res.Entries {
		t.emit(event.InterestAccrued{
			Owner: pos.Owner, Asset: a.Asset.String(), RateBps: a.RateBps, Amount: a.Amount, Elapsed: res.Elapsed,
		})
	}
	return nil
}

func (c *DeterministicCore) handleConfigureGad(t *txn, e *event.ConfigureGad) error {
	pos, err := t.position(e.Caller(), false)
	if err != nil {
		return err
	}
	floors := make([]state.CollateralFloor, 0, len(e.Floors))
	for _, f := range e.Floors {
		asset, err := assetID(f.Asset)
		if err != nil {
			return err
		}
		floors = append(floors, state.CollateralFloor{Asset: asset, Amount: f.Amount})
	}
	if err := state.ConfigureGad(t.env(), pos, e.Enabled, floors); err != nil {
		return err
	}
	t.emit(event.GadConfigured{Owner: pos.Owner, Enabled: e.Enabled, Floors: e.Floors})
	return nil
}

func (c *DeterministicCore) handleCrankGad(t *txn, e *event.CrankGad) error {
	pos, err := t.position(e.Owner, false)
	if err != nil {
		return err
	}
	exec, err := c.gad.Crank(t.env(), pos, e.Caller())
	if err != nil {
		return err
	}
	t.emit(event.GadExecuted{
		Owner:            exec.Owner,
		Cranker:          exec.Cranker,
		Asset:            exec.Asset.String(),
		Elapsed:          exec.Elapsed,
		RateBpsPerDay:    exec.RateBpsPerDay,
		LiquidatedAmount: exec.LiquidatedAmount,
		RewardAmount:     exec.RewardAmount,
		LiquidatedUSD:    exec.LiquidatedUSD,
		RewardUSD:        exec.RewardUSD,
		DebtReducedUSD:   exec.DebtReducedUSD,
		LTVBeforeBps:     exec.LTVBeforeBps,
		LTVAfterBps:      exec.LTVAfterBps,
	})
	c.logger.Info().
		Str("owner", exec.Owner.String()).
		Str("asset", exec.Asset.String()).
		Int64("liquidated", exec.LiquidatedAmount).
		Int64("ltv_before_bps", exec.LTVBeforeBps).
		Int64("ltv_after_bps", exec.LTVAfterBps).
		Msg("gad executed")
	if c.metrics != nil {
		c.metrics.GadExecutions.Inc()
		c.metrics.GadLiquidatedUSD.Add(float64(exec.LiquidatedUSD) / 1e6)
	}
	return nil
}

// --- Pools ---

func (c *DeterministicCore) handleLpDeposit(t *txn, e *event.LpDeposit) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	if _, err := t.assets.ActiveBorrowable(asset); err != nil {
		return err
	}
	p, err := t.pool(asset)
	if err != nil {
		return err
	}
	shares, err := p.Deposit(t.staging, e.Caller(), e.Amount)
	if err != nil {
		return err
	}
	t.emit(event.LpDeposited{Provider: e.Caller(), Asset: e.Asset, Amount: e.Amount, Shares: shares})
	return nil
}

func (c *DeterministicCore) handleLpWithdraw(t *txn, e *event.LpWithdraw) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	p, err := t.pool(asset)
	if err != nil {
		return err
	}
	amount, err := p.Withdraw(t.staging, e.Caller(), e.Shares)
	if err != nil {
		return err
	}
	t.emit(event.LpWithdrawn{Provider: e.Caller(), Asset: e.Asset, Shares: e.Shares, Amount: amount})
	return nil
}

func (c *DeterministicCore) handleFlashLoan(t *txn, e *event.FlashLoan) error {
	asset, err := assetID(e.Asset)
	if err != nil {
		return err
	}
	if _, err := t.assets.ActiveBorrowable(asset); err != nil {
		return err
	}
	receiver, ok := c.flash[e.Receiver]
	if !ok {
		return fmt.Errorf("%w: unknown flash receiver %q", state.ErrInvalidCommand, e.Receiver)
	}
	p, err := t.pool(asset)
	if err != nil {
		return err
	}
	res, err := p.FlashLoan(t.staging, e.Caller(), e.Amount, receiver)
	if err != nil {
		return err
	}
	if err := t.protocol.AddInsurance(asset, res.Accrual.Insurance); err != nil {
		return err
	}
	t.emit(event.FlashLoanExecuted{Borrower: e.Caller(), Asset: e.Asset, Amount: res.Amount, Fee: res.Fee})
	t.emit(event.PoolInterestAccrued{
		Asset: e.Asset, Insurance: res.Accrual.Insurance, ToLenders: res.Accrual.ToLenders,
	})
	if c.metrics != nil {
		c.metrics.FlashLoans.WithLabelValues(e.Asset).Inc()
	}
	return nil
}

// --- Leverage ---

func (c *DeterministicCore) handleOpenLeverage(t *txn, e *event.OpenLeverage) error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: leverage id required", state.ErrInvalidCommand)
	}
	if _, err := c.leverageBook.Get(e.ID); err == nil {
		return fmt.Errorf("%w: leverage position %s exists", state.ErrInvalidCommand, e.ID)
	}
	collateral, err := assetID(e.CollateralAsset)
	if err != nil {
		return err
	}
	borrow, err := assetID(e.BorrowAsset)
	if err != nil {
		return err
	}
	pos, err := t.position(e.Caller(), true)
	if err != nil {
		return err
	}
	lp, err := c.orchestrator.Open(t.env(), pos, leverage.OpenRequest{
		ID:                    e.ID,
		CollateralAsset:       collateral,
		BorrowAsset:           borrow,
		InitialCollateral:     e.InitialCollateral,
		Multiplier:            e.Multiplier,
		MinCollateralReceived: e.MinCollateralReceived,
		Short:                 e.Short,
	})
	if err != nil {
		return err
	}
	t.leverage[lp.ID] = lp
	t.emit(event.LeverageOpened{
		ID:              lp.ID,
		Owner:           lp.Owner,
		CollateralAsset: e.CollateralAsset,
		BorrowAsset:     e.BorrowAsset,
		TotalCollateral: lp.TotalCollateral,
		TotalBorrowed:   lp.TotalBorrowed,
		Multiplier:      lp.Multiplier,
		EntryPriceUSD:   lp.EntryPriceUSD,
	})
	return nil
}

// ownedLeverage loads a leverage position and checks the caller owns it.
func (c *DeterministicCore) ownedLeverage(t *txn, id, caller uuid.UUID) (*leverage.Position, *state.Position, error) {
	lp, err := t.leveragePosition(id)
	if err != nil {
		return nil, nil, err
	}
	if lp.Owner != caller {
		return nil, nil, fmt.Errorf("%w: leverage position %s", state.ErrUnauthorized, id)
	}
	pos, err := t.position(caller, false)
	if err != nil {
		return nil, nil, err
	}
	return lp, pos, nil
}

func (c *DeterministicCore) handleSettleLeverage(t *txn, e *event.SettleLeverage) error {
	lp, pos, err := c.ownedLeverage(t, e.ID, e.Caller())
	if err != nil {
		return err
	}
	if err := c.orchestrator.Settle(pos, lp, e.NewTotalCollateral); err != nil {
		return err
	}
	t.emit(event.LeverageSettled{ID: lp.ID, Owner: lp.Owner, TotalCollateral: lp.TotalCollateral})
	return nil
}

func (c *DeterministicCore) handleCloseLeverage(t *txn, e *event.CloseLeverage) error {
	lp, pos, err := c.ownedLeverage(t, e.ID, e.Caller())
	if err != nil {
		return err
	}
	res, err := c.orchestrator.Close(t.env(), pos, lp)
	if err != nil {
		return err
	}
	t.emit(event.LeverageClosed{
		ID:                 lp.ID,
		Owner:              lp.Owner,
		Repaid:             res.Repaid,
		CollateralSold:     res.CollateralSold,
		CollateralReturned: res.CollateralReturned,
		PnLUSD:             res.PnLUSD,
	})
	return nil
}
