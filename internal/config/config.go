package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/gad"
	"LendLedger/internal/interest"
	"LendLedger/internal/ledger"
	"LendLedger/internal/leverage"
	"LendLedger/internal/oracle"
	"LendLedger/internal/state"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// File is the on-disk risk configuration: core tunables, engine
// parameters and the genesis asset set.
type File struct {
	Core     CoreSection     `toml:"core"`
	Oracle   oracle.Params   `toml:"oracle"`
	Gad      gad.Params      `toml:"gad"`
	Leverage leverage.Params `toml:"leverage"`
	Genesis  Genesis         `toml:"genesis"`
}

type CoreSection struct {
	IdempotencyCapacity int   `toml:"idempotency_capacity"`
	GlobalCheckInterval int64 `toml:"global_check_interval"`
	SwapSlippageBps     int64 `toml:"swap_slippage_bps"`
}

// Genesis is applied once, on an empty event log.
type Genesis struct {
	Admin      string       `toml:"admin"`
	Treasury   string       `toml:"treasury"`
	Timestamp  time.Time    `toml:"timestamp"`
	Collateral []Collateral `toml:"collateral"`
	Borrowable []Borrowable `toml:"borrowable"`
	Prices     []Price      `toml:"prices"`
}

type Collateral struct {
	Asset                   string `toml:"asset"`
	Oracle                  string `toml:"oracle"`
	MaxLTVBps               int64  `toml:"max_ltv_bps"`
	LiquidationThresholdBps int64  `toml:"liquidation_threshold_bps"`
	LiquidationBonusBps     int64  `toml:"liquidation_bonus_bps"`
	Decimals                int    `toml:"decimals"`
}

type Borrowable struct {
	Asset           string           `toml:"asset"`
	Oracle          string           `toml:"oracle"`
	Decimals        int              `toml:"decimals"`
	Rates           *interest.Params `toml:"rates"`
	InsuranceFeeBps int64            `toml:"insurance_fee_bps"`
	FlashLoanFeeBps int64            `toml:"flash_loan_fee_bps"`
}

type Price struct {
	Asset    string `toml:"asset"`
	PriceUSD int64  `toml:"price_usd"`
}

// Default returns a File carrying the engine defaults and no genesis.
func Default() *File {
	def := core.DefaultConfig()
	return &File{
		Core: CoreSection{
			IdempotencyCapacity: def.IdempotencyCapacity,
			GlobalCheckInterval: def.GlobalCheckInterval,
			SwapSlippageBps:     def.SwapSlippageBps,
		},
		Oracle:   def.Oracle,
		Gad:      def.Gad,
		Leverage: def.Leverage,
	}
}

// Load decodes path over the defaults and validates the result. Unknown
// keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse is Load on an in-memory document.
func Parse(doc string) (*File, error) {
	f := Default()
	meta, err := toml.Decode(doc, f)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys %s", state.ErrInvalidConfig, strings.Join(keys, ", "))
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate runs the same parameter checks the core applies at runtime, so
// a bad file fails at startup instead of on the first genesis command.
func (f *File) Validate() error {
	var errs []error
	if err := f.Oracle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("oracle: %w", err))
	}
	if err := f.Gad.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gad: %w", err))
	}
	if err := f.Leverage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("leverage: %w", err))
	}
	if f.Core.SwapSlippageBps < 0 || f.Core.SwapSlippageBps >= 10_000 {
		errs = append(errs, fmt.Errorf("%w: swap_slippage_bps must be in [0, 10000)", state.ErrInvalidConfig))
	}
	if err := f.Genesis.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (g *Genesis) validate() error {
	if g.Admin == "" && len(g.Collateral)+len(g.Borrowable)+len(g.Prices) == 0 {
		return nil
	}
	if _, err := uuid.Parse(g.Admin); err != nil {
		return fmt.Errorf("%w: genesis.admin: %v", state.ErrInvalidConfig, err)
	}
	if _, err := uuid.Parse(g.Treasury); err != nil {
		return fmt.Errorf("%w: genesis.treasury: %v", state.ErrInvalidConfig, err)
	}

	var errs []error
	listed := make(map[string]bool)
	for _, c := range g.Collateral {
		id, ok := ledger.GetAssetID(c.Asset)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: collateral %s", state.ErrAssetNotSupported, c.Asset))
			continue
		}
		err := state.ValidateCollateral(&state.CollateralAsset{
			Asset:                id,
			MaxLTVBps:            c.MaxLTVBps,
			LiquidationThreshold: c.LiquidationThresholdBps,
			LiquidationBonus:     c.LiquidationBonusBps,
			Decimals:             c.Decimals,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("collateral %s: %w", c.Asset, err))
		}
		listed[c.Asset] = true
	}
	for _, b := range g.Borrowable {
		id, ok := ledger.GetAssetID(b.Asset)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: borrowable %s", state.ErrAssetNotSupported, b.Asset))
			continue
		}
		rates := interest.DefaultParams()
		if b.Rates != nil {
			rates = *b.Rates
		}
		if err := state.ValidateBorrowable(&state.BorrowableAsset{Asset: id, Decimals: b.Decimals, Rates: rates}); err != nil {
			errs = append(errs, fmt.Errorf("borrowable %s: %w", b.Asset, err))
		}
		listed[b.Asset] = true
	}
	for _, p := range g.Prices {
		if !listed[p.Asset] {
			errs = append(errs, fmt.Errorf("%w: price for unlisted asset %s", state.ErrInvalidConfig, p.Asset))
		}
		if p.PriceUSD <= 0 {
			errs = append(errs, fmt.Errorf("%w: price for %s must be positive", state.ErrInvalidConfig, p.Asset))
		}
	}
	return errors.Join(errs...)
}

// CoreConfig returns the core configuration the file describes.
func (f *File) CoreConfig() core.Config {
	return core.Config{
		IdempotencyCapacity: f.Core.IdempotencyCapacity,
		GlobalCheckInterval: f.Core.GlobalCheckInterval,
		Oracle:              f.Oracle,
		Gad:                 f.Gad,
		Leverage:            f.Leverage,
		SwapSlippageBps:     f.Core.SwapSlippageBps,
	}
}

// GenesisCommands turns the genesis section into admin commands, in the
// order the core requires: protocol, asset listings, then price feeds.
// Idempotency keys are fixed so re-running genesis is a no-op. Returns nil
// when the file has no genesis.
func (f *File) GenesisCommands() []event.Event {
	g := f.Genesis
	if g.Admin == "" {
		return nil
	}
	admin := uuid.MustParse(g.Admin)
	ts := g.Timestamp
	if ts.IsZero() {
		ts = time.Unix(0, 0).UTC()
	}
	h := func(key string) event.Header {
		return event.Header{Key: "genesis:" + key, CallerID: admin, Timestamp: ts}
	}

	cmds := []event.Event{
		&event.InitializeProtocol{Header: h("protocol"), Treasury: uuid.MustParse(g.Treasury)},
	}
	for _, c := range g.Collateral {
		cmds = append(cmds, &event.RegisterCollateral{
			Header:                  h("collateral:" + c.Asset),
			Asset:                   c.Asset,
			Oracle:                  c.Oracle,
			MaxLTVBps:               c.MaxLTVBps,
			LiquidationThresholdBps: c.LiquidationThresholdBps,
			LiquidationBonusBps:     c.LiquidationBonusBps,
			Decimals:                c.Decimals,
		})
	}
	for _, b := range g.Borrowable {
		cmds = append(cmds, &event.RegisterBorrowable{
			Header:          h("borrowable:" + b.Asset),
			Asset:           b.Asset,
			Oracle:          b.Oracle,
			Decimals:        b.Decimals,
			Rates:           b.Rates,
			InsuranceFeeBps: b.InsuranceFeeBps,
			FlashLoanFeeBps: b.FlashLoanFeeBps,
		})
	}
	for _, p := range g.Prices {
		cmds = append(cmds, &event.InitializePriceFeed{
			Header:   h("price:" + p.Asset),
			Asset:    p.Asset,
			PriceUSD: p.PriceUSD,
		})
	}
	return cmds
}
