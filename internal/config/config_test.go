package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"LendLedger/internal/config"
	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/state"

	"github.com/stretchr/testify/require"
)

const sample = `
[core]
swap_slippage_bps = 50

[gad]
min_crank_interval_seconds = 600
cranker_reward_bps = 50
max_rate_bps_per_day = 1000
max_crank_window_seconds = 86400

[genesis]
admin = "6f0d3c1e-8d9b-4c1a-9a0e-1b2c3d4e5f60"
treasury = "0b1c2d3e-4f50-4a61-8b72-93a4b5c6d7e8"
timestamp = 2024-01-01T00:00:00Z

[[genesis.collateral]]
asset = "SOL"
oracle = "pyth:SOL/USD"
max_ltv_bps = 7500
liquidation_threshold_bps = 8500
liquidation_bonus_bps = 500
decimals = 9

[[genesis.borrowable]]
asset = "USDC"
oracle = "pyth:USDC/USD"
decimals = 6

  [genesis.borrowable.rates]
  base_rate_bps = 200
  slope1_bps = 600
  slope2_bps = 6000
  optimal_utilization_bps = 8000
  protocol_fee_bps = 1000

[[genesis.prices]]
asset = "SOL"
price_usd = 150000000

[[genesis.prices]]
asset = "USDC"
price_usd = 1000000
`

func TestParseOverridesDefaults(t *testing.T) {
	f, err := config.Parse(sample)
	require.NoError(t, err)

	cfg := f.CoreConfig()
	require.Equal(t, int64(50), cfg.SwapSlippageBps)
	require.Equal(t, int64(600), cfg.Gad.MinCrankIntervalSeconds)
	// Sections absent from the file keep their defaults.
	def := core.DefaultConfig()
	require.Equal(t, def.Oracle, cfg.Oracle)
	require.Equal(t, def.Leverage, cfg.Leverage)
	require.Equal(t, def.IdempotencyCapacity, cfg.IdempotencyCapacity)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := config.Parse("[gad]\nmin_crank_interval = 10\n")
	require.Error(t, err)
	require.True(t, errors.Is(err, state.ErrInvalidConfig))
	require.Contains(t, err.Error(), "gad.min_crank_interval")
}

func TestParseRejectsBadRiskParams(t *testing.T) {
	doc := `
[genesis]
admin = "6f0d3c1e-8d9b-4c1a-9a0e-1b2c3d4e5f60"
treasury = "0b1c2d3e-4f50-4a61-8b72-93a4b5c6d7e8"

[[genesis.collateral]]
asset = "SOL"
max_ltv_bps = 9000
liquidation_threshold_bps = 8500
decimals = 9

[[genesis.prices]]
asset = "EURC"
price_usd = 1080000
`
	_, err := config.Parse(doc)
	require.Error(t, err)
	require.True(t, errors.Is(err, state.ErrInvalidConfig))
	require.Contains(t, err.Error(), "collateral SOL")
	require.Contains(t, err.Error(), "unlisted asset EURC")
}

func TestGenesisCommandsOrder(t *testing.T) {
	f, err := config.Parse(sample)
	require.NoError(t, err)

	cmds := f.GenesisCommands()
	require.Len(t, cmds, 5)
	want := []event.EventType{
		event.EventTypeInitializeProtocol,
		event.EventTypeRegisterCollateral,
		event.EventTypeRegisterBorrowable,
		event.EventTypeInitializePriceFeed,
		event.EventTypeInitializePriceFeed,
	}
	for i, cmd := range cmds {
		require.Equal(t, want[i], cmd.EventType(), "command %d", i)
	}
	borrow := cmds[2].(*event.RegisterBorrowable)
	require.NotNil(t, borrow.Rates)
	require.Equal(t, int64(200), borrow.Rates.BaseRateBps)

	require.Nil(t, config.Default().GenesisCommands())
}

func TestGenesisAppliesToCore(t *testing.T) {
	f, err := config.Parse(sample)
	require.NoError(t, err)

	c, err := core.NewDeterministicCore(f.CoreConfig(), core.Outputs{}, nil, nil)
	require.NoError(t, err)
	for _, cmd := range f.GenesisCommands() {
		_, err := c.ProcessEvent(cmd)
		require.NoError(t, err, cmd.EventType().String())
	}
	require.True(t, c.Protocol().Initialized)
	require.Len(t, c.Feeds(), 2)

	// A second pass is absorbed by idempotency.
	for _, cmd := range f.GenesisCommands() {
		res, err := c.ProcessEvent(cmd)
		require.NoError(t, err)
		require.True(t, res.Duplicate)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lendledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, f.Genesis.Collateral, 1)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
