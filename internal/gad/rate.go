// Package gad implements Gradual Auto-Deleveraging: permissionless cranks
// that sell a time-proportional slice of an over-leveraged position's
// collateral to retire its debt.
package gad

import (
	"fmt"

	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"
)

// Params configures the GAD engine.
type Params struct {
	MinCrankIntervalSeconds int64 `toml:"min_crank_interval_seconds" json:"min_crank_interval_seconds"`
	CrankerRewardBps        int64 `toml:"cranker_reward_bps" json:"cranker_reward_bps"`
	MaxRateBpsPerDay        int64 `toml:"max_rate_bps_per_day" json:"max_rate_bps_per_day"`
	// MaxCrankWindowSeconds caps the elapsed time one crank may act on.
	MaxCrankWindowSeconds int64 `toml:"max_crank_window_seconds" json:"max_crank_window_seconds"`
}

func DefaultParams() Params {
	return Params{
		MinCrankIntervalSeconds: 3_600,
		CrankerRewardBps:        50,
		MaxRateBpsPerDay:        1_000,
		MaxCrankWindowSeconds:   state.SecondsPerDay,
	}
}

func (p Params) Validate() error {
	if p.MinCrankIntervalSeconds <= 0 {
		return fmt.Errorf("%w: min_crank_interval_seconds must be > 0", state.ErrInvalidConfig)
	}
	if p.CrankerRewardBps < 0 || p.CrankerRewardBps >= fpmath.BpsDenominator {
		return fmt.Errorf("%w: cranker_reward_bps must be in [0, 10000)", state.ErrInvalidConfig)
	}
	if p.MaxRateBpsPerDay <= 0 || p.MaxRateBpsPerDay > fpmath.BpsDenominator {
		return fmt.Errorf("%w: max_rate_bps_per_day must be in (0, 10000]", state.ErrInvalidConfig)
	}
	if p.MaxCrankWindowSeconds < p.MinCrankIntervalSeconds {
		return fmt.Errorf("%w: max_crank_window_seconds below min interval", state.ErrInvalidConfig)
	}
	return nil
}

// rateDivisor shapes the quadratic curve: excess^2/100.
const rateDivisor int64 = 100

// RateBpsPerDay is min(maxRate, excess^2/100) where excess is the LTV above
// maxLTV in bps. It is zero for a healthy position.
func RateBpsPerDay(currentLTVBps, maxLTVBps, maxRate int64) int64 {
	excess := currentLTVBps - maxLTVBps
	if excess <= 0 {
		return 0
	}
	rate, err := fpmath.MulDiv(excess, excess, rateDivisor, fpmath.RoundDown)
	if err != nil || rate > maxRate {
		return maxRate
	}
	return rate
}

// Status is the reporting state of a position. The rate, not the status,
// drives deleveraging.
type Status int32

const (
	StatusHealthy Status = iota
	StatusDeleveraging
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "Healthy"
	case StatusDeleveraging:
		return "Deleveraging"
	default:
		return "Unknown"
	}
}

// StatusOf classifies a valuation.
func StatusOf(v *state.Valuation) Status {
	if v.Healthy() {
		return StatusHealthy
	}
	return StatusDeleveraging
}
