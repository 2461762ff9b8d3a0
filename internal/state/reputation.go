package state

import fpmath "LendLedger/internal/math"

// Reputation is the repayment history that earns an LTV bonus.
type Reputation struct {
	SuccessfulRepayments uint32
	TotalRepaidUSD       int64
	GadEvents            uint32
	AccountAgeDays       uint32
}

// Score returns
//
//	min(repayments*50, 500) + min(age_days/30*10, 100) - gad_events*100
//
// saturating at zero.
func (r Reputation) Score() int64 {
	repay := fpmath.Min64(int64(r.SuccessfulRepayments)*RepaymentPoints, MaxRepaymentPoints)
	age := fpmath.Min64(int64(r.AccountAgeDays)/30*AgePointsPer30Days, MaxAgePoints)
	penalty := int64(r.GadEvents) * GadEventPenalty
	return fpmath.SaturatingSub(repay+age, penalty)
}

// LTVBonusBps is the step function of Score applied to every borrow.
func (r Reputation) LTVBonusBps() int64 {
	score := r.Score()
	switch {
	case score >= ReputationTierHigh:
		return ReputationBonusHigh
	case score >= ReputationTierMid:
		return ReputationBonusMid
	case score >= ReputationTierLow:
		return ReputationBonusLow
	default:
		return 0
	}
}

// RecordRepayment bumps the repayment counters.
func (r *Reputation) RecordRepayment(usd int64) {
	if r.SuccessfulRepayments < ^uint32(0) {
		r.SuccessfulRepayments++
	}
	if sum, err := fpmath.CheckedAdd(r.TotalRepaidUSD, usd); err == nil {
		r.TotalRepaidUSD = sum
	}
}

func (r *Reputation) RecordGadEvent() {
	if r.GadEvents < ^uint32(0) {
		r.GadEvents++
	}
}

func (r Reputation) appendCanonical(buf []byte) []byte {
	buf = appendUint32LE(buf, r.SuccessfulRepayments)
	buf = appendInt64LE(buf, r.TotalRepaidUSD)
	buf = appendUint32LE(buf, r.GadEvents)
	return appendUint32LE(buf, r.AccountAgeDays)
}
