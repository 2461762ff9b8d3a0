package state

const (
	MaxCollateralTypes = 8
	MaxBorrowTypes     = 4

	DefaultMaxLTVBps       int64 = 7500
	DefaultInsuranceFeeBps int64 = 500
	DefaultFlashLoanFeeBps int64 = 5

	SecondsPerDay int64 = 86_400

	// Reputation scoring.
	RepaymentPoints     int64 = 50
	MaxRepaymentPoints  int64 = 500
	AgePointsPer30Days  int64 = 10
	MaxAgePoints        int64 = 100
	GadEventPenalty     int64 = 100
	ReputationTierHigh  int64 = 400
	ReputationTierMid   int64 = 200
	ReputationTierLow   int64 = 100
	ReputationBonusHigh int64 = 500
	ReputationBonusMid  int64 = 300
	ReputationBonusLow  int64 = 100
)
