package state

import (
	"errors"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/oracle"
)

// Domain errors. Callers match them with errors.Is; wrapping adds context.
var (
	ErrInvalidAmount             = errors.New("lending: invalid amount")
	ErrExceedsLTV                = errors.New("lending: exceeds maximum loan-to-value")
	ErrInsufficientCollateral    = errors.New("lending: insufficient collateral")
	ErrInsufficientLiquidity     = errors.New("lending: insufficient pool liquidity")
	ErrAssetNotSupported         = errors.New("lending: asset not supported")
	ErrAssetNotActive            = errors.New("lending: asset not active")
	ErrPositionNotFound          = errors.New("lending: position not found")
	ErrGadDisabled               = errors.New("lending: gad disabled for position")
	ErrNoDebtToDeleverage        = errors.New("lending: no debt to deleverage")
	ErrLtvBelowGadThreshold      = errors.New("lending: ltv below gad threshold")
	ErrCrankTooSoon              = errors.New("lending: gad crank too soon")
	ErrNothingToLiquidate        = errors.New("lending: nothing to liquidate")
	ErrBelowCollateralFloor      = errors.New("lending: below collateral floor")
	ErrInvalidConfig             = errors.New("lending: invalid configuration")
	ErrNoLpShares                = errors.New("lending: no lp shares")
	ErrProtocolPaused            = errors.New("lending: protocol paused")
	ErrUnauthorized              = errors.New("lending: unauthorized")
	ErrSlippageExceeded          = errors.New("lending: slippage exceeded")
	ErrMaxCollateralTypesReached = errors.New("lending: max collateral types reached")
	ErrMaxBorrowTypesReached     = errors.New("lending: max borrow types reached")
	ErrFlashLoanNotRepaid        = errors.New("lending: flash loan not repaid")
	ErrLeverageNotFound          = errors.New("lending: leverage position not found")
	ErrLeverageInactive          = errors.New("lending: leverage position inactive")
	ErrInvalidCommand            = errors.New("lending: invalid command")
	ErrSequenceGap               = errors.New("lending: source sequence gap")
	ErrOutOfOrder                = errors.New("lending: out-of-order source sequence")
	ErrClockRegression           = errors.New("lending: command timestamp before last committed")

	// Re-exported from the packages that raise them.
	ErrMathOverflow      = fpmath.ErrOverflow
	ErrStalePrice        = oracle.ErrStalePrice
	ErrInvalidOracle     = oracle.ErrInvalidOracle
	ErrNoPriceFeed       = oracle.ErrNoPriceFeed
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
)

// ErrorClass groups domain errors by how a transport should report them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassInvalidArgument
	ClassFailedPrecondition
	ClassNotFound
	ClassPermissionDenied
	ClassUnavailable
)

func (c ErrorClass) String() string {
	switch c {
	case ClassInvalidArgument:
		return "invalid_argument"
	case ClassFailedPrecondition:
		return "failed_precondition"
	case ClassNotFound:
		return "not_found"
	case ClassPermissionDenied:
		return "permission_denied"
	case ClassUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

var classes = []struct {
	err   error
	class ErrorClass
}{
	{ErrInvalidAmount, ClassInvalidArgument},
	{ErrInvalidConfig, ClassInvalidArgument},
	{ErrInvalidCommand, ClassInvalidArgument},
	{ErrAssetNotSupported, ClassInvalidArgument},
	{fpmath.ErrNegative, ClassInvalidArgument},
	{ErrPositionNotFound, ClassNotFound},
	{ErrLeverageNotFound, ClassNotFound},
	{ErrNoPriceFeed, ClassNotFound},
	{ErrUnauthorized, ClassPermissionDenied},
	{ErrProtocolPaused, ClassUnavailable},
	{ErrStalePrice, ClassUnavailable},
	{ErrInvalidOracle, ClassUnavailable},
	{ErrExceedsLTV, ClassFailedPrecondition},
	{ErrInsufficientCollateral, ClassFailedPrecondition},
	{ErrInsufficientLiquidity, ClassFailedPrecondition},
	{ErrInsufficientFunds, ClassFailedPrecondition},
	{ErrAssetNotActive, ClassFailedPrecondition},
	{ErrGadDisabled, ClassFailedPrecondition},
	{ErrNoDebtToDeleverage, ClassFailedPrecondition},
	{ErrLtvBelowGadThreshold, ClassFailedPrecondition},
	{ErrCrankTooSoon, ClassFailedPrecondition},
	{ErrNothingToLiquidate, ClassFailedPrecondition},
	{ErrBelowCollateralFloor, ClassFailedPrecondition},
	{ErrNoLpShares, ClassFailedPrecondition},
	{ErrSlippageExceeded, ClassFailedPrecondition},
	{ErrMaxCollateralTypesReached, ClassFailedPrecondition},
	{ErrMaxBorrowTypesReached, ClassFailedPrecondition},
	{ErrFlashLoanNotRepaid, ClassFailedPrecondition},
	{ErrLeverageInactive, ClassFailedPrecondition},
	{ErrSequenceGap, ClassFailedPrecondition},
	{ErrOutOfOrder, ClassFailedPrecondition},
	{ErrClockRegression, ClassFailedPrecondition},
}

// Classify maps err onto an ErrorClass. Unknown errors, including math
// overflow, are internal.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassInternal
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassInternal
}
