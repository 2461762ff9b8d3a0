package math

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// USDConfig is the canonical valuation unit: 1 USD = 1_000_000.
	USDConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}
)

// BpsDenominator is 100% in basis points.
const BpsDenominator int64 = 10_000

var (
	ErrOverflow       = errors.New("math: arithmetic overflow")
	ErrDivisionByZero = errors.New("math: division by zero")
	ErrNegative       = errors.New("math: negative operand")
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundDown     RoundingMode = iota // Truncate toward zero (default for valuations)
	RoundUp                           // Away from zero
	RoundHalfEven                     // Banker's rounding
)

// MulDiv computes a * b / denominator with a 128-bit intermediate.
// The result must fit in int64, otherwise ErrOverflow is returned.
func MulDiv(a, b, denominator int64, mode RoundingMode) (int64, error) {
	if denominator == 0 {
		return 0, ErrDivisionByZero
	}
	num := getInt128()
	defer putInt128(num)
	num.SetInt64(a)
	tmp := getInt128()
	defer putInt128(tmp)
	num.Mul(num, tmp.SetInt64(b))
	return divide(num, denominator, mode)
}

// MulMulDiv computes a * b * c / denominator. Used where a rate is applied
// over a time fraction, e.g. amount * bpsPerDay * elapsed / (10000 * 86400).
func MulMulDiv(a, b, c, denominator int64, mode RoundingMode) (int64, error) {
	if denominator == 0 {
		return 0, ErrDivisionByZero
	}
	num := getInt128()
	defer putInt128(num)
	tmp := getInt128()
	defer putInt128(tmp)
	num.SetInt64(a)
	num.Mul(num, tmp.SetInt64(b))
	num.Mul(num, tmp.SetInt64(c))
	return divide(num, denominator, mode)
}

func divide(numerator *big.Int, denominator int64, mode RoundingMode) (int64, error) {
	denom := getInt128()
	defer putInt128(denom)
	denom.SetInt64(denominator)

	quotient := getInt128()
	defer putInt128(quotient)
	remainder := getInt128()
	defer putInt128(remainder)

	// QuoRem truncates toward zero, which is the RoundDown contract.
	quotient.QuoRem(numerator, denom, remainder)

	if remainder.Sign() != 0 {
		negative := (numerator.Sign() < 0) != (denominator < 0)
		switch mode {
		case RoundUp:
			if negative {
				quotient.Sub(quotient, big.NewInt(1))
			} else {
				quotient.Add(quotient, big.NewInt(1))
			}
		case RoundHalfEven:
			twice := getInt128()
			twice.Abs(remainder)
			twice.Lsh(twice, 1)
			absDenom := getInt128()
			absDenom.Abs(denom)
			cmp := twice.Cmp(absDenom)
			putInt128(twice)
			putInt128(absDenom)
			if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
				if negative {
					quotient.Sub(quotient, big.NewInt(1))
				} else {
					quotient.Add(quotient, big.NewInt(1))
				}
			}
		}
	}

	if !quotient.IsInt64() {
		return 0, ErrOverflow
	}
	return quotient.Int64(), nil
}

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// CheckedSub returns a - b or ErrOverflow.
func CheckedSub(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// CheckedMul returns a * b or ErrOverflow.
func CheckedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrOverflow
	}
	return c, nil
}

// SaturatingSub returns max(a-b, 0) for non-negative operands.
func SaturatingSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}

// Min64 returns the smaller of a and b.
func Min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Max64 returns the larger of a and b.
func Max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Pow10 returns 10^n for 0 <= n <= 18.
func Pow10(n int) (int64, error) {
	if n < 0 || n > 18 {
		return 0, ErrOverflow
	}
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v, nil
}

// ApplyBps returns amount * bps / 10000, truncated.
func ApplyBps(amount, bps int64) (int64, error) {
	return MulDiv(amount, bps, BpsDenominator, RoundDown)
}

// RatioBps returns numerator * 10000 / denominator, truncated.
func RatioBps(numerator, denominator int64) (int64, error) {
	return MulDiv(numerator, BpsDenominator, denominator, RoundDown)
}

// TokenToUSD converts a token amount in base units into 6-decimal USD at
// the given 6-decimal price. Truncates so collateral is never overvalued.
func TokenToUSD(amount, priceUSD int64, decimals int) (int64, error) {
	if amount < 0 || priceUSD < 0 {
		return 0, ErrNegative
	}
	scale, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(amount, priceUSD, scale, RoundDown)
}

// TokenToUSDUp is TokenToUSD rounded up, used when valuing debt.
func TokenToUSDUp(amount, priceUSD int64, decimals int) (int64, error) {
	if amount < 0 || priceUSD < 0 {
		return 0, ErrNegative
	}
	scale, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(amount, priceUSD, scale, RoundUp)
}

// USDToToken converts a 6-decimal USD value into token base units at the
// given price, truncated.
func USDToToken(usd, priceUSD int64, decimals int) (int64, error) {
	if usd < 0 || priceUSD < 0 {
		return 0, ErrNegative
	}
	if priceUSD == 0 {
		return 0, ErrDivisionByZero
	}
	scale, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(usd, scale, priceUSD, RoundDown)
}
