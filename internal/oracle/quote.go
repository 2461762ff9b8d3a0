package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"

	fpmath "LendLedger/internal/math"
)

var (
	ErrStalePrice    = errors.New("oracle: stale price")
	ErrInvalidOracle = errors.New("oracle: invalid oracle data")
	ErrNoPriceFeed   = errors.New("oracle: no price feed for asset")
)

// Quote is a raw price publication: price and confidence share the
// exponent expo, i.e. value = price * 10^expo.
type Quote struct {
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime int64 // unix seconds
}

// ToUSD6 converts the quote price into 6-decimal USD, truncating.
// Non-positive prices convert to zero.
func (q Quote) ToUSD6() (int64, error) {
	if q.Price <= 0 {
		return 0, nil
	}
	return scaleToUSD6(q.Price, q.Expo)
}

// ConfUSD6 converts the confidence interval to 6-decimal USD.
func (q Quote) ConfUSD6() (int64, error) {
	if q.Conf > uint64(1<<63-1) {
		return 0, fpmath.ErrOverflow
	}
	return scaleToUSD6(int64(q.Conf), q.Expo)
}

// ConfidenceBps returns conf/price in basis points; 10000 when the price is
// not positive.
func (q Quote) ConfidenceBps() int64 {
	if q.Price <= 0 {
		return fpmath.BpsDenominator
	}
	if q.Conf > uint64(1<<63-1) {
		return fpmath.BpsDenominator
	}
	bps, err := fpmath.RatioBps(int64(q.Conf), q.Price)
	if err != nil {
		return fpmath.BpsDenominator
	}
	return bps
}

// IsStale reports whether the quote is older than maxAge seconds at now.
func (q Quote) IsStale(now, maxAge int64) bool {
	return now-q.PublishTime > maxAge
}

func scaleToUSD6(v int64, expo int32) (int64, error) {
	adjustment := 6 + int(expo)
	if adjustment >= 0 {
		scale, err := fpmath.Pow10(adjustment)
		if err != nil {
			return 0, err
		}
		return fpmath.CheckedMul(v, scale)
	}
	scale, err := fpmath.Pow10(-adjustment)
	if err != nil {
		// Divisor exceeds any int64 value.
		return 0, nil
	}
	return v / scale, nil
}

// Raw price-account layout. Offsets are little-endian.
const (
	accountMinLen  = 240
	offPrice       = 208
	offConf        = 216
	offExpo        = 224
	offPublishTime = 232
)

// DecodeAccount parses a raw oracle price account into a Quote.
func DecodeAccount(data []byte) (Quote, error) {
	if len(data) < accountMinLen {
		return Quote{}, fmt.Errorf("%w: account is %d bytes, need %d", ErrInvalidOracle, len(data), accountMinLen)
	}
	return Quote{
		Price:       int64(binary.LittleEndian.Uint64(data[offPrice : offPrice+8])),
		Conf:        binary.LittleEndian.Uint64(data[offConf : offConf+8]),
		Expo:        int32(binary.LittleEndian.Uint32(data[offExpo : offExpo+4])),
		PublishTime: int64(binary.LittleEndian.Uint64(data[offPublishTime : offPublishTime+8])),
	}, nil
}

// EncodeAccount writes q into a zeroed account buffer using the layout
// DecodeAccount reads. Used by feed simulators and tests.
func EncodeAccount(q Quote) []byte {
	data := make([]byte, accountMinLen)
	binary.LittleEndian.PutUint64(data[offPrice:], uint64(q.Price))
	binary.LittleEndian.PutUint64(data[offConf:], q.Conf)
	binary.LittleEndian.PutUint32(data[offExpo:], uint32(q.Expo))
	binary.LittleEndian.PutUint64(data[offPublishTime:], uint64(q.PublishTime))
	return data
}
