package finance

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// BasisPointsDenominator is the parts-per-10000 scale used for every
// percentage in the protocol.
const BasisPointsDenominator = 10000

// BasisPoints is a fraction in parts per 10000. Valid range is [0, 10000].
type BasisPoints int64

// Validate rejects values outside [0, 10000].
func (b BasisPoints) Validate() error {
	if b < 0 || b > BasisPointsDenominator {
		return faults.New(faults.CodeInvalidBasisPoints, "%d outside [0, %d]", int64(b), BasisPointsDenominator)
	}
	return nil
}

// ApplyBasisPoints returns amount*bps/10000 truncated toward zero.
func ApplyBasisPoints(amount int64, bps BasisPoints) (int64, error) {
	if err := bps.Validate(); err != nil {
		return 0, err
	}
	return MulDiv(amount, int64(bps), BasisPointsDenominator)
}

// SplitFee divides amount into the net payout and the fee at feeBps.
// fee is floored, so net + fee == amount always holds.
func SplitFee(amount int64, feeBps BasisPoints) (net, fee int64, err error) {
	if amount < 0 {
		return 0, 0, faults.New(faults.CodeNonPositiveAmount, "amount %d is negative", amount)
	}
	fee, err = ApplyBasisPoints(amount, feeBps)
	if err != nil {
		return 0, 0, err
	}
	return amount - fee, fee, nil
}

// MulDiv computes a*b/d for non-negative a, b and positive d without
// intermediate overflow, truncating toward zero.
func MulDiv(a, b, d int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("muldiv: negative operand (%d, %d)", a, b)
	}
	if d <= 0 {
		return 0, fmt.Errorf("muldiv: non-positive divisor %d", d)
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(d) {
		return 0, fmt.Errorf("muldiv: result overflows (%d * %d / %d)", a, b, d)
	}
	q, _ := bits.Div64(hi, lo, uint64(d))
	if q > math.MaxInt64 {
		return 0, fmt.Errorf("muldiv: result overflows (%d * %d / %d)", a, b, d)
	}
	return int64(q), nil
}
