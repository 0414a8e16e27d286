// Package fixp implements the Q16.16 fixed-point arithmetic used by the
// lumen target. The compiler's constant evaluator and the VM both call into
// this package, so compile-time folding and runtime execution produce the
// same bits for the same operation.
package fixp

import "math"

const (
	// FracBits is the number of fractional bits in a Q16.16 word.
	FracBits = 16

	// One is the fixed-point representation of 1.0.
	One int32 = 1 << FracBits
)

// FromInt converts a signed integer to fixed point. Values outside the
// representable +/-32767 range wrap, matching the hardware shift.
func FromInt(i int32) int32 { return i << FracBits }

// FromUint converts an unsigned integer to fixed point, wrapping like FromInt.
func FromUint(u uint32) int32 { return int32(u << FracBits) }

// FromFloat rounds a float64 to the nearest representable fixed-point value.
// It is used only at the source boundary (literals, test expectations); no
// runtime arithmetic goes through float64.
func FromFloat(f float64) int32 {
	return int32(int64(math.Round(f * float64(One))))
}

// Float converts a fixed-point value to float64 for display.
func Float(x int32) float64 { return float64(x) / float64(One) }

// ToInt truncates toward zero, the conversion the float->int constructor uses.
func ToInt(x int32) int32 {
	if x < 0 {
		return -((-x) >> FracBits)
	}
	return x >> FracBits
}

// ToUint truncates toward zero and reinterprets the result as unsigned.
func ToUint(x int32) uint32 { return uint32(ToInt(x)) }

// Mul multiplies two fixed-point values with a full 64-bit intermediate.
func Mul(a, b int32) int32 {
	return int32((int64(a) * int64(b)) >> FracBits)
}

// Div divides two fixed-point values. Division by zero yields zero: the
// language leaves it undefined and the hardware quietly produces 0.
func Div(a, b int32) int32 {
	if b == 0 {
		return 0
	}
	return int32((int64(a) << FracBits) / int64(b))
}

// Floor rounds toward negative infinity by masking the fractional bits.
func Floor(x int32) int32 { return x &^ (One - 1) }

// Fract returns x - Floor(x), always in [0, 1).
func Fract(x int32) int32 { return x & (One - 1) }

// Sqrt computes the square root of a non-negative fixed-point value using
// a binary integer square root over the widened radicand. Negative inputs
// are undefined in the language; this returns 0 for them.
func Sqrt(x int32) int32 {
	if x <= 0 {
		return 0
	}
	// sqrt(x / 2^16) * 2^16 == isqrt(x * 2^16)
	n := uint64(uint32(x)) << FracBits
	var root uint64
	bit := uint64(1) << 62
	for bit > n {
		bit >>= 2
	}
	for bit != 0 {
		if n >= root+bit {
			n -= root + bit
			root = root>>1 + bit
		} else {
			root >>= 1
		}
		bit >>= 2
	}
	return int32(root)
}
