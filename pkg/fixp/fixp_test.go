package fixp

import (
	"math"
	"testing"
)

func TestConversions(t *testing.T) {
	if FromInt(1) != One {
		t.Errorf("FromInt(1) = %d, want %d", FromInt(1), One)
	}
	if FromInt(-3) != -3*One {
		t.Errorf("FromInt(-3) = %d, want %d", FromInt(-3), -3*One)
	}
	if ToInt(FromFloat(2.75)) != 2 {
		t.Errorf("ToInt(2.75) = %d, want 2", ToInt(FromFloat(2.75)))
	}
	if ToInt(FromFloat(-2.75)) != -2 {
		t.Errorf("ToInt(-2.75) = %d, want -2 (truncate toward zero)", ToInt(FromFloat(-2.75)))
	}
	if FromUint(7) != 7*One {
		t.Errorf("FromUint(7) = %d", FromUint(7))
	}
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		a, b, mul, div float64
	}{
		{6, 7, 42, 6.0 / 7.0},
		{-1.5, 2, -3, -0.75},
		{0.5, 0.5, 0.25, 1},
	}
	for _, tt := range tests {
		a, b := FromFloat(tt.a), FromFloat(tt.b)
		if got := Float(Mul(a, b)); math.Abs(got-tt.mul) > 1e-4 {
			t.Errorf("Mul(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.mul)
		}
		if got := Float(Div(a, b)); math.Abs(got-tt.div) > 1e-4 {
			t.Errorf("Div(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.div)
		}
	}
}

func TestDivByZero(t *testing.T) {
	// Undefined in the language; the implementation pins it to zero so the
	// host never faults.
	if Div(FromInt(5), 0) != 0 {
		t.Errorf("Div by zero should yield 0, got %d", Div(FromInt(5), 0))
	}
}

func TestFloorFract(t *testing.T) {
	x := FromFloat(2.75)
	if Floor(x) != FromInt(2) {
		t.Errorf("Floor(2.75) = %v", Float(Floor(x)))
	}
	if Fract(x) != FromFloat(0.75) {
		t.Errorf("Fract(2.75) = %v", Float(Fract(x)))
	}
	n := FromFloat(-0.25)
	if Floor(n) != FromInt(-1) {
		t.Errorf("Floor(-0.25) = %v, want -1", Float(Floor(n)))
	}
	if Fract(n) != FromFloat(0.75) {
		t.Errorf("Fract(-0.25) = %v, want 0.75", Float(Fract(n)))
	}
}

func TestSqrt(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{1, 1},
		{4, 2},
		{2, math.Sqrt2},
		{0.25, 0.5},
	}
	for _, tt := range tests {
		got := Float(Sqrt(FromFloat(tt.in)))
		if math.Abs(got-tt.want) > 1e-4 {
			t.Errorf("Sqrt(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Sqrt(FromInt(-4)) != 0 {
		t.Errorf("Sqrt of negative should yield 0")
	}
}
