package shader

import (
	"testing"

	"lumen/pkg/fixp"
)

// evalConst analyzes src as the initializer of a const global and returns
// the folded value.
func evalConst(t *testing.T, typ, expr string) *Value {
	t.Helper()
	src := "const " + typ + " K = " + expr + ";\nvoid main() {}"
	tab := wantClean(t, src)
	if tab == nil {
		t.Fatalf("analysis failed for %s", expr)
	}
	id, ok := tab.Resolve(GlobalScope, "K")
	if !ok {
		t.Fatalf("K not declared for %s", expr)
	}
	s := tab.Sym(id)
	if s.Const == nil {
		t.Fatalf("%s did not fold", expr)
	}
	return s.Const
}

func TestEvalScalars(t *testing.T) {
	tests := []struct {
		typ, expr string
		want      int32
	}{
		{"int", "6 * 7", 42},
		{"int", "10 / 3", 3},
		{"int", "-10 / 3", -3},
		{"int", "10 % 3", 1},
		{"int", "1 << 4", 16},
		{"int", "-8 >> 1", -4},
		{"uint", "0x80000000u >> 1", 0x40000000},
		{"int", "0xF0 & 0x3C", 0x30},
		{"int", "5 | 2", 7},
		{"int", "5 ^ 1", 4},
		{"int", "~0", -1},
		{"float", "1.5 + 2.25", fixp.FromFloat(3.75)},
		{"float", "0.5 * 0.5", fixp.FromFloat(0.25)},
		{"float", "1.0 / 4.0", fixp.FromFloat(0.25)},
		{"float", "-2.5", fixp.FromFloat(-2.5)},
		{"bool", "1 < 2", 1},
		{"bool", "2.5 >= 2.5", 1},
		{"bool", "3u > 4u", 0},
		{"bool", "true && !false", 1},
		{"bool", "true ^^ true", 0},
		{"bool", "false ? true : false", 0},
		{"float", "float(3)", 3 << 16},
		{"float", "float(3u)", 3 << 16},
		{"int", "int(2.9)", 2},
		{"int", "int(-2.9)", -2},
		{"uint", "uint(7)", 7},
		{"uint", "uint(2.9)", 2},
		{"int", "true ? 4 : 5", 4},
	}
	for _, tt := range tests {
		v := evalConst(t, tt.typ, tt.expr)
		if v.Word() != tt.want {
			t.Errorf("%s = %d, want %d", tt.expr, v.Word(), tt.want)
		}
	}
}

func TestEvalBuiltins(t *testing.T) {
	tests := []struct {
		typ, expr string
		want      int32
	}{
		{"float", "abs(-2.5)", fixp.FromFloat(2.5)},
		{"int", "abs(-3)", 3},
		{"int", "min(4, 7)", 4},
		{"int", "max(4, 7)", 7},
		{"float", "min(1.5, -1.5)", fixp.FromFloat(-1.5)},
		{"float", "clamp(5.0, 0.0, 1.0)", fixp.One},
		{"float", "clamp(-5.0, 0.0, 1.0)", 0},
		{"float", "floor(2.75)", 2 << 16},
		{"float", "floor(-0.5)", -(1 << 16)},
		{"float", "fract(2.75)", fixp.FromFloat(0.75)},
		{"float", "sqrt(4.0)", 2 << 16},
		{"float", "mix(0.0, 10.0, 0.25)", fixp.FromFloat(2.5)},
		{"float", "step(1.0, 2.0)", fixp.One},
		{"float", "step(2.0, 1.0)", 0},
		{"float", "dot(vec2(1.0, 2.0), vec2(3.0, 4.0))", 11 << 16},
		{"bool", "any(bvec2(false, true))", 1},
		{"bool", "all(bvec2(false, true))", 0},
	}
	for _, tt := range tests {
		v := evalConst(t, tt.typ, tt.expr)
		if v.Word() != tt.want {
			t.Errorf("%s = %d, want %d", tt.expr, v.Word(), tt.want)
		}
	}
}

func TestEvalAggregates(t *testing.T) {
	v := evalConst(t, "vec3", "vec3(1.0, 2.0, 3.0) * 2.0")
	want := []int32{2 << 16, 4 << 16, 6 << 16}
	for i, w := range want {
		if v.Bits[i] != w {
			t.Errorf("component %d = %d, want %d", i, v.Bits[i], w)
		}
	}

	v = evalConst(t, "vec2", "mat2(1.0, 2.0, 3.0, 4.0) * vec2(1.0, 1.0)")
	if v.Bits[0] != 4<<16 || v.Bits[1] != 6<<16 {
		t.Errorf("mat2*vec2 = %v", v.Bits)
	}

	v = evalConst(t, "mat2", "mat2(2.0)")
	diag := []int32{2 << 16, 0, 0, 2 << 16}
	for i, w := range diag {
		if v.Bits[i] != w {
			t.Errorf("mat2(2.0)[%d] = %d, want %d", i, v.Bits[i], w)
		}
	}

	v = evalConst(t, "float", "vec4(1.0, 2.0, 3.0, 4.0).wzyx[3]")
	if v.Word() != 1<<16 {
		t.Errorf("swizzle+index = %d, want %d", v.Word(), 1<<16)
	}
}

func TestEvalDivByZeroNotFolded(t *testing.T) {
	// x/0 and INT_MIN/-1 stay runtime expressions, so a const initializer
	// using them cannot fold and is rejected.
	for _, src := range []string{
		"const int K = 1 / 0; void main() {}",
		"const int K = (-2147483647 - 1) / -1; void main() {}",
		"const int K = 1 % 0; void main() {}",
	} {
		_, err := analyzeSrc(t, src)
		if err == nil {
			t.Errorf("no error for %q", src)
			continue
		}
		if diags, ok := err.(DiagList); !ok || !diags.Has(ErrExpectedConstant) {
			t.Errorf("%q: got %v, want ErrExpectedConstant", src, err)
		}
	}
}

func TestEvalMatchesRuntime(t *testing.T) {
	// The same computation folded at compile time and run through the VM on
	// non-constant locals must agree bitwise.
	tests := []struct {
		typ, constExpr, body string
	}{
		{"float", "1.0 / 3.0", "float a = 1.0; float b = 3.0; return a / b;"},
		{"float", "sqrt(2.0)", "float x = 2.0; return sqrt(x);"},
		{"float", "0.1 * 0.1", "float x = 0.1; return x * x;"},
		{"float", "fract(-1.25)", "float x = -1.25; return fract(x);"},
		{"float", "floor(-1.25)", "float x = -1.25; return floor(x);"},
		{"float", "mix(1.0, 2.0, 0.3)", "float t = 0.3; return mix(1.0, 2.0, t);"},
		{"float", "step(0.5, 0.25)", "float x = 0.25; return step(0.5, x);"},
		{"float", "clamp(0.3, 0.1, 0.2)", "float x = 0.3; return clamp(x, 0.1, 0.2);"},
		{"int", "-7 / 2", "int a = -7; int b = 2; return a / b;"},
		{"int", "-7 % 2", "int a = -7; int b = 2; return a % b;"},
		{"uint", "3000000000u / 7u", "uint a = 3000000000u; uint b = 7u; return a / b;"},
		{"uint", "3000000000u >> 3", "uint a = 3000000000u; return a >> 3;"},
		{"int", "min(-3, 2)", "int a = -3; int b = 2; return min(a, b);"},
		{"float", "max(0.5, -0.5)", "float a = 0.5; float b = -0.5; return max(a, b);"},
		{"float", "abs(-0.75)", "float x = -0.75; return abs(x);"},
	}
	for _, tt := range tests {
		folded := evalConst(t, tt.typ, tt.constExpr).Word()
		got := runScalar(t, tt.typ+" probe() { "+tt.body+" }", "probe")
		if got != folded {
			t.Errorf("%s: runtime %d, folded %d", tt.constExpr, got, folded)
		}
	}
}
