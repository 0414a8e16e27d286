package shader

import (
	"fmt"
	"strings"
	"testing"
)

func analyzeSrc(t *testing.T, src string) (*Table, error) {
	t.Helper()
	toks, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	stmts, err := Parse(toks, src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return Analyze(stmts, src)
}

func wantDiag(t *testing.T, src string, code Code) {
	t.Helper()
	_, err := analyzeSrc(t, src)
	if err == nil {
		t.Errorf("no error for:\n%s", src)
		return
	}
	diags, ok := err.(DiagList)
	if !ok {
		t.Errorf("error is %T, want DiagList: %v", err, err)
		return
	}
	if !diags.Has(code) {
		t.Errorf("missing %v in diagnostics for:\n%s\ngot: %v", code, src, err)
	}
}

func wantClean(t *testing.T, src string) *Table {
	t.Helper()
	tab, err := analyzeSrc(t, src)
	if err != nil {
		t.Errorf("unexpected error for:\n%s\n%v", src, err)
	}
	return tab
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code Code
	}{
		{"undefined var", "void f() { x = 1; }", ErrUnresolvedIdentifier},
		{"undefined type", "void f() { Foo x; }", ErrUndefinedType},
		{"undefined func", "void f() { g(); }", ErrUnresolvedIdentifier},
		{"dup local", "void f() { int x; int x; }", ErrDuplicateDeclaration},
		{"param shadow", "void f(int x) { int x; }", ErrDuplicateDeclaration},
		{"dup member", "struct S { int a; int a; };", ErrDuplicateDeclaration},
		{"dup func", "void f() {} void f() {}", ErrDuplicateDeclaration},
		{"float to int", "void f() { int x = 1.5; }", ErrTypeMismatch},
		{"bool arith", "void f() { bool b = true; int x = b + 1; }", ErrTypeMismatch},
		{"mixed sign", "void f() { int a = 1; uint b = 2u; a = a + b; }", ErrTypeMismatch},
		{"vec size", "void f() { vec2 a = vec2(1.0); vec3 b = vec3(1.0); a = a + b; }", ErrTypeMismatch},
		{"ternary branches", "void f() { int x = true ? 1 : 1.5; }", ErrTypeMismatch},
		{"condition int", "void f() { if (1) {} }", ErrConditionMustBeBool},
		{"while cond", "void f() { while (1.0) {} }", ErrConditionMustBeBool},
		{"logical int", "void f() { bool b = 1 && 2; }", ErrTypeMismatch},
		{"assign literal", "void f() { int x; 1 = x; }", ErrRequiresLValue},
		{"assign const", "void f() { const int c = 1; c = 2; }", ErrAssignToReadOnly},
		{"assign uniform", "uniform float u; void f() { u = 1.0; }", ErrAssignToReadOnly},
		{"assign const param", "void f(const in float x) { x = 1.0; }", ErrAssignToReadOnly},
		{"inc literal", "void f() { 3++; }", ErrRequiresLValue},
		{"swizzle repeat write", "void f() { vec3 v; v.xx = vec2(1.0); }", ErrInvalidSwizzleAssignment},
		{"bad swizzle", "void f() { vec2 v; float x = v.z; }", ErrInvalidSwizzle},
		{"swizzle name", "void f() { vec3 v; float x = v.q; }", ErrInvalidSwizzle},
		{"no member", "struct S { int a; }; void f() { S s; int x = s.b; }", ErrUnresolvedIdentifier},
		{"const index oob", "void f() { vec3 v; float x = v[3]; }", ErrIndexOutOfRange},
		{"const array oob", "void f() { int a[2]; int x = a[2]; }", ErrIndexOutOfRange},
		{"negative index", "void f() { int a[2]; int x = a[-1]; }", ErrIndexOutOfRange},
		{"index float", "void f() { int a[2]; int x = a[0.5]; }", ErrTypeMismatch},
		{"no overload", "void f() { float x = dot(true, false); }", ErrNoMatchingOverload},
		{"bad ctor", "void f() { vec3 v = vec3(1.0, 2.0); }", ErrInvalidConstructor},
		{"struct ctor arity", "struct S { int a; int b; }; void f() { S s = S(1); }", ErrInvalidConstructor},
		{"recursion", "int f(int n) { return f(n); }", ErrStaticRecursion},
		{"mutual recursion", "int f(int n) { return g(n); } int g(int n) { return f(n); }", ErrStaticRecursion},
		{"main args", "void main(int x) {}", ErrInvalidMainSignature},
		{"main ret", "int main() { return 1; }", ErrInvalidMainSignature},
		{"break outside", "void f() { break; }", ErrBadJump},
		{"continue outside", "void f() { continue; }", ErrBadJump},
		{"return value from void", "void f() { return 1; }", ErrReturnType},
		{"missing return value", "int f() { return; }", ErrReturnType},
		{"return wrong type", "int f() { return 1.5; }", ErrReturnType},
		{"global needs const", "uniform int n; float a[2]; int b = n; void f() {}", ErrExpectedConstant},
		{"const needs init", "void f() { const int c; }", ErrExpectedConstant},
		{"array size not const", "void f(int n) { int a[n]; }", ErrInvalidArraySize},
		{"array size zero", "void f() { int a[0]; }", ErrInvalidArraySize},
		{"unsized without init", "void f() { int a[]; }", ErrInvalidArraySize},
		{"uniform in function", "void f() { uniform int x; }", ErrInvalidQualifier},
		{"const out param", "void f(const out int x) { x = 1; }", ErrInvalidQualifier},
		{"out arg not lvalue", "void f(out int x) { x = 1; } void g() { f(3); }", ErrRequiresLValue},
		{"out arg const", "void f(out int x) { x = 1; } void g() { const int c = 1; f(c); }", ErrAssignToReadOnly},
		{"shift vec size", "void f() { ivec2 a; ivec3 b; a = a << b; }", ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantDiag(t, tt.src, tt.code)
		})
	}
}

func TestAnalyzeForwardCalls(t *testing.T) {
	// Calls to functions declared later in the file resolve; only actual
	// cycles are rejected.
	wantClean(t, `
float first() { return second() + 1.0; }
float second() { return 2.0; }
`)
}

func TestAnalyzeDeepCallChain(t *testing.T) {
	// A long acyclic chain is fine; only cycles are recursion errors.
	const depth = 400
	var sb strings.Builder
	fmt.Fprintf(&sb, "int f%d() { return 1; }\n", depth)
	for i := depth - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "int f%d() { return f%d() + 1; }\n", i, i+1)
	}
	sb.WriteString("void main() {}\n")
	wantClean(t, sb.String())
}

func TestAnalyzeAccepts(t *testing.T) {
	srcs := []string{
		"void main() {}",
		"int f() { return 1 + 2; }",
		"float f() { int n = 3; return float(n); }",
		"float f() { return 1 + 2.0; }",
		"float f() { uint u = 3u; return u + 0.5; }",
		"void f() { vec3 v = vec3(1.0, 2.0, 3.0); v.xy = v.yx; }",
		"void f() { for (int i = 0; i < 4; i++) { if (i == 2) break; } }",
		"struct S { vec2 p; float w; }; float f() { S s = S(vec2(0.0), 2.0); return s.w; }",
		"const int N = 3; void f() { float a[N]; a[N - 1] = 1.0; }",
		"float f() { float a[] = float[](1.0, 2.0); return a[1]; }",
		"void f() { mat3 m = mat3(1.0); vec3 v = m * vec3(1.0); }",
		"int f() { int a[4]; return a.length(); }",
		"void f(out float x) { x = 1.0; } void g() { float v; f(v); }",
		"float abs(float x) { return 0.0; } float f() { return abs(-2.0); }",
	}
	for _, src := range srcs {
		wantClean(t, src)
	}
}

func TestAnalyzeImplicitConversionInserted(t *testing.T) {
	src := "float f(float x) { return 1 + x; }"
	toks, _ := Lex(src)
	stmts, _ := Parse(toks, src)
	if _, err := Analyze(stmts, src); err != nil {
		t.Fatal(err)
	}
	ret := stmts[0].(*FuncDecl).Body.Stmts[0].(*Return)
	bin := ret.X.(*Binary)
	conv, ok := bin.L.(*Convert)
	if !ok {
		t.Fatalf("left operand is %T, want *Convert", bin.L)
	}
	if !conv.Info().T.Equal(TypeFloat) {
		t.Errorf("conversion target = %s, want float", conv.Info().T)
	}
	if !bin.Info().T.Equal(TypeFloat) {
		t.Errorf("1 + x has type %s, want float", bin.Info().T)
	}
}

func TestAnalyzeOverloadPicksExact(t *testing.T) {
	src := `
int pick(int x) { return 1; }
int pick(float x) { return 2; }
int f() { return pick(3); }
`
	toks, _ := Lex(src)
	stmts, _ := Parse(toks, src)
	tab, err := Analyze(stmts, src)
	if err != nil {
		t.Fatal(err)
	}
	// The call in f resolves to the int overload.
	fn := stmts[2].(*FuncDecl)
	ret := fn.Body.Stmts[0].(*Return)
	call := ret.X.(*Call)
	if call.Fn == nil || !call.Fn.Params[0].Type.Equal(TypeInt) {
		t.Errorf("pick(3) resolved to %v", call.Fn)
	}
	_ = tab
}

func TestAnalyzeAmbiguousCall(t *testing.T) {
	// int argument converts equally well to either float parameter slot.
	wantDiag(t, `
float amb(float a, int b) { return a; }
float amb(int a, float b) { return b; }
void f() { amb(1, 2); }
`, ErrAmbiguousCall)
}

func TestTableDumpListsFunctions(t *testing.T) {
	src := `
uniform float u_gain;
float amp(float x) { return x * u_gain; }
int amp(int x) { return x; }
void main() {}
`
	tab := wantClean(t, src)
	if tab == nil {
		t.Fatal("analysis failed")
	}
	dump := tab.String()
	for _, want := range []string{"u_gain", "float amp(float)", "int amp(int)", "void main()"} {
		if !strings.Contains(dump, want) {
			t.Errorf("table dump missing %q:\n%s", want, dump)
		}
	}
}

func TestAnalyzeGlobalConstFolds(t *testing.T) {
	tab := wantClean(t, "const float K = 2.0 * 3.0; void f() {}")
	if tab == nil {
		t.Fatal("no table")
	}
	id, ok := tab.Resolve(GlobalScope, "K")
	if !ok {
		t.Fatal("global K not found")
	}
	s := tab.Sym(id)
	if s.Const == nil {
		t.Fatal("K has no folded constant")
	}
	if got := s.Const.Bits[0]; got != 6<<16 {
		t.Errorf("K = %d, want %d", got, 6<<16)
	}
}
