package shader

import (
	"testing"

	"lumen/pkg/fixp"
	"lumen/pkg/vm"
)

func compileSrc(t *testing.T, src string) *vm.Machine {
	t.Helper()
	unit, err := Compile(src, Target{})
	if err != nil {
		t.Fatalf("compile failed: %v\nsource:\n%s", err, src)
	}
	return vm.New(unit.Prog)
}

// runScalar compiles src, executes entry, and returns the single result word.
func runScalar(t *testing.T, src, entry string) int32 {
	t.Helper()
	m := compileSrc(t, src)
	out, err := m.Run(entry, 0)
	if err != nil {
		t.Fatalf("%s: %v", entry, err)
	}
	if m.Trapped {
		t.Fatalf("%s trapped with code %d", entry, m.TrapCode)
	}
	if len(out) != 1 {
		t.Fatalf("%s returned %d words, want 1", entry, len(out))
	}
	return out[0]
}

func TestGenScalarReturn(t *testing.T) {
	tests := []struct {
		src  string
		want int32
	}{
		{"int f() { int a = 6; int b = 7; return a * b; }", 42},
		{"float f() { float x = 2.0; return x + 0.5; }", fixp.FromFloat(2.5)},
		{"bool f() { int a = 3; return a > 2; }", 1},
		{"uint f() { uint a = 10u; uint b = 3u; return a / b; }", 3},
		{"int f() { int a = -9; int b = 2; return a / b; }", -4},
		{"int f() { int x = 5; x += 3; x *= 2; x -= 1; return x; }", 15},
	}
	for _, tt := range tests {
		if got := runScalar(t, tt.src, "f"); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestGenShortCircuit(t *testing.T) {
	// The right side of && must not evaluate when the left is false; a
	// would-be trap on the right proves it.
	src := `
int a[2];
bool f() {
    int i = 0;
    i = i + 5;
    bool ok = false;
    return ok && a[i] == 0;
}
bool g() {
    int i = 0;
    i = i + 5;
    bool ok = true;
    return ok || a[i] == 0;
}`
	if got := runScalar(t, src, "f"); got != 0 {
		t.Errorf("f = %d, want 0", got)
	}
	if got := runScalar(t, src, "g"); got != 1 {
		t.Errorf("g = %d, want 1", got)
	}
}

func TestGenBoundsTrap(t *testing.T) {
	src := `
float f() {
    vec4 v = vec4(1.0);
    int i = 0;
    i = i + 7;
    return v[i];
}`
	m := compileSrc(t, src)
	out, err := m.Run("f", 0)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("expected trap, got %v", out)
	}
	if !m.Trapped || m.TrapCode != 1 {
		t.Fatalf("Trapped=%v TrapCode=%d, want trap code 1", m.Trapped, m.TrapCode)
	}
}

func TestGenUniforms(t *testing.T) {
	src := `
uniform float u_scale;
uniform vec2 u_offset;
float f() {
    return u_offset.x + u_offset.y * u_scale;
}`
	m := compileSrc(t, src)
	if err := m.WriteGlobal("u_scale", []int32{fixp.FromFloat(2.0)}); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteGlobal("u_offset", []int32{fixp.FromFloat(1.0), fixp.FromFloat(3.0)}); err != nil {
		t.Fatal(err)
	}
	out, err := m.Run("f", 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := fixp.FromFloat(7.0); out[0] != want {
		t.Errorf("f = %d, want %d", out[0], want)
	}
}

func TestGenGlobalState(t *testing.T) {
	src := `
int counter;
void bump() { counter += 1; }
int f() {
    bump();
    bump();
    bump();
    return counter;
}`
	if got := runScalar(t, src, "f"); got != 3 {
		t.Errorf("counter = %d, want 3", got)
	}
}

func TestGenOutParams(t *testing.T) {
	src := `
void polar(in vec2 p, out float r2, out float quad) {
    r2 = dot(p, p);
    quad = p.x >= 0.0 ? 1.0 : 2.0;
}
float f() {
    float r2;
    float quad;
    polar(vec2(3.0, 4.0), r2, quad);
    return r2 + quad;
}`
	if got, want := runScalar(t, src, "f"), fixp.FromFloat(26.0); got != want {
		t.Errorf("f = %d, want %d", got, want)
	}
}

func TestGenInoutSwizzle(t *testing.T) {
	src := `
void flip(inout float x) { x = -x; }
float f() {
    vec3 v = vec3(1.0, 2.0, 3.0);
    flip(v.y);
    return v.y;
}`
	if got, want := runScalar(t, src, "f"), fixp.FromFloat(-2.0); got != want {
		t.Errorf("f = %d, want %d", got, want)
	}
}

func TestGenAggregateReturn(t *testing.T) {
	src := `
vec3 axis(int i) {
    vec3 v = vec3(0.0);
    v[i] = 1.0;
    return v;
}
float f() {
    return axis(2).z;
}`
	if got, want := runScalar(t, src, "f"), fixp.One; got != want {
		t.Errorf("f = %d, want %d", got, want)
	}
}

func TestGenStructCopy(t *testing.T) {
	src := `
struct Hit {
    vec3 p;
    float t;
};
float f() {
    Hit a = Hit(vec3(1.0, 2.0, 3.0), 0.5);
    Hit b = a;
    b.t = 9.0;
    return a.t + b.p.z;
}`
	if got, want := runScalar(t, src, "f"), fixp.FromFloat(3.5); got != want {
		t.Errorf("f = %d, want %d", got, want)
	}
}

func TestGenArrayInFunction(t *testing.T) {
	src := `
int f() {
    int a[5];
    for (int i = 0; i < a.length(); i++) {
        a[i] = i * i;
    }
    int total = 0;
    for (int i = 0; i < 5; i++) {
        total += a[i];
    }
    return total;
}`
	if got := runScalar(t, src, "f"); got != 30 {
		t.Errorf("f = %d, want 30", got)
	}
}

func TestGenMultiDimLayout(t *testing.T) {
	// int g[2][3] is two rows of three words. Writing every cell and
	// reading back in flat order must match a hand-flattened copy.
	src := `
int f() {
    int g[2][3];
    int flat[6];
    for (int i = 0; i < 2; i++) {
        for (int j = 0; j < 3; j++) {
            g[i][j] = i * 10 + j;
            flat[i * 3 + j] = i * 10 + j;
        }
    }
    int bad = 0;
    for (int i = 0; i < 2; i++) {
        for (int j = 0; j < 3; j++) {
            if (g[i][j] != flat[i * 3 + j]) {
                bad++;
            }
        }
    }
    if (bad != 0) {
        return -bad;
    }
    return g[1][2];
}`
	if got := runScalar(t, src, "f"); got != 12 {
		t.Errorf("f = %d, want 12", got)
	}
}

func TestGenArrayConstructor(t *testing.T) {
	tests := []struct {
		src  string
		want int32
	}{
		{"int f() { return int[3](1, 2, 3)[1]; }", 2},
		{"int f() { return int[](1, 2, 3, 4, 5).length(); }", 5},
		{"int f() { int a[3] = int[3](7, 8, 9); return a[2]; }", 9},
	}
	for _, tt := range tests {
		if got := runScalar(t, tt.src, "f"); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestGenDiscard(t *testing.T) {
	src := `
uniform float u_cut;
float f() {
    if (u_cut > 0.5) {
        discard;
    }
    return 1.0;
}`
	m := compileSrc(t, src)
	if err := m.WriteGlobal("u_cut", []int32{fixp.FromFloat(1.0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run("f", 0); err != nil {
		t.Fatal(err)
	}
	if !m.Discarded {
		t.Error("expected Discarded after u_cut > 0.5")
	}

	if err := m.WriteGlobal("u_cut", []int32{0}); err != nil {
		t.Fatal(err)
	}
	out, err := m.Run("f", 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Discarded {
		t.Error("unexpected Discarded")
	}
	if out[0] != fixp.One {
		t.Errorf("f = %d, want %d", out[0], fixp.One)
	}
}

func TestGenMatrixPipeline(t *testing.T) {
	src := `
uniform mat3 u_rot;
vec3 apply(vec3 p) {
    return u_rot * p;
}
float f() {
    vec3 p = apply(vec3(1.0, 2.0, 3.0));
    return p.x + p.y + p.z;
}`
	m := compileSrc(t, src)
	// Permutation matrix rotating components: column i sends e_i to e_(i+1)%3.
	one := fixp.One
	cols := []int32{
		0, one, 0,
		0, 0, one,
		one, 0, 0,
	}
	if err := m.WriteGlobal("u_rot", cols); err != nil {
		t.Fatal(err)
	}
	out, err := m.Run("f", 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := fixp.FromFloat(6.0); out[0] != want {
		t.Errorf("f = %d, want %d", out[0], want)
	}
}

func TestGenWriteThroughSwizzle(t *testing.T) {
	src := `
float f() {
    vec4 v = vec4(1.0, 2.0, 3.0, 4.0);
    v.wx = vec2(10.0, 20.0);
    v.zy += vec2(0.5, 0.25);
    return v.x + v.y + v.z + v.w;
}`
	// v = (20, 2.25, 3.5, 10)
	if got, want := runScalar(t, src, "f"), fixp.FromFloat(35.75); got != want {
		t.Errorf("f = %d, want %d", got, want)
	}
}

func TestGenUnknownEntry(t *testing.T) {
	m := compileSrc(t, "void main() {}")
	if _, err := m.Run("nope", 0); err == nil {
		t.Fatal("expected error for unknown entry")
	}
}

func TestGenStepBudget(t *testing.T) {
	m := compileSrc(t, "int f() { int x = 0; while (true) { x++; } return x; }")
	if _, err := m.Run("f", 1000); err == nil {
		t.Fatal("expected step budget error for infinite loop")
	}
}

func TestGenEntryPoints(t *testing.T) {
	src := `
int helper(int x) { return x; }
void main() {}
int answer() { return 42; }`
	unit, err := Compile(src, Target{})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"main", "answer", "helper"} {
		if _, ok := unit.Prog.Entries[name]; !ok {
			t.Errorf("missing entry %q", name)
		}
	}
	m := vm.New(unit.Prog)
	out, err := m.Run("answer", 0)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 42 {
		t.Errorf("answer = %d, want 42", out[0])
	}
}
