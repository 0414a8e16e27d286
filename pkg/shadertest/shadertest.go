// Package shadertest runs the expectation directives embedded in .lum
// fixture files. A fixture is an ordinary shader source whose comments
// carry checks against the compiled program:
//
//	// run: main_color() == 42        exact match on the returned word
//	// run: brightness() ~= 0.5       fixed-point match within Tolerance
//	// EXPECT_TRAP_CODE: 1            the next run directive must trap
//	// run: f() == 3 [expect-fail]    known-bad expectation, logged not failed
//
// Values on the right are int, float or bool literals; floats compare as
// Q16.16 words. Every entry named by a directive must be callable without
// arguments. An EXPECT_TRAP_CODE line applies to the run directive that
// follows it; the directive's value is ignored in that case.
package shadertest

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"lumen/pkg/fixp"
	"lumen/pkg/shader"
	"lumen/pkg/vm"
)

// Tolerance is the permitted |got-want| in raw Q16.16 bits for the ~=
// operator, roughly 3e-5 in value.
const Tolerance = 2

// Case is one expectation parsed from a fixture.
type Case struct {
	Line       int
	Entry      string
	Op         string // "==" or "~="
	Want       int32  // expected word, ignored for trap cases
	Trap       int    // expected trap code; -1 for value cases
	Approx     bool
	ExpectFail bool // known-bad expectation, logged instead of failed
}

// File is a parsed fixture: shader source plus its expectations.
type File struct {
	Path   string
	Source string
	Cases  []Case
}

// Load reads a fixture from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cases, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Path: path, Source: string(data), Cases: cases}, nil
}

// Parse extracts the directive comments from fixture source.
func Parse(src string) ([]Case, error) {
	var cases []Case
	pendingTrap := -1
	for i, line := range strings.Split(src, "\n") {
		text := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(text, "// EXPECT_TRAP_CODE:"):
			lit := strings.TrimSpace(strings.TrimPrefix(text, "// EXPECT_TRAP_CODE:"))
			code, err := strconv.Atoi(lit)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad trap code %q", i+1, lit)
			}
			if pendingTrap >= 0 {
				return nil, fmt.Errorf("line %d: EXPECT_TRAP_CODE without a run directive before the next one", i+1)
			}
			pendingTrap = code
			continue
		case strings.HasPrefix(text, "// run:"):
			text = strings.TrimPrefix(text, "// run:")
		default:
			continue
		}

		c, err := parseCase(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		c.Line = i + 1
		c.Trap = pendingTrap
		pendingTrap = -1
		cases = append(cases, c)
	}
	if pendingTrap >= 0 {
		return nil, fmt.Errorf("trailing EXPECT_TRAP_CODE with no run directive")
	}
	return cases, nil
}

func parseCase(text string) (Case, error) {
	var c Case
	if strings.HasSuffix(text, "[expect-fail]") {
		c.ExpectFail = true
		text = strings.TrimSpace(strings.TrimSuffix(text, "[expect-fail]"))
	}

	op := "=="
	idx := strings.Index(text, "==")
	if j := strings.Index(text, "~="); j >= 0 && (idx < 0 || j < idx) {
		op, idx = "~=", j
	}
	if idx < 0 {
		return Case{}, fmt.Errorf("directive %q has no comparison", text)
	}

	call := strings.TrimSpace(text[:idx])
	if !strings.HasSuffix(call, "()") {
		return Case{}, fmt.Errorf("left side %q must be a no-argument call", call)
	}
	c.Entry = strings.TrimSuffix(call, "()")
	c.Op = op
	c.Trap = -1
	c.Approx = op == "~="

	w, err := parseWord(strings.TrimSpace(text[idx+2:]))
	if err != nil {
		return Case{}, err
	}
	c.Want = w
	return c, nil
}

// parseWord reads a directive literal as the 32-bit word the program is
// expected to return.
func parseWord(lit string) (int32, error) {
	switch lit {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	if strings.ContainsAny(lit, ".eE") && !strings.HasPrefix(lit, "0x") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return 0, fmt.Errorf("bad literal %q", lit)
		}
		return fixp.FromFloat(f), nil
	}
	n, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad literal %q", lit)
	}
	return int32(n), nil
}

// Run compiles the fixture once and executes every case on one machine.
// Registers and halt state reset per call; global memory carries over, so
// cases that mutate globals must not depend on initial values a prior
// case could have clobbered.
func (f *File) Run(t *testing.T) {
	t.Helper()

	tgt, err := shader.ParseTarget("")
	if err != nil {
		t.Fatal(err)
	}
	unit, err := shader.Compile(f.Source, tgt)
	if err != nil {
		t.Fatalf("%s: compile: %v", f.Path, err)
	}

	m := vm.New(unit.Prog)
	for _, c := range f.Cases {
		fail := runCase(m, c)
		switch {
		case fail == "" && c.ExpectFail:
			t.Errorf("%s:%d: %s() unexpectedly passed, drop [expect-fail]", f.Path, c.Line, c.Entry)
		case fail != "" && c.ExpectFail:
			t.Logf("%s:%d: known failure: %s", f.Path, c.Line, fail)
		case fail != "":
			t.Errorf("%s:%d: %s", f.Path, c.Line, fail)
		}
	}
}

// runCase executes one directive and returns a failure description, or ""
// when the expectation holds.
func runCase(m *vm.Machine, c Case) string {
	out, err := m.Run(c.Entry, 0)
	if err != nil {
		return fmt.Sprintf("%s(): %v", c.Entry, err)
	}

	if c.Trap >= 0 {
		if !m.Trapped {
			return fmt.Sprintf("%s() returned normally, want trap %d", c.Entry, c.Trap)
		}
		if m.TrapCode != c.Trap {
			return fmt.Sprintf("%s() trapped with %d, want %d", c.Entry, m.TrapCode, c.Trap)
		}
		return ""
	}

	if m.Trapped {
		return fmt.Sprintf("%s() trapped with %d, want %d", c.Entry, m.TrapCode, c.Want)
	}
	if len(out) != 1 {
		return fmt.Sprintf("%s() returned %d words, directives compare one", c.Entry, len(out))
	}

	got := out[0]
	if c.Approx {
		d := got - c.Want
		if d < 0 {
			d = -d
		}
		if d > Tolerance {
			return fmt.Sprintf("%s() = %v (%d), want ~%v (%d)",
				c.Entry, fixp.Float(got), got, fixp.Float(c.Want), c.Want)
		}
		return ""
	}
	if got != c.Want {
		return fmt.Sprintf("%s() = %d, want %d", c.Entry, got, c.Want)
	}
	return ""
}
