package shader

import (
	"fmt"

	"lumen/pkg/fixp"
	"lumen/pkg/isa"
)

// Target names the device profile a compilation is aimed at. The playback
// hardware family shares one ISA; profiles differ only in the fixed-point
// format, and every shipped device uses Q16.16.
type Target struct {
	Name     string
	FracBits int
}

// DefaultTarget is the profile of current hardware.
const DefaultTarget = "riscv32.q32"

var targets = map[string]Target{
	"riscv32.q32":    {Name: "riscv32.q32", FracBits: fixp.FracBits},
	"riscv32.q16_16": {Name: "riscv32.q32", FracBits: fixp.FracBits}, // legacy alias
}

// ParseTarget resolves a -target flag value.
func ParseTarget(name string) (Target, error) {
	if name == "" {
		name = DefaultTarget
	}
	t, ok := targets[name]
	if !ok {
		return Target{}, fmt.Errorf("unknown target %q", name)
	}
	return t, nil
}

// Unit is the result of a full compilation, keeping the intermediate stages
// around for dumping and for test harnesses that inspect the table.
type Unit struct {
	Target Target
	Tokens []Token
	Stmts  []Stmt
	Table  *Table
	Prog   *isa.Program
}

// Compile runs the whole pipeline over one source unit: lexing, parsing,
// semantic analysis and code generation. Parse errors abort immediately;
// analysis reports every diagnostic it finds as a DiagList.
func Compile(src string, tgt Target) (*Unit, error) {
	if tgt.Name == "" {
		d, _ := ParseTarget(DefaultTarget)
		tgt = d
	}

	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	stmts, err := Parse(toks, src)
	if err != nil {
		return nil, err
	}
	tab, err := Analyze(stmts, src)
	if err != nil {
		return nil, err
	}
	prog, err := Generate(stmts, tab)
	if err != nil {
		return nil, err
	}
	return &Unit{Target: tgt, Tokens: toks, Stmts: stmts, Table: tab, Prog: prog}, nil
}
