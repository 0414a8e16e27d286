package vm

import (
	"testing"

	"lumen/pkg/fixp"
	"lumen/pkg/isa"
)

// runOps builds a minimal program around the given instructions and steps it
// to completion, returning the machine for inspection.
func runOps(t *testing.T, code []isa.Instruction) *Machine {
	t.Helper()
	p := isa.NewProgram()
	p.Code = append(code, isa.Instruction{Op: isa.OpHALT})
	m := New(p)
	for i := 0; i < 1000 && !m.Halted; i++ {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if !m.Halted {
		t.Fatal("program did not halt")
	}
	return m
}

func TestALU(t *testing.T) {
	tests := []struct {
		name string
		code []isa.Instruction
		want int32
	}{
		{"add", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: 40},
			{Op: isa.OpLI, Rd: isa.T2, Imm: 2},
			{Op: isa.OpADD, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, 42},
		{"div trunc", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: -9},
			{Op: isa.OpLI, Rd: isa.T2, Imm: 2},
			{Op: isa.OpDIV, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, -4},
		{"div by zero", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: 7},
			{Op: isa.OpDIV, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, 0},
		{"div overflow", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: -1 << 31},
			{Op: isa.OpLI, Rd: isa.T2, Imm: -1},
			{Op: isa.OpDIV, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, -1 << 31},
		{"divu", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: -2},           // 0xFFFFFFFE
			{Op: isa.OpLI, Rd: isa.T2, Imm: 1 << 30},
			{Op: isa.OpDIVU, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, 3},
		{"rem sign", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: -7},
			{Op: isa.OpLI, Rd: isa.T2, Imm: 2},
			{Op: isa.OpREM, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, -1},
		{"sra", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: -8},
			{Op: isa.OpLI, Rd: isa.T2, Imm: 1},
			{Op: isa.OpSRA, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, -4},
		{"srl", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: -8},
			{Op: isa.OpLI, Rd: isa.T2, Imm: 28},
			{Op: isa.OpSRL, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, 15},
		{"sltu", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: 1},
			{Op: isa.OpLI, Rd: isa.T2, Imm: -1}, // unsigned max
			{Op: isa.OpSLTU, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, 1},
		{"slt negative", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: -1},
			{Op: isa.OpLI, Rd: isa.T2, Imm: 1},
			{Op: isa.OpSLT, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
		}, 1},
		{"xori not", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.T1, Imm: 1},
			{Op: isa.OpXORI, Rd: isa.T0, Rs1: isa.T1, Imm: 1},
		}, 0},
		{"x0 reads zero", []isa.Instruction{
			{Op: isa.OpLI, Rd: isa.X0, Imm: 99},
			{Op: isa.OpADDI, Rd: isa.T0, Rs1: isa.X0, Imm: 5},
		}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := runOps(t, tt.code)
			if got := m.Regs[isa.T0]; got != tt.want {
				t.Errorf("t0 = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFixedPointOps(t *testing.T) {
	half := fixp.FromFloat(0.5)
	three := fixp.FromFloat(3.0)
	tests := []struct {
		name string
		op   isa.Op
		a, b int32
		want int32
	}{
		{"fmul", isa.OpFMUL, half, half, fixp.FromFloat(0.25)},
		{"fdiv", isa.OpFDIV, fixp.One, three, fixp.Div(fixp.One, three)},
		{"fdiv zero", isa.OpFDIV, fixp.One, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := runOps(t, []isa.Instruction{
				{Op: isa.OpLI, Rd: isa.T1, Imm: tt.a},
				{Op: isa.OpLI, Rd: isa.T2, Imm: tt.b},
				{Op: tt.op, Rd: isa.T0, Rs1: isa.T1, Rs2: isa.T2},
			})
			if got := m.Regs[isa.T0]; got != tt.want {
				t.Errorf("t0 = %d, want %d", got, tt.want)
			}
		})
	}

	m := runOps(t, []isa.Instruction{
		{Op: isa.OpLI, Rd: isa.T1, Imm: fixp.FromFloat(4.0)},
		{Op: isa.OpFSQRT, Rd: isa.T0, Rs1: isa.T1},
	})
	if got := m.Regs[isa.T0]; got != fixp.FromFloat(2.0) {
		t.Errorf("fsqrt(4) = %d, want %d", got, fixp.FromFloat(2.0))
	}

	m = runOps(t, []isa.Instruction{
		{Op: isa.OpLI, Rd: isa.T1, Imm: fixp.FromFloat(-1.25)},
		{Op: isa.OpFFLOOR, Rd: isa.T0, Rs1: isa.T1},
	})
	if got := m.Regs[isa.T0]; got != fixp.FromFloat(-2.0) {
		t.Errorf("ffloor(-1.25) = %d, want %d", got, fixp.FromFloat(-2.0))
	}

	m = runOps(t, []isa.Instruction{
		{Op: isa.OpLI, Rd: isa.T1, Imm: -3},
		{Op: isa.OpUTOF, Rd: isa.T0, Rs1: isa.T1},
	})
	if got := m.Regs[isa.T0]; got != fixp.FromUint(uint32(0xFFFFFFFD)) {
		t.Errorf("utof = %d, want %d", got, fixp.FromUint(uint32(0xFFFFFFFD)))
	}
}

func TestMemoryAndBranches(t *testing.T) {
	m := runOps(t, []isa.Instruction{
		{Op: isa.OpLI, Rd: isa.T1, Imm: 100},  // address
		{Op: isa.OpLI, Rd: isa.T2, Imm: 77},
		{Op: isa.OpSW, Rs1: isa.T1, Rs2: isa.T2},
		{Op: isa.OpLW, Rd: isa.T0, Rs1: isa.T1},
	})
	if m.Regs[isa.T0] != 77 {
		t.Errorf("load/store roundtrip = %d", m.Regs[isa.T0])
	}

	// Count down from 3 using BNEZ.
	p := isa.NewProgram()
	p.Code = []isa.Instruction{
		{Op: isa.OpLI, Rd: isa.T0, Imm: 3},
		{Op: isa.OpLI, Rd: isa.T1, Imm: 0},
		{Op: isa.OpADDI, Rd: isa.T1, Rs1: isa.T1, Imm: 1}, // 2: loop body
		{Op: isa.OpADDI, Rd: isa.T0, Rs1: isa.T0, Imm: -1},
		{Op: isa.OpBNEZ, Rs1: isa.T0, Target: 2},
		{Op: isa.OpHALT},
	}
	m = New(p)
	for !m.Halted {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if m.Regs[isa.T1] != 3 {
		t.Errorf("loop ran %d times, want 3", m.Regs[isa.T1])
	}
}

func TestCallAndReturn(t *testing.T) {
	p := isa.NewProgram()
	p.Code = []isa.Instruction{
		{Op: isa.OpJAL, Target: 3, Sym: "fn"},
		{Op: isa.OpMV, Rd: isa.T0, Rs1: isa.A0},
		{Op: isa.OpHALT},
		{Op: isa.OpLI, Rd: isa.A0, Imm: 11}, // fn:
		{Op: isa.OpRET},
	}
	m := New(p)
	for !m.Halted {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if m.Regs[isa.T0] != 11 {
		t.Errorf("call result = %d, want 11", m.Regs[isa.T0])
	}
}

func TestTrapAndDiscard(t *testing.T) {
	m := runOps(t, []isa.Instruction{{Op: isa.OpTRAP, Imm: isa.TrapBounds}})
	if !m.Trapped || m.TrapCode != isa.TrapBounds {
		t.Errorf("Trapped=%v TrapCode=%d", m.Trapped, m.TrapCode)
	}

	m = runOps(t, []isa.Instruction{{Op: isa.OpHALT, Imm: 1}})
	if !m.Discarded {
		t.Error("HALT with Imm 1 should mark the run discarded")
	}
	if m.Trapped {
		t.Error("discard is not a trap")
	}
}

func TestMemoryFault(t *testing.T) {
	p := isa.NewProgram()
	p.Code = []isa.Instruction{
		{Op: isa.OpLI, Rd: isa.T1, Imm: -5},
		{Op: isa.OpLW, Rd: isa.T0, Rs1: isa.T1},
		{Op: isa.OpHALT},
	}
	m := New(p)
	var err error
	for i := 0; i < 10 && !m.Halted && err == nil; i++ {
		err = m.Step()
	}
	if err == nil {
		t.Fatal("expected fault for negative address")
	}
}

func TestRunEntry(t *testing.T) {
	p := isa.NewProgram()
	p.Code = []isa.Instruction{
		{Op: isa.OpHALT}, // 0: return address for top-level calls
		{Op: isa.OpLI, Rd: isa.T0, Imm: 42}, // 1: f
		{Op: isa.OpSW, Rs1: isa.SP, Rs2: isa.T0},
		{Op: isa.OpRET},
	}
	p.Entries["f"] = isa.Entry{PC: 1, RetWords: 1}
	p.HaltPC = 0

	m := New(p)
	out, err := m.Run("f", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != 42 {
		t.Errorf("Run = %v, want [42]", out)
	}

	if _, err := m.Run("missing", 0); err == nil {
		t.Error("expected error for unknown entry")
	}
}

func TestGlobals(t *testing.T) {
	p := isa.NewProgram()
	p.Code = []isa.Instruction{{Op: isa.OpHALT}}
	p.GlobalWords = 3
	p.GlobalInit = []int32{1, 2, 3}
	p.Globals["u_v"] = isa.Global{Offset: 1, Words: 2}

	m := New(p)
	got, err := m.ReadGlobal("u_v")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("initial u_v = %v", got)
	}

	if err := m.WriteGlobal("u_v", []int32{9, 8}); err != nil {
		t.Fatal(err)
	}
	if m.Memory[1] != 9 || m.Memory[2] != 8 {
		t.Error("WriteGlobal did not land in the global segment")
	}

	if err := m.WriteGlobal("u_v", []int32{1}); err == nil {
		t.Error("expected size mismatch error")
	}
	if _, err := m.ReadGlobal("nope"); err == nil {
		t.Error("expected error for unknown global")
	}
}
