package isa

import (
	"strings"
	"testing"
)

func TestInstructionString(t *testing.T) {
	tests := []struct {
		ins  Instruction
		want string
	}{
		{Instruction{Op: OpHALT}, "HALT"},
		{Instruction{Op: OpTRAP, Imm: 1}, "TRAP 1"},
		{Instruction{Op: OpLI, Rd: T0, Imm: -3}, "LI t0, -3"},
		{Instruction{Op: OpMV, Rd: T0, Rs1: A0}, "MV t0, a0"},
		{Instruction{Op: OpADD, Rd: T0, Rs1: T1, Rs2: T2}, "ADD t0, t1, t2"},
		{Instruction{Op: OpADDI, Rd: SP, Rs1: SP, Imm: -2}, "ADDI sp, sp, -2"},
		{Instruction{Op: OpLW, Rd: T0, Rs1: FP, Imm: 2}, "LW t0, 2(fp)"},
		{Instruction{Op: OpSW, Rs2: RA, Rs1: SP, Imm: 1}, "SW ra, 1(sp)"},
		{Instruction{Op: OpJ, Target: 7}, "J <7>"},
		{Instruction{Op: OpJAL, Target: 4, Sym: "main"}, "JAL main <4>"},
		{Instruction{Op: OpBEQZ, Rs1: T0, Target: 9}, "BEQZ t0, <9>"},
		{Instruction{Op: OpBLTU, Rs1: T0, Rs2: T1, Target: 3}, "BLTU t0, t1, <3>"},
		{Instruction{Op: OpRET}, "RET"},
		{Instruction{Op: OpFSQRT, Rd: T0, Rs1: T1}, "FSQRT t0, t1"},
	}
	for _, tt := range tests {
		if got := tt.ins.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestOpAndRegNames(t *testing.T) {
	for op := OpHALT; op <= OpBLTU; op++ {
		if strings.HasPrefix(op.String(), "Op(") {
			t.Errorf("op %d has no name", int(op))
		}
	}
	if X0.String() != "x0" || Reg(15).String() != "x15" {
		t.Error("unexpected register rendering")
	}
}

func TestNewProgram(t *testing.T) {
	p := NewProgram()
	if p.Entries == nil || p.Globals == nil {
		t.Fatal("maps not initialized")
	}
	if p.TrapTable[TrapBounds] == "" {
		t.Error("trap table missing bounds entry")
	}
}

func TestDisassembleMarksEntries(t *testing.T) {
	p := NewProgram()
	p.Code = []Instruction{
		{Op: OpHALT},
		{Op: OpLI, Rd: A0, Imm: 42},
		{Op: OpRET},
	}
	p.Entries["answer"] = Entry{PC: 1, RetWords: 1}

	out := p.Disassemble()
	if !strings.Contains(out, "answer:") {
		t.Errorf("missing entry label:\n%s", out)
	}
	if !strings.Contains(out, "LI a0, 42") {
		t.Errorf("missing instruction:\n%s", out)
	}
}
