// Package isa defines the instruction set of the lumen target: a 32-bit,
// word-addressed, fixed-point RISC machine embedded in the playback device.
// The code generator produces a Program; pkg/vm executes it.
package isa

import (
	"fmt"
	"sort"
	"strings"
)

// Op identifies an instruction.
type Op uint8

const (
	OpHALT Op = iota // stop execution; Imm 1 marks a discard
	OpTRAP           // raise trap Imm and stop
	OpLI             // Rd = Imm
	OpMV             // Rd = Rs1
	OpADD            // Rd = Rs1 + Rs2
	OpADDI           // Rd = Rs1 + Imm
	OpSUB            // Rd = Rs1 - Rs2
	OpMUL            // Rd = Rs1 * Rs2 (32-bit wrap)
	OpDIV            // Rd = Rs1 / Rs2 signed; x/0 = 0
	OpDIVU           // unsigned divide
	OpREM            // signed remainder; x%0 = 0
	OpREMU           // unsigned remainder
	OpAND            // bitwise
	OpOR
	OpXOR
	OpXORI // Rd = Rs1 ^ Imm
	OpSLL  // shift left logical
	OpSRL  // shift right logical
	OpSRA  // shift right arithmetic
	OpSEQ  // Rd = Rs1 == Rs2 ? 1 : 0
	OpSNE
	OpSLT  // signed <
	OpSLE  // signed <=
	OpSLTU // unsigned <
	OpSLEU // unsigned <=
	OpFMUL // Q16.16 multiply
	OpFDIV // Q16.16 divide; x/0 = 0
	OpFSQRT
	OpFFLOOR
	OpITOF // int -> Q16.16
	OpUTOF // uint -> Q16.16
	OpFTOI // Q16.16 -> int, truncate toward zero
	OpLW   // Rd = mem[Rs1 + Imm]
	OpSW   // mem[Rs1 + Imm] = Rs2
	OpJ    // pc = Target
	OpJAL  // ra = pc + 1; pc = Target
	OpRET  // pc = ra
	OpBEQZ // if Rs1 == 0: pc = Target
	OpBNEZ // if Rs1 != 0: pc = Target
	OpBLTU // if Rs1 <u Rs2: pc = Target
)

var opNames = [...]string{
	OpHALT: "HALT", OpTRAP: "TRAP", OpLI: "LI", OpMV: "MV",
	OpADD: "ADD", OpADDI: "ADDI", OpSUB: "SUB", OpMUL: "MUL",
	OpDIV: "DIV", OpDIVU: "DIVU", OpREM: "REM", OpREMU: "REMU",
	OpAND: "AND", OpOR: "OR", OpXOR: "XOR", OpXORI: "XORI",
	OpSLL: "SLL", OpSRL: "SRL", OpSRA: "SRA",
	OpSEQ: "SEQ", OpSNE: "SNE", OpSLT: "SLT", OpSLE: "SLE",
	OpSLTU: "SLTU", OpSLEU: "SLEU",
	OpFMUL: "FMUL", OpFDIV: "FDIV", OpFSQRT: "FSQRT", OpFFLOOR: "FFLOOR",
	OpITOF: "ITOF", OpUTOF: "UTOF", OpFTOI: "FTOI",
	OpLW: "LW", OpSW: "SW",
	OpJ: "J", OpJAL: "JAL", OpRET: "RET",
	OpBEQZ: "BEQZ", OpBNEZ: "BNEZ", OpBLTU: "BLTU",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Reg is a register number, x0..x31. x0 always reads zero.
type Reg uint8

const (
	X0 Reg = 0  // hardwired zero
	RA Reg = 1  // return address
	SP Reg = 2  // stack pointer (word units)
	FP Reg = 8  // frame pointer
	A0 Reg = 10 // scalar return value / first scratch argument
	A1 Reg = 11
	T0 Reg = 5 // expression scratch
	T1 Reg = 6
	T2 Reg = 7
	T3 Reg = 28
)

var regNames = map[Reg]string{
	X0: "x0", RA: "ra", SP: "sp", FP: "fp",
	A0: "a0", A1: "a1", T0: "t0", T1: "t1", T2: "t2", T3: "t3",
}

func (r Reg) String() string {
	if n, ok := regNames[r]; ok {
		return n
	}
	return fmt.Sprintf("x%d", uint8(r))
}

// Instruction is one element of the target stream. Instructions are never
// mutated after emission except for branch target fixups inside the code
// generator, before the Program is sealed.
type Instruction struct {
	Op     Op
	Rd     Reg
	Rs1    Reg
	Rs2    Reg
	Imm    int32
	Target int    // resolved instruction index for jumps and branches
	Sym    string // label the target was resolved from, for disassembly
}

// Trap codes raised by generated code.
const (
	TrapBounds = 1 // array index out of range
)

// Entry describes one callable function in a Program.
type Entry struct {
	PC       int // instruction index of the prologue
	RetWords int // flattened size of the return value
}

// Global describes one module-scope variable in the global segment.
type Global struct {
	Offset int // word offset from address 0
	Words  int
}

// Program is the code generator's output: an append-only instruction stream
// plus the metadata the runtime needs to call into it.
type Program struct {
	Code    []Instruction
	Entries map[string]Entry

	// GlobalWords is the size of the global segment; GlobalInit holds its
	// initial contents. Globals maps source names to their slots.
	GlobalWords int
	GlobalInit  []int32
	Globals     map[string]Global

	// HaltPC is the index of the terminating HALT the runtime uses as the
	// return address for top-level calls.
	HaltPC int

	// TrapTable maps trap codes to their meaning.
	TrapTable map[int]string
}

// NewProgram returns an empty program with the standard trap table.
func NewProgram() *Program {
	return &Program{
		Entries:   make(map[string]Entry),
		Globals:   make(map[string]Global),
		TrapTable: map[int]string{TrapBounds: "array index out of bounds"},
	}
}

func (i Instruction) String() string {
	switch i.Op {
	case OpHALT, OpRET:
		return i.Op.String()
	case OpTRAP:
		return fmt.Sprintf("TRAP %d", i.Imm)
	case OpLI:
		return fmt.Sprintf("LI %s, %d", i.Rd, i.Imm)
	case OpMV, OpFSQRT, OpFFLOOR, OpITOF, OpUTOF, OpFTOI:
		return fmt.Sprintf("%s %s, %s", i.Op, i.Rd, i.Rs1)
	case OpADDI, OpXORI:
		return fmt.Sprintf("%s %s, %s, %d", i.Op, i.Rd, i.Rs1, i.Imm)
	case OpLW:
		return fmt.Sprintf("LW %s, %d(%s)", i.Rd, i.Imm, i.Rs1)
	case OpSW:
		return fmt.Sprintf("SW %s, %d(%s)", i.Rs2, i.Imm, i.Rs1)
	case OpJ, OpJAL:
		return fmt.Sprintf("%s %s", i.Op, i.targetStr())
	case OpBEQZ, OpBNEZ:
		return fmt.Sprintf("%s %s, %s", i.Op, i.Rs1, i.targetStr())
	case OpBLTU:
		return fmt.Sprintf("BLTU %s, %s, %s", i.Rs1, i.Rs2, i.targetStr())
	default:
		return fmt.Sprintf("%s %s, %s, %s", i.Op, i.Rd, i.Rs1, i.Rs2)
	}
}

func (i Instruction) targetStr() string {
	if i.Sym != "" {
		return fmt.Sprintf("%s <%d>", i.Sym, i.Target)
	}
	return fmt.Sprintf("<%d>", i.Target)
}

// Disassemble renders the whole stream with entry-point markers, mainly for
// the CLI's -dump asm mode and for debugging failed end-to-end tests.
func (p *Program) Disassemble() string {
	labels := make(map[int][]string)
	for name, e := range p.Entries {
		labels[e.PC] = append(labels[e.PC], name)
	}
	for _, ls := range labels {
		sort.Strings(ls)
	}

	var sb strings.Builder
	for idx, ins := range p.Code {
		for _, l := range labels[idx] {
			fmt.Fprintf(&sb, "%s:\n", l)
		}
		fmt.Fprintf(&sb, "%6d  %s\n", idx, ins)
	}
	return sb.String()
}
