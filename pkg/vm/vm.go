// Package vm is the reference emulator for the lumen target ISA. The
// playback device runs the same instruction semantics in firmware; this
// implementation exists so compiled shaders are executable in tests and in
// the desktop preview.
package vm

import (
	"errors"
	"fmt"

	"lumen/pkg/fixp"
	"lumen/pkg/isa"
)

// DefaultMemWords is the mapped memory size in 32-bit words. Globals live at
// the bottom, the stack grows down from the top.
const DefaultMemWords = 1 << 16

// DefaultMaxSteps bounds one Run so runaway loops fail instead of hanging.
const DefaultMaxSteps = 1 << 21

// Machine executes one Program. It is not safe for concurrent use; run one
// compilation unit per Machine.
type Machine struct {
	Regs   [32]int32
	Memory []int32
	PC     int

	Halted    bool
	Discarded bool
	Trapped   bool
	TrapCode  int

	Steps int

	prog *isa.Program
}

// New maps a program into a fresh machine and initializes the global segment.
func New(prog *isa.Program) *Machine {
	m := &Machine{
		Memory: make([]int32, DefaultMemWords),
		prog:   prog,
	}
	copy(m.Memory, prog.GlobalInit)
	return m
}

func (m *Machine) reg(r isa.Reg) int32 {
	if r == isa.X0 {
		return 0
	}
	return m.Regs[r]
}

func (m *Machine) setReg(r isa.Reg, v int32) {
	if r != isa.X0 {
		m.Regs[r] = v
	}
}

func (m *Machine) load(addr int32) (int32, error) {
	if addr < 0 || int(addr) >= len(m.Memory) {
		return 0, fmt.Errorf("memory read out of bounds at word %d", addr)
	}
	return m.Memory[addr], nil
}

func (m *Machine) store(addr, v int32) error {
	if addr < 0 || int(addr) >= len(m.Memory) {
		return fmt.Errorf("memory write out of bounds at word %d", addr)
	}
	m.Memory[addr] = v
	return nil
}

// Step executes one instruction. It is a no-op once the machine has halted.
func (m *Machine) Step() error {
	if m.Halted {
		return nil
	}
	if m.PC < 0 || m.PC >= len(m.prog.Code) {
		m.Halted = true
		return fmt.Errorf("program counter out of range: %d", m.PC)
	}
	ins := m.prog.Code[m.PC]
	next := m.PC + 1
	m.Steps++

	switch ins.Op {
	case isa.OpHALT:
		m.Halted = true
		if ins.Imm == 1 {
			m.Discarded = true
		}
	case isa.OpTRAP:
		m.Halted = true
		m.Trapped = true
		m.TrapCode = int(ins.Imm)
	case isa.OpLI:
		m.setReg(ins.Rd, ins.Imm)
	case isa.OpMV:
		m.setReg(ins.Rd, m.reg(ins.Rs1))
	case isa.OpADD:
		m.setReg(ins.Rd, m.reg(ins.Rs1)+m.reg(ins.Rs2))
	case isa.OpADDI:
		m.setReg(ins.Rd, m.reg(ins.Rs1)+ins.Imm)
	case isa.OpSUB:
		m.setReg(ins.Rd, m.reg(ins.Rs1)-m.reg(ins.Rs2))
	case isa.OpMUL:
		m.setReg(ins.Rd, m.reg(ins.Rs1)*m.reg(ins.Rs2))
	case isa.OpDIV:
		a, b := m.reg(ins.Rs1), m.reg(ins.Rs2)
		// Division by zero and MinInt/-1 are undefined in the language;
		// pin them so the host never faults.
		switch {
		case b == 0:
			m.setReg(ins.Rd, 0)
		case a == -1<<31 && b == -1:
			m.setReg(ins.Rd, a)
		default:
			m.setReg(ins.Rd, a/b)
		}
	case isa.OpDIVU:
		a, b := uint32(m.reg(ins.Rs1)), uint32(m.reg(ins.Rs2))
		if b == 0 {
			m.setReg(ins.Rd, 0)
		} else {
			m.setReg(ins.Rd, int32(a/b))
		}
	case isa.OpREM:
		a, b := m.reg(ins.Rs1), m.reg(ins.Rs2)
		switch {
		case b == 0:
			m.setReg(ins.Rd, 0)
		case a == -1<<31 && b == -1:
			m.setReg(ins.Rd, 0)
		default:
			m.setReg(ins.Rd, a%b)
		}
	case isa.OpREMU:
		a, b := uint32(m.reg(ins.Rs1)), uint32(m.reg(ins.Rs2))
		if b == 0 {
			m.setReg(ins.Rd, 0)
		} else {
			m.setReg(ins.Rd, int32(a%b))
		}
	case isa.OpAND:
		m.setReg(ins.Rd, m.reg(ins.Rs1)&m.reg(ins.Rs2))
	case isa.OpOR:
		m.setReg(ins.Rd, m.reg(ins.Rs1)|m.reg(ins.Rs2))
	case isa.OpXOR:
		m.setReg(ins.Rd, m.reg(ins.Rs1)^m.reg(ins.Rs2))
	case isa.OpXORI:
		m.setReg(ins.Rd, m.reg(ins.Rs1)^ins.Imm)
	case isa.OpSLL:
		m.setReg(ins.Rd, m.reg(ins.Rs1)<<(uint32(m.reg(ins.Rs2))&31))
	case isa.OpSRL:
		m.setReg(ins.Rd, int32(uint32(m.reg(ins.Rs1))>>(uint32(m.reg(ins.Rs2))&31)))
	case isa.OpSRA:
		m.setReg(ins.Rd, m.reg(ins.Rs1)>>(uint32(m.reg(ins.Rs2))&31))
	case isa.OpSEQ:
		m.setReg(ins.Rd, b2i(m.reg(ins.Rs1) == m.reg(ins.Rs2)))
	case isa.OpSNE:
		m.setReg(ins.Rd, b2i(m.reg(ins.Rs1) != m.reg(ins.Rs2)))
	case isa.OpSLT:
		m.setReg(ins.Rd, b2i(m.reg(ins.Rs1) < m.reg(ins.Rs2)))
	case isa.OpSLE:
		m.setReg(ins.Rd, b2i(m.reg(ins.Rs1) <= m.reg(ins.Rs2)))
	case isa.OpSLTU:
		m.setReg(ins.Rd, b2i(uint32(m.reg(ins.Rs1)) < uint32(m.reg(ins.Rs2))))
	case isa.OpSLEU:
		m.setReg(ins.Rd, b2i(uint32(m.reg(ins.Rs1)) <= uint32(m.reg(ins.Rs2))))
	case isa.OpFMUL:
		m.setReg(ins.Rd, fixp.Mul(m.reg(ins.Rs1), m.reg(ins.Rs2)))
	case isa.OpFDIV:
		m.setReg(ins.Rd, fixp.Div(m.reg(ins.Rs1), m.reg(ins.Rs2)))
	case isa.OpFSQRT:
		m.setReg(ins.Rd, fixp.Sqrt(m.reg(ins.Rs1)))
	case isa.OpFFLOOR:
		m.setReg(ins.Rd, fixp.Floor(m.reg(ins.Rs1)))
	case isa.OpITOF:
		m.setReg(ins.Rd, fixp.FromInt(m.reg(ins.Rs1)))
	case isa.OpUTOF:
		m.setReg(ins.Rd, fixp.FromUint(uint32(m.reg(ins.Rs1))))
	case isa.OpFTOI:
		m.setReg(ins.Rd, fixp.ToInt(m.reg(ins.Rs1)))
	case isa.OpLW:
		v, err := m.load(m.reg(ins.Rs1) + ins.Imm)
		if err != nil {
			m.Halted = true
			return err
		}
		m.setReg(ins.Rd, v)
	case isa.OpSW:
		if err := m.store(m.reg(ins.Rs1)+ins.Imm, m.reg(ins.Rs2)); err != nil {
			m.Halted = true
			return err
		}
	case isa.OpJ:
		next = ins.Target
	case isa.OpJAL:
		m.setReg(isa.RA, int32(m.PC+1))
		next = ins.Target
	case isa.OpRET:
		next = int(m.reg(isa.RA))
	case isa.OpBEQZ:
		if m.reg(ins.Rs1) == 0 {
			next = ins.Target
		}
	case isa.OpBNEZ:
		if m.reg(ins.Rs1) != 0 {
			next = ins.Target
		}
	case isa.OpBLTU:
		if uint32(m.reg(ins.Rs1)) < uint32(m.reg(ins.Rs2)) {
			next = ins.Target
		}
	default:
		m.Halted = true
		return fmt.Errorf("illegal instruction %s at %d", ins.Op, m.PC)
	}

	m.PC = next
	return nil
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Run calls the named entry point and returns its flattened return value.
// The global segment is left as the call left it, so uniforms written
// through WriteGlobal persist across calls. A trapped run returns nil with
// no error; inspect Trapped/TrapCode.
func (m *Machine) Run(entry string, maxSteps int) ([]int32, error) {
	e, ok := m.prog.Entries[entry]
	if !ok {
		return nil, fmt.Errorf("no entry point %q", entry)
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	m.Halted = false
	m.Trapped = false
	m.Discarded = false
	m.TrapCode = 0

	retBase := int32(len(m.Memory) - e.RetWords)
	m.Regs = [32]int32{}
	m.setReg(isa.SP, retBase)
	m.setReg(isa.RA, int32(m.prog.HaltPC))
	m.PC = e.PC

	for i := 0; i < maxSteps; i++ {
		if m.Halted {
			break
		}
		if err := m.Step(); err != nil {
			return nil, err
		}
	}
	if !m.Halted {
		return nil, errors.New("step budget exhausted")
	}
	if m.Trapped {
		return nil, nil
	}

	out := make([]int32, e.RetWords)
	copy(out, m.Memory[retBase:])
	return out, nil
}

// WriteGlobal stores words into the named global, used by harnesses to set
// uniforms before a Run.
func (m *Machine) WriteGlobal(name string, words []int32) error {
	g, ok := m.prog.Globals[name]
	if !ok {
		return fmt.Errorf("no global %q", name)
	}
	if len(words) != g.Words {
		return fmt.Errorf("global %q holds %d words, got %d", name, g.Words, len(words))
	}
	copy(m.Memory[g.Offset:g.Offset+g.Words], words)
	return nil
}

// ReadGlobal returns a copy of the named global's current words.
func (m *Machine) ReadGlobal(name string) ([]int32, error) {
	g, ok := m.prog.Globals[name]
	if !ok {
		return nil, fmt.Errorf("no global %q", name)
	}
	out := make([]int32, g.Words)
	copy(out, m.Memory[g.Offset:g.Offset+g.Words])
	return out, nil
}
