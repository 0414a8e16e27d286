package shader

import (
	"fmt"

	"lumen/pkg/fixp"
	"lumen/pkg/isa"
)

// codegen lowers an analyzed compilation unit to an isa.Program.
//
// Every value is a run of 32-bit words. Scalars travel in T0; aggregates are
// materialized into fp-relative frame slots and copied word by word. The
// stack is word-addressed and grows down.
//
// Call frames:
//
//	fp+2+A+k   return value word k (A = callee's total argument words)
//	fp+2+j     argument word j
//	fp+1       saved ra
//	fp+0       saved fp
//	fp-1 ...   locals and temporaries
//
// The caller reserves the argument block and return area together, fills the
// arguments, and copies out and inout parameters back left to right after
// the call returns. Scalar returns are additionally left in A0.
type codegen struct {
	tab  *Table
	prog *isa.Program

	offsets map[SymbolID]int

	fn         *FuncSymbol
	frameWords int
	framePatch int
	argWords   int
	epilogue   *label

	breaks    []*label
	continues []*label

	funcPC  map[*FuncSymbol]int
	funcFix []funcFixup
}

type funcFixup struct {
	idx int
	fn  *FuncSymbol
}

// label is a branch target that may not be emitted yet. Branches taken
// before bind are patched when the label is bound.
type label struct {
	pc   int
	refs []int
}

// Generate lowers an analyzed unit to executable form. The AST must have
// passed Analyze without diagnostics.
func Generate(stmts []Stmt, tab *Table) (*isa.Program, error) {
	g := &codegen{
		tab:     tab,
		prog:    isa.NewProgram(),
		offsets: make(map[SymbolID]int),
		funcPC:  make(map[*FuncSymbol]int),
	}

	g.layoutGlobals(stmts)

	// Index 0 is the terminating HALT; Run points ra here so a top-level
	// return falls off the end of the program.
	g.emit(isa.Instruction{Op: isa.OpHALT})
	g.prog.HaltPC = 0

	for _, s := range stmts {
		d, ok := s.(*FuncDecl)
		if !ok || d.Fn == nil {
			continue
		}
		if err := g.genFunc(d); err != nil {
			return nil, err
		}
	}

	for _, fix := range g.funcFix {
		pc, ok := g.funcPC[fix.fn]
		if !ok {
			return nil, fmt.Errorf("call to ungenerated function %q", fix.fn.Name)
		}
		g.prog.Code[fix.idx].Target = pc
		g.prog.Code[fix.idx].Sym = fix.fn.Name
	}

	g.registerEntries(stmts)
	return g.prog, nil
}

func (g *codegen) layoutGlobals(stmts []Stmt) {
	offset := 0
	for _, s := range stmts {
		d, ok := s.(*VarDecl)
		if !ok || d.Sym == NoSymbol {
			continue
		}
		sym := g.tab.Sym(d.Sym)
		w := sym.Type.Words()
		sym.Addr = offset
		g.prog.Globals[d.Name] = isa.Global{Offset: offset, Words: w}
		offset += w
	}
	g.prog.GlobalWords = offset
	g.prog.GlobalInit = make([]int32, offset)
	for _, s := range stmts {
		d, ok := s.(*VarDecl)
		if !ok || d.Sym == NoSymbol || d.Init == nil {
			continue
		}
		if v, ok := Eval(d.Init, g.tab); ok {
			copy(g.prog.GlobalInit[g.tab.Sym(d.Sym).Addr:], v.Bits)
		}
	}
}

// registerEntries exposes each function by name. When a name is overloaded
// the parameterless overload wins, since external callers cannot pass
// arguments.
func (g *codegen) registerEntries(stmts []Stmt) {
	for _, s := range stmts {
		d, ok := s.(*FuncDecl)
		if !ok || d.Fn == nil {
			continue
		}
		if _, exists := g.prog.Entries[d.Name]; exists && len(d.Fn.Params) != 0 {
			continue
		}
		g.prog.Entries[d.Name] = isa.Entry{PC: g.funcPC[d.Fn], RetWords: d.Fn.Ret.Words()}
	}
}

//  Emission primitives

func (g *codegen) emit(ins isa.Instruction) int {
	g.prog.Code = append(g.prog.Code, ins)
	return len(g.prog.Code) - 1
}

func (g *codegen) li(rd isa.Reg, imm int32) {
	g.emit(isa.Instruction{Op: isa.OpLI, Rd: rd, Imm: imm})
}

func (g *codegen) op3(op isa.Op, rd, rs1, rs2 isa.Reg) {
	g.emit(isa.Instruction{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2})
}

func (g *codegen) addi(rd, rs1 isa.Reg, imm int32) {
	g.emit(isa.Instruction{Op: isa.OpADDI, Rd: rd, Rs1: rs1, Imm: imm})
}

func (g *codegen) lw(rd, base isa.Reg, off int) {
	g.emit(isa.Instruction{Op: isa.OpLW, Rd: rd, Rs1: base, Imm: int32(off)})
}

func (g *codegen) sw(src, base isa.Reg, off int) {
	g.emit(isa.Instruction{Op: isa.OpSW, Rs1: base, Rs2: src, Imm: int32(off)})
}

// push spills a register to the expression stack.
func (g *codegen) push(r isa.Reg) {
	g.addi(isa.SP, isa.SP, -1)
	g.sw(r, isa.SP, 0)
}

func (g *codegen) pop(r isa.Reg) {
	g.lw(r, isa.SP, 0)
	g.addi(isa.SP, isa.SP, 1)
}

func (g *codegen) newLabel() *label { return &label{pc: -1} }

func (g *codegen) branch(op isa.Op, rs1, rs2 isa.Reg, l *label) {
	idx := g.emit(isa.Instruction{Op: op, Rs1: rs1, Rs2: rs2, Target: l.pc})
	if l.pc < 0 {
		l.refs = append(l.refs, idx)
	}
}

func (g *codegen) jump(l *label) {
	idx := g.emit(isa.Instruction{Op: isa.OpJ, Target: l.pc})
	if l.pc < 0 {
		l.refs = append(l.refs, idx)
	}
}

func (g *codegen) bind(l *label) {
	l.pc = len(g.prog.Code)
	for _, idx := range l.refs {
		g.prog.Code[idx].Target = l.pc
	}
	l.refs = nil
}

// alloc reserves words in the current frame and returns their fp-relative
// offset (negative). Slots are never reused within a function.
func (g *codegen) alloc(words int) int {
	g.frameWords += words
	return -g.frameWords
}

//  Functions

func (g *codegen) genFunc(d *FuncDecl) error {
	g.fn = d.Fn
	g.frameWords = 0
	g.breaks = g.breaks[:0]
	g.continues = g.continues[:0]
	g.epilogue = g.newLabel()
	g.funcPC[d.Fn] = len(g.prog.Code)

	// Parameters live in the caller-built argument block above fp.
	off := 2
	for i, p := range d.Fn.Params {
		if i < len(d.Syms) {
			g.offsets[d.Syms[i]] = off
		}
		off += p.Type.Words()
	}
	g.argWords = off - 2

	g.addi(isa.SP, isa.SP, -2)
	g.sw(isa.RA, isa.SP, 1)
	g.sw(isa.FP, isa.SP, 0)
	g.op3(isa.OpMV, isa.FP, isa.SP, 0)
	g.framePatch = g.emit(isa.Instruction{Op: isa.OpADDI, Rd: isa.SP, Rs1: isa.SP})

	for _, s := range d.Body.Stmts {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}

	g.bind(g.epilogue)
	g.op3(isa.OpMV, isa.SP, isa.FP, 0)
	g.addi(isa.SP, isa.SP, 2)
	g.lw(isa.RA, isa.FP, 1)
	g.lw(isa.FP, isa.FP, 0)
	g.emit(isa.Instruction{Op: isa.OpRET})

	g.prog.Code[g.framePatch].Imm = int32(-g.frameWords)
	return nil
}

//  Statements

func (g *codegen) genStmt(s Stmt) error {
	switch n := s.(type) {
	case *VarDecl:
		if n.Sym == NoSymbol {
			return nil
		}
		sym := g.tab.Sym(n.Sym)
		off := g.alloc(sym.Type.Words())
		g.offsets[n.Sym] = off
		if n.Init != nil {
			return g.genIntoFrame(n.Init, off)
		}
		return nil

	case *StructDecl:
		return nil

	case *Assign:
		return g.genAssign(n)

	case *ExprStmt:
		t := n.X.Info().T
		switch {
		case t.Kind == KindVoid:
			call, ok := n.X.(*Call)
			if !ok {
				return nil
			}
			return g.emitCall(call, 0, false)
		case t.Words() == 1:
			return g.gen(n.X)
		default:
			return g.genIntoFrame(n.X, g.alloc(t.Words()))
		}

	case *Block:
		for _, st := range n.Stmts {
			if err := g.genStmt(st); err != nil {
				return err
			}
		}
		return nil

	case *If:
		if err := g.gen(n.Cond); err != nil {
			return err
		}
		elseL := g.newLabel()
		g.branch(isa.OpBEQZ, isa.T0, 0, elseL)
		if err := g.genStmt(n.Then); err != nil {
			return err
		}
		if n.Else == nil {
			g.bind(elseL)
			return nil
		}
		endL := g.newLabel()
		g.jump(endL)
		g.bind(elseL)
		if err := g.genStmt(n.Else); err != nil {
			return err
		}
		g.bind(endL)
		return nil

	case *While:
		top := g.newLabel()
		end := g.newLabel()
		g.bind(top)
		if err := g.gen(n.Cond); err != nil {
			return err
		}
		g.branch(isa.OpBEQZ, isa.T0, 0, end)
		g.breaks = append(g.breaks, end)
		g.continues = append(g.continues, top)
		if err := g.genStmt(n.Body); err != nil {
			return err
		}
		g.breaks = g.breaks[:len(g.breaks)-1]
		g.continues = g.continues[:len(g.continues)-1]
		g.jump(top)
		g.bind(end)
		return nil

	case *DoWhile:
		top := g.newLabel()
		cont := g.newLabel()
		end := g.newLabel()
		g.bind(top)
		g.breaks = append(g.breaks, end)
		g.continues = append(g.continues, cont)
		if err := g.genStmt(n.Body); err != nil {
			return err
		}
		g.breaks = g.breaks[:len(g.breaks)-1]
		g.continues = g.continues[:len(g.continues)-1]
		g.bind(cont)
		if err := g.gen(n.Cond); err != nil {
			return err
		}
		g.branch(isa.OpBNEZ, isa.T0, 0, top)
		g.bind(end)
		return nil

	case *For:
		if n.Init != nil {
			if err := g.genStmt(n.Init); err != nil {
				return err
			}
		}
		top := g.newLabel()
		cont := g.newLabel()
		end := g.newLabel()
		g.bind(top)
		if n.Cond != nil {
			if err := g.gen(n.Cond); err != nil {
				return err
			}
			g.branch(isa.OpBEQZ, isa.T0, 0, end)
		}
		g.breaks = append(g.breaks, end)
		g.continues = append(g.continues, cont)
		if err := g.genStmt(n.Body); err != nil {
			return err
		}
		g.breaks = g.breaks[:len(g.breaks)-1]
		g.continues = g.continues[:len(g.continues)-1]
		g.bind(cont)
		if n.Post != nil {
			if err := g.genStmt(n.Post); err != nil {
				return err
			}
		}
		g.jump(top)
		g.bind(end)
		return nil

	case *Return:
		if n.X != nil {
			retOff := 2 + g.argWords
			if n.X.Info().T.Words() == 1 {
				if err := g.gen(n.X); err != nil {
					return err
				}
				g.sw(isa.T0, isa.FP, retOff)
				g.op3(isa.OpMV, isa.A0, isa.T0, 0)
			} else if err := g.genIntoFrame(n.X, retOff); err != nil {
				return err
			}
		}
		g.jump(g.epilogue)
		return nil

	case *Break:
		g.jump(g.breaks[len(g.breaks)-1])
		return nil

	case *Continue:
		g.jump(g.continues[len(g.continues)-1])
		return nil

	case *Discard:
		g.emit(isa.Instruction{Op: isa.OpHALT, Imm: 1})
		return nil
	}
	return fmt.Errorf("cannot generate statement %T", s)
}

func (g *codegen) genAssign(s *Assign) error {
	lt := s.L.Info().T

	// Multi-component swizzle targets scatter into the base vector.
	if m, ok := s.L.(*Member); ok && len(m.Swizzle) > 1 {
		vtmp := g.alloc(len(m.Swizzle))
		if s.Op == ASSIGN {
			if err := g.genIntoFrame(s.R, vtmp); err != nil {
				return err
			}
		} else {
			ltmp := g.alloc(len(m.Swizzle))
			if err := g.genIntoFrame(s.L, ltmp); err != nil {
				return err
			}
			rtmp := g.alloc(s.R.Info().T.Words())
			if err := g.genIntoFrame(s.R, rtmp); err != nil {
				return err
			}
			g.emitBinaryOnFrame(compoundOp(s.Op), lt, s.R.Info().T, ltmp, rtmp, vtmp)
		}
		if err := g.genAddr(m.X); err != nil {
			return err
		}
		for j, k := range m.Swizzle {
			g.lw(isa.T1, isa.FP, vtmp+j)
			g.sw(isa.T1, isa.T0, k)
		}
		return nil
	}

	if lt.Words() == 1 {
		if err := g.genAddr(s.L); err != nil {
			return err
		}
		g.push(isa.T0)
		if err := g.gen(s.R); err != nil {
			return err
		}
		g.pop(isa.T1)
		if s.Op != ASSIGN {
			g.lw(isa.T2, isa.T1, 0)
			g.emitScalarOp(compoundOp(s.Op), lt.Base, isa.T0, isa.T2, isa.T0)
		}
		g.sw(isa.T0, isa.T1, 0)
		return nil
	}

	addrTmp := g.alloc(1)
	if err := g.genAddr(s.L); err != nil {
		return err
	}
	g.sw(isa.T0, isa.FP, addrTmp)

	words := lt.Words()
	vtmp := g.alloc(words)
	if s.Op == ASSIGN {
		if err := g.genIntoFrame(s.R, vtmp); err != nil {
			return err
		}
	} else {
		ltmp := g.alloc(words)
		g.lw(isa.T1, isa.FP, addrTmp)
		for k := 0; k < words; k++ {
			g.lw(isa.T0, isa.T1, k)
			g.sw(isa.T0, isa.FP, ltmp+k)
		}
		rtmp := g.alloc(s.R.Info().T.Words())
		if err := g.genIntoFrame(s.R, rtmp); err != nil {
			return err
		}
		g.emitBinaryOnFrame(compoundOp(s.Op), lt, s.R.Info().T, ltmp, rtmp, vtmp)
	}

	g.lw(isa.T1, isa.FP, addrTmp)
	for k := 0; k < words; k++ {
		g.lw(isa.T0, isa.FP, vtmp+k)
		g.sw(isa.T0, isa.T1, k)
	}
	return nil
}

func compoundOp(op TokenType) TokenType {
	switch op {
	case PLUS_ASSIGN:
		return PLUS
	case MINUS_ASSIGN:
		return MINUS
	case STAR_ASSIGN:
		return STAR
	case SLASH_ASSIGN:
		return SLASH
	}
	return op
}

//  Scalar expressions: result in T0

func (g *codegen) gen(e Expr) error {
	if v, ok := Eval(e, g.tab); ok && len(v.Bits) == 1 {
		g.li(isa.T0, v.Word())
		return nil
	}

	switch n := e.(type) {
	case *Ident:
		sym := g.tab.Sym(n.Sym)
		if sym.IsGlobal {
			g.lw(isa.T0, isa.X0, sym.Addr)
		} else {
			g.lw(isa.T0, isa.FP, g.offsets[n.Sym])
		}
		return nil

	case *Unary:
		return g.genUnary(n)

	case *Binary:
		return g.genBinaryScalar(n)

	case *Logical:
		return g.genLogical(n)

	case *Ternary:
		if err := g.gen(n.Cond); err != nil {
			return err
		}
		elseL := g.newLabel()
		endL := g.newLabel()
		g.branch(isa.OpBEQZ, isa.T0, 0, elseL)
		if err := g.gen(n.Then); err != nil {
			return err
		}
		g.jump(endL)
		g.bind(elseL)
		if err := g.gen(n.Else); err != nil {
			return err
		}
		g.bind(endL)
		return nil

	case *Convert:
		if err := g.gen(n.X); err != nil {
			return err
		}
		g.emitConvert(n.X.Info().T.Base, n.T.Base, isa.T0)
		return nil

	case *Construct:
		// Scalar constructor: an explicit conversion.
		if err := g.gen(n.Args[0]); err != nil {
			return err
		}
		g.emitConvert(n.Args[0].Info().T.Base, n.To.Base, isa.T0)
		return nil

	case *Index, *Member:
		if err := g.genAddrRV(e); err != nil {
			return err
		}
		g.lw(isa.T0, isa.T0, 0)
		return nil

	case *Call:
		switch {
		case n.Ctor != nil:
			// only scalar-typed results reach this path; struct
			// constructors go through genIntoFrame
			if err := g.gen(n.Args[0]); err != nil {
				return err
			}
			g.emitConvert(n.Args[0].Info().T.Base, n.T.Base, isa.T0)
			return nil
		case n.Fn.Builtin != BuiltinNone:
			tmp := g.alloc(1)
			if err := g.emitBuiltinInto(n, tmp); err != nil {
				return err
			}
			g.lw(isa.T0, isa.FP, tmp)
			return nil
		default:
			if err := g.emitCall(n, 0, false); err != nil {
				return err
			}
			g.op3(isa.OpMV, isa.T0, isa.A0, 0)
			return nil
		}
	}
	return fmt.Errorf("cannot generate scalar value for %T", e)
}

func (g *codegen) genUnary(n *Unary) error {
	switch n.Op {
	case PLUS_PLUS, MINUS_MINUS:
		delta := int32(1)
		if n.T.Base == BaseFloat {
			delta = fixp.One
		}
		if n.Op == MINUS_MINUS {
			delta = -delta
		}
		if err := g.genAddr(n.X); err != nil {
			return err
		}
		g.op3(isa.OpMV, isa.T2, isa.T0, 0)
		g.lw(isa.T0, isa.T2, 0)
		if n.Postfix {
			g.op3(isa.OpMV, isa.T1, isa.T0, 0)
			g.addi(isa.T0, isa.T0, delta)
			g.sw(isa.T0, isa.T2, 0)
			g.op3(isa.OpMV, isa.T0, isa.T1, 0)
		} else {
			g.addi(isa.T0, isa.T0, delta)
			g.sw(isa.T0, isa.T2, 0)
		}
		return nil
	}

	if err := g.gen(n.X); err != nil {
		return err
	}
	switch n.Op {
	case MINUS:
		g.op3(isa.OpSUB, isa.T0, isa.X0, isa.T0)
	case NOT:
		g.emit(isa.Instruction{Op: isa.OpXORI, Rd: isa.T0, Rs1: isa.T0, Imm: 1})
	case TILDE:
		g.emit(isa.Instruction{Op: isa.OpXORI, Rd: isa.T0, Rs1: isa.T0, Imm: -1})
	case PLUS:
	}
	return nil
}

func (g *codegen) genBinaryScalar(n *Binary) error {
	lt := n.L.Info().T
	rt := n.R.Info().T

	// Aggregate comparison reduces to a conjunction over all words.
	if (n.Op == EQUALS || n.Op == NOT_EQ) && lt.Words() > 1 {
		ltmp := g.alloc(lt.Words())
		if err := g.genIntoFrame(n.L, ltmp); err != nil {
			return err
		}
		rtmp := g.alloc(rt.Words())
		if err := g.genIntoFrame(n.R, rtmp); err != nil {
			return err
		}
		g.li(isa.T0, 1)
		for k := 0; k < lt.Words(); k++ {
			g.lw(isa.T1, isa.FP, ltmp+k)
			g.lw(isa.T2, isa.FP, rtmp+k)
			g.op3(isa.OpSEQ, isa.T1, isa.T1, isa.T2)
			g.op3(isa.OpAND, isa.T0, isa.T0, isa.T1)
		}
		if n.Op == NOT_EQ {
			g.emit(isa.Instruction{Op: isa.OpXORI, Rd: isa.T0, Rs1: isa.T0, Imm: 1})
		}
		return nil
	}

	if err := g.gen(n.L); err != nil {
		return err
	}
	g.push(isa.T0)
	if err := g.gen(n.R); err != nil {
		return err
	}
	g.op3(isa.OpMV, isa.T1, isa.T0, 0)
	g.pop(isa.T0)
	g.emitScalarOp(n.Op, lt.Base, isa.T0, isa.T0, isa.T1)
	return nil
}

func (g *codegen) genLogical(n *Logical) error {
	if err := g.gen(n.L); err != nil {
		return err
	}
	switch n.Op {
	case AND_AND:
		end := g.newLabel()
		g.branch(isa.OpBEQZ, isa.T0, 0, end)
		if err := g.gen(n.R); err != nil {
			return err
		}
		g.bind(end)
	case OR_OR:
		end := g.newLabel()
		g.branch(isa.OpBNEZ, isa.T0, 0, end)
		if err := g.gen(n.R); err != nil {
			return err
		}
		g.bind(end)
	case XOR_XOR:
		g.push(isa.T0)
		if err := g.gen(n.R); err != nil {
			return err
		}
		g.pop(isa.T1)
		g.op3(isa.OpXOR, isa.T0, isa.T0, isa.T1)
	}
	return nil
}

// emitScalarOp emits rd = a OP b for one word, choosing the opcode by base
// type. Comparisons yield 0 or 1.
func (g *codegen) emitScalarOp(op TokenType, base BaseType, rd, a, b isa.Reg) {
	switch op {
	case EQUALS:
		g.op3(isa.OpSEQ, rd, a, b)
		return
	case NOT_EQ:
		g.op3(isa.OpSNE, rd, a, b)
		return
	case LESS:
		g.op3(cmpOp(base, false), rd, a, b)
		return
	case LESS_EQ:
		g.op3(cmpOp(base, true), rd, a, b)
		return
	case GREATER:
		g.op3(cmpOp(base, false), rd, b, a)
		return
	case GREATER_EQ:
		g.op3(cmpOp(base, true), rd, b, a)
		return
	}

	var opcode isa.Op
	switch op {
	case PLUS:
		opcode = isa.OpADD
	case MINUS:
		opcode = isa.OpSUB
	case STAR:
		if base == BaseFloat {
			opcode = isa.OpFMUL
		} else {
			opcode = isa.OpMUL
		}
	case SLASH:
		switch base {
		case BaseFloat:
			opcode = isa.OpFDIV
		case BaseUint:
			opcode = isa.OpDIVU
		default:
			opcode = isa.OpDIV
		}
	case PERCENT:
		if base == BaseUint {
			opcode = isa.OpREMU
		} else {
			opcode = isa.OpREM
		}
	case SHL:
		opcode = isa.OpSLL
	case SHR:
		if base == BaseUint {
			opcode = isa.OpSRL
		} else {
			opcode = isa.OpSRA
		}
	case AMP:
		opcode = isa.OpAND
	case PIPE:
		opcode = isa.OpOR
	case CARET:
		opcode = isa.OpXOR
	default:
		opcode = isa.OpADD
	}
	g.op3(opcode, rd, a, b)
}

// cmpOp picks the less-than / less-or-equal opcode for a base. Fixed-point
// floats order like their signed bit patterns.
func cmpOp(base BaseType, orEqual bool) isa.Op {
	if base == BaseUint {
		if orEqual {
			return isa.OpSLEU
		}
		return isa.OpSLTU
	}
	if orEqual {
		return isa.OpSLE
	}
	return isa.OpSLT
}

// emitConvert rewrites r in place for a scalar base conversion. The cases
// mirror convertWord; int and uint reinterpret for free.
func (g *codegen) emitConvert(from, to BaseType, r isa.Reg) {
	if from == to {
		return
	}
	switch to {
	case BaseFloat:
		if from == BaseUint {
			g.op3(isa.OpUTOF, r, r, 0)
		} else {
			g.op3(isa.OpITOF, r, r, 0)
		}
	case BaseInt, BaseUint:
		if from == BaseFloat {
			g.op3(isa.OpFTOI, r, r, 0)
		}
	case BaseBool:
		g.op3(isa.OpSNE, r, r, isa.X0)
	}
}

//  Addresses

// genAddr leaves the word address of an l-value in T0.
func (g *codegen) genAddr(e Expr) error {
	switch n := e.(type) {
	case *Ident:
		sym := g.tab.Sym(n.Sym)
		if sym.IsGlobal {
			g.li(isa.T0, int32(sym.Addr))
		} else {
			g.addi(isa.T0, isa.FP, int32(g.offsets[n.Sym]))
		}
		return nil

	case *Index:
		return g.genIndexAddr(n, g.genAddr)

	case *Member:
		if err := g.genAddr(n.X); err != nil {
			return err
		}
		g.addi(isa.T0, isa.T0, int32(memberOffset(n)))
		return nil
	}
	return fmt.Errorf("cannot take the address of %T", e)
}

// genAddrRV is genAddr extended to r-values: anything without storage is
// materialized into a fresh frame slot first.
func (g *codegen) genAddrRV(e Expr) error {
	switch n := e.(type) {
	case *Ident:
		return g.genAddr(e)
	case *Index:
		return g.genIndexAddr(n, g.genAddrRV)
	case *Member:
		if len(n.Swizzle) <= 1 {
			if err := g.genAddrRV(n.X); err != nil {
				return err
			}
			g.addi(isa.T0, isa.T0, int32(memberOffset(n)))
			return nil
		}
	}
	t := e.Info().T
	tmp := g.alloc(t.Words())
	if err := g.genIntoFrame(e, tmp); err != nil {
		return err
	}
	g.addi(isa.T0, isa.FP, int32(tmp))
	return nil
}

// memberOffset is the word offset of a struct member or single-component
// swizzle within its base value.
func memberOffset(n *Member) int {
	if n.Swizzle != nil {
		return n.Swizzle[0]
	}
	xt := n.X.Info().T
	return xt.Struct.Members[n.MemberIndex].Offset
}

// genIndexAddr computes the element address for x[i], emitting the runtime
// range check that traps on an out-of-bounds index. Indices are compared
// unsigned, so a negative int index also traps.
func (g *codegen) genIndexAddr(n *Index, base func(Expr) error) error {
	xt := n.X.Info().T
	var size, ew int
	switch {
	case xt.IsArray():
		size, ew = xt.Size, xt.Elem.Words()
	case xt.IsVector():
		size, ew = xt.Size, 1
	default: // matrix column
		size, ew = xt.Cols, xt.Rows
	}

	if err := base(n.X); err != nil {
		return err
	}

	// A constant index was range checked during analysis.
	if v, ok := Eval(n.Index, g.tab); ok {
		g.addi(isa.T0, isa.T0, v.Word()*int32(ew))
		return nil
	}

	g.push(isa.T0)
	if err := g.gen(n.Index); err != nil {
		return err
	}
	ok := g.newLabel()
	g.li(isa.T1, int32(size))
	g.branch(isa.OpBLTU, isa.T0, isa.T1, ok)
	g.emit(isa.Instruction{Op: isa.OpTRAP, Imm: isa.TrapBounds})
	g.bind(ok)
	if ew != 1 {
		g.li(isa.T1, int32(ew))
		g.op3(isa.OpMUL, isa.T0, isa.T0, isa.T1)
	}
	g.pop(isa.T1)
	g.op3(isa.OpADD, isa.T0, isa.T1, isa.T0)
	return nil
}

//  Aggregate expressions: result written to frame slot

func (g *codegen) genIntoFrame(e Expr, off int) error {
	if v, ok := Eval(e, g.tab); ok {
		for i, w := range v.Bits {
			if w == 0 {
				g.sw(isa.X0, isa.FP, off+i)
				continue
			}
			g.li(isa.T0, w)
			g.sw(isa.T0, isa.FP, off+i)
		}
		return nil
	}

	t := e.Info().T
	if t.Words() == 1 {
		if err := g.gen(e); err != nil {
			return err
		}
		g.sw(isa.T0, isa.FP, off)
		return nil
	}

	switch n := e.(type) {
	case *Ident, *Index:
		if err := g.genAddrRV(e); err != nil {
			return err
		}
		g.copyAddrToFrame(off, t.Words())
		return nil

	case *Member:
		if len(n.Swizzle) > 1 {
			if err := g.genAddrRV(n.X); err != nil {
				return err
			}
			for j, k := range n.Swizzle {
				g.lw(isa.T1, isa.T0, k)
				g.sw(isa.T1, isa.FP, off+j)
			}
			return nil
		}
		if err := g.genAddrRV(e); err != nil {
			return err
		}
		g.copyAddrToFrame(off, t.Words())
		return nil

	case *Unary:
		tmp := g.alloc(t.Words())
		if err := g.genIntoFrame(n.X, tmp); err != nil {
			return err
		}
		for k := 0; k < t.Words(); k++ {
			g.lw(isa.T0, isa.FP, tmp+k)
			switch n.Op {
			case MINUS:
				g.op3(isa.OpSUB, isa.T0, isa.X0, isa.T0)
			case TILDE:
				g.emit(isa.Instruction{Op: isa.OpXORI, Rd: isa.T0, Rs1: isa.T0, Imm: -1})
			}
			g.sw(isa.T0, isa.FP, off+k)
		}
		return nil

	case *Binary:
		lt := n.L.Info().T
		rt := n.R.Info().T
		ltmp := g.alloc(lt.Words())
		if err := g.genIntoFrame(n.L, ltmp); err != nil {
			return err
		}
		rtmp := g.alloc(rt.Words())
		if err := g.genIntoFrame(n.R, rtmp); err != nil {
			return err
		}
		g.emitBinaryOnFrame(n.Op, lt, rt, ltmp, rtmp, off)
		return nil

	case *Ternary:
		if err := g.gen(n.Cond); err != nil {
			return err
		}
		elseL := g.newLabel()
		endL := g.newLabel()
		g.branch(isa.OpBEQZ, isa.T0, 0, elseL)
		if err := g.genIntoFrame(n.Then, off); err != nil {
			return err
		}
		g.jump(endL)
		g.bind(elseL)
		if err := g.genIntoFrame(n.Else, off); err != nil {
			return err
		}
		g.bind(endL)
		return nil

	case *Convert:
		if err := g.genIntoFrame(n.X, off); err != nil {
			return err
		}
		from := n.X.Info().T.Base
		if from == n.T.Base {
			return nil
		}
		for k := 0; k < t.Words(); k++ {
			g.lw(isa.T0, isa.FP, off+k)
			g.emitConvert(from, n.T.Base, isa.T0)
			g.sw(isa.T0, isa.FP, off+k)
		}
		return nil

	case *Construct:
		return g.emitConstructInto(n.To, n.Args, off)

	case *Call:
		switch {
		case n.Ctor != nil:
			return g.emitConstructInto(*n.Ctor, n.Args, off)
		case n.Fn.Builtin != BuiltinNone:
			return g.emitBuiltinInto(n, off)
		default:
			return g.emitCall(n, off, true)
		}
	}
	return fmt.Errorf("cannot generate aggregate value for %T", e)
}

// copyAddrToFrame copies words from the address in T0 into the frame.
func (g *codegen) copyAddrToFrame(off, words int) {
	for k := 0; k < words; k++ {
		g.lw(isa.T1, isa.T0, k)
		g.sw(isa.T1, isa.FP, off+k)
	}
}

// emitBinaryOnFrame applies a component-wise or linear-algebra operator to
// two materialized operands. Scalar operands broadcast.
func (g *codegen) emitBinaryOnFrame(op TokenType, lt, rt Type, lo, ro, do int) {
	if op == STAR && (lt.IsMatrix() || rt.IsMatrix()) && !(lt.IsScalar() || rt.IsScalar()) {
		g.emitMatMulOnFrame(lt, rt, lo, ro, do)
		return
	}

	words := lt.Words()
	if rt.Words() > words {
		words = rt.Words()
	}
	for k := 0; k < words; k++ {
		g.lw(isa.T0, isa.FP, lo+broadcastOff(lt, k))
		g.lw(isa.T1, isa.FP, ro+broadcastOff(rt, k))
		g.emitScalarOp(op, lt.Base, isa.T0, isa.T0, isa.T1)
		g.sw(isa.T0, isa.FP, do+k)
	}
}

func broadcastOff(t Type, k int) int {
	if t.Words() == 1 {
		return 0
	}
	return k
}

// emitMatMulOnFrame is the linear-algebra product, column-major, with the
// same accumulation order the constant evaluator uses.
func (g *codegen) emitMatMulOnFrame(lt, rt Type, lo, ro, do int) {
	mulAcc := func(dst, aOff, bOff int, terms int, a func(int) int, b func(int) int) {
		g.li(isa.T2, 0)
		for k := 0; k < terms; k++ {
			g.lw(isa.T0, isa.FP, aOff+a(k))
			g.lw(isa.T1, isa.FP, bOff+b(k))
			g.op3(isa.OpFMUL, isa.T0, isa.T0, isa.T1)
			g.op3(isa.OpADD, isa.T2, isa.T2, isa.T0)
		}
		g.sw(isa.T2, isa.FP, dst)
	}

	switch {
	case lt.IsMatrix() && rt.IsMatrix():
		for c := 0; c < rt.Cols; c++ {
			for r := 0; r < lt.Rows; r++ {
				c, r := c, r
				mulAcc(do+c*lt.Rows+r, lo, ro, lt.Cols,
					func(k int) int { return k*lt.Rows + r },
					func(k int) int { return c*rt.Rows + k })
			}
		}
	case lt.IsMatrix(): // mat * vec
		for r := 0; r < lt.Rows; r++ {
			r := r
			mulAcc(do+r, lo, ro, lt.Cols,
				func(k int) int { return k*lt.Rows + r },
				func(k int) int { return k })
		}
	default: // vec * mat
		for c := 0; c < rt.Cols; c++ {
			c := c
			mulAcc(do+c, lo, ro, rt.Rows,
				func(k int) int { return k },
				func(k int) int { return c*rt.Rows + k })
		}
	}
}

//  Constructors

func (g *codegen) emitConstructInto(to Type, args []Expr, off int) error {
	switch to.Kind {
	case KindVector:
		if len(args) == 1 && args[0].Info().T.IsScalar() {
			if err := g.gen(args[0]); err != nil {
				return err
			}
			g.emitConvert(args[0].Info().T.Base, to.Base, isa.T0)
			for i := 0; i < to.Size; i++ {
				g.sw(isa.T0, isa.FP, off+i)
			}
			return nil
		}
		if len(args) == 1 && args[0].Info().T.IsVector() {
			return g.convertCopy(args[0], to.Base, off, to.Size)
		}
		cursor := 0
		for _, arg := range args {
			n, err := g.ctorComponents(arg, to.Base, off+cursor)
			if err != nil {
				return err
			}
			cursor += n
		}
		return nil

	case KindMatrix:
		if len(args) == 1 && args[0].Info().T.IsScalar() {
			if err := g.gen(args[0]); err != nil {
				return err
			}
			g.emitConvert(args[0].Info().T.Base, BaseFloat, isa.T0)
			for c := 0; c < to.Cols; c++ {
				for r := 0; r < to.Rows; r++ {
					if c == r {
						g.sw(isa.T0, isa.FP, off+c*to.Rows+r)
					} else {
						g.sw(isa.X0, isa.FP, off+c*to.Rows+r)
					}
				}
			}
			return nil
		}
		if len(args) == 1 && args[0].Info().T.IsMatrix() {
			src := args[0].Info().T
			tmp := g.alloc(src.Words())
			if err := g.genIntoFrame(args[0], tmp); err != nil {
				return err
			}
			for c := 0; c < to.Cols; c++ {
				for r := 0; r < to.Rows; r++ {
					dst := off + c*to.Rows + r
					switch {
					case c < src.Cols && r < src.Rows:
						g.lw(isa.T0, isa.FP, tmp+c*src.Rows+r)
						g.sw(isa.T0, isa.FP, dst)
					case c == r:
						g.li(isa.T0, fixp.One)
						g.sw(isa.T0, isa.FP, dst)
					default:
						g.sw(isa.X0, isa.FP, dst)
					}
				}
			}
			return nil
		}
		cursor := 0
		for _, arg := range args {
			n, err := g.ctorComponents(arg, BaseFloat, off+cursor)
			if err != nil {
				return err
			}
			cursor += n
		}
		return nil

	case KindArray:
		ew := to.Elem.Words()
		for i, arg := range args {
			if err := g.genIntoFrame(arg, off+i*ew); err != nil {
				return err
			}
		}
		return nil

	case KindStruct:
		for i, arg := range args {
			if err := g.genIntoFrame(arg, off+to.Struct.Members[i].Offset); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("cannot construct %s into a frame slot", to)
}

// ctorComponents flattens one constructor argument, converting each
// component to the destination base. It returns the component count.
func (g *codegen) ctorComponents(arg Expr, base BaseType, off int) (int, error) {
	at := arg.Info().T
	if at.IsScalar() {
		if err := g.gen(arg); err != nil {
			return 0, err
		}
		g.emitConvert(at.Base, base, isa.T0)
		g.sw(isa.T0, isa.FP, off)
		return 1, nil
	}
	if err := g.convertCopy(arg, base, off, at.Words()); err != nil {
		return 0, err
	}
	return at.Words(), nil
}

// convertCopy materializes the first n components of arg at off, converting
// bases as it copies.
func (g *codegen) convertCopy(arg Expr, base BaseType, off, n int) error {
	at := arg.Info().T
	tmp := g.alloc(at.Words())
	if err := g.genIntoFrame(arg, tmp); err != nil {
		return err
	}
	for k := 0; k < n; k++ {
		g.lw(isa.T0, isa.FP, tmp+k)
		g.emitConvert(at.Base, base, isa.T0)
		g.sw(isa.T0, isa.FP, off+k)
	}
	return nil
}

//  Calls

// emitCall generates a user function call. Arguments are evaluated left to
// right into temporaries before the stack moves; out and inout results are
// copied back left to right after the call.
func (g *codegen) emitCall(n *Call, dst int, wantDst bool) error {
	fn := n.Fn
	argWords := 0
	argOff := make([]int, len(fn.Params))
	for i, p := range fn.Params {
		argOff[i] = argWords
		argWords += p.Type.Words()
	}
	retWords := fn.Ret.Words()

	// Destination addresses for out/inout arguments are fixed before any
	// argument or the callee can change what they point through.
	addrTmp := make([]int, len(fn.Params))
	for i, p := range fn.Params {
		if p.Qual == ParamIn {
			continue
		}
		addrTmp[i] = g.alloc(1)
		if err := g.genAddr(n.Args[i]); err != nil {
			return err
		}
		g.sw(isa.T0, isa.FP, addrTmp[i])
	}

	valTmp := make([]int, len(fn.Params))
	for i, p := range fn.Params {
		if p.Qual == ParamOut {
			continue
		}
		valTmp[i] = g.alloc(p.Type.Words())
		if err := g.genIntoFrame(n.Args[i], valTmp[i]); err != nil {
			return err
		}
	}

	g.addi(isa.SP, isa.SP, int32(-(argWords + retWords)))
	for i, p := range fn.Params {
		w := p.Type.Words()
		if p.Qual == ParamOut {
			for k := 0; k < w; k++ {
				g.sw(isa.X0, isa.SP, argOff[i]+k)
			}
			continue
		}
		for k := 0; k < w; k++ {
			g.lw(isa.T0, isa.FP, valTmp[i]+k)
			g.sw(isa.T0, isa.SP, argOff[i]+k)
		}
	}

	idx := g.emit(isa.Instruction{Op: isa.OpJAL, Target: -1})
	g.funcFix = append(g.funcFix, funcFixup{idx: idx, fn: fn})

	for i, p := range fn.Params {
		if p.Qual == ParamIn {
			continue
		}
		g.lw(isa.T1, isa.FP, addrTmp[i])
		for k := 0; k < p.Type.Words(); k++ {
			g.lw(isa.T0, isa.SP, argOff[i]+k)
			g.sw(isa.T0, isa.T1, k)
		}
	}

	if wantDst && retWords > 0 {
		for k := 0; k < retWords; k++ {
			g.lw(isa.T0, isa.SP, argWords+k)
			g.sw(isa.T0, isa.FP, dst+k)
		}
	}
	g.addi(isa.SP, isa.SP, int32(argWords+retWords))
	return nil
}

//  Built-ins

// emitBuiltinInto expands a built-in call inline, writing the result into a
// frame slot. Components are processed with the exact instruction mix the
// constant evaluator models, so folded and runtime results agree bitwise.
func (g *codegen) emitBuiltinInto(n *Call, off int) error {
	fn := n.Fn
	argOff := make([]int, len(n.Args))
	for i, arg := range n.Args {
		argOff[i] = g.alloc(arg.Info().T.Words())
		if err := g.genIntoFrame(arg, argOff[i]); err != nil {
			return err
		}
	}
	at := func(i, comp int) int {
		return argOff[i] + broadcastOff(n.Args[i].Info().T, comp)
	}
	base := n.Args[0].Info().T.Base
	comps := n.T.Words()

	switch fn.Builtin {
	case BAbs:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			keep := g.newLabel()
			g.op3(isa.OpSLT, isa.T1, isa.T0, isa.X0)
			g.branch(isa.OpBEQZ, isa.T1, 0, keep)
			g.op3(isa.OpSUB, isa.T0, isa.X0, isa.T0)
			g.bind(keep)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BMin, BMax:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.lw(isa.T1, isa.FP, at(1, k))
			keep := g.newLabel()
			if fn.Builtin == BMin {
				// keep a unless b < a
				g.op3(cmpOp(base, false), isa.T2, isa.T1, isa.T0)
				g.branch(isa.OpBEQZ, isa.T2, 0, keep)
			} else {
				// keep a unless a <= b
				g.op3(cmpOp(base, true), isa.T2, isa.T0, isa.T1)
				g.branch(isa.OpBEQZ, isa.T2, 0, keep)
			}
			g.op3(isa.OpMV, isa.T0, isa.T1, 0)
			g.bind(keep)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BClamp:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.lw(isa.T1, isa.FP, at(1, k))
			lo := g.newLabel()
			g.op3(cmpOp(base, false), isa.T2, isa.T0, isa.T1)
			g.branch(isa.OpBEQZ, isa.T2, 0, lo)
			g.op3(isa.OpMV, isa.T0, isa.T1, 0)
			g.bind(lo)
			g.lw(isa.T1, isa.FP, at(2, k))
			hi := g.newLabel()
			g.op3(cmpOp(base, false), isa.T2, isa.T1, isa.T0)
			g.branch(isa.OpBEQZ, isa.T2, 0, hi)
			g.op3(isa.OpMV, isa.T0, isa.T1, 0)
			g.bind(hi)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BDot:
		g.li(isa.T2, 0)
		for k := 0; k < n.Args[0].Info().T.Words(); k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.lw(isa.T1, isa.FP, at(1, k))
			g.op3(isa.OpFMUL, isa.T0, isa.T0, isa.T1)
			g.op3(isa.OpADD, isa.T2, isa.T2, isa.T0)
		}
		g.sw(isa.T2, isa.FP, off)

	case BMix:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.lw(isa.T1, isa.FP, at(1, k))
			g.op3(isa.OpSUB, isa.T1, isa.T1, isa.T0)
			g.lw(isa.T2, isa.FP, at(2, k))
			g.op3(isa.OpFMUL, isa.T1, isa.T1, isa.T2)
			g.op3(isa.OpADD, isa.T0, isa.T0, isa.T1)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BStep:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k)) // edge
			g.lw(isa.T1, isa.FP, at(1, k)) // x
			g.op3(isa.OpSLT, isa.T2, isa.T1, isa.T0)
			done := g.newLabel()
			g.li(isa.T0, 0)
			g.branch(isa.OpBNEZ, isa.T2, 0, done)
			g.li(isa.T0, fixp.One)
			g.bind(done)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BFloor:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.op3(isa.OpFFLOOR, isa.T0, isa.T0, 0)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BFract:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.op3(isa.OpFFLOOR, isa.T1, isa.T0, 0)
			g.op3(isa.OpSUB, isa.T0, isa.T0, isa.T1)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BSqrt:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.op3(isa.OpFSQRT, isa.T0, isa.T0, 0)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BAny, BAll:
		if fn.Builtin == BAny {
			g.li(isa.T0, 0)
		} else {
			g.li(isa.T0, 1)
		}
		for k := 0; k < n.Args[0].Info().T.Words(); k++ {
			g.lw(isa.T1, isa.FP, at(0, k))
			if fn.Builtin == BAny {
				g.op3(isa.OpOR, isa.T0, isa.T0, isa.T1)
			} else {
				g.op3(isa.OpAND, isa.T0, isa.T0, isa.T1)
			}
		}
		g.sw(isa.T0, isa.FP, off)

	case BEqual, BNotEqual:
		cmp := isa.OpSEQ
		if fn.Builtin == BNotEqual {
			cmp = isa.OpSNE
		}
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.lw(isa.T1, isa.FP, at(1, k))
			g.op3(cmp, isa.T0, isa.T0, isa.T1)
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BLessThan, BLessThanEqual, BGreaterThan, BGreaterThanEqual:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.lw(isa.T1, isa.FP, at(1, k))
			switch fn.Builtin {
			case BLessThan:
				g.op3(cmpOp(base, false), isa.T0, isa.T0, isa.T1)
			case BLessThanEqual:
				g.op3(cmpOp(base, true), isa.T0, isa.T0, isa.T1)
			case BGreaterThan:
				g.op3(cmpOp(base, false), isa.T0, isa.T1, isa.T0)
			default:
				g.op3(cmpOp(base, true), isa.T0, isa.T1, isa.T0)
			}
			g.sw(isa.T0, isa.FP, off+k)
		}

	case BMatCompMult:
		for k := 0; k < comps; k++ {
			g.lw(isa.T0, isa.FP, at(0, k))
			g.lw(isa.T1, isa.FP, at(1, k))
			g.op3(isa.OpFMUL, isa.T0, isa.T0, isa.T1)
			g.sw(isa.T0, isa.FP, off+k)
		}

	default:
		return fmt.Errorf("unknown builtin %q", fn.Name)
	}
	return nil
}
