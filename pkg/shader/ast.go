package shader

import (
	"fmt"
	"strings"
)

//  Expression nodes

// exprInfo carries the results of semantic analysis for an expression node:
// its resolved type, its folded constant value (if any), and the token the
// node was parsed from, for diagnostics.
type exprInfo struct {
	T     Type
	Const *Value
	Tok   Token

	// evalTried marks that constant evaluation already ran and failed, so
	// the evaluator does not re-walk the subtree.
	evalTried bool
}

func (e *exprInfo) exprNode()       {}
func (e *exprInfo) Info() *exprInfo { return e }

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	Info() *exprInfo
	String() string
}

// IntLit is an integer literal, signed unless the source carried a u suffix.
type IntLit struct {
	exprInfo
	Value  uint32
	IsUint bool
}

func (l *IntLit) String() string {
	if l.IsUint {
		return fmt.Sprintf("%du", l.Value)
	}
	return fmt.Sprintf("%d", int32(l.Value))
}

// FloatLit is a float literal, already rounded to its fixed-point bits.
type FloatLit struct {
	exprInfo
	Bits int32
	Text string
}

func (l *FloatLit) String() string { return l.Text }

// BoolLit is true or false.
type BoolLit struct {
	exprInfo
	Value bool
}

func (l *BoolLit) String() string { return fmt.Sprintf("%v", l.Value) }

// Ident is a use of a named variable, resolved to a symbol id during
// analysis.
type Ident struct {
	exprInfo
	Name string
	Sym  SymbolID
}

func (v *Ident) String() string { return v.Name }

// Unary represents Op X, or X Op for postfix ++/--.
type Unary struct {
	exprInfo
	Op      TokenType
	X       Expr
	Postfix bool
}

func (u *Unary) String() string {
	if u.Postfix {
		return fmt.Sprintf("(%s%s)", u.X, u.Op)
	}
	return fmt.Sprintf("(%s%s)", u.Op, u.X)
}

// Binary represents Left Op Right for arithmetic, bitwise, and comparison
// operators.
type Binary struct {
	exprInfo
	Op TokenType
	L  Expr
	R  Expr
}

func (b *Binary) String() string { return fmt.Sprintf("(%s %s %s)", b.L, b.Op, b.R) }

// Logical represents && || ^^. It is separate from Binary so code
// generation can short-circuit && and ||.
type Logical struct {
	exprInfo
	Op TokenType
	L  Expr
	R  Expr
}

func (l *Logical) String() string { return fmt.Sprintf("(%s %s %s)", l.L, l.Op, l.R) }

// Ternary represents Cond ? Then : Else.
type Ternary struct {
	exprInfo
	Cond Expr
	Then Expr
	Else Expr
}

func (t *Ternary) String() string { return fmt.Sprintf("(%s ? %s : %s)", t.Cond, t.Then, t.Else) }

// Call represents name(args). After analysis Fn points at the resolved
// overload; for a struct constructor Fn is nil and Ctor holds the type.
type Call struct {
	exprInfo
	Name string
	Args []Expr
	Fn   *FuncSymbol
	Ctor *Type
}

func (c *Call) String() string { return fmt.Sprintf("%s(%s)", c.Name, exprList(c.Args)) }

// Construct represents Type(args) and Type[n](args) constructor forms for
// built-in types and arrays. To is filled in during analysis.
type Construct struct {
	exprInfo
	Ref  TypeRef
	Args []Expr
	To   Type
}

func (c *Construct) String() string { return fmt.Sprintf("%s(%s)", c.Ref, exprList(c.Args)) }

// Convert is an implicit conversion inserted by the analyzer; the target
// type is the node's resolved type.
type Convert struct {
	exprInfo
	X Expr
}

func (c *Convert) String() string { return fmt.Sprintf("%s(%s)", c.T, c.X) }

// Index represents X[Index].
type Index struct {
	exprInfo
	X     Expr
	Index Expr
}

func (e *Index) String() string { return fmt.Sprintf("%s[%s]", e.X, e.Index) }

// Member represents X.name: a struct member access or a vector swizzle.
// Analysis fills exactly one of MemberIndex (>= 0) or Swizzle.
type Member struct {
	exprInfo
	X           Expr
	Name        string
	MemberIndex int
	Swizzle     []int
}

func (e *Member) String() string { return fmt.Sprintf("%s.%s", e.X, e.Name) }

// Length represents X.length() on an array.
type Length struct {
	exprInfo
	X Expr
}

func (e *Length) String() string { return fmt.Sprintf("%s.length()", e.X) }

func exprList(args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

//  Type references (syntactic, pre-analysis)

// TypeRef is a type as written in source: a built-in or struct name plus
// optional array dimensions. A nil dimension expression means the size is
// inferred ("int[]"). Resolution to a Type happens during analysis.
type TypeRef struct {
	Name string
	Tok  Token
	Dims []Expr
}

func (r TypeRef) String() string {
	s := r.Name
	for _, d := range r.Dims {
		if d == nil {
			s += "[]"
		} else {
			s += fmt.Sprintf("[%s]", d)
		}
	}
	return s
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// StorageQual is the storage qualifier of a variable declaration.
type StorageQual uint8

const (
	QualNone StorageQual = iota
	QualConst
	QualUniform
	QualIn
	QualOut
	QualBuffer
	QualShared
)

var qualNames = [...]string{"", "const", "uniform", "in", "out", "buffer", "shared"}

func (q StorageQual) String() string { return qualNames[q] }

// ParamQual is the direction qualifier of a function parameter.
type ParamQual uint8

const (
	ParamIn ParamQual = iota // the default
	ParamOut
	ParamInOut
)

func (q ParamQual) String() string {
	switch q {
	case ParamOut:
		return "out"
	case ParamInOut:
		return "inout"
	}
	return "in"
}

// VarDecl represents "qual type name[dims] = init;" at global or local
// scope.
type VarDecl struct {
	Name string
	Tok  Token
	Ref  TypeRef
	Qual StorageQual
	Init Expr
	Sym  SymbolID
}

func (*VarDecl) stmtNode() {}
func (d *VarDecl) String() string {
	s := ""
	if d.Qual != QualNone {
		s = d.Qual.String() + " "
	}
	s += fmt.Sprintf("%s %s", d.Ref, d.Name)
	if d.Init != nil {
		s += fmt.Sprintf(" = %s", d.Init)
	}
	return "VarDecl(" + s + ")"
}

// StructField is one member declaration inside a struct.
type StructField struct {
	Name string
	Tok  Token
	Ref  TypeRef
}

// StructDecl represents "struct Name { fields };".
type StructDecl struct {
	Name   string
	Tok    Token
	Fields []StructField
}

func (*StructDecl) stmtNode() {}
func (s *StructDecl) String() string {
	return fmt.Sprintf("StructDecl(%s, %d fields)", s.Name, len(s.Fields))
}

// ParamDecl is one function parameter as parsed.
type ParamDecl struct {
	Name    string
	Tok     Token
	Ref     TypeRef
	Qual    ParamQual
	IsConst bool
}

func (p ParamDecl) String() string {
	s := ""
	if p.IsConst {
		s += "const "
	}
	if p.Qual != ParamIn {
		s += p.Qual.String() + " "
	}
	return fmt.Sprintf("%s%s %s", s, p.Ref, p.Name)
}

// FuncDecl represents "ret name(params) { body }".
type FuncDecl struct {
	Name   string
	Tok    Token
	Ret    TypeRef
	Params []ParamDecl
	Body   *Block
	Fn     *FuncSymbol
	// Syms holds the parameter symbols in declaration order, filled in
	// during analysis.
	Syms []SymbolID
}

func (*FuncDecl) stmtNode() {}
func (f *FuncDecl) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("FuncDecl(%s %s(%s))", f.Ret, f.Name, strings.Join(parts, ", "))
}

// Assign represents "lhs op rhs;" where op is = or a compound assignment.
type Assign struct {
	L  Expr
	Op TokenType
	R  Expr
}

func (*Assign) stmtNode()        {}
func (a *Assign) String() string { return fmt.Sprintf("Assign(%s %s %s)", a.L, a.Op, a.R) }

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	X Expr
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return fmt.Sprintf("ExprStmt(%s)", e.X) }

// Block represents { statements }.
type Block struct {
	Stmts []Stmt
}

func (*Block) stmtNode()        {}
func (b *Block) String() string { return fmt.Sprintf("Block(len=%d)", len(b.Stmts)) }

// If represents if (cond) then [else else].
type If struct {
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

func (*If) stmtNode() {}
func (i *If) String() string {
	if i.Else != nil {
		return fmt.Sprintf("If(%s then %s else %s)", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("If(%s then %s)", i.Cond, i.Then)
}

// While represents while (cond) body.
type While struct {
	Cond Expr
	Body Stmt
}

func (*While) stmtNode()        {}
func (w *While) String() string { return fmt.Sprintf("While(%s do %s)", w.Cond, w.Body) }

// DoWhile represents do body while (cond);.
type DoWhile struct {
	Body Stmt
	Cond Expr
}

func (*DoWhile) stmtNode()        {}
func (d *DoWhile) String() string { return fmt.Sprintf("DoWhile(%s while %s)", d.Body, d.Cond) }

// For represents for (init; cond; post) body.
type For struct {
	Init Stmt // may be nil
	Cond Expr // may be nil (treated as true)
	Post Stmt // may be nil
	Body Stmt
}

func (*For) stmtNode() {}
func (f *For) String() string {
	return fmt.Sprintf("For(init=%s, cond=%s, post=%s)", f.Init, f.Cond, f.Post)
}

// Return represents return [expr];.
type Return struct {
	Tok Token
	X   Expr // may be nil
}

func (*Return) stmtNode() {}
func (r *Return) String() string {
	if r.X == nil {
		return "Return"
	}
	return fmt.Sprintf("Return(%s)", r.X)
}

// Break represents break;.
type Break struct{ Tok Token }

func (*Break) stmtNode()        {}
func (*Break) String() string   { return "Break" }

// Continue represents continue;.
type Continue struct{ Tok Token }

func (*Continue) stmtNode()      {}
func (*Continue) String() string { return "Continue" }

// Discard represents discard;.
type Discard struct{ Tok Token }

func (*Discard) stmtNode()      {}
func (*Discard) String() string { return "Discard" }
