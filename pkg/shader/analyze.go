package shader

import (
	"fmt"
	"strings"
)

// analyzer performs name resolution, type checking, qualifier validation
// and constant folding over a parsed compilation unit. It decorates the AST
// in place: every expression gets a type, identifiers get symbol IDs, calls
// get their resolved overload, and implicit conversions become explicit
// Convert nodes so later stages never re-derive them.
type analyzer struct {
	tab   *Table
	lines []string
	diags DiagList
	scope ScopeID
	fn    *FuncSymbol // function whose body is being checked, nil at file scope
	loops int
}

// Analyze checks a parsed compilation unit and returns its symbol table.
// Unlike the parser it does not stop at the first problem: diagnostics are
// accumulated and returned together as a DiagList.
func Analyze(stmts []Stmt, rawSource string) (*Table, error) {
	a := &analyzer{tab: NewTable(), lines: strings.Split(rawSource, "\n"), scope: GlobalScope}

	// Structs and globals resolve strictly in file order; function bodies
	// are checked afterwards so calls may refer forward.
	var fns []*FuncDecl
	for _, s := range stmts {
		switch d := s.(type) {
		case *StructDecl:
			a.declareStruct(d)
		case *VarDecl:
			a.checkGlobal(d)
		case *FuncDecl:
			a.declareFuncSig(d)
			fns = append(fns, d)
		}
	}
	for _, d := range fns {
		a.checkFunc(d)
	}
	a.checkRecursion(fns)

	if len(a.diags) > 0 {
		return a.tab, a.diags
	}
	return a.tab, nil
}

func (a *analyzer) errf(code Code, tok Token, format string, args ...any) {
	a.diags = append(a.diags, &Diag{
		Code:    code,
		Line:    tok.Line,
		Col:     tok.Col,
		Msg:     fmt.Sprintf(format, args...),
		Snippet: snippetOf(a.lines, tok),
	})
}

//  Declarations

func (a *analyzer) declareStruct(d *StructDecl) {
	def := &StructType{Name: d.Name}
	offset := 0
	for _, f := range d.Fields {
		t := a.resolveTypeRef(f.Ref, false)
		if t.IsInvalid() {
			return
		}
		if t.Kind == KindVoid {
			a.errf(ErrUndefinedType, f.Tok, "struct member %q cannot be void", f.Name)
			return
		}
		if def.FindMember(f.Name) >= 0 {
			a.errf(ErrDuplicateDeclaration, f.Tok, "duplicate member %q in struct %q", f.Name, d.Name)
			return
		}
		def.Members = append(def.Members, Field{Name: f.Name, Type: t, Offset: offset})
		offset += t.Words()
	}
	def.words = offset
	if err := a.tab.DeclareStruct(def); err != nil {
		a.errf(ErrDuplicateDeclaration, d.Tok, "%v", err)
	}
}

func (a *analyzer) checkGlobal(d *VarDecl) {
	t := a.declCommon(d)
	if t.IsInvalid() {
		return
	}

	var cv *Value
	if d.Init != nil {
		// Global initializers become part of the program image, so they
		// must fold at compile time.
		v, ok := Eval(d.Init, a.tab)
		if !ok {
			a.errf(ErrExpectedConstant, d.Tok, "initializer of global %q is not a constant expression", d.Name)
			return
		}
		cv = v
	} else if d.Qual == QualConst {
		a.errf(ErrExpectedConstant, d.Tok, "const %q needs an initializer", d.Name)
		return
	}

	id, err := a.tab.Declare(GlobalScope, Symbol{
		Name:     d.Name,
		Kind:     SymVar,
		Type:     t,
		Qual:     d.Qual,
		IsConst:  d.Qual == QualConst,
		IsGlobal: true,
		Const:    constOnly(d.Qual, cv),
	})
	if err != nil {
		a.errf(ErrDuplicateDeclaration, d.Tok, "%v", err)
		return
	}
	d.Sym = id
}

// constOnly keeps the folded value only for const symbols; a mutable global
// with a constant initializer is still a runtime variable.
func constOnly(q StorageQual, v *Value) *Value {
	if q == QualConst {
		return v
	}
	return nil
}

// declCommon handles the type resolution, qualifier rules and initializer
// conversion shared by global and local variable declarations.
func (a *analyzer) declCommon(d *VarDecl) Type {
	t := a.resolveTypeRef(d.Ref, d.Init != nil)
	if t.IsInvalid() {
		return TypeInvalid
	}
	if t.Kind == KindVoid {
		a.errf(ErrUndefinedType, d.Tok, "variable %q cannot be void", d.Name)
		return TypeInvalid
	}

	if d.Init != nil {
		a.checkExpr(d.Init)
		it := d.Init.Info().T
		if it.IsInvalid() {
			return TypeInvalid
		}
		if t.IsArray() && t.Size == Unsized {
			if !it.IsArray() || !it.Elem.Equal(*t.Elem) {
				a.errf(ErrTypeMismatch, d.Tok, "cannot infer size of %q from initializer of type %s", d.Name, it)
				return TypeInvalid
			}
			t.Size = it.Size
		}
		conv, ok := a.coerce(d.Init, t)
		if !ok {
			a.errf(ErrTypeMismatch, d.Tok, "cannot initialize %s %q with %s", t, d.Name, it)
			return TypeInvalid
		}
		d.Init = conv
	} else if t.IsArray() && t.Size == Unsized {
		a.errf(ErrInvalidArraySize, d.Tok, "array %q needs a size or an initializer", d.Name)
		return TypeInvalid
	}
	return t
}

func (a *analyzer) declareFuncSig(d *FuncDecl) {
	ret := a.resolveTypeRef(d.Ret, false)
	if ret.IsInvalid() {
		return
	}

	fn := &FuncSymbol{Name: d.Name, Ret: ret, Decl: d}
	for _, p := range d.Params {
		t := a.resolveTypeRef(p.Ref, false)
		if t.IsInvalid() {
			return
		}
		if t.Kind == KindVoid {
			a.errf(ErrUndefinedType, p.Tok, "parameter %q cannot be void", p.Name)
			return
		}
		if p.IsConst && p.Qual != ParamIn {
			a.errf(ErrInvalidQualifier, p.Tok, "parameter %q: const combines only with in", p.Name)
			return
		}
		fn.Params = append(fn.Params, ParamInfo{Name: p.Name, Type: t, Qual: p.Qual, IsConst: p.IsConst})
	}

	if d.Name == "main" && (ret.Kind != KindVoid || len(fn.Params) != 0) {
		a.errf(ErrInvalidMainSignature, d.Tok, "main must be declared as void main()")
		return
	}

	if err := a.tab.DeclareFunc(fn); err != nil {
		a.errf(ErrDuplicateDeclaration, d.Tok, "%v", err)
		return
	}
	d.Fn = fn
}

//  Function bodies

func (a *analyzer) checkFunc(d *FuncDecl) {
	if d.Fn == nil {
		return
	}
	a.fn = d.Fn
	a.loops = 0
	outer := a.scope
	a.scope = a.tab.Push(GlobalScope)

	d.Syms = d.Syms[:0]
	for i, p := range d.Fn.Params {
		id, err := a.tab.Declare(a.scope, Symbol{
			Name:    p.Name,
			Kind:    SymVar,
			Type:    p.Type,
			Scope:   a.scope,
			Param:   p.Qual,
			IsConst: p.IsConst,
		})
		if err != nil {
			a.errf(ErrDuplicateDeclaration, d.Params[i].Tok, "%v", err)
			continue
		}
		d.Syms = append(d.Syms, id)
	}

	// Parameters and the outermost body statements share one scope, so a
	// local that reuses a parameter name is a duplicate, not a shadow.
	for _, s := range d.Body.Stmts {
		a.checkStmt(s)
	}

	a.scope = outer
	a.fn = nil
}

func (a *analyzer) checkStmt(s Stmt) {
	switch n := s.(type) {
	case *VarDecl:
		a.checkLocal(n)
	case *StructDecl:
		a.declareStruct(n)
	case *Assign:
		a.checkAssign(n)
	case *ExprStmt:
		a.checkExpr(n.X)
	case *Block:
		outer := a.scope
		a.scope = a.tab.Push(outer)
		for _, st := range n.Stmts {
			a.checkStmt(st)
		}
		a.scope = outer
	case *If:
		a.checkExpr(n.Cond)
		a.mustBool(n.Cond, "if condition")
		a.checkStmt(n.Then)
		if n.Else != nil {
			a.checkStmt(n.Else)
		}
	case *While:
		a.checkExpr(n.Cond)
		a.mustBool(n.Cond, "while condition")
		a.loops++
		a.checkStmt(n.Body)
		a.loops--
	case *DoWhile:
		a.loops++
		a.checkStmt(n.Body)
		a.loops--
		a.checkExpr(n.Cond)
		a.mustBool(n.Cond, "do-while condition")
	case *For:
		outer := a.scope
		a.scope = a.tab.Push(outer)
		if n.Init != nil {
			a.checkStmt(n.Init)
		}
		if n.Cond != nil {
			a.checkExpr(n.Cond)
			a.mustBool(n.Cond, "for condition")
		}
		if n.Post != nil {
			a.checkStmt(n.Post)
		}
		a.loops++
		a.checkStmt(n.Body)
		a.loops--
		a.scope = outer
	case *Return:
		a.checkReturn(n)
	case *Break:
		if a.loops == 0 {
			a.errf(ErrBadJump, n.Tok, "break outside a loop")
		}
	case *Continue:
		if a.loops == 0 {
			a.errf(ErrBadJump, n.Tok, "continue outside a loop")
		}
	case *Discard:
		// valid anywhere; it abandons the whole invocation
	}
}

func (a *analyzer) checkLocal(d *VarDecl) {
	if d.Qual != QualNone && d.Qual != QualConst {
		a.errf(ErrInvalidQualifier, d.Tok, "%s is only valid at file scope", d.Qual)
		return
	}
	t := a.declCommon(d)
	if t.IsInvalid() {
		return
	}

	var cv *Value
	if d.Qual == QualConst {
		if d.Init == nil {
			a.errf(ErrExpectedConstant, d.Tok, "const %q needs an initializer", d.Name)
			return
		}
		v, ok := Eval(d.Init, a.tab)
		if !ok {
			a.errf(ErrExpectedConstant, d.Tok, "initializer of const %q is not a constant expression", d.Name)
			return
		}
		cv = v
	}

	id, err := a.tab.Declare(a.scope, Symbol{
		Name:    d.Name,
		Kind:    SymVar,
		Type:    t,
		Qual:    d.Qual,
		Scope:   a.scope,
		IsConst: d.Qual == QualConst,
		Const:   cv,
	})
	if err != nil {
		a.errf(ErrDuplicateDeclaration, d.Tok, "%v", err)
		return
	}
	d.Sym = id
}

func (a *analyzer) checkReturn(n *Return) {
	if a.fn == nil {
		return
	}
	if a.fn.Ret.Kind == KindVoid {
		if n.X != nil {
			a.errf(ErrReturnType, n.Tok, "void function %q cannot return a value", a.fn.Name)
		}
		return
	}
	if n.X == nil {
		a.errf(ErrReturnType, n.Tok, "function %q must return %s", a.fn.Name, a.fn.Ret)
		return
	}
	a.checkExpr(n.X)
	if n.X.Info().T.IsInvalid() {
		return
	}
	conv, ok := a.coerce(n.X, a.fn.Ret)
	if !ok {
		a.errf(ErrReturnType, n.Tok, "cannot return %s from function returning %s", n.X.Info().T, a.fn.Ret)
		return
	}
	n.X = conv
}

func (a *analyzer) checkAssign(s *Assign) {
	a.checkExpr(s.L)
	a.checkExpr(s.R)
	lt := s.L.Info().T
	rt := s.R.Info().T
	if lt.IsInvalid() || rt.IsInvalid() {
		return
	}
	tok := s.L.Info().Tok

	lv, ro := a.lvalueInfo(s.L)
	if !lv {
		a.errf(ErrRequiresLValue, tok, "left side of assignment is not assignable")
		return
	}
	if ro {
		a.errf(ErrAssignToReadOnly, tok, "cannot assign to read-only %s", s.L)
		return
	}
	if m, ok := s.L.(*Member); ok && m.Swizzle != nil && hasRepeats(m.Swizzle) {
		a.errf(ErrInvalidSwizzleAssignment, tok, "swizzle %q repeats a component on the left of an assignment", m.Name)
		return
	}

	if s.Op == ASSIGN {
		conv, ok := a.coerce(s.R, lt)
		if !ok {
			a.errf(ErrTypeMismatch, tok, "cannot assign %s to %s", rt, lt)
			return
		}
		s.R = conv
		return
	}

	// Compound assignment types like the underlying binary operator, and
	// the result has to land back in the left operand unchanged.
	op := map[TokenType]TokenType{
		PLUS_ASSIGN:  PLUS,
		MINUS_ASSIGN: MINUS,
		STAR_ASSIGN:  STAR,
		SLASH_ASSIGN: SLASH,
	}[s.Op]
	res, _, wantR, ok := binaryOperandTypes(op, lt, rt)
	if !ok || !res.Equal(lt) {
		a.errf(ErrTypeMismatch, tok, "invalid operands %s and %s for %s", lt, rt, s.Op)
		return
	}
	s.R = convertTo(s.R, wantR)
}

//  Expressions

func (a *analyzer) checkExpr(e Expr) {
	info := e.Info()
	switch n := e.(type) {
	case *IntLit:
		if n.IsUint {
			info.T = TypeUint
		} else {
			info.T = TypeInt
		}
	case *FloatLit:
		info.T = TypeFloat
	case *BoolLit:
		info.T = TypeBool
	case *Ident:
		id, ok := a.tab.Resolve(a.scope, n.Name)
		if !ok {
			a.errf(ErrUnresolvedIdentifier, info.Tok, "undefined: %s", n.Name)
			info.T = TypeInvalid
			return
		}
		n.Sym = id
		info.T = a.tab.Sym(id).Type
	case *Unary:
		a.checkUnary(n)
	case *Binary:
		a.checkBinary(n)
	case *Logical:
		a.checkExpr(n.L)
		a.checkExpr(n.R)
		if n.L.Info().T.IsInvalid() || n.R.Info().T.IsInvalid() {
			info.T = TypeInvalid
			return
		}
		if !n.L.Info().T.Equal(TypeBool) || !n.R.Info().T.Equal(TypeBool) {
			a.errf(ErrTypeMismatch, info.Tok, "operands of %s must be bool, got %s and %s",
				n.Op, n.L.Info().T, n.R.Info().T)
			info.T = TypeInvalid
			return
		}
		info.T = TypeBool
	case *Ternary:
		a.checkTernary(n)
	case *Call:
		a.checkCall(n)
	case *Construct:
		t := a.resolveTypeRef(n.Ref, true)
		if t.IsInvalid() {
			info.T = TypeInvalid
			return
		}
		for _, arg := range n.Args {
			a.checkExpr(arg)
			if arg.Info().T.IsInvalid() {
				info.T = TypeInvalid
				return
			}
		}
		t, ok := a.checkConstruct(t, n.Args, info.Tok)
		if !ok {
			info.T = TypeInvalid
			return
		}
		n.To = t
		info.T = t
	case *Index:
		a.checkIndex(n)
	case *Member:
		a.checkMember(n)
	case *Length:
		a.checkLength(n)
	case *Convert:
		// inserted by this pass only; nothing to re-check
	}
}

func (a *analyzer) checkUnary(n *Unary) {
	a.checkExpr(n.X)
	xt := n.X.Info().T
	if xt.IsInvalid() {
		n.T = TypeInvalid
		return
	}
	switch n.Op {
	case MINUS, PLUS:
		if !xt.IsNumeric() {
			a.errf(ErrTypeMismatch, n.Tok, "operand of unary %s must be numeric, got %s", n.Op, xt)
			n.T = TypeInvalid
			return
		}
	case TILDE:
		if !xt.IsIntegral() {
			a.errf(ErrTypeMismatch, n.Tok, "operand of ~ must be int or uint, got %s", xt)
			n.T = TypeInvalid
			return
		}
	case NOT:
		if !xt.Equal(TypeBool) {
			a.errf(ErrTypeMismatch, n.Tok, "operand of ! must be bool, got %s", xt)
			n.T = TypeInvalid
			return
		}
	case PLUS_PLUS, MINUS_MINUS:
		if !xt.IsScalar() || !xt.IsNumeric() {
			a.errf(ErrTypeMismatch, n.Tok, "operand of %s must be a numeric scalar, got %s", n.Op, xt)
			n.T = TypeInvalid
			return
		}
		lv, ro := a.lvalueInfo(n.X)
		if !lv {
			a.errf(ErrRequiresLValue, n.Tok, "operand of %s is not assignable", n.Op)
			n.T = TypeInvalid
			return
		}
		if ro {
			a.errf(ErrAssignToReadOnly, n.Tok, "cannot modify read-only %s", n.X)
			n.T = TypeInvalid
			return
		}
	}
	n.T = xt
}

func (a *analyzer) checkBinary(n *Binary) {
	a.checkExpr(n.L)
	a.checkExpr(n.R)
	lt := n.L.Info().T
	rt := n.R.Info().T
	if lt.IsInvalid() || rt.IsInvalid() {
		n.T = TypeInvalid
		return
	}
	res, wantL, wantR, ok := binaryOperandTypes(n.Op, lt, rt)
	if !ok {
		a.errf(ErrTypeMismatch, n.Tok, "invalid operands %s and %s for %s", lt, rt, n.Op)
		n.T = TypeInvalid
		return
	}
	n.L = convertTo(n.L, wantL)
	n.R = convertTo(n.R, wantR)
	n.T = res
}

func (a *analyzer) checkTernary(n *Ternary) {
	a.checkExpr(n.Cond)
	a.mustBool(n.Cond, "condition of ?:")
	a.checkExpr(n.Then)
	a.checkExpr(n.Else)
	tt := n.Then.Info().T
	et := n.Else.Info().T
	if tt.IsInvalid() || et.IsInvalid() {
		n.T = TypeInvalid
		return
	}
	switch {
	case tt.Equal(et):
		n.T = tt
	case ImplicitConvert(tt, et):
		n.Then = convertTo(n.Then, et)
		n.T = et
	case ImplicitConvert(et, tt):
		n.Else = convertTo(n.Else, tt)
		n.T = tt
	default:
		a.errf(ErrTypeMismatch, n.Tok, "mismatched branches of ?:, %s and %s", tt, et)
		n.T = TypeInvalid
	}
}

func (a *analyzer) checkIndex(n *Index) {
	a.checkExpr(n.X)
	a.checkExpr(n.Index)
	xt := n.X.Info().T
	it := n.Index.Info().T
	if xt.IsInvalid() || it.IsInvalid() {
		n.T = TypeInvalid
		return
	}
	if !it.IsScalar() || !it.IsIntegral() {
		a.errf(ErrTypeMismatch, n.Tok, "index must be int or uint, got %s", it)
		n.T = TypeInvalid
		return
	}

	var size int
	switch {
	case xt.IsArray():
		size = xt.Size
		n.T = *xt.Elem
	case xt.IsVector():
		size = xt.Size
		n.T = Scalar(xt.Base)
	case xt.IsMatrix():
		size = xt.Cols
		n.T = Vec(BaseFloat, xt.Rows)
	default:
		a.errf(ErrTypeMismatch, n.Tok, "cannot index %s", xt)
		n.T = TypeInvalid
		return
	}

	// An index known at compile time is range checked here; a dynamic one
	// gets a runtime check from the code generator.
	if v, ok := Eval(n.Index, a.tab); ok {
		i := v.Int()
		if it.Base == BaseUint {
			if uint32(v.Word()) >= uint32(size) {
				a.errf(ErrIndexOutOfRange, n.Tok, "index %d out of range [0, %d)", uint32(v.Word()), size)
				n.T = TypeInvalid
			}
		} else if i < 0 || int(i) >= size {
			a.errf(ErrIndexOutOfRange, n.Tok, "index %d out of range [0, %d)", i, size)
			n.T = TypeInvalid
		}
	}
}

func (a *analyzer) checkMember(n *Member) {
	a.checkExpr(n.X)
	xt := n.X.Info().T
	if xt.IsInvalid() {
		n.T = TypeInvalid
		return
	}

	if xt.Kind == KindStruct {
		i := xt.Struct.FindMember(n.Name)
		if i < 0 {
			a.errf(ErrUnresolvedIdentifier, n.Tok, "struct %s has no member %q", xt.Struct.Name, n.Name)
			n.T = TypeInvalid
			return
		}
		n.MemberIndex = i
		n.T = xt.Struct.Members[i].Type
		return
	}

	if xt.IsVector() {
		idx, ok := swizzleIndices(n.Name, xt.Size)
		if !ok {
			a.errf(ErrInvalidSwizzle, n.Tok, "invalid swizzle %q on %s", n.Name, xt)
			n.T = TypeInvalid
			return
		}
		n.Swizzle = idx
		if len(idx) == 1 {
			n.T = Scalar(xt.Base)
		} else {
			n.T = Vec(xt.Base, len(idx))
		}
		return
	}

	a.errf(ErrTypeMismatch, n.Tok, "%s has no members", xt)
	n.T = TypeInvalid
}

func (a *analyzer) checkLength(n *Length) {
	a.checkExpr(n.X)
	xt := n.X.Info().T
	if xt.IsInvalid() {
		n.T = TypeInvalid
		return
	}
	var size int
	switch {
	case xt.IsArray():
		size = xt.Size
	case xt.IsVector():
		size = xt.Size
	case xt.IsMatrix():
		size = xt.Cols
	default:
		a.errf(ErrTypeMismatch, n.Tok, "%s has no length()", xt)
		n.T = TypeInvalid
		return
	}
	n.T = TypeInt
	n.Const = scalarValue(TypeInt, int32(size))
}

//  Calls and overload resolution

func (a *analyzer) checkCall(n *Call) {
	// A call whose callee names a struct is a constructor.
	if st, ok := a.tab.Struct(n.Name); ok {
		t := StructOf(st)
		for _, arg := range n.Args {
			a.checkExpr(arg)
			if arg.Info().T.IsInvalid() {
				n.T = TypeInvalid
				return
			}
		}
		t, ok := a.checkConstruct(t, n.Args, n.Tok)
		if !ok {
			n.T = TypeInvalid
			return
		}
		n.Ctor = &t
		n.T = t
		return
	}

	var candidates []*FuncSymbol
	if os := a.tab.Funcs(n.Name); os != nil {
		candidates = append(candidates, os.Fns...)
	}
	user := len(candidates)
	if bs := lookupBuiltin(n.Name); bs != nil {
		for _, b := range bs.Fns {
			shadowed := false
			for _, u := range candidates[:user] {
				if u.sameSignature(b) {
					shadowed = true
					break
				}
			}
			if !shadowed {
				candidates = append(candidates, b)
			}
		}
	}
	if len(candidates) == 0 {
		a.errf(ErrUnresolvedIdentifier, n.Tok, "undefined function %q", n.Name)
		n.T = TypeInvalid
		return
	}

	for _, arg := range n.Args {
		a.checkExpr(arg)
		if arg.Info().T.IsInvalid() {
			n.T = TypeInvalid
			return
		}
	}

	best, err := pickOverload(candidates, n.Args)
	if err != nil {
		code := ErrNoMatchingOverload
		if _, amb := err.(ambiguousErr); amb {
			code = ErrAmbiguousCall
		}
		a.errf(code, n.Tok, "%v", err)
		n.T = TypeInvalid
		return
	}
	n.Fn = best

	for i, arg := range n.Args {
		p := best.Params[i]
		if p.Qual == ParamIn {
			n.Args[i] = convertTo(arg, p.Type)
			continue
		}
		// out and inout arguments are written back after the call.
		lv, ro := a.lvalueInfo(arg)
		if !lv {
			a.errf(ErrRequiresLValue, arg.Info().Tok, "argument for %s parameter %q is not assignable", p.Qual, p.Name)
			n.T = TypeInvalid
			return
		}
		if ro {
			a.errf(ErrAssignToReadOnly, arg.Info().Tok, "cannot pass read-only %s as %s parameter %q", arg, p.Qual, p.Name)
			n.T = TypeInvalid
			return
		}
		if m, ok := arg.(*Member); ok && m.Swizzle != nil {
			if len(m.Swizzle) > 1 {
				a.errf(ErrRequiresLValue, arg.Info().Tok, "cannot bind multi-component swizzle %q to %s parameter %q", m.Name, p.Qual, p.Name)
				n.T = TypeInvalid
				return
			}
			if hasRepeats(m.Swizzle) {
				a.errf(ErrInvalidSwizzleAssignment, arg.Info().Tok, "swizzle %q repeats a component", m.Name)
				n.T = TypeInvalid
				return
			}
		}
	}
	n.T = best.Ret
}

type ambiguousErr struct{ msg string }

func (e ambiguousErr) Error() string { return e.msg }

// pickOverload selects the candidate with the lowest worst-case argument
// cost: an exact match costs 0 and an implicit conversion costs 1, so a
// candidate needing no conversion on its loosest argument beats one that
// converts anywhere. Two survivors with the same worst case are ambiguous.
func pickOverload(candidates []*FuncSymbol, args []Expr) (*FuncSymbol, error) {
	type scored struct {
		fn    *FuncSymbol
		worst int
	}
	var viable []scored
	for _, fn := range candidates {
		if len(fn.Params) != len(args) {
			continue
		}
		worst := 0
		ok := true
		for i, arg := range args {
			at := arg.Info().T
			p := fn.Params[i]
			switch {
			case at.Equal(p.Type):
				// cost 0
			case p.Qual == ParamIn && ImplicitConvert(at, p.Type):
				if worst < 1 {
					worst = 1
				}
			default:
				ok = false
			}
			if !ok {
				break
			}
		}
		if ok {
			viable = append(viable, scored{fn, worst})
		}
	}

	if len(viable) == 0 {
		var at []string
		for _, arg := range args {
			at = append(at, arg.Info().T.String())
		}
		var sigs []string
		for _, fn := range candidates {
			sigs = append(sigs, fn.Signature())
		}
		return nil, fmt.Errorf("no overload of %q accepts (%s); have %s",
			candidates[0].Name, strings.Join(at, ", "), strings.Join(sigs, ", "))
	}

	best := viable[0]
	ties := 0
	for _, v := range viable[1:] {
		if v.worst < best.worst {
			best = v
			ties = 0
		} else if v.worst == best.worst {
			ties++
		}
	}
	if ties > 0 {
		var sigs []string
		for _, v := range viable {
			if v.worst == best.worst {
				sigs = append(sigs, v.fn.Signature())
			}
		}
		return nil, ambiguousErr{fmt.Sprintf("call of %q is ambiguous between %s",
			best.fn.Name, strings.Join(sigs, " and "))}
	}
	return best.fn, nil
}

//  Constructors

// explicitConvertible reports whether a constructor may convert between the
// two scalar bases. Constructors convert freely; only implicit conversions
// are restricted.
func explicitConvertible(from, to BaseType) bool {
	return from != BaseNone && to != BaseNone
}

// checkConstruct validates a constructor call and returns the concrete
// result type (an unsized array picks up its length from the argument
// count).
func (a *analyzer) checkConstruct(to Type, args []Expr, tok Token) (Type, bool) {
	bad := func(format string, fa ...any) (Type, bool) {
		a.errf(ErrInvalidConstructor, tok, format, fa...)
		return TypeInvalid, false
	}
	if len(args) == 0 {
		return bad("constructor of %s needs arguments", to)
	}

	switch to.Kind {
	case KindScalar:
		if len(args) != 1 {
			return bad("%s() takes exactly one argument", to)
		}
		at := args[0].Info().T
		if !at.IsScalar() || !explicitConvertible(at.Base, to.Base) {
			return bad("cannot construct %s from %s", to, at)
		}
		return to, true

	case KindVector:
		if len(args) == 1 {
			at := args[0].Info().T
			if at.IsScalar() && explicitConvertible(at.Base, to.Base) {
				return to, true // broadcast
			}
			if at.IsVector() && at.Size >= to.Size && explicitConvertible(at.Base, to.Base) {
				return to, true
			}
			return bad("cannot construct %s from %s", to, at)
		}
		total := 0
		for _, arg := range args {
			at := arg.Info().T
			switch {
			case at.IsScalar():
				total++
			case at.IsVector():
				total += at.Size
			default:
				return bad("cannot use %s in a %s constructor", at, to)
			}
			if !explicitConvertible(at.Base, to.Base) {
				return bad("cannot construct %s from %s", to, at)
			}
		}
		if total != to.Size {
			return bad("%s constructor needs %d components, got %d", to, to.Size, total)
		}
		return to, true

	case KindMatrix:
		if len(args) == 1 {
			at := args[0].Info().T
			if at.IsScalar() && explicitConvertible(at.Base, BaseFloat) {
				return to, true // scalar on the diagonal
			}
			if at.IsMatrix() {
				return to, true // resize, identity-filled
			}
			return bad("cannot construct %s from %s", to, at)
		}
		total := 0
		for _, arg := range args {
			at := arg.Info().T
			switch {
			case at.IsScalar():
				total++
			case at.IsVector():
				total += at.Size
			default:
				return bad("cannot use %s in a %s constructor", at, to)
			}
			if !explicitConvertible(at.Base, BaseFloat) {
				return bad("cannot construct %s from %s", to, at)
			}
		}
		if total != to.Cols*to.Rows {
			return bad("%s constructor needs %d components, got %d", to, to.Cols*to.Rows, total)
		}
		return to, true

	case KindArray:
		if to.Size == Unsized {
			to.Size = len(args)
		} else if len(args) != to.Size {
			return bad("%s constructor needs %d elements, got %d", to, to.Size, len(args))
		}
		for i, arg := range args {
			at := arg.Info().T
			if !at.Equal(*to.Elem) && !ImplicitConvert(at, *to.Elem) {
				return bad("element %d: cannot use %s in a %s constructor", i, at, to)
			}
			args[i] = convertTo(arg, *to.Elem)
		}
		return to, true

	case KindStruct:
		if len(args) != len(to.Struct.Members) {
			return bad("%s constructor needs %d arguments, got %d", to, len(to.Struct.Members), len(args))
		}
		for i, arg := range args {
			mt := to.Struct.Members[i].Type
			at := arg.Info().T
			if !at.Equal(mt) && !ImplicitConvert(at, mt) {
				return bad("member %q: cannot use %s, want %s", to.Struct.Members[i].Name, at, mt)
			}
			args[i] = convertTo(arg, mt)
		}
		return to, true
	}
	return bad("cannot construct %s", to)
}

//  Shared helpers

func (a *analyzer) mustBool(e Expr, what string) {
	t := e.Info().T
	if t.IsInvalid() {
		return
	}
	if !t.Equal(TypeBool) {
		a.errf(ErrConditionMustBeBool, e.Info().Tok, "%s must be bool, got %s", what, t)
	}
}

// coerce returns e converted to want via an implicit conversion, or false
// if no such conversion exists.
func (a *analyzer) coerce(e Expr, want Type) (Expr, bool) {
	t := e.Info().T
	if t.Equal(want) {
		return e, true
	}
	if ImplicitConvert(t, want) {
		return convertTo(e, want), true
	}
	return nil, false
}

// convertTo wraps e in a Convert node unless it already has the wanted
// type. Callers must have verified the conversion is legal.
func convertTo(e Expr, want Type) Expr {
	if e.Info().T.Equal(want) {
		return e
	}
	c := &Convert{X: e}
	c.T = want
	c.Tok = e.Info().Tok
	return c
}

// lvalueInfo reports whether e designates storage and whether that storage
// is read-only. Indexing and member access inherit both properties from
// their base.
func (a *analyzer) lvalueInfo(e Expr) (lv, readonly bool) {
	switch n := e.(type) {
	case *Ident:
		if n.Sym == NoSymbol {
			return false, false
		}
		sym := a.tab.Sym(n.Sym)
		ro := sym.IsConst || sym.Qual == QualConst || sym.Qual == QualUniform || sym.Qual == QualIn
		return true, ro
	case *Index:
		return a.lvalueInfo(n.X)
	case *Member:
		return a.lvalueInfo(n.X)
	}
	return false, false
}

// binaryOperandTypes types a binary operator application. It returns the
// result type and the type each operand must be converted to, or ok=false
// when the combination is invalid.
func binaryOperandTypes(op TokenType, lt, rt Type) (res, wantL, wantR Type, ok bool) {
	fail := func() (Type, Type, Type, bool) { return TypeInvalid, lt, rt, false }

	switch op {
	case PLUS, MINUS, STAR, SLASH:
		if !lt.IsNumeric() || !rt.IsNumeric() {
			return fail()
		}
		if lt.IsMatrix() || rt.IsMatrix() {
			return matrixOperandTypes(op, lt, rt)
		}
		base, ok := unifyBase(lt.Base, rt.Base)
		if !ok {
			return fail()
		}
		switch {
		case lt.IsScalar() && rt.IsScalar():
			t := Scalar(base)
			return t, t, t, true
		case lt.IsVector() && rt.IsVector():
			if lt.Size != rt.Size {
				return fail()
			}
			t := Vec(base, lt.Size)
			return t, t, t, true
		case lt.IsVector() && rt.IsScalar():
			return Vec(base, lt.Size), lt.WithBase(base), Scalar(base), true
		case lt.IsScalar() && rt.IsVector():
			return Vec(base, rt.Size), Scalar(base), rt.WithBase(base), true
		}
		return fail()

	case PERCENT, AMP, PIPE, CARET:
		if !lt.IsIntegral() || !rt.IsIntegral() || lt.Base != rt.Base {
			return fail()
		}
		switch {
		case lt.IsScalar() && rt.IsScalar():
			return lt, lt, rt, true
		case lt.IsVector() && rt.IsVector() && lt.Size == rt.Size:
			return lt, lt, rt, true
		case lt.IsVector() && rt.IsScalar():
			return lt, lt, rt, true
		case lt.IsScalar() && rt.IsVector():
			return rt, lt, rt, true
		}
		return fail()

	case SHL, SHR:
		if !lt.IsIntegral() || !rt.IsIntegral() {
			return fail()
		}
		if rt.IsScalar() || (lt.IsVector() && rt.IsVector() && lt.Size == rt.Size) {
			return lt, lt, rt, true
		}
		return fail()

	case EQUALS, NOT_EQ:
		switch {
		case lt.Equal(rt):
			return TypeBool, lt, rt, true
		case ImplicitConvert(lt, rt):
			return TypeBool, rt, rt, true
		case ImplicitConvert(rt, lt):
			return TypeBool, lt, lt, true
		}
		return fail()

	case LESS, GREATER, LESS_EQ, GREATER_EQ:
		if !lt.IsScalar() || !rt.IsScalar() || !lt.IsNumeric() || !rt.IsNumeric() {
			return fail()
		}
		base, ok := unifyBase(lt.Base, rt.Base)
		if !ok {
			return fail()
		}
		t := Scalar(base)
		return TypeBool, t, t, true
	}
	return fail()
}

// matrixOperandTypes handles every +, -, *, / combination involving a
// matrix. * is the linear-algebra product when both sides have dimensions;
// everything else is component-wise.
func matrixOperandTypes(op TokenType, lt, rt Type) (res, wantL, wantR Type, ok bool) {
	fail := func() (Type, Type, Type, bool) { return TypeInvalid, lt, rt, false }
	fscalar := Scalar(BaseFloat)

	scalarSide := func(mt, st Type) (Type, Type, Type, bool) {
		if !st.IsScalar() || !implicitOrSame(st.Base, BaseFloat) {
			return fail()
		}
		if lt.IsMatrix() {
			return mt, mt, fscalar, true
		}
		return mt, fscalar, mt, true
	}

	switch {
	case lt.IsMatrix() && rt.IsMatrix():
		if op == STAR {
			if lt.Cols != rt.Rows {
				return fail()
			}
			return Mat(rt.Cols, lt.Rows), lt, rt, true
		}
		if lt.Cols != rt.Cols || lt.Rows != rt.Rows {
			return fail()
		}
		return lt, lt, rt, true

	case lt.IsMatrix() && rt.IsVector():
		if op != STAR || rt.Size != lt.Cols || !implicitOrSame(rt.Base, BaseFloat) {
			return fail()
		}
		return Vec(BaseFloat, lt.Rows), lt, Vec(BaseFloat, rt.Size), true

	case lt.IsVector() && rt.IsMatrix():
		if op != STAR || lt.Size != rt.Rows || !implicitOrSame(lt.Base, BaseFloat) {
			return fail()
		}
		return Vec(BaseFloat, rt.Cols), Vec(BaseFloat, lt.Size), rt, true

	case lt.IsMatrix() && rt.IsScalar():
		return scalarSide(lt, rt)

	case lt.IsScalar() && rt.IsMatrix():
		return scalarSide(rt, lt)
	}
	return fail()
}

func implicitOrSame(from, to BaseType) bool {
	return from == to || implicitScalarConvert(from, to)
}

// unifyBase finds the common base of two numeric operands. int and uint
// widen to float; they never convert into each other.
func unifyBase(l, r BaseType) (BaseType, bool) {
	if l == r {
		return l, true
	}
	if implicitScalarConvert(l, r) {
		return r, true
	}
	if implicitScalarConvert(r, l) {
		return l, true
	}
	return BaseNone, false
}

//  Recursion detection

// checkRecursion rejects any cycle in the static call graph, including a
// function that calls itself.
func (a *analyzer) checkRecursion(fns []*FuncDecl) {
	callees := make(map[*FuncSymbol][]*FuncSymbol)
	for _, d := range fns {
		if d.Fn == nil {
			continue
		}
		seen := map[*FuncSymbol]bool{}
		walkStmt(d.Body, func(e Expr) {
			call, ok := e.(*Call)
			if !ok || call.Fn == nil || call.Fn.Decl == nil || seen[call.Fn] {
				return
			}
			seen[call.Fn] = true
			callees[d.Fn] = append(callees[d.Fn], call.Fn)
		})
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[*FuncSymbol]int)

	// Explicit DFS stack so a deep but acyclic call graph cannot overflow
	// the compiler's own stack. The stack doubles as the gray path for
	// cycle reporting.
	type frame struct {
		fn   *FuncSymbol
		next int
	}
	for _, d := range fns {
		if d.Fn == nil || color[d.Fn] != white {
			continue
		}
		color[d.Fn] = gray
		stack := []frame{{fn: d.Fn}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(callees[top.fn]) {
				color[top.fn] = black
				stack = stack[:len(stack)-1]
				continue
			}
			callee := callees[top.fn][top.next]
			top.next++
			switch color[callee] {
			case gray:
				start := 0
				for i := range stack {
					if stack[i].fn == callee {
						start = i
						break
					}
				}
				var names []string
				for _, f := range stack[start:] {
					names = append(names, f.fn.Name)
				}
				names = append(names, callee.Name)
				a.errf(ErrStaticRecursion, top.fn.Decl.Tok,
					"recursive call chain: %s", strings.Join(names, " -> "))
				return
			case white:
				color[callee] = gray
				stack = append(stack, frame{fn: callee})
			}
		}
	}
}

//  AST walking

// walkExpr visits e and every expression beneath it.
func walkExpr(e Expr, visit func(Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch n := e.(type) {
	case *Unary:
		walkExpr(n.X, visit)
	case *Binary:
		walkExpr(n.L, visit)
		walkExpr(n.R, visit)
	case *Logical:
		walkExpr(n.L, visit)
		walkExpr(n.R, visit)
	case *Ternary:
		walkExpr(n.Cond, visit)
		walkExpr(n.Then, visit)
		walkExpr(n.Else, visit)
	case *Call:
		for _, arg := range n.Args {
			walkExpr(arg, visit)
		}
	case *Construct:
		for _, arg := range n.Args {
			walkExpr(arg, visit)
		}
	case *Convert:
		walkExpr(n.X, visit)
	case *Index:
		walkExpr(n.X, visit)
		walkExpr(n.Index, visit)
	case *Member:
		walkExpr(n.X, visit)
	case *Length:
		walkExpr(n.X, visit)
	}
}

// walkStmt visits every expression reachable from s.
func walkStmt(s Stmt, visit func(Expr)) {
	switch n := s.(type) {
	case *VarDecl:
		walkExpr(n.Init, visit)
	case *Assign:
		walkExpr(n.L, visit)
		walkExpr(n.R, visit)
	case *ExprStmt:
		walkExpr(n.X, visit)
	case *Block:
		for _, st := range n.Stmts {
			walkStmt(st, visit)
		}
	case *If:
		walkExpr(n.Cond, visit)
		walkStmt(n.Then, visit)
		if n.Else != nil {
			walkStmt(n.Else, visit)
		}
	case *While:
		walkExpr(n.Cond, visit)
		walkStmt(n.Body, visit)
	case *DoWhile:
		walkStmt(n.Body, visit)
		walkExpr(n.Cond, visit)
	case *For:
		if n.Init != nil {
			walkStmt(n.Init, visit)
		}
		walkExpr(n.Cond, visit)
		if n.Post != nil {
			walkStmt(n.Post, visit)
		}
		walkStmt(n.Body, visit)
	case *Return:
		walkExpr(n.X, visit)
	}
}

//  Type reference resolution

// resolveTypeRef turns a syntactic type reference into a concrete Type.
// A nil dimension ([]), allowed only in the outermost position when
// allowUnsized is set, produces an Unsized array for later inference.
func (a *analyzer) resolveTypeRef(ref TypeRef, allowUnsized bool) Type {
	base, ok := typeByName[ref.Name]
	if !ok {
		if st, found := a.tab.Struct(ref.Name); found {
			base = StructOf(st)
		} else {
			a.errf(ErrUndefinedType, ref.Tok, "undefined type %q", ref.Name)
			return TypeInvalid
		}
	}

	t := base
	for i := len(ref.Dims) - 1; i >= 0; i-- {
		dim := ref.Dims[i]
		if dim == nil {
			if i != 0 || !allowUnsized {
				a.errf(ErrInvalidArraySize, ref.Tok, "array dimension needs an explicit size here")
				return TypeInvalid
			}
			t = ArrayOf(t, Unsized)
			continue
		}
		a.checkExpr(dim)
		if dim.Info().T.IsInvalid() {
			return TypeInvalid
		}
		if !dim.Info().T.IsScalar() || !dim.Info().T.IsIntegral() {
			a.errf(ErrInvalidArraySize, ref.Tok, "array size must be an integer, got %s", dim.Info().T)
			return TypeInvalid
		}
		v, folded := Eval(dim, a.tab)
		if !folded {
			a.errf(ErrInvalidArraySize, ref.Tok, "array size must be a constant expression")
			return TypeInvalid
		}
		n := v.Int()
		if dim.Info().T.Base == BaseUint {
			n = int32(uint32(v.Word()))
		}
		if n <= 0 {
			a.errf(ErrInvalidArraySize, ref.Tok, "array size must be positive, got %d", n)
			return TypeInvalid
		}
		t = ArrayOf(t, int(n))
	}
	return t
}
