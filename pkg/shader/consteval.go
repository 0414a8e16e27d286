package shader

import (
	"fmt"
	"strings"

	"lumen/pkg/fixp"
)

// Value is a folded compile-time constant: a type plus its flattened words,
// in exactly the layout the code generator gives the value at runtime.
// Bools are 0/1, floats are Q16.16 bits, uints are reinterpreted int32.
// Values are immutable once produced.
type Value struct {
	T    Type
	Bits []int32
}

func scalarValue(t Type, w int32) *Value { return &Value{T: t, Bits: []int32{w}} }

// Word returns the single word of a scalar value.
func (v *Value) Word() int32 { return v.Bits[0] }

// Bool interprets a scalar value as a condition.
func (v *Value) Bool() bool { return v.Bits[0] != 0 }

// Int returns a scalar value as a signed integer, truncating floats the way
// the runtime conversion would.
func (v *Value) Int() int32 {
	if v.T.Base == BaseFloat {
		return fixp.ToInt(v.Bits[0])
	}
	return v.Bits[0]
}

func (v *Value) String() string {
	words := make([]string, len(v.Bits))
	for i, w := range v.Bits {
		switch v.T.Base {
		case BaseFloat:
			words[i] = fmt.Sprintf("%g", fixp.Float(w))
		case BaseUint:
			words[i] = fmt.Sprintf("%du", uint32(w))
		case BaseBool:
			words[i] = fmt.Sprintf("%v", w != 0)
		default:
			words[i] = fmt.Sprintf("%d", w)
		}
	}
	if len(words) == 1 {
		return words[0]
	}
	return fmt.Sprintf("%s(%s)", v.T, strings.Join(words, ", "))
}

// Eval attempts to fold a typed expression into a Value by structural
// recursion. A false return means "not constant", which is not an error:
// callers decide whether a constant was required. Results are memoized on
// the node.
//
// Folding uses the same fixp routines the VM executes, so a folded result
// and the runtime result of the same expression are identical bit for bit.
// Operations the language leaves undefined (division by zero and friends)
// are never folded.
func Eval(e Expr, tab *Table) (*Value, bool) {
	info := e.Info()
	if info.Const != nil {
		return info.Const, true
	}
	if info.evalTried {
		return nil, false
	}
	info.evalTried = true

	v, ok := eval(e, tab)
	if !ok || v == nil {
		return nil, false
	}
	info.Const = v
	return v, true
}

func eval(e Expr, tab *Table) (*Value, bool) {
	switch n := e.(type) {
	case *IntLit:
		return scalarValue(n.T, int32(n.Value)), true
	case *FloatLit:
		return scalarValue(n.T, n.Bits), true
	case *BoolLit:
		w := int32(0)
		if n.Value {
			w = 1
		}
		return scalarValue(n.T, w), true
	case *Ident:
		if n.Sym == NoSymbol {
			return nil, false
		}
		sym := tab.Sym(n.Sym)
		if sym.Const != nil {
			return sym.Const, true
		}
		return nil, false
	case *Convert:
		x, ok := Eval(n.X, tab)
		if !ok {
			return nil, false
		}
		return convertValue(x, n.T), true
	case *Unary:
		return evalUnary(n, tab)
	case *Binary:
		return evalBinary(n, tab)
	case *Logical:
		l, ok := Eval(n.L, tab)
		if !ok {
			return nil, false
		}
		switch n.Op {
		case AND_AND:
			if !l.Bool() {
				return scalarValue(TypeBool, 0), true
			}
		case OR_OR:
			if l.Bool() {
				return scalarValue(TypeBool, 1), true
			}
		}
		r, ok := Eval(n.R, tab)
		if !ok {
			return nil, false
		}
		if n.Op == XOR_XOR {
			return scalarValue(TypeBool, (l.Word()^r.Word())&1), true
		}
		return scalarValue(TypeBool, r.Word()&1), true
	case *Ternary:
		c, ok := Eval(n.Cond, tab)
		if !ok {
			return nil, false
		}
		if c.Bool() {
			return Eval(n.Then, tab)
		}
		return Eval(n.Else, tab)
	case *Construct:
		return evalConstruct(n.To, n.Args, tab)
	case *Call:
		if n.Ctor != nil {
			return evalConstruct(*n.Ctor, n.Args, tab)
		}
		if n.Fn != nil && n.Fn.Builtin != BuiltinNone {
			return evalBuiltin(n, tab)
		}
		return nil, false
	case *Index:
		x, ok := Eval(n.X, tab)
		if !ok {
			return nil, false
		}
		idx, ok := Eval(n.Index, tab)
		if !ok {
			return nil, false
		}
		i := int(idx.Word())
		ew := n.T.Words()
		if i < 0 || (i+1)*ew > len(x.Bits) {
			return nil, false
		}
		return &Value{T: n.T, Bits: x.Bits[i*ew : (i+1)*ew]}, true
	case *Member:
		x, ok := Eval(n.X, tab)
		if !ok {
			return nil, false
		}
		if n.Swizzle != nil {
			bits := make([]int32, len(n.Swizzle))
			for i, k := range n.Swizzle {
				bits[i] = x.Bits[k]
			}
			return &Value{T: n.T, Bits: bits}, true
		}
		m := x.T.Struct.Members[n.MemberIndex]
		return &Value{T: n.T, Bits: x.Bits[m.Offset : m.Offset+m.Type.Words()]}, true
	case *Length:
		xt := n.X.Info().T
		if xt.IsArray() && xt.Size != Unsized {
			return scalarValue(TypeInt, int32(xt.Size)), true
		}
		return nil, false
	}
	return nil, false
}

// convertValue converts component-wise between same-shaped types.
func convertValue(v *Value, to Type) *Value {
	bits := make([]int32, len(v.Bits))
	for i, w := range v.Bits {
		bits[i] = convertWord(v.T.Base, to.Base, w)
	}
	return &Value{T: to, Bits: bits}
}

// convertWord applies one scalar base conversion, explicit or implicit.
// The instruction selection in codegen emits the matching opcode for every
// pair; keep the two in lockstep.
func convertWord(from, to BaseType, w int32) int32 {
	if from == to {
		return w
	}
	switch to {
	case BaseFloat:
		switch from {
		case BaseUint:
			return fixp.FromUint(uint32(w))
		default: // int, bool
			return fixp.FromInt(w)
		}
	case BaseInt:
		if from == BaseFloat {
			return fixp.ToInt(w)
		}
		return w // uint reinterpret, bool widens
	case BaseUint:
		if from == BaseFloat {
			return int32(fixp.ToUint(w))
		}
		return w // int reinterpret, bool widens
	case BaseBool:
		if w != 0 {
			return 1
		}
		return 0
	}
	return w
}

func evalUnary(n *Unary, tab *Table) (*Value, bool) {
	if n.Op == PLUS_PLUS || n.Op == MINUS_MINUS {
		return nil, false
	}
	x, ok := Eval(n.X, tab)
	if !ok {
		return nil, false
	}
	bits := make([]int32, len(x.Bits))
	for i, w := range x.Bits {
		switch n.Op {
		case MINUS:
			bits[i] = -w
		case PLUS:
			bits[i] = w
		case NOT:
			bits[i] = w ^ 1
		case TILDE:
			bits[i] = ^w
		default:
			return nil, false
		}
	}
	return &Value{T: n.T, Bits: bits}, true
}

func evalBinary(n *Binary, tab *Table) (*Value, bool) {
	l, ok := Eval(n.L, tab)
	if !ok {
		return nil, false
	}
	r, ok := Eval(n.R, tab)
	if !ok {
		return nil, false
	}

	// Aggregate equality compares all words.
	if n.Op == EQUALS || n.Op == NOT_EQ {
		eq := len(l.Bits) == len(r.Bits)
		if eq {
			for i := range l.Bits {
				if l.Bits[i] != r.Bits[i] {
					eq = false
					break
				}
			}
		}
		w := int32(0)
		if eq == (n.Op == EQUALS) {
			w = 1
		}
		return scalarValue(TypeBool, w), true
	}

	base := l.T.Base

	// Relational operators are scalar-only.
	switch n.Op {
	case LESS, GREATER, LESS_EQ, GREATER_EQ:
		lw, rw := l.Word(), r.Word()
		var res bool
		if base == BaseUint {
			a, b := uint32(lw), uint32(rw)
			switch n.Op {
			case LESS:
				res = a < b
			case GREATER:
				res = a > b
			case LESS_EQ:
				res = a <= b
			default:
				res = a >= b
			}
		} else {
			switch n.Op {
			case LESS:
				res = lw < rw
			case GREATER:
				res = lw > rw
			case LESS_EQ:
				res = lw <= rw
			default:
				res = lw >= rw
			}
		}
		w := int32(0)
		if res {
			w = 1
		}
		return scalarValue(TypeBool, w), true
	}

	// Linear-algebra multiply has its own shape rules.
	if n.Op == STAR && (l.T.IsMatrix() || r.T.IsMatrix()) &&
		!(l.T.IsScalar() || r.T.IsScalar()) {
		return evalMatMul(n.T, l, r)
	}

	// Component-wise with scalar broadcast.
	bits := make([]int32, n.T.Words())
	for i := range bits {
		lw := broadcastWord(l, i)
		rw := broadcastWord(r, i)
		w, ok := arithWord(n.Op, base, lw, rw)
		if !ok {
			return nil, false
		}
		bits[i] = w
	}
	return &Value{T: n.T, Bits: bits}, true
}

func broadcastWord(v *Value, i int) int32 {
	if len(v.Bits) == 1 {
		return v.Bits[0]
	}
	return v.Bits[i]
}

// arithWord performs one component operation with the exact semantics of
// the matching VM instruction. Undefined operations are not folded.
func arithWord(op TokenType, base BaseType, a, b int32) (int32, bool) {
	switch base {
	case BaseFloat:
		switch op {
		case PLUS:
			return a + b, true
		case MINUS:
			return a - b, true
		case STAR:
			return fixp.Mul(a, b), true
		case SLASH:
			if b == 0 {
				return 0, false
			}
			return fixp.Div(a, b), true
		}
	case BaseUint:
		ua, ub := uint32(a), uint32(b)
		switch op {
		case PLUS:
			return int32(ua + ub), true
		case MINUS:
			return int32(ua - ub), true
		case STAR:
			return int32(ua * ub), true
		case SLASH:
			if ub == 0 {
				return 0, false
			}
			return int32(ua / ub), true
		case PERCENT:
			if ub == 0 {
				return 0, false
			}
			return int32(ua % ub), true
		case SHL:
			return int32(ua << (ub & 31)), true
		case SHR:
			return int32(ua >> (ub & 31)), true
		case AMP:
			return a & b, true
		case PIPE:
			return a | b, true
		case CARET:
			return a ^ b, true
		}
	case BaseInt:
		switch op {
		case PLUS:
			return a + b, true
		case MINUS:
			return a - b, true
		case STAR:
			return a * b, true
		case SLASH:
			if b == 0 || (a == -1<<31 && b == -1) {
				return 0, false
			}
			return a / b, true
		case PERCENT:
			if b == 0 || (a == -1<<31 && b == -1) {
				return 0, false
			}
			return a % b, true
		case SHL:
			return a << (uint32(b) & 31), true
		case SHR:
			return a >> (uint32(b) & 31), true
		case AMP:
			return a & b, true
		case PIPE:
			return a | b, true
		case CARET:
			return a ^ b, true
		}
	}
	return 0, false
}

// matIndex addresses column-major storage: element (col, row).
func matIndex(t Type, col, row int) int { return col*t.Rows + row }

func evalMatMul(res Type, l, r *Value) (*Value, bool) {
	bits := make([]int32, res.Words())
	switch {
	case l.T.IsMatrix() && r.T.IsMatrix():
		for c := 0; c < res.Cols; c++ {
			for row := 0; row < res.Rows; row++ {
				var acc int32
				for k := 0; k < l.T.Cols; k++ {
					acc += fixp.Mul(l.Bits[matIndex(l.T, k, row)], r.Bits[matIndex(r.T, c, k)])
				}
				bits[matIndex(res, c, row)] = acc
			}
		}
	case l.T.IsMatrix(): // mat * vec
		for row := 0; row < l.T.Rows; row++ {
			var acc int32
			for k := 0; k < l.T.Cols; k++ {
				acc += fixp.Mul(l.Bits[matIndex(l.T, k, row)], r.Bits[k])
			}
			bits[row] = acc
		}
	default: // vec * mat
		for c := 0; c < r.T.Cols; c++ {
			var acc int32
			for k := 0; k < r.T.Rows; k++ {
				acc += fixp.Mul(l.Bits[k], r.Bits[matIndex(r.T, c, k)])
			}
			bits[c] = acc
		}
	}
	return &Value{T: res, Bits: bits}, true
}

// evalConstruct folds a constructor whose arguments are all constant,
// mirroring the code generator's expansion exactly.
func evalConstruct(to Type, args []Expr, tab *Table) (*Value, bool) {
	vals := make([]*Value, len(args))
	for i, a := range args {
		v, ok := Eval(a, tab)
		if !ok {
			return nil, false
		}
		vals[i] = v
	}
	return ctorValue(to, vals), true
}

// ctorValue assembles a constructor result from already-folded arguments.
// The analyzer has validated shapes; this only assembles words.
func ctorValue(to Type, vals []*Value) *Value {
	bits := make([]int32, to.Words())

	switch to.Kind {
	case KindScalar:
		bits[0] = convertWord(vals[0].T.Base, to.Base, vals[0].Bits[0])

	case KindVector:
		if len(vals) == 1 && vals[0].T.IsScalar() {
			w := convertWord(vals[0].T.Base, to.Base, vals[0].Bits[0])
			for i := range bits {
				bits[i] = w
			}
			break
		}
		if len(vals) == 1 && vals[0].T.IsVector() {
			// Identity or shortening: keep the first N components.
			for i := range bits {
				bits[i] = convertWord(vals[0].T.Base, to.Base, vals[0].Bits[i])
			}
			break
		}
		i := 0
		for _, v := range vals {
			for _, w := range v.Bits {
				if i < len(bits) {
					bits[i] = convertWord(v.T.Base, to.Base, w)
					i++
				}
			}
		}

	case KindMatrix:
		switch {
		case len(vals) == 1 && vals[0].T.IsScalar():
			w := convertWord(vals[0].T.Base, BaseFloat, vals[0].Bits[0])
			for c := 0; c < to.Cols; c++ {
				for r := 0; r < to.Rows; r++ {
					if c == r {
						bits[matIndex(to, c, r)] = w
					}
				}
			}
		case len(vals) == 1 && vals[0].T.IsMatrix():
			src := vals[0]
			for c := 0; c < to.Cols; c++ {
				for r := 0; r < to.Rows; r++ {
					switch {
					case c < src.T.Cols && r < src.T.Rows:
						bits[matIndex(to, c, r)] = src.Bits[matIndex(src.T, c, r)]
					case c == r:
						bits[matIndex(to, c, r)] = fixp.One
					}
				}
			}
		default:
			i := 0
			for _, v := range vals {
				for _, w := range v.Bits {
					if i < len(bits) {
						bits[i] = convertWord(v.T.Base, BaseFloat, w)
						i++
					}
				}
			}
		}

	case KindArray:
		ew := to.Elem.Words()
		for i, v := range vals {
			conv := v
			if !v.T.Equal(*to.Elem) {
				conv = convertValue(v, *to.Elem)
			}
			copy(bits[i*ew:], conv.Bits)
		}

	case KindStruct:
		for i, v := range vals {
			m := to.Struct.Members[i]
			conv := v
			if !v.T.Equal(m.Type) {
				conv = convertValue(v, m.Type)
			}
			copy(bits[m.Offset:], conv.Bits)
		}
	}

	return &Value{T: to, Bits: bits}
}

func evalBuiltin(n *Call, tab *Table) (*Value, bool) {
	vals := make([]*Value, len(n.Args))
	for i, a := range n.Args {
		v, ok := Eval(a, tab)
		if !ok {
			return nil, false
		}
		vals[i] = v
	}

	base := vals[0].T.Base
	out := &Value{T: n.T, Bits: make([]int32, n.T.Words())}
	arg := func(i, comp int) int32 { return broadcastWord(vals[i], comp) }

	switch n.Fn.Builtin {
	case BAbs:
		for i := range out.Bits {
			w := arg(0, i)
			if w < 0 {
				w = -w
			}
			out.Bits[i] = w
		}
	case BMin, BMax:
		wantMin := n.Fn.Builtin == BMin
		for i := range out.Bits {
			a, b := arg(0, i), arg(1, i)
			if ltWord(base, b, a) == wantMin {
				out.Bits[i] = b
			} else {
				out.Bits[i] = a
			}
		}
	case BClamp:
		for i := range out.Bits {
			w := arg(0, i)
			lo, hi := arg(1, i), arg(2, i)
			if ltWord(base, w, lo) {
				w = lo
			}
			if ltWord(base, hi, w) {
				w = hi
			}
			out.Bits[i] = w
		}
	case BDot:
		var acc int32
		for i := 0; i < vals[0].T.Words(); i++ {
			acc += fixp.Mul(arg(0, i), arg(1, i))
		}
		out.Bits[0] = acc
	case BMix:
		for i := range out.Bits {
			a, b, t := arg(0, i), arg(1, i), arg(2, i)
			out.Bits[i] = a + fixp.Mul(b-a, t)
		}
	case BStep:
		for i := range out.Bits {
			if arg(1, i) < arg(0, i) {
				out.Bits[i] = 0
			} else {
				out.Bits[i] = fixp.One
			}
		}
	case BFloor:
		for i := range out.Bits {
			out.Bits[i] = fixp.Floor(arg(0, i))
		}
	case BFract:
		for i := range out.Bits {
			out.Bits[i] = arg(0, i) - fixp.Floor(arg(0, i))
		}
	case BSqrt:
		for i := range out.Bits {
			out.Bits[i] = fixp.Sqrt(arg(0, i))
		}
	case BAny, BAll:
		res := n.Fn.Builtin == BAll
		for i := 0; i < vals[0].T.Words(); i++ {
			if n.Fn.Builtin == BAny {
				res = res || arg(0, i) != 0
			} else {
				res = res && arg(0, i) != 0
			}
		}
		if res {
			out.Bits[0] = 1
		}
	case BEqual, BNotEqual:
		for i := range out.Bits {
			eq := arg(0, i) == arg(1, i)
			if eq == (n.Fn.Builtin == BEqual) {
				out.Bits[i] = 1
			}
		}
	case BLessThan, BLessThanEqual, BGreaterThan, BGreaterThanEqual:
		for i := range out.Bits {
			a, b := arg(0, i), arg(1, i)
			var res bool
			switch n.Fn.Builtin {
			case BLessThan:
				res = ltWord(base, a, b)
			case BLessThanEqual:
				res = !ltWord(base, b, a)
			case BGreaterThan:
				res = ltWord(base, b, a)
			default:
				res = !ltWord(base, a, b)
			}
			if res {
				out.Bits[i] = 1
			}
		}
	case BMatCompMult:
		for i := range out.Bits {
			out.Bits[i] = fixp.Mul(arg(0, i), arg(1, i))
		}
	default:
		return nil, false
	}
	return out, true
}

// ltWord compares one component with the base type's ordering; floats
// compare as signed fixed-point bits.
func ltWord(base BaseType, a, b int32) bool {
	if base == BaseUint {
		return uint32(a) < uint32(b)
	}
	return a < b
}
