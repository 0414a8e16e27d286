package shader

// Built-in function identifiers. The code generator lowers each to an
// inline instruction sequence; none of them produce a call.
const (
	BuiltinNone Builtin = iota
	BAbs
	BMin
	BMax
	BClamp
	BDot
	BMix
	BStep
	BFloor
	BFract
	BSqrt
	BAny
	BAll
	BEqual
	BNotEqual
	BLessThan
	BLessThanEqual
	BGreaterThan
	BGreaterThanEqual
	BMatCompMult
)

// builtinSets is the read-only table of built-in overload sets, shared by
// every compilation. Built once at package load.
var builtinSets = map[string]*OverloadSet{}

func defBuiltin(id Builtin, name string, ret Type, params ...Type) {
	set, ok := builtinSets[name]
	if !ok {
		set = &OverloadSet{Name: name}
		builtinSets[name] = set
	}
	ps := make([]ParamInfo, len(params))
	for i, p := range params {
		ps[i] = ParamInfo{Name: "", Type: p, Qual: ParamIn}
	}
	if err := set.Add(&FuncSymbol{Name: name, Params: ps, Ret: ret, Builtin: id}); err != nil {
		panic(err)
	}
}

// genTypes returns the scalar plus the three vector shapes of a base.
func genTypes(b BaseType) []Type {
	return []Type{Scalar(b), Vec(b, 2), Vec(b, 3), Vec(b, 4)}
}

func init() {
	for _, b := range []BaseType{BaseFloat, BaseInt} {
		for _, t := range genTypes(b) {
			defBuiltin(BAbs, "abs", t, t)
		}
	}
	for _, b := range []BaseType{BaseFloat, BaseInt, BaseUint} {
		for _, t := range genTypes(b) {
			defBuiltin(BMin, "min", t, t, t)
			defBuiltin(BMax, "max", t, t, t)
			defBuiltin(BClamp, "clamp", t, t, t, t)
			if t.IsVector() {
				s := Scalar(b)
				defBuiltin(BMin, "min", t, t, s)
				defBuiltin(BMax, "max", t, t, s)
				defBuiltin(BClamp, "clamp", t, t, s, s)
			}
		}
	}
	for _, t := range genTypes(BaseFloat) {
		defBuiltin(BFloor, "floor", t, t)
		defBuiltin(BFract, "fract", t, t)
		defBuiltin(BSqrt, "sqrt", t, t)
		defBuiltin(BMix, "mix", t, t, t, t)
		defBuiltin(BStep, "step", t, t, t)
		defBuiltin(BDot, "dot", TypeFloat, t, t)
		if t.IsVector() {
			defBuiltin(BMix, "mix", t, t, t, TypeFloat)
			defBuiltin(BStep, "step", t, TypeFloat, t)
		}
	}
	for n := 2; n <= 4; n++ {
		bv := Vec(BaseBool, n)
		defBuiltin(BAny, "any", TypeBool, bv)
		defBuiltin(BAll, "all", TypeBool, bv)
		for _, b := range []BaseType{BaseFloat, BaseInt, BaseUint, BaseBool} {
			v := Vec(b, n)
			defBuiltin(BEqual, "equal", bv, v, v)
			defBuiltin(BNotEqual, "notEqual", bv, v, v)
			if b != BaseBool {
				defBuiltin(BLessThan, "lessThan", bv, v, v)
				defBuiltin(BLessThanEqual, "lessThanEqual", bv, v, v)
				defBuiltin(BGreaterThan, "greaterThan", bv, v, v)
				defBuiltin(BGreaterThanEqual, "greaterThanEqual", bv, v, v)
			}
		}
	}
	for c := 2; c <= 4; c++ {
		for r := 2; r <= 4; r++ {
			m := Mat(c, r)
			defBuiltin(BMatCompMult, "matrixCompMult", m, m, m)
		}
	}
}

// lookupBuiltin returns the built-in overload set for a name, or nil.
func lookupBuiltin(name string) *OverloadSet { return builtinSets[name] }
