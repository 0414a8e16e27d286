package shader

import (
	"fmt"
	"strings"
)

// BaseType is the component type of scalars, vectors, and matrices.
type BaseType uint8

const (
	BaseNone BaseType = iota
	BaseBool
	BaseInt
	BaseUint
	BaseFloat
)

func (b BaseType) String() string {
	switch b {
	case BaseBool:
		return "bool"
	case BaseInt:
		return "int"
	case BaseUint:
		return "uint"
	case BaseFloat:
		return "float"
	}
	return "none"
}

// TypeKind discriminates the closed set of type shapes.
type TypeKind uint8

const (
	KindInvalid TypeKind = iota // poisoned type after a reported error
	KindVoid
	KindScalar
	KindVector
	KindMatrix
	KindArray
	KindStruct
)

// Type describes the type of a value or expression. Types are immutable
// values; two types are interchangeable iff Equal reports true.
type Type struct {
	Kind TypeKind
	Base BaseType // component base for scalar/vector/matrix

	Size int // vector component count, or array length (Unsized before inference)
	Cols int // matrix columns
	Rows int // matrix rows

	Elem   *Type       // array element type
	Struct *StructType // struct definition, nominal identity
}

// Unsized marks an array type whose length is inferred from a constructor's
// argument count.
const Unsized = -1

// StructType is the shared definition every value of a named struct type
// references. Member offsets are in words from the start of the value.
type StructType struct {
	Name    string
	Members []Field
	words   int
}

// Field is one struct member.
type Field struct {
	Name   string
	Type   Type
	Offset int
}

// FindMember returns the index of the named member, or -1.
func (s *StructType) FindMember(name string) int {
	for i := range s.Members {
		if s.Members[i].Name == name {
			return i
		}
	}
	return -1
}

var (
	TypeInvalid = Type{Kind: KindInvalid}
	TypeVoid    = Type{Kind: KindVoid}
	TypeBool    = Type{Kind: KindScalar, Base: BaseBool}
	TypeInt     = Type{Kind: KindScalar, Base: BaseInt}
	TypeUint    = Type{Kind: KindScalar, Base: BaseUint}
	TypeFloat   = Type{Kind: KindScalar, Base: BaseFloat}
)

// Scalar returns the scalar type with the given base.
func Scalar(b BaseType) Type { return Type{Kind: KindScalar, Base: b} }

// Vec returns the vector type with n components of base b (n in 2..4).
func Vec(b BaseType, n int) Type { return Type{Kind: KindVector, Base: b, Size: n} }

// Mat returns the float matrix type with the given columns and rows.
func Mat(cols, rows int) Type {
	return Type{Kind: KindMatrix, Base: BaseFloat, Cols: cols, Rows: rows}
}

// ArrayOf returns the array type with the given element type and length.
func ArrayOf(elem Type, n int) Type {
	e := elem
	return Type{Kind: KindArray, Size: n, Elem: &e}
}

// StructOf returns the value type for a struct definition.
func StructOf(def *StructType) Type { return Type{Kind: KindStruct, Struct: def} }

// typeByName maps every built-in type name to its Type. The lexer consults
// it to classify TYPE tokens.
var typeByName = map[string]Type{
	"void":  TypeVoid,
	"bool":  TypeBool,
	"int":   TypeInt,
	"uint":  TypeUint,
	"float": TypeFloat,
}

func init() {
	prefix := map[BaseType]string{BaseFloat: "vec", BaseInt: "ivec", BaseUint: "uvec", BaseBool: "bvec"}
	for base, p := range prefix {
		for n := 2; n <= 4; n++ {
			typeByName[fmt.Sprintf("%s%d", p, n)] = Vec(base, n)
		}
	}
	for c := 2; c <= 4; c++ {
		typeByName[fmt.Sprintf("mat%d", c)] = Mat(c, c)
		for r := 2; r <= 4; r++ {
			typeByName[fmt.Sprintf("mat%dx%d", c, r)] = Mat(c, r)
		}
	}
}

// Words returns the flattened size of a value of this type in 32-bit words.
func (t Type) Words() int {
	switch t.Kind {
	case KindScalar:
		return 1
	case KindVector:
		return t.Size
	case KindMatrix:
		return t.Cols * t.Rows
	case KindArray:
		if t.Size == Unsized {
			return 0
		}
		return t.Size * t.Elem.Words()
	case KindStruct:
		return t.Struct.words
	}
	return 0
}

func (t Type) String() string {
	switch t.Kind {
	case KindInvalid:
		return "<invalid>"
	case KindVoid:
		return "void"
	case KindScalar:
		return t.Base.String()
	case KindVector:
		p := map[BaseType]string{BaseFloat: "vec", BaseInt: "ivec", BaseUint: "uvec", BaseBool: "bvec"}[t.Base]
		return fmt.Sprintf("%s%d", p, t.Size)
	case KindMatrix:
		if t.Cols == t.Rows {
			return fmt.Sprintf("mat%d", t.Cols)
		}
		return fmt.Sprintf("mat%dx%d", t.Cols, t.Rows)
	case KindArray:
		if t.Size == Unsized {
			return fmt.Sprintf("%s[]", t.Elem)
		}
		return fmt.Sprintf("%s[%d]", t.Elem, t.Size)
	case KindStruct:
		return t.Struct.Name
	}
	return "<?>"
}

// Equal reports whether two types are the same type. Structs are nominal:
// two struct types are equal only when they share a definition.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindScalar:
		return t.Base == o.Base
	case KindVector:
		return t.Base == o.Base && t.Size == o.Size
	case KindMatrix:
		return t.Cols == o.Cols && t.Rows == o.Rows
	case KindArray:
		return t.Size == o.Size && t.Elem.Equal(*o.Elem)
	case KindStruct:
		return t.Struct == o.Struct
	}
	return true // void, invalid
}

func (t Type) IsScalar() bool  { return t.Kind == KindScalar }
func (t Type) IsVector() bool  { return t.Kind == KindVector }
func (t Type) IsMatrix() bool  { return t.Kind == KindMatrix }
func (t Type) IsArray() bool   { return t.Kind == KindArray }
func (t Type) IsInvalid() bool { return t.Kind == KindInvalid }

// IsNumeric reports whether the type is an int, uint, or float scalar,
// vector, or matrix.
func (t Type) IsNumeric() bool {
	switch t.Kind {
	case KindScalar, KindVector, KindMatrix:
		return t.Base != BaseBool
	}
	return false
}

// IsIntegral reports an int or uint scalar or vector.
func (t Type) IsIntegral() bool {
	return (t.Kind == KindScalar || t.Kind == KindVector) &&
		(t.Base == BaseInt || t.Base == BaseUint)
}

// ScalarOf returns the component scalar type of a scalar/vector/matrix.
func (t Type) ScalarOf() Type { return Scalar(t.Base) }

// WithBase returns the same shape over a different component base.
func (t Type) WithBase(b BaseType) Type {
	t.Base = b
	return t
}

// implicitScalarConvert reports whether base from converts implicitly to
// base to. The table is deliberately small: int->float and uint->float
// only. int->uint is explicit, bool converts to nothing.
func implicitScalarConvert(from, to BaseType) bool {
	if from == to {
		return true
	}
	return to == BaseFloat && (from == BaseInt || from == BaseUint)
}

// ImplicitConvert reports whether a value of type from converts implicitly
// to type to: same shape, with a permitted component conversion.
func ImplicitConvert(from, to Type) bool {
	if from.Equal(to) {
		return true
	}
	switch {
	case from.IsScalar() && to.IsScalar():
		return implicitScalarConvert(from.Base, to.Base)
	case from.IsVector() && to.IsVector() && from.Size == to.Size:
		return implicitScalarConvert(from.Base, to.Base)
	case from.IsMatrix() && to.IsMatrix():
		// Matrices are float-only; only identity applies, handled above.
		return false
	}
	return false
}

// swizzleSets are the three component-name alphabets. A swizzle must draw
// all of its characters from a single set.
var swizzleSets = []string{"xyzw", "rgba", "stpq"}

// swizzleIndices resolves a swizzle string against a vector size. It
// returns the component indices, or false if the swizzle is malformed or
// out of range.
func swizzleIndices(name string, size int) ([]int, bool) {
	if len(name) == 0 || len(name) > 4 {
		return nil, false
	}
	for _, set := range swizzleSets {
		if !strings.ContainsRune(set, rune(name[0])) {
			continue
		}
		idx := make([]int, len(name))
		for i, c := range name {
			k := strings.IndexRune(set, c)
			if k < 0 || k >= size {
				return nil, false
			}
			idx[i] = k
		}
		return idx, true
	}
	return nil, false
}

// hasRepeats reports whether a swizzle selects any component twice, which
// is what makes it illegal as an assignment target.
func hasRepeats(idx []int) bool {
	var seen [4]bool
	for _, k := range idx {
		if seen[k] {
			return true
		}
		seen[k] = true
	}
	return false
}
