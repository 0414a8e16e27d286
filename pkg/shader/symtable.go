package shader

import (
	"fmt"
	"sort"
	"strings"
)

// ScopeID indexes the scope arena. The global scope is always 0.
type ScopeID int

// SymbolID indexes the symbol arena. NoSymbol marks an unresolved link.
type SymbolID int

const NoSymbol SymbolID = -1

// SymKind discriminates what a symbol names.
type SymKind uint8

const (
	SymVar SymKind = iota
	SymParam
	SymStruct
)

// Symbol is a named declaration owned by the scope that declared it.
type Symbol struct {
	Name  string
	Kind  SymKind
	Type  Type
	Qual  StorageQual
	Scope ScopeID

	// Param holds the direction qualifier when Kind == SymParam.
	Param   ParamQual
	IsConst bool // const variable or const param

	// Shadows links a declaration to the outer symbol it hides, recorded
	// for diagnostics only.
	Shadows SymbolID

	// Const holds the folded value of a const declaration.
	Const *Value

	// Codegen fields: word address of the storage. Globals are absolute,
	// everything else is frame-pointer relative.
	Addr     int
	IsGlobal bool
}

type scope struct {
	parent ScopeID
	names  map[string]SymbolID
}

// ParamInfo is one resolved function parameter.
type ParamInfo struct {
	Name    string
	Type    Type
	Qual    ParamQual
	IsConst bool
}

// Builtin identifies a built-in function implementation; BuiltinNone marks
// a user function.
type Builtin uint8

// FuncSymbol is one function in an overload set.
type FuncSymbol struct {
	Name    string
	Params  []ParamInfo
	Ret     Type
	Decl    *FuncDecl // nil for builtins
	Builtin Builtin
}

// Signature renders the parameter types, the part that identifies the
// overload.
func (f *FuncSymbol) Signature() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.Type.String()
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(parts, ", "))
}

func (f *FuncSymbol) sameSignature(o *FuncSymbol) bool {
	if len(f.Params) != len(o.Params) {
		return false
	}
	for i := range f.Params {
		if !f.Params[i].Type.Equal(o.Params[i].Type) {
			return false
		}
	}
	return true
}

// OverloadSet is the ordered list of same-named functions. Resolution never
// looks at return types, and neither does set membership.
type OverloadSet struct {
	Name string
	Fns  []*FuncSymbol
}

// Add appends a function, rejecting a duplicate parameter-type signature.
func (s *OverloadSet) Add(fn *FuncSymbol) error {
	for _, existing := range s.Fns {
		if existing.sameSignature(fn) {
			return fmt.Errorf("function %s redeclared", fn.Signature())
		}
	}
	s.Fns = append(s.Fns, fn)
	return nil
}

// Table holds all scopes and symbols of one compilation unit. Scopes and
// symbols live in flat arenas; a scope's parent is an index, never an
// owning reference.
type Table struct {
	scopes  []scope
	syms    []Symbol
	funcs   map[string]*OverloadSet
	structs map[string]*StructType
}

// NewTable returns a table containing only the global scope.
func NewTable() *Table {
	return &Table{
		scopes:  []scope{{parent: -1, names: make(map[string]SymbolID)}},
		funcs:   make(map[string]*OverloadSet),
		structs: make(map[string]*StructType),
	}
}

// GlobalScope is the root scope's id.
const GlobalScope ScopeID = 0

// Push creates a child scope and returns its id.
func (t *Table) Push(parent ScopeID) ScopeID {
	t.scopes = append(t.scopes, scope{parent: parent, names: make(map[string]SymbolID)})
	return ScopeID(len(t.scopes) - 1)
}

// Declare inserts a symbol into a scope. It fails if the name already
// exists in that same scope; hiding a name from an outer scope is legal and
// recorded on the new symbol.
func (t *Table) Declare(sc ScopeID, sym Symbol) (SymbolID, error) {
	s := &t.scopes[sc]
	if _, exists := s.names[sym.Name]; exists {
		return NoSymbol, fmt.Errorf("%q redeclared in this scope", sym.Name)
	}
	sym.Scope = sc
	sym.Shadows = NoSymbol
	if outer, ok := t.resolveFrom(t.scopes[sc].parent, sym.Name); ok {
		sym.Shadows = outer
	}
	id := SymbolID(len(t.syms))
	t.syms = append(t.syms, sym)
	s.names[sym.Name] = id
	return id, nil
}

// Resolve walks from sc to the global scope and returns the nearest symbol
// with the given name.
func (t *Table) Resolve(sc ScopeID, name string) (SymbolID, bool) {
	return t.resolveFrom(sc, name)
}

func (t *Table) resolveFrom(sc ScopeID, name string) (SymbolID, bool) {
	for sc >= 0 {
		if id, ok := t.scopes[sc].names[name]; ok {
			return id, true
		}
		sc = t.scopes[sc].parent
	}
	return NoSymbol, false
}

// Sym returns the symbol record for an id. The pointer stays valid for the
// lifetime of the table.
func (t *Table) Sym(id SymbolID) *Symbol { return &t.syms[id] }

// DeclareStruct registers a struct definition at global scope.
func (t *Table) DeclareStruct(def *StructType) error {
	if _, exists := t.structs[def.Name]; exists {
		return fmt.Errorf("struct %q redeclared", def.Name)
	}
	t.structs[def.Name] = def
	return nil
}

// Struct looks up a struct definition by name.
func (t *Table) Struct(name string) (*StructType, bool) {
	def, ok := t.structs[name]
	return def, ok
}

// DeclareFunc adds a function to its overload set, creating the set on
// first use.
func (t *Table) DeclareFunc(fn *FuncSymbol) error {
	set, ok := t.funcs[fn.Name]
	if !ok {
		set = &OverloadSet{Name: fn.Name}
		t.funcs[fn.Name] = set
	}
	return set.Add(fn)
}

// Funcs returns the overload set for a name, or nil.
func (t *Table) Funcs(name string) *OverloadSet { return t.funcs[name] }

// EachFunc visits every user function in deterministic order.
func (t *Table) EachFunc(visit func(*FuncSymbol)) {
	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, fn := range t.funcs[name].Fns {
			visit(fn)
		}
	}
}

// String returns a deterministically ordered dump of the table, used by the
// CLI's debug output.
func (t *Table) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scopes: %d, Symbols: %d\n", len(t.scopes), len(t.syms))
	for i, sc := range t.scopes {
		names := make([]string, 0, len(sc.names))
		for name := range sc.names {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&sb, "  scope %d (parent %d):\n", i, sc.parent)
		for _, name := range names {
			sym := t.syms[sc.names[name]]
			fmt.Fprintf(&sb, "    %-16s %s", name, sym.Type)
			if sym.Qual != QualNone {
				fmt.Fprintf(&sb, " [%s]", sym.Qual)
			}
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("Functions:\n")
	t.EachFunc(func(fn *FuncSymbol) {
		fmt.Fprintf(&sb, "  %s %s\n", fn.Ret, fn.Signature())
	})
	return sb.String()
}
