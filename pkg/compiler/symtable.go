package compiler

import (
	"fmt"
	"strings"
)

// SymbolKind tells what an ordinary identifier is bound to.
type SymbolKind int

const (
	SymVar SymbolKind = iota
	SymTypedef
	SymEnumConst
)

// Symbol is one entry of the variable scope.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Var     *Var  // SymVar
	Type    *Type // SymTypedef, or the enum type of a SymEnumConst
	EnumVal int64 // SymEnumConst
	Depth   int
}

// TagSymbol is one entry of the tag scope (struct, union and enum tags).
type TagSymbol struct {
	Name  string
	Type  *Type
	Depth int
}

// SymbolTable holds the two scope stacks used while parsing. Both are
// append-only slices searched from the end; leaving a scope truncates them
// back to the lengths recorded on entry, so outer bindings are untouched.
type SymbolTable struct {
	vars  []Symbol
	tags  []TagSymbol
	depth int
}

// ScopeMark records the stack heights at scope entry.
type ScopeMark struct {
	vars, tags int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

// EnterScope opens a nested scope and returns the mark that restores it.
func (s *SymbolTable) EnterScope() ScopeMark {
	s.depth++
	return ScopeMark{vars: len(s.vars), tags: len(s.tags)}
}

// ExitScope drops every binding made since m was taken.
func (s *SymbolTable) ExitScope(m ScopeMark) {
	s.depth--
	s.vars = s.vars[:m.vars]
	s.tags = s.tags[:m.tags]
}

// snapshot and restore bracket a speculative parse without changing depth.
func (s *SymbolTable) snapshot() ScopeMark {
	return ScopeMark{vars: len(s.vars), tags: len(s.tags)}
}

func (s *SymbolTable) restore(m ScopeMark) {
	s.vars = s.vars[:m.vars]
	s.tags = s.tags[:m.tags]
}

// Depth is the current nesting level; 0 is file scope.
func (s *SymbolTable) Depth() int { return s.depth }

func (s *SymbolTable) pushVar(sym Symbol) {
	sym.Depth = s.depth
	s.vars = append(s.vars, sym)
}

// DefineVar binds v in the current scope.
func (s *SymbolTable) DefineVar(v *Var) {
	s.pushVar(Symbol{Name: v.Name, Kind: SymVar, Var: v})
}

// DefineTypedef binds name as a type alias in the current scope.
func (s *SymbolTable) DefineTypedef(name string, ty *Type) {
	s.pushVar(Symbol{Name: name, Kind: SymTypedef, Type: ty})
}

// DefineEnumConst binds an enumerator in the current scope.
func (s *SymbolTable) DefineEnumConst(name string, ty *Type, val int64) {
	s.pushVar(Symbol{Name: name, Kind: SymEnumConst, Type: ty, EnumVal: val})
}

// DefineTag binds a struct/union/enum tag in the current scope.
func (s *SymbolTable) DefineTag(name string, ty *Type) {
	s.tags = append(s.tags, TagSymbol{Name: name, Type: ty, Depth: s.depth})
}

// Lookup finds the innermost binding of name in the variable scope.
func (s *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for i := len(s.vars) - 1; i >= 0; i-- {
		if s.vars[i].Name == name {
			return &s.vars[i], true
		}
	}
	return nil, false
}

// LookupTag finds the innermost binding of a tag.
func (s *SymbolTable) LookupTag(name string) (*TagSymbol, bool) {
	for i := len(s.tags) - 1; i >= 0; i-- {
		if s.tags[i].Name == name {
			return &s.tags[i], true
		}
	}
	return nil, false
}

// String returns a dump of the live bindings, innermost last.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scope depth %d\n", s.depth)
	sb.WriteString("Vars:\n")
	for _, v := range s.vars {
		switch v.Kind {
		case SymVar:
			fmt.Fprintf(&sb, "  [%d] %-20s %s\n", v.Depth, v.Name, v.Var.Type)
		case SymTypedef:
			fmt.Fprintf(&sb, "  [%d] %-20s typedef %s\n", v.Depth, v.Name, v.Type)
		case SymEnumConst:
			fmt.Fprintf(&sb, "  [%d] %-20s = %d\n", v.Depth, v.Name, v.EnumVal)
		}
	}
	if len(s.tags) > 0 {
		sb.WriteString("Tags:\n")
		for _, t := range s.tags {
			fmt.Fprintf(&sb, "  [%d] %-20s size %d\n", t.Depth, t.Name, t.Type.Size)
		}
	}
	return sb.String()
}
