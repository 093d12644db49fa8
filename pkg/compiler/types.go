package compiler

import (
	"fmt"
	"strings"
)

// TypeKind enumerates the type lattice.
type TypeKind int

const (
	TyVoid TypeKind = iota
	TyBool
	TyChar
	TyShort
	TyInt
	TyLong
	TyEnum
	TyPtr
	TyArray
	TyStruct
	TyUnion
	TyFunc
)

var typeKindNames = [...]string{
	TyVoid:   "void",
	TyBool:   "bool",
	TyChar:   "char",
	TyShort:  "short",
	TyInt:    "int",
	TyLong:   "long",
	TyEnum:   "enum",
	TyPtr:    "ptr",
	TyArray:  "array",
	TyStruct: "struct",
	TyUnion:  "union",
	TyFunc:   "func",
}

func (k TypeKind) String() string { return typeKindNames[k] }

// PointerSize is the width of pointers and of the platform integer.
const PointerSize = 8

// Type is a node in the type lattice. Pointer and array types own their
// Base; struct and union types own their Members.
type Type struct {
	Kind  TypeKind
	Size  int // sizeof(); -1 while an array or tagged type is incomplete
	Align int

	Base     *Type // pointer / array element
	ArrayLen int   // -1 for an incomplete array

	Members []*Member // struct / union

	Return *Type   // function
	Params []*Type // function

	// Tag is the struct/union/enum tag, empty for anonymous types.
	Tag string
}

// Member is one field of a struct or union.
type Member struct {
	Name   string
	Type   *Type
	Offset int
}

func newType(kind TypeKind, size, align int) *Type {
	return &Type{Kind: kind, Size: size, Align: align}
}

func voidType() *Type  { return newType(TyVoid, 1, 1) }
func boolType() *Type  { return newType(TyBool, 1, 1) }
func charType() *Type  { return newType(TyChar, 1, 1) }
func shortType() *Type { return newType(TyShort, 2, 2) }
func intType() *Type   { return newType(TyInt, 4, 4) }
func longType() *Type  { return newType(TyLong, 8, 8) }

// EnumType returns a fresh enum type; enumerators are int-sized.
func EnumType() *Type { return newType(TyEnum, 4, 4) }

// PointerTo returns a pointer to base.
func PointerTo(base *Type) *Type {
	return &Type{Kind: TyPtr, Size: PointerSize, Align: PointerSize, Base: base}
}

// ArrayOf returns an array of n elements of base. A negative n produces an
// incomplete array whose size stays undefined until the bound is known.
func ArrayOf(base *Type, n int) *Type {
	t := &Type{Kind: TyArray, Align: base.Align, Base: base, ArrayLen: n, Size: -1}
	if n >= 0 {
		t.Size = base.Size * n
	}
	return t
}

// FuncType returns a function type returning ret.
func FuncType(ret *Type) *Type {
	return &Type{Kind: TyFunc, Size: 1, Align: 1, Return: ret}
}

// StructType returns an empty, incomplete struct type.
func StructType() *Type {
	return &Type{Kind: TyStruct, Size: -1, Align: 1}
}

// AlignTo rounds n up to the nearest multiple of align, which must be a
// power of two.
func AlignTo(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// IsInteger reports whether ty is one of the integral kinds.
func IsInteger(ty *Type) bool {
	switch ty.Kind {
	case TyBool, TyChar, TyShort, TyInt, TyLong, TyEnum:
		return true
	}
	return false
}

// HasBase reports whether ty can be dereferenced or indexed.
func (t *Type) HasBase() bool { return t.Base != nil }

// IsIncomplete reports whether the size of t is not yet known.
func (t *Type) IsIncomplete() bool { return t.Size < 0 }

func (t *Type) String() string {
	switch t.Kind {
	case TyPtr:
		return t.Base.String() + "*"
	case TyArray:
		if t.ArrayLen < 0 {
			return t.Base.String() + "[]"
		}
		return fmt.Sprintf("%s[%d]", t.Base, t.ArrayLen)
	case TyStruct, TyUnion, TyEnum:
		if t.Tag != "" {
			return t.Kind.String() + " " + t.Tag
		}
		if len(t.Members) == 0 {
			return t.Kind.String()
		}
		names := make([]string, len(t.Members))
		for i, m := range t.Members {
			names[i] = fmt.Sprintf("%s %s", m.Type, m.Name)
		}
		return fmt.Sprintf("%s {%s}", t.Kind, strings.Join(names, "; "))
	case TyFunc:
		return fmt.Sprintf("func() %s", t.Return)
	}
	return t.Kind.String()
}

// layoutStruct assigns member offsets in declaration order, each aligned to
// its own type, and pads the total size to the struct alignment.
func layoutStruct(ty *Type, members []*Member) {
	offset, align := 0, 1
	for _, m := range members {
		offset = AlignTo(offset, m.Type.Align)
		m.Offset = offset
		offset += m.Type.Size
		align = max(align, m.Type.Align)
	}
	ty.Members = members
	ty.Align = align
	ty.Size = AlignTo(offset, align)
}

// layoutUnion places every member at offset zero; the size is the largest
// member padded to the union alignment.
func layoutUnion(ty *Type, members []*Member) {
	size, align := 0, 1
	for _, m := range members {
		m.Offset = 0
		size = max(size, m.Type.Size)
		align = max(align, m.Type.Align)
	}
	ty.Members = members
	ty.Align = align
	ty.Size = AlignTo(size, align)
}

// findMember looks a member up by name.
func (t *Type) findMember(name string) *Member {
	for _, m := range t.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}
