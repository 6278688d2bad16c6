// Package ir parses the textual whole-program intermediate representation
// (IR) dump produced alongside a build and exposes it as a sequence of
// top-level items: function definitions (with their statement bodies),
// declarations, and numbered call-site metadata nodes.
package ir

import (
	"fmt"
	"strings"
)

// Type is a function-signature type. It is a closed sum type: IntType,
// FloatType, PointerType, AliasType, FuncType, and ErasedType are the only
// implementations. Every switch over Type must have a default case that
// panics so a missing variant is caught immediately rather than silently
// mishandled.
type Type interface {
	fmt.Stringer
	isType()
}

// IntType is an integer of the given bit width (e.g. i1, i8, i32, i64).
type IntType struct{ Bits int }

func (IntType) isType() {}
func (t IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }

// FloatType is a floating-point type of the given bit width (32 or 64).
type FloatType struct{ Bits int }

func (FloatType) isType() {}
func (t FloatType) String() string {
	if t.Bits == 64 {
		return "f64"
	}
	return "f32"
}

// PointerType is a raw pointer to Elem.
type PointerType struct{ Elem Type }

func (PointerType) isType() {}
func (t PointerType) String() string { return "*" + t.Elem.String() }

// AliasType is an opaque interned type name (a struct/enum name, typically
// taken straight from the IR's symbol table rather than structurally
// decoded).
type AliasType struct{ Name string }

func (AliasType) isType() {}
func (t AliasType) String() string { return t.Name }

// FuncType is a function pointer type.
type FuncType struct{ Sig Sig }

func (FuncType) isType() {}
func (t FuncType) String() string { return t.Sig.String() }

// ErasedType is the sentinel used in place of a polymorphic receiver's real
// type when building the dynamic-dispatch bucket key (see
// internal/callgraph's object-safe method detection).
type ErasedType struct{}

func (ErasedType) isType() {}
func (ErasedType) String() string { return "_" }

// Erased is the single shared ErasedType value.
var Erased Type = ErasedType{}

// IsErased reports whether t is the erased-receiver sentinel.
func IsErased(t Type) bool {
	_, ok := t.(ErasedType)
	return ok
}

// Sig is a function signature: an ordered sequence of parameter types and
// an optional return type.
type Sig struct {
	Inputs []Type
	Output Type // nil means no return value
}

// String renders Sig the way the original tool prints function-pointer
// signatures for fictitious dispatch-node labels, e.g. "fn(i32, i32) -> i32"
// or "fn(*i8)".
func (s Sig) String() string {
	var b strings.Builder
	b.WriteString("fn(")
	for i, in := range s.Inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(in.String())
	}
	b.WriteString(")")
	if s.Output != nil {
		b.WriteString(" -> ")
		b.WriteString(s.Output.String())
	}
	return b.String()
}

// Erase returns a copy of s with its first input type replaced by the
// erased-receiver sentinel. Used to build the dynamic-dispatch bucket key
// for an object-safe polymorphic method (spec "Phase B — Signature
// inventory").
func (s Sig) Erase() Sig {
	if len(s.Inputs) == 0 {
		return s
	}
	inputs := make([]Type, len(s.Inputs))
	copy(inputs, s.Inputs)
	inputs[0] = Erased
	return Sig{Inputs: inputs, Output: s.Output}
}

// FirstInputErased reports whether s's first input is the erased sentinel,
// i.e. s already identifies a dynamic-dispatch bucket.
func (s Sig) FirstInputErased() bool {
	return len(s.Inputs) > 0 && IsErased(s.Inputs[0])
}
