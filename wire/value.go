// Package wire implements the PropLink wire protocol: the fixed binary
// framing and payload encodings that carry commands, responses, and
// notifications between a PropLink server and its clients.
package wire

import "fmt"

// Kind is the wire discriminator for a Value's variant. The codes are
// part of the wire format and must never be renumbered.
type Kind uint8

const (
	KindFloat64 Kind = 1
	KindBool    Kind = 2
	KindString  Kind = 3
	KindInt64   Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a closed tagged variant over the four primitive kinds PropLink
// variables carry. The zero Value is not a valid Value; always construct
// one with BoolValue/IntValue/FloatValue/StringValue.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

func BoolValue(v bool) Value   { return Value{kind: KindBool, b: v} }
func IntValue(v int64) Value   { return Value{kind: KindInt64, i: v} }
func FloatValue(v float64) Value { return Value{kind: KindFloat64, f: v} }
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

func (v Value) Kind() Kind { return v.kind }

// Bool returns the payload and true if v is a bool Value.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the payload and true if v is an int64 Value.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt64 }

// Float returns the payload and true if v is a float64 Value.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat64 }

// Str returns the payload and true if v is a string Value.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Equal is kind-and-payload equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindInt64:
		return v.i == other.i
	case KindFloat64:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	default:
		return "<invalid value>"
	}
}
