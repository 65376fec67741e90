package envelope

import "fmt"

// Kind identifies the scalar type carried in one argument slot.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
	KindDouble
)

// String returns the wire tag of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindDouble:
		return "double"
	default:
		return "unknown"
	}
}

// Value is one positional argument. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int32
	b    bool
	d    float64
}

// String creates a string argument
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int creates a 32-bit integer argument
func Int(i int32) Value { return Value{kind: KindInt, i: i} }

// Bool creates a boolean argument
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Double creates a double argument
func Double(d float64) Value { return Value{kind: KindDouble, d: d} }

// Null creates an empty slot
func Null() Value { return Value{} }

// Kind returns the argument type
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the slot is empty
func (v Value) IsNull() bool { return v.kind == KindNull }

// Interface returns the Go value held in the slot (nil for null).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	case KindDouble:
		return v.d
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return fmt.Sprintf("%s(%v)", v.kind, v.Interface())
}

// Message is a named, ordered list of typed scalars exchanged between the
// browser role and the renderer role.
type Message struct {
	Name string
	Args []Value
}

// New creates an empty message with the given name
func New(name string, args ...Value) *Message {
	return &Message{Name: name, Args: args}
}

// Len returns the number of argument slots
func (m *Message) Len() int {
	return len(m.Args)
}

// Set stores v at index i, padding any gap with null slots.
func (m *Message) Set(i int, v Value) {
	if i < 0 {
		return
	}
	for len(m.Args) <= i {
		m.Args = append(m.Args, Null())
	}
	m.Args[i] = v
}

func (m *Message) SetString(i int, s string)  { m.Set(i, String(s)) }
func (m *Message) SetInt(i int, n int32)      { m.Set(i, Int(n)) }
func (m *Message) SetBool(i int, b bool)      { m.Set(i, Bool(b)) }
func (m *Message) SetDouble(i int, d float64) { m.Set(i, Double(d)) }

// Arg returns the value at i, or null when the slot is missing.
func (m *Message) Arg(i int) Value {
	if i < 0 || i >= len(m.Args) {
		return Null()
	}
	return m.Args[i]
}

// Has reports whether slot i exists and is not null
func (m *Message) Has(i int) bool {
	return !m.Arg(i).IsNull()
}

// GetString returns the string at i; missing or mistyped slots yield "".
func (m *Message) GetString(i int) string {
	v := m.Arg(i)
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// GetInt returns the integer at i; missing or mistyped slots yield 0.
func (m *Message) GetInt(i int) int32 {
	v := m.Arg(i)
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// GetBool returns the boolean at i; missing or mistyped slots yield false.
func (m *Message) GetBool(i int) bool {
	v := m.Arg(i)
	if v.kind != KindBool {
		return false
	}
	return v.b
}

// GetDouble returns the number at i. Integers widen to float64.
func (m *Message) GetDouble(i int) float64 {
	v := m.Arg(i)
	switch v.kind {
	case KindDouble:
		return v.d
	case KindInt:
		return float64(v.i)
	default:
		return 0
	}
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	args := make([]Value, len(m.Args))
	copy(args, m.Args)
	return &Message{Name: m.Name, Args: args}
}
