package envelope

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrEmptyName = errors.New("envelope: message name required")
	ErrBadKind   = errors.New("envelope: unknown argument kind")
)

type wireArg struct {
	T string   `json:"t"`
	S *string  `json:"s,omitempty"`
	I *int32   `json:"i,omitempty"`
	B *bool    `json:"b,omitempty"`
	D *float64 `json:"d,omitempty"`
}

type wireMessage struct {
	Name string    `json:"n"`
	Args []wireArg `json:"a"`
}

// Marshal encodes a message for transport between roles.
func Marshal(m *Message) ([]byte, error) {
	if m == nil || m.Name == "" {
		return nil, ErrEmptyName
	}

	wire := wireMessage{
		Name: m.Name,
		Args: make([]wireArg, len(m.Args)),
	}
	for i, v := range m.Args {
		arg := wireArg{T: v.kind.String()}
		switch v.kind {
		case KindString:
			s := v.s
			arg.S = &s
		case KindInt:
			n := v.i
			arg.I = &n
		case KindBool:
			b := v.b
			arg.B = &b
		case KindDouble:
			d := v.d
			arg.D = &d
		}
		wire.Args[i] = arg
	}

	data, err := sonic.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode %s: %w", m.Name, err)
	}
	return data, nil
}

// Unmarshal decodes a message produced by Marshal.
func Unmarshal(data []byte) (*Message, error) {
	var wire wireMessage
	if err := sonic.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	if wire.Name == "" {
		return nil, ErrEmptyName
	}

	msg := &Message{Name: wire.Name, Args: make([]Value, len(wire.Args))}
	for i, arg := range wire.Args {
		switch arg.T {
		case "null":
			msg.Args[i] = Null()
		case "string":
			if arg.S != nil {
				msg.Args[i] = String(*arg.S)
			} else {
				msg.Args[i] = String("")
			}
		case "int":
			if arg.I != nil {
				msg.Args[i] = Int(*arg.I)
			} else {
				msg.Args[i] = Int(0)
			}
		case "bool":
			msg.Args[i] = Bool(arg.B != nil && *arg.B)
		case "double":
			if arg.D != nil {
				msg.Args[i] = Double(*arg.D)
			} else {
				msg.Args[i] = Double(0)
			}
		default:
			return nil, fmt.Errorf("%w: %q in %s[%d]", ErrBadKind, arg.T, wire.Name, i)
		}
	}
	return msg, nil
}
