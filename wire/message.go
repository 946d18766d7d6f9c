package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MsgType is the first byte of every frame header. The codes are part
// of the wire format and must never be renumbered.
type MsgType uint8

const (
	MsgError           MsgType = 0
	MsgGetVariable     MsgType = 1
	MsgSetVariable     MsgType = 2
	MsgGetAllVariables MsgType = 3
	MsgGetAllTriggers  MsgType = 4
	MsgExecuteTrigger  MsgType = 5
	MsgVariableUpdate  MsgType = 6
	MsgSuccess         MsgType = 7
)

func (t MsgType) String() string {
	switch t {
	case MsgError:
		return "Error"
	case MsgGetVariable:
		return "GetVariable"
	case MsgSetVariable:
		return "SetVariable"
	case MsgGetAllVariables:
		return "GetAllVariables"
	case MsgGetAllTriggers:
		return "GetAllTriggers"
	case MsgExecuteTrigger:
		return "ExecuteTrigger"
	case MsgVariableUpdate:
		return "VariableUpdate"
	case MsgSuccess:
		return "Success"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// ErrParse is returned for frames that are truncated, malformed, or carry
// an unrecognized field. It wraps a more specific reason.
var ErrParse = errors.New("proplink/wire: parse error")

func parseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// VariableRecord is the wire shape of a Variable: name, value, and the
// read-only flag.
type VariableRecord struct {
	Name     string
	Value    Value
	ReadOnly bool
}

// --- field-level encoding -------------------------------------------------

func appendName(dst []byte, name string) []byte {
	dst = append(dst, name...)
	return append(dst, 0)
}

func takeName(src []byte) (name string, rest []byte, err error) {
	for i, b := range src {
		if b == 0 {
			return string(src[:i]), src[i+1:], nil
		}
	}
	return "", nil, parseErrorf("unterminated name field")
}

func appendValue(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.kind))
	switch v.kind {
	case KindFloat64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.f))
		dst = append(dst, buf[:]...)
	case KindInt64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.i))
		dst = append(dst, buf[:]...)
	case KindBool:
		if v.b {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case KindString:
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v.s)))
		dst = append(dst, lenBuf[:]...)
		dst = append(dst, v.s...)
	}
	return dst
}

func takeValue(src []byte) (v Value, rest []byte, err error) {
	if len(src) < 1 {
		return Value{}, nil, parseErrorf("truncated value: missing kind byte")
	}
	kind := Kind(src[0])
	src = src[1:]
	switch kind {
	case KindFloat64:
		if len(src) < 8 {
			return Value{}, nil, parseErrorf("truncated float64 value")
		}
		bits := binary.LittleEndian.Uint64(src[:8])
		return FloatValue(math.Float64frombits(bits)), src[8:], nil
	case KindInt64:
		if len(src) < 8 {
			return Value{}, nil, parseErrorf("truncated int64 value")
		}
		return IntValue(int64(binary.LittleEndian.Uint64(src[:8]))), src[8:], nil
	case KindBool:
		if len(src) < 1 {
			return Value{}, nil, parseErrorf("truncated bool value")
		}
		return BoolValue(src[0] != 0), src[1:], nil
	case KindString:
		if len(src) < 4 {
			return Value{}, nil, parseErrorf("truncated string value length")
		}
		n := binary.LittleEndian.Uint32(src[:4])
		src = src[4:]
		if uint32(len(src)) < n {
			return Value{}, nil, parseErrorf("truncated string value payload")
		}
		return StringValue(string(src[:n])), src[n:], nil
	default:
		return Value{}, nil, parseErrorf("unknown value kind %d", uint8(kind))
	}
}

func appendVariableRecord(dst []byte, rec VariableRecord) []byte {
	dst = appendName(dst, rec.Name)
	dst = appendValue(dst, rec.Value)
	if rec.ReadOnly {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	return dst
}

func takeVariableRecord(src []byte) (rec VariableRecord, rest []byte, err error) {
	name, rest, err := takeName(src)
	if err != nil {
		return VariableRecord{}, nil, err
	}
	value, rest, err := takeValue(rest)
	if err != nil {
		return VariableRecord{}, nil, err
	}
	if len(rest) < 1 {
		return VariableRecord{}, nil, parseErrorf("truncated variable record: missing read_only byte")
	}
	rec = VariableRecord{Name: name, Value: value, ReadOnly: rest[0] != 0}
	return rec, rest[1:], nil
}

func appendUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func takeUint32(src []byte) (v uint32, rest []byte, err error) {
	if len(src) < 4 {
		return 0, nil, parseErrorf("truncated uint32 field")
	}
	return binary.LittleEndian.Uint32(src[:4]), src[4:], nil
}
