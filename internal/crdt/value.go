package crdt

import "fmt"

// Kind tags the variant carried by a Value. Wire-form tag order (see
// internal/codec) follows this declaration order exactly: Double, I64, Str,
// True, False, Null, Deleted.
type Kind uint8

const (
	KindDouble Kind = iota
	KindI64
	KindStr
	KindTrue
	KindFalse
	KindNull
	KindDeleted
)

// Value is the scalar a cell holds. Deleted is an internal tombstone
// sentinel: callers never observe it directly through GetCell/IterRow, only
// as the absence of a cell.
type Value struct {
	Kind Kind
	F64  float64
	I64  int64
	Str  string
}

func Double(v float64) Value { return Value{Kind: KindDouble, F64: v} }
func I64(v int64) Value      { return Value{Kind: KindI64, I64: v} }
func Str(v string) Value     { return Value{Kind: KindStr, Str: v} }

var (
	True    = Value{Kind: KindTrue}
	False   = Value{Kind: KindFalse}
	Null    = Value{Kind: KindNull}
	Deleted = Value{Kind: KindDeleted}
)

// IsDeleted reports whether v is the tombstone sentinel.
func (v Value) IsDeleted() bool { return v.Kind == KindDeleted }

// Equal is total equality over the tagged sum — two values are equal only
// if both the tag and the active payload match.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindDouble:
		return v.F64 == other.F64
	case KindI64:
		return v.I64 == other.I64
	case KindStr:
		return v.Str == other.Str
	default:
		return true // True, False, Null, Deleted carry no payload
	}
}

// String renders a Value for diagnostics/pretty-printing — not part of the
// wire format, purely a debugging aid (the "pretty-printing" external
// collaborator the distilled spec calls out, given a minimal default here).
func (v Value) String() string {
	switch v.Kind {
	case KindDouble:
		return fmt.Sprintf("%g", v.F64)
	case KindI64:
		return fmt.Sprintf("%d", v.I64)
	case KindStr:
		return v.Str
	case KindTrue:
		return "true"
	case KindFalse:
		return "false"
	case KindNull:
		return "null"
	case KindDeleted:
		return "<deleted>"
	default:
		return "<invalid>"
	}
}
