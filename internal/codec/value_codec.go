package codec

import (
	"math"

	"tablecrdt/internal/crdt"
)

// putValue appends the binary form of a crdt.Value: a one-byte tag (in the
// exact Kind declaration order: Double, I64, Str, True, False, Null,
// Deleted) followed by the variant's payload, if any. True/False/Null/
// Deleted carry no payload — the tag alone is the signal, and a Deleted tag
// combined with null row/col indices is what marks a delta record as a
// table- or row-level tombstone.
func putValue(buf []byte, v crdt.Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case crdt.KindDouble:
		buf = putUvarint(buf, math.Float64bits(v.F64))
	case crdt.KindI64:
		buf = putUvarint(buf, zigzagEncode(v.I64))
	case crdt.KindStr:
		buf = putString(buf, v.Str)
	}
	return buf
}

// getValue decodes one value written by putValue.
func getValue(data []byte) (crdt.Value, []byte, error) {
	if len(data) == 0 {
		return crdt.Value{}, nil, malformed("value", "truncated tag")
	}
	kind := crdt.Kind(data[0])
	rest := data[1:]
	switch kind {
	case crdt.KindDouble:
		bits, rest2, err := getUvarint(rest, "value.double")
		if err != nil {
			return crdt.Value{}, nil, err
		}
		return crdt.Double(math.Float64frombits(bits)), rest2, nil
	case crdt.KindI64:
		raw, rest2, err := getUvarint(rest, "value.i64")
		if err != nil {
			return crdt.Value{}, nil, err
		}
		return crdt.I64(zigzagDecode(raw)), rest2, nil
	case crdt.KindStr:
		s, rest2, err := getString(rest, "value.str")
		if err != nil {
			return crdt.Value{}, nil, err
		}
		return crdt.Str(s), rest2, nil
	case crdt.KindTrue:
		return crdt.True, rest, nil
	case crdt.KindFalse:
		return crdt.False, rest, nil
	case crdt.KindNull:
		return crdt.Null, rest, nil
	case crdt.KindDeleted:
		return crdt.Deleted, rest, nil
	default:
		return crdt.Value{}, nil, malformed("value", "unrecognized tag")
	}
}
