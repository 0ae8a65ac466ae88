package api

import (
	"fmt"

	"tablecrdt/internal/crdt"
)

// jsonValue is the wire shape a client PUTs/GETs a cell value as — a small
// tagged JSON object mirroring crdt.Value's tagged sum, since JSON itself
// has no way to distinguish "the integer 3" from "the float 3.0" once it
// round-trips through an untyped client.
type jsonValue struct {
	Type string  `json:"type" binding:"required"`
	F64  float64 `json:"f64,omitempty"`
	I64  int64   `json:"i64,omitempty"`
	Str  string  `json:"str,omitempty"`
}

func valueFromJSON(j jsonValue) (crdt.Value, error) {
	switch j.Type {
	case "double":
		return crdt.Double(j.F64), nil
	case "i64":
		return crdt.I64(j.I64), nil
	case "str":
		return crdt.Str(j.Str), nil
	case "true":
		return crdt.True, nil
	case "false":
		return crdt.False, nil
	case "null":
		return crdt.Null, nil
	default:
		return crdt.Value{}, fmt.Errorf("unrecognized value type %q", j.Type)
	}
}

func valueToJSON(v crdt.Value) jsonValue {
	switch v.Kind {
	case crdt.KindDouble:
		return jsonValue{Type: "double", F64: v.F64}
	case crdt.KindI64:
		return jsonValue{Type: "i64", I64: v.I64}
	case crdt.KindStr:
		return jsonValue{Type: "str", Str: v.Str}
	case crdt.KindTrue:
		return jsonValue{Type: "true"}
	case crdt.KindFalse:
		return jsonValue{Type: "false"}
	default:
		return jsonValue{Type: "null"}
	}
}
