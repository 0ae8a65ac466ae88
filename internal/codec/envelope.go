package codec

import "google.golang.org/protobuf/encoding/protowire"

// The delta and snapshot blobs are framed with a tiny length-delimited
// envelope built directly on protowire's varint and byte-slice primitives —
// the "variable-length integer writer" and "general binary serializer" the
// design notes call out as assumed-available libraries, rather than a
// hand-rolled framing scheme. protowire is a pure, codegen-free runtime
// helper (no .proto compilation involved); we use only AppendVarint /
// ConsumeVarint here, which is exactly the varint primitive the delta-RLE
// and bool-RLE layers build on too.

func putUvarint(buf []byte, v uint64) []byte {
	return protowire.AppendVarint(buf, v)
}

func getUvarint(data []byte, stream string) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, nil, malformed(stream, "truncated varint")
	}
	return v, data[n:], nil
}

// zigzag maps signed deltas onto unsigned varints so that small negative
// runs cost as little as small positive ones.
func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func getBytes(data []byte, stream string) ([]byte, []byte, error) {
	n, rest, err := getUvarint(data, stream)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, malformed(stream, "truncated byte section")
	}
	return rest[:n], rest[n:], nil
}

func putString(buf []byte, s string) []byte {
	return putBytes(buf, []byte(s))
}

func getString(data []byte, stream string) (string, []byte, error) {
	b, rest, err := getBytes(data, stream)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

func putBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func getBool(data []byte, stream string) (bool, []byte, error) {
	if len(data) == 0 {
		return false, nil, malformed(stream, "truncated bool")
	}
	return data[0] != 0, data[1:], nil
}
