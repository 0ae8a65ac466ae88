package codec

import "google.golang.org/protobuf/encoding/protowire"

// EncodeDeltaRLE run-length-encodes a sequence of signed 64-bit values as
// (count, delta) run pairs: each run's delta is added to a running sum
// (seeded at 0) to reconstruct the next `count` values. A new run begins
// whenever the successor delta changes. The stream is self-describing — its
// length is implied by the sum of run counts, not stored separately — so
// decoding simply runs until the input bytes are exhausted.
func EncodeDeltaRLE(values []int64) []byte {
	var buf []byte
	prev := int64(0)
	i := 0
	for i < len(values) {
		delta := values[i] - prev
		count := uint64(1)
		prev = values[i]
		j := i + 1
		for j < len(values) && values[j]-prev == delta {
			count++
			prev = values[j]
			j++
		}
		buf = putUvarint(buf, count)
		buf = putUvarint(buf, zigzagEncode(delta))
		i = j
	}
	return buf
}

// DecodeDeltaRLE reconstructs the full sequence encoded by EncodeDeltaRLE.
func DecodeDeltaRLE(data []byte) ([]int64, error) {
	dec := NewDeltaRLEDecoder(data)
	var out []int64
	for {
		v, ok, err := dec.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// DeltaRLEDecoder is the stateful iterator the design notes call for: it
// decodes one run at a time and yields values one at a time, so a caller
// that wants to stop early (or interleave decoding with other streams of
// the same record count) never has to materialize the whole slice.
type DeltaRLEDecoder struct {
	data      []byte
	pos       int
	sum       int64
	delta     int64
	remaining uint64
}

// NewDeltaRLEDecoder returns a fresh iterator over data.
func NewDeltaRLEDecoder(data []byte) *DeltaRLEDecoder {
	return &DeltaRLEDecoder{data: data}
}

// Next returns the next value in the stream. ok is false once every run has
// been consumed; err is non-nil only on malformed input.
func (d *DeltaRLEDecoder) Next() (value int64, ok bool, err error) {
	for d.remaining == 0 {
		if d.pos >= len(d.data) {
			return 0, false, nil
		}
		count, n := protowire.ConsumeVarint(d.data[d.pos:])
		if n < 0 {
			return 0, false, malformed("delta-rle", "truncated run count")
		}
		d.pos += n
		if count == 0 {
			return 0, false, malformed("delta-rle", "zero-length run")
		}
		rawDelta, n2 := protowire.ConsumeVarint(d.data[d.pos:])
		if n2 < 0 {
			return 0, false, malformed("delta-rle", "truncated run delta")
		}
		d.pos += n2
		d.delta = zigzagDecode(rawDelta)
		d.remaining = count
	}
	d.sum += d.delta
	d.remaining--
	return d.sum, true, nil
}

// EncodeBoolRLE run-length-encodes a sequence of booleans as alternating run
// lengths of varints. By canonical convention the decoder's alternating
// state starts at true and is flipped before the first run is consumed, so
// the first emitted run always describes a (possibly zero-length) run of
// `false` — a sequence that starts with `true` legally begins with a
// zero-length run.
func EncodeBoolRLE(bs []bool) []byte {
	if len(bs) == 0 {
		return nil
	}
	var buf []byte
	expect := false
	count := uint64(0)
	for _, b := range bs {
		if b == expect {
			count++
			continue
		}
		buf = putUvarint(buf, count)
		expect = !expect
		count = 1
	}
	buf = putUvarint(buf, count)
	return buf
}

// DecodeBoolRLE reconstructs the full sequence encoded by EncodeBoolRLE.
func DecodeBoolRLE(data []byte) ([]bool, error) {
	dec := NewBoolRLEDecoder(data)
	var out []bool
	for {
		v, ok, err := dec.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// BoolRLEDecoder is the stateful iterator over a bool-RLE stream.
type BoolRLEDecoder struct {
	data      []byte
	pos       int
	cur       bool
	remaining uint64
}

// NewBoolRLEDecoder returns a fresh iterator over data, with the canonical
// starting state (true, flipped to false before the first run).
func NewBoolRLEDecoder(data []byte) *BoolRLEDecoder {
	return &BoolRLEDecoder{data: data, cur: true}
}

// Next returns the next boolean in the stream, or ok=false once the input
// is exhausted.
func (d *BoolRLEDecoder) Next() (value bool, ok bool, err error) {
	for d.remaining == 0 {
		if d.pos >= len(d.data) {
			return false, false, nil
		}
		count, n := protowire.ConsumeVarint(d.data[d.pos:])
		if n < 0 {
			return false, false, malformed("bool-rle", "truncated run length")
		}
		d.pos += n
		d.cur = !d.cur
		d.remaining = count
	}
	d.remaining--
	return d.cur, true, nil
}
