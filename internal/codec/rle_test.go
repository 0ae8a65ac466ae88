package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaRLERoundTrip(t *testing.T) {
	cases := [][]int64{
		nil,
		{0},
		{1, 2, 3, 4},
		{5, 5, 5, 5},
		{-10, -5, 0, 5, 10},
		{100, 1, 100, 1, 100},
	}
	for _, xs := range cases {
		encoded := EncodeDeltaRLE(xs)
		decoded, err := DecodeDeltaRLE(encoded)
		require.NoError(t, err)
		assert.Equal(t, xs, decoded)
	}
}

func TestDeltaRLEDecoderMalformed(t *testing.T) {
	_, err := DecodeDeltaRLE([]byte{0x00}) // zero-length run
	assert.Error(t, err)

	_, err = DecodeDeltaRLE([]byte{0x80}) // truncated varint
	assert.Error(t, err)
}

func TestBoolRLERoundTrip(t *testing.T) {
	cases := [][]bool{
		nil,
		{false},
		{true},
		{true, true, true},
		{false, false, true, true, false},
		{true, false, true, false, true},
	}
	for _, bs := range cases {
		encoded := EncodeBoolRLE(bs)
		decoded, err := DecodeBoolRLE(encoded)
		require.NoError(t, err)
		assert.Equal(t, bs, decoded)
	}
}

func TestBoolRLEStartsTrueConvention(t *testing.T) {
	// A stream starting with `true` must encode a leading zero-length
	// `false` run, per the canonical convention.
	encoded := EncodeBoolRLE([]bool{true, true})
	dec := NewBoolRLEDecoder(encoded)
	v, ok, err := dec.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v)
}
