package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablecrdt/internal/crdt"
)

func TestVectorClockRoundTrip(t *testing.T) {
	vc := crdt.NewVectorClock()
	vc[1] = 10
	vc[2] = 20
	vc[999999] = 1

	encoded := EncodeVectorClock(vc)
	decoded, err := DecodeVectorClock(encoded)
	require.NoError(t, err)
	assert.True(t, vc.Equal(decoded))
}

func TestVectorClockEmptyRoundTrip(t *testing.T) {
	vc := crdt.NewVectorClock()
	encoded := EncodeVectorClock(vc)
	decoded, err := DecodeVectorClock(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestVectorClockDecodeMalformed(t *testing.T) {
	_, err := DecodeVectorClock([]byte{0x05}) // claims 5 entries, none present
	assert.Error(t, err)
}
