package peerid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReturnsDistinctNonZeroPeers(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		p := New()
		assert.NotZero(t, uint64(p))
		assert.False(t, seen[uint64(p)], "peerid.New() produced a duplicate")
		seen[uint64(p)] = true
	}
}
