package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingGetNodesReturnsDistinctNodes(t *testing.T) {
	r := NewRing(50)
	r.AddNode("a")
	r.AddNode("b")
	r.AddNode("c")

	nodes := r.GetNodes("some-table", 2)
	assert.Len(t, nodes, 2)
	assert.NotEqual(t, nodes[0], nodes[1])
}

func TestRingGetNodesDeterministic(t *testing.T) {
	r := NewRing(50)
	r.AddNode("a")
	r.AddNode("b")
	r.AddNode("c")

	first := r.GetNodes("users", 3)
	second := r.GetNodes("users", 3)
	assert.Equal(t, first, second)
}

func TestRingEmptyReturnsNil(t *testing.T) {
	r := NewRing(50)
	assert.Nil(t, r.GetNodes("x", 1))
}

func TestRingNodeCountIgnoresVnodes(t *testing.T) {
	r := NewRing(100)
	r.AddNode("a")
	r.AddNode("b")
	assert.Equal(t, 2, r.NodeCount())
}

func TestRingRemoveNode(t *testing.T) {
	r := NewRing(50)
	r.AddNode("a")
	r.AddNode("b")
	r.RemoveNode("a")
	assert.Equal(t, []string{"b"}, r.Nodes())
}
