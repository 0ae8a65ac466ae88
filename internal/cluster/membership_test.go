package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipJoinAndLeave(t *testing.T) {
	m := NewMembership([]Node{{ID: "a", Address: "localhost:1"}}, 50)

	err := m.Join(Node{ID: "b", Address: "localhost:2"})
	require.NoError(t, err)
	assert.Len(t, m.All(), 2)

	err = m.Join(Node{ID: "a", Address: "localhost:3"})
	assert.Error(t, err, "joining an existing node id must fail")

	err = m.Leave("a")
	require.NoError(t, err)
	assert.Len(t, m.All(), 1)

	err = m.Leave("a")
	assert.Error(t, err, "leaving an unknown node id must fail")
}

func TestMembershipGetNode(t *testing.T) {
	m := NewMembership([]Node{{ID: "a", Address: "localhost:1"}}, 50)
	n, ok := m.GetNode("a")
	require.True(t, ok)
	assert.Equal(t, "localhost:1", n.Address)
	assert.True(t, n.IsAlive)

	_, ok = m.GetNode("missing")
	assert.False(t, ok)
}

func TestMembershipReplicaNodes(t *testing.T) {
	m := NewMembership([]Node{
		{ID: "a", Address: "localhost:1"},
		{ID: "b", Address: "localhost:2"},
		{ID: "c", Address: "localhost:3"},
	}, 50)

	nodes := m.ReplicaNodes("table-x", 2)
	assert.Len(t, nodes, 2)
}
