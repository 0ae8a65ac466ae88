package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpLogRecordAdvancesClock(t *testing.T) {
	l := NewOpLog()
	l.RecordUpdate(OpId{Lamport: 1, Peer: 1}, "t", "r1")
	l.RecordUpdate(OpId{Lamport: 3, Peer: 1}, "t", "r2")
	l.RecordUpdate(OpId{Lamport: 2, Peer: 2}, "t", "r1")

	assert.Equal(t, Lamport(3), l.MaxLamport())
	assert.Equal(t, Lamport(3), l.Clock().Get(1))
	assert.Equal(t, Lamport(2), l.Clock().Get(2))
}

func TestOpLogIterFromSkipsKnown(t *testing.T) {
	l := NewOpLog()
	l.RecordUpdate(OpId{Lamport: 1, Peer: 1}, "t", "r1")
	l.RecordUpdate(OpId{Lamport: 2, Peer: 1}, "t", "r2")
	l.RecordDeleteRow(OpId{Lamport: 3, Peer: 1}, "t", "r1")

	from := NewVectorClock()
	from[1] = 1
	entries := l.IterFrom(from)
	assert.Len(t, entries, 2)
	assert.Equal(t, Lamport(2), entries[0].Id.Lamport)
	assert.Equal(t, Lamport(3), entries[1].Id.Lamport)
	assert.Equal(t, OpDeleteRow, entries[1].Op.Kind)
}

func TestOpLogIterFromEmptyYieldsEverything(t *testing.T) {
	l := NewOpLog()
	l.RecordUpdate(OpId{Lamport: 1, Peer: 1}, "t", "r1")
	l.RecordUpdate(OpId{Lamport: 1, Peer: 2}, "t", "r2")

	entries := l.IterFrom(NewVectorClock())
	assert.Len(t, entries, 2)
}

func TestOpLogBuilderSortsPerPeer(t *testing.T) {
	b := NewBuilder()
	b.Add(OpId{Lamport: 3, Peer: 1}, Op{Kind: OpUpdate, Table: "t", Row: "r1"})
	b.Add(OpId{Lamport: 1, Peer: 1}, Op{Kind: OpUpdate, Table: "t", Row: "r2"})
	b.Add(OpId{Lamport: 2, Peer: 2}, Op{Kind: OpUpdate, Table: "t", Row: "r3"})

	l := b.Build()
	assert.Equal(t, Lamport(3), l.MaxLamport())

	entries := l.IterFrom(NewVectorClock())
	var peer1Lamports []Lamport
	for _, e := range entries {
		if e.Id.Peer == 1 {
			peer1Lamports = append(peer1Lamports, e.Id.Lamport)
		}
	}
	assert.Equal(t, []Lamport{1, 3}, peer1Lamports)
}
