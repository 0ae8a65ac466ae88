package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableSetGet(t *testing.T) {
	tbl := NewTable()
	assert.True(t, tbl.Set("r1", "c1", I64(1), OpId{Lamport: 1, Peer: 1}))
	assert.True(t, tbl.Set("r1", "c2", I64(2), OpId{Lamport: 2, Peer: 1}))

	v, _, ok := tbl.GetCell("r1", "c1")
	assert.True(t, ok)
	assert.True(t, v.Equal(I64(1)))

	rows := tbl.IterRow("r1")
	assert.Len(t, rows, 2)
	assert.Equal(t, "c1", rows[0].Col)
	assert.Equal(t, "c2", rows[1].Col)
}

func TestTableDeleteRowClearsCells(t *testing.T) {
	tbl := NewTable()
	tbl.Set("r1", "c1", I64(1), OpId{Lamport: 1, Peer: 1})
	tbl.Set("r1", "c2", I64(2), OpId{Lamport: 2, Peer: 1})

	assert.True(t, tbl.DeleteRow("r1", OpId{Lamport: 3, Peer: 1}))
	assert.Empty(t, tbl.IterRow("r1"))
	_, _, ok := tbl.GetCell("r1", "c1")
	assert.False(t, ok)
}

// S4 — concurrent cell write: higher (lamport, peer) wins regardless of
// apply order.
func TestTableConcurrentWriteHigherPeerWins(t *testing.T) {
	winner := OpId{Lamport: 1, Peer: 11}
	loser := OpId{Lamport: 1, Peer: 7}

	forward := NewTable()
	forward.Set("r", "c", Str("x"), loser)
	forward.Set("r", "c", Str("y"), winner)
	v, _, _ := forward.GetCell("r", "c")
	assert.Equal(t, "y", v.Str)

	reverse := NewTable()
	reverse.Set("r", "c", Str("y"), winner)
	reverse.Set("r", "c", Str("x"), loser)
	v2, _, _ := reverse.GetCell("r", "c")
	assert.Equal(t, "y", v2.Str)
}

// S5 — tombstone races a write: the row clear at (5, peerB) dominates a cell
// write at (5, peerA) when peerA < peerB, regardless of apply order.
func TestTableRowClearRacesWrite(t *testing.T) {
	writeId := OpId{Lamport: 5, Peer: 1}
	clearId := OpId{Lamport: 5, Peer: 2}

	tbl := NewTable()
	tbl.Set("r", "c", I64(42), writeId)
	tbl.DeleteRow("r", clearId)

	_, _, ok := tbl.GetCell("r", "c")
	assert.False(t, ok)
	cleared, ok := tbl.RowCleared("r")
	assert.True(t, ok)
	assert.Equal(t, clearId, cleared)

	// Symmetric: clearing first, then the dominated write should also no-op.
	tbl2 := NewTable()
	tbl2.DeleteRow("r", clearId)
	applied := tbl2.Set("r", "c", I64(42), writeId)
	assert.False(t, applied)
	_, _, ok = tbl2.GetCell("r", "c")
	assert.False(t, ok)
}

func TestTableWriteSurvivesRowClearWhenNewer(t *testing.T) {
	tbl := NewTable()
	tbl.DeleteRow("r", OpId{Lamport: 5, Peer: 2})
	applied := tbl.Set("r", "c", I64(1), OpId{Lamport: 6, Peer: 1})
	assert.True(t, applied)
	v, _, ok := tbl.GetCell("r", "c")
	assert.True(t, ok)
	assert.True(t, v.Equal(I64(1)))
}

func TestTableIdempotentReapply(t *testing.T) {
	tbl := NewTable()
	id := OpId{Lamport: 1, Peer: 1}
	assert.True(t, tbl.Set("r", "c", I64(1), id))
	assert.False(t, tbl.Set("r", "c", I64(1), id))
}

// Deleting a cell that was never written is a true no-op: no column is
// created to hold a tombstone for it.
func TestTableColumnGCNeverWrittenCellIsNoop(t *testing.T) {
	tbl := NewTable()
	applied := tbl.Delete("r", "c", OpId{Lamport: 1, Peer: 1})
	assert.False(t, applied)
	assert.NotContains(t, tbl.Columns(), "c")
}

// Deleting a previously-live cell leaves its tombstone behind: the column
// survives (with liveCount back to zero) so the tombstone's OpId can still
// dominate a peer's stale write.
func TestTableColumnSurvivesTombstoneAfterLiveDelete(t *testing.T) {
	tbl := NewTable()
	id := OpId{Lamport: 1, Peer: 1}
	tbl.Set("r", "c", I64(1), id)
	assert.Contains(t, tbl.Columns(), "c")

	delId := OpId{Lamport: 2, Peer: 1}
	assert.True(t, tbl.Delete("r", "c", delId))
	assert.Contains(t, tbl.Columns(), "c")

	_, _, ok := tbl.GetCell("r", "c")
	assert.False(t, ok)

	cells := tbl.IterRowAll("r")
	assert.Len(t, cells, 1)
	assert.Equal(t, "c", cells[0].Col)
	assert.True(t, cells[0].Value.IsDeleted())
	assert.Equal(t, delId, cells[0].Id)
}

// A row/table clear still fully garbage-collects a column that holds
// nothing but absent cells afterward, unlike a lone cell-level tombstone.
func TestTableColumnGCOnRowClear(t *testing.T) {
	tbl := NewTable()
	id := OpId{Lamport: 1, Peer: 1}
	tbl.Set("r", "c", I64(1), id)
	assert.Contains(t, tbl.Columns(), "c")

	tbl.DeleteRow("r", OpId{Lamport: 2, Peer: 1})
	assert.NotContains(t, tbl.Columns(), "c")
}

func TestTableDeleteTablePreservesNewerCells(t *testing.T) {
	tbl := NewTable()
	tbl.Set("r", "c1", I64(1), OpId{Lamport: 1, Peer: 1})
	tbl.DeleteTable(OpId{Lamport: 5, Peer: 1})

	_, _, ok := tbl.GetCell("r", "c1")
	assert.False(t, ok)

	// A write causally after the table tombstone must survive it.
	applied := tbl.Set("r", "c2", I64(2), OpId{Lamport: 6, Peer: 1})
	assert.True(t, applied)
	v, _, ok := tbl.GetCell("r", "c2")
	assert.True(t, ok)
	assert.True(t, v.Equal(I64(2)))

	removed, ok := tbl.Removed()
	assert.True(t, ok)
	assert.Equal(t, OpId{Lamport: 5, Peer: 1}, removed)
}

func TestTableSortIsStableAndPreservesEquality(t *testing.T) {
	a := NewTable()
	a.Set("b", "c1", I64(1), OpId{Lamport: 1, Peer: 1})
	a.Set("a", "c1", I64(2), OpId{Lamport: 2, Peer: 1})

	b := NewTable()
	b.Set("a", "c1", I64(2), OpId{Lamport: 2, Peer: 1})
	b.Set("b", "c1", I64(1), OpId{Lamport: 1, Peer: 1})

	assert.True(t, a.Equal(b))
	a.Sort()
	b.Sort()
	assert.Equal(t, []string{"a", "b"}, a.Rows())
	assert.True(t, a.Equal(b))
}
