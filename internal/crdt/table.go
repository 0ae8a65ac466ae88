package crdt

import "sort"

// cellState is the tri-state a (row, col) position can be in. The zero value
// (cellAbsent) is deliberately "never written", so parallel arrays can grow
// by zero-extension without an explicit initialization pass.
type cellState uint8

const (
	cellAbsent cellState = iota
	cellLive
	cellTombstone
)

// column holds one column's cells as parallel arrays indexed by row index —
// layout (b) from the design notes: this is the layout the snapshot codec
// wants for column-major traversal, and Table.Sort permutes all of them in
// lockstep so equality comparison is possible.
//
// liveCount and touched are tracked separately: liveCount counts live cells,
// touched (live or tombstoned cells) gates column GC. GetCell/IterRow decide
// visibility from each cell's state, not from liveCount.
// A column that still holds a tombstone must survive even once liveCount
// drops to zero — that tombstone's OpId is what lets a delta/snapshot
// export tell a peer holding the stale pre-delete value that it lost.
type column struct {
	state     []cellState
	values    []Value
	lamports  []Lamport
	peers     []Peer
	liveCount int
	touched   int
}

func newColumn() *column { return &column{} }

// ensure grows the parallel arrays to length n, zero-extending (i.e. new
// rows start cellAbsent in every existing column).
func (c *column) ensure(n int) {
	if n <= len(c.state) {
		return
	}
	grow := n - len(c.state)
	c.state = append(c.state, make([]cellState, grow)...)
	c.values = append(c.values, make([]Value, grow)...)
	c.lamports = append(c.lamports, make([]Lamport, grow)...)
	c.peers = append(c.peers, make([]Peer, grow)...)
}

func (c *column) at(ri int) (cellState, Value, OpId) {
	if ri >= len(c.state) {
		return cellAbsent, Value{}, OpId{}
	}
	return c.state[ri], c.values[ri], OpId{Lamport: c.lamports[ri], Peer: c.peers[ri]}
}

// Table is one LWW table: a sparse, column-major 2-D map from (row, col) to
// (value, OpId), plus row- and table-level tombstones. See the package docs
// and the design notes for the merge rules each mutating method implements.
type Table struct {
	rows     []string
	rowIndex map[string]int

	colOrder []string
	cols     map[string]*column

	clearedSet     []bool
	clearedLamport []Lamport
	clearedPeer    []Peer

	removedSet bool
	removed    OpId
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		rowIndex: make(map[string]int),
		cols:     make(map[string]*column),
	}
}

// rowAt returns the row index for name, creating the row if it is unseen.
func (t *Table) rowAt(name string) int {
	if ri, ok := t.rowIndex[name]; ok {
		return ri
	}
	ri := len(t.rows)
	t.rows = append(t.rows, name)
	t.rowIndex[name] = ri
	t.clearedSet = append(t.clearedSet, false)
	t.clearedLamport = append(t.clearedLamport, 0)
	t.clearedPeer = append(t.clearedPeer, 0)
	return ri
}

func (t *Table) columnAt(name string) *column {
	col, ok := t.cols[name]
	if !ok {
		col = newColumn()
		t.cols[name] = col
		t.colOrder = append(t.colOrder, name)
	}
	col.ensure(len(t.rows))
	return col
}

func (t *Table) rowCleared(ri int) (OpId, bool) {
	if !t.clearedSet[ri] {
		return OpId{}, false
	}
	return OpId{Lamport: t.clearedLamport[ri], Peer: t.clearedPeer[ri]}, true
}

// gcColumn drops a column entirely once it holds no recorded state at all —
// neither a live cell nor a tombstone. Columns are a purely derived index of
// "which names currently have something to say", so they disappear eagerly
// rather than waiting for a sweep; a lone tombstone is enough to keep one
// alive, since it still needs to be exported to dominate a peer's stale copy.
func (t *Table) gcColumn(name string) {
	col := t.cols[name]
	if col == nil || col.touched > 0 {
		return
	}
	delete(t.cols, name)
	for i, n := range t.colOrder {
		if n == name {
			t.colOrder = append(t.colOrder[:i], t.colOrder[i+1:]...)
			break
		}
	}
}

// Set applies a write at id. A Deleted value is routed to Delete. Returns
// false (a no-op) when a dominating table tombstone, row tombstone, or
// newer cell write already wins under the OpId order.
func (t *Table) Set(row, col string, value Value, id OpId) bool {
	if value.IsDeleted() {
		return t.Delete(row, col, id)
	}
	if t.removedSet && t.removed.Greater(id) {
		return false
	}
	ri := t.rowAt(row)
	if cleared, ok := t.rowCleared(ri); ok && cleared.Greater(id) {
		return false
	}

	c := t.columnAt(col)
	state, _, existing := c.at(ri)
	if state != cellAbsent && !existing.Less(id) {
		return false
	}

	wasTouched := state != cellAbsent
	wasLive := state == cellLive
	c.state[ri] = cellLive
	c.values[ri] = value
	c.lamports[ri] = id.Lamport
	c.peers[ri] = id.Peer
	if !wasTouched {
		c.touched++
	}
	if !wasLive {
		c.liveCount++
	}
	return true
}

// Delete writes a tombstone at (row, col). Precedence checks mirror Set.
// Deleting a cell that has never been written is a no-op: there is nothing
// to tombstone, and recording one would leave a column with no real history
// behind it, so the column isn't even created for this case.
func (t *Table) Delete(row, col string, id OpId) bool {
	if t.removedSet && t.removed.Greater(id) {
		return false
	}
	ri, ok := t.rowIndex[row]
	if !ok {
		return false
	}
	if cleared, ok := t.rowCleared(ri); ok && cleared.Greater(id) {
		return false
	}

	c, ok := t.cols[col]
	if !ok {
		return false
	}
	c.ensure(len(t.rows))
	state, _, existing := c.at(ri)
	if state == cellAbsent {
		return false
	}
	if !existing.Less(id) {
		return false
	}

	wasLive := state == cellLive
	c.state[ri] = cellTombstone
	c.values[ri] = Deleted
	c.lamports[ri] = id.Lamport
	c.peers[ri] = id.Peer
	if wasLive {
		c.liveCount--
	}
	return true
}

// DeleteRow clears every cell in row whose OpId <= id and marks the row's
// cleared_at tombstone. Cells with a strictly greater OpId causally follow
// the deletion and survive.
func (t *Table) DeleteRow(row string, id OpId) bool {
	if ri, ok := t.rowIndex[row]; ok {
		if cleared, ok := t.rowCleared(ri); ok && cleared.Greater(id) {
			return false
		}
	}

	ri := t.rowAt(row)
	for _, name := range append([]string(nil), t.colOrder...) {
		c := t.cols[name]
		state, _, existing := c.at(ri)
		if state == cellAbsent || existing.Greater(id) {
			continue
		}
		wasLive := state == cellLive
		c.state[ri] = cellAbsent
		c.values[ri] = Value{}
		c.lamports[ri] = 0
		c.peers[ri] = 0
		c.touched--
		if wasLive {
			c.liveCount--
		}
		t.gcColumn(name)
	}

	t.clearedSet[ri] = true
	t.clearedLamport[ri] = id.Lamport
	t.clearedPeer[ri] = id.Peer
	return true
}

// DeleteTable clears every cell whose OpId <= id across every row and marks
// the table's removed tombstone. Cells (and the rows that hold them) with a
// strictly greater OpId survive — see the design notes' resolved open
// question on table-tombstone preservation.
func (t *Table) DeleteTable(id OpId) bool {
	if t.removedSet && t.removed.Greater(id) {
		return false
	}

	for _, name := range append([]string(nil), t.colOrder...) {
		c := t.cols[name]
		for ri := range t.rows {
			state, _, existing := c.at(ri)
			if state == cellAbsent || existing.Greater(id) {
				continue
			}
			wasLive := state == cellLive
			c.state[ri] = cellAbsent
			c.values[ri] = Value{}
			c.lamports[ri] = 0
			c.peers[ri] = 0
			c.touched--
			if wasLive {
				c.liveCount--
			}
		}
		t.gcColumn(name)
	}

	t.removedSet = true
	t.removed = id
	return true
}

// Removed returns the table-level tombstone OpId, if any.
func (t *Table) Removed() (OpId, bool) {
	if !t.removedSet {
		return OpId{}, false
	}
	return t.removed, true
}

// RowCleared returns row's cleared_at tombstone OpId, if any.
func (t *Table) RowCleared(row string) (OpId, bool) {
	ri, ok := t.rowIndex[row]
	if !ok {
		return OpId{}, false
	}
	return t.rowCleared(ri)
}

// RowCell is one live cell yielded by IterRow.
type RowCell struct {
	Col   string
	Value Value
	Id    OpId
}

// GetCell returns the live value at (row, col), if present.
func (t *Table) GetCell(row, col string) (Value, OpId, bool) {
	ri, ok := t.rowIndex[row]
	if !ok {
		return Value{}, OpId{}, false
	}
	c, ok := t.cols[col]
	if !ok {
		return Value{}, OpId{}, false
	}
	state, value, id := c.at(ri)
	if state != cellLive {
		return Value{}, OpId{}, false
	}
	return value, id, true
}

// IterRow yields every live cell in row, in column insertion order.
func (t *Table) IterRow(row string) []RowCell {
	ri, ok := t.rowIndex[row]
	if !ok {
		return nil
	}
	var out []RowCell
	for _, name := range t.colOrder {
		c := t.cols[name]
		state, value, id := c.at(ri)
		if state == cellLive {
			out = append(out, RowCell{Col: name, Value: value, Id: id})
		}
	}
	return out
}

// IterRowAll yields every cell in row that has ever been written or
// tombstoned, in column insertion order — unlike IterRow, a deleted cell is
// included (carrying the Deleted value and its tombstone OpId) rather than
// skipped. The delta exporter uses this instead of IterRow so a cell-level
// delete still reaches a peer holding the stale pre-delete value.
func (t *Table) IterRowAll(row string) []RowCell {
	ri, ok := t.rowIndex[row]
	if !ok {
		return nil
	}
	var out []RowCell
	for _, name := range t.colOrder {
		c := t.cols[name]
		state, value, id := c.at(ri)
		if state != cellAbsent {
			out = append(out, RowCell{Col: name, Value: value, Id: id})
		}
	}
	return out
}

// CellAny returns the cell at (row, col) regardless of whether it is live
// or tombstoned — unlike GetCell, which only reports live cells. ok is
// false only when the cell has never been touched at all.
func (t *Table) CellAny(row, col string) (Value, OpId, bool) {
	ri, ok := t.rowIndex[row]
	if !ok {
		return Value{}, OpId{}, false
	}
	c, ok := t.cols[col]
	if !ok {
		return Value{}, OpId{}, false
	}
	state, value, id := c.at(ri)
	if state == cellAbsent {
		return Value{}, OpId{}, false
	}
	return value, id, true
}

// Rows returns the table's row names in current physical order.
func (t *Table) Rows() []string {
	return append([]string(nil), t.rows...)
}

// Columns returns every column name that currently holds recorded cell
// state — live or tombstoned — in insertion order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.colOrder...)
}

// HasRow reports whether row has ever been touched (written, deleted, or
// row/table cleared while it existed).
func (t *Table) HasRow(row string) bool {
	_, ok := t.rowIndex[row]
	return ok
}

// Sort stably reorders rows (and every column's parallel arrays in lockstep)
// by row name, so that two tables holding the same logical content compare
// equal position-by-position. This is also the traversal order the snapshot
// codec emits.
func (t *Table) Sort() {
	n := len(t.rows)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return t.rows[perm[a]] < t.rows[perm[b]]
	})

	newRows := make([]string, n)
	newClearedSet := make([]bool, n)
	newClearedLamport := make([]Lamport, n)
	newClearedPeer := make([]Peer, n)
	for newIdx, oldIdx := range perm {
		newRows[newIdx] = t.rows[oldIdx]
		newClearedSet[newIdx] = t.clearedSet[oldIdx]
		newClearedLamport[newIdx] = t.clearedLamport[oldIdx]
		newClearedPeer[newIdx] = t.clearedPeer[oldIdx]
	}
	t.rows = newRows
	t.clearedSet = newClearedSet
	t.clearedLamport = newClearedLamport
	t.clearedPeer = newClearedPeer
	t.rowIndex = make(map[string]int, n)
	for i, name := range t.rows {
		t.rowIndex[name] = i
	}

	for _, name := range t.colOrder {
		c := t.cols[name]
		c.ensure(n)
		newState := make([]cellState, n)
		newValues := make([]Value, n)
		newLamports := make([]Lamport, n)
		newPeers := make([]Peer, n)
		for newIdx, oldIdx := range perm {
			newState[newIdx] = c.state[oldIdx]
			newValues[newIdx] = c.values[oldIdx]
			newLamports[newIdx] = c.lamports[oldIdx]
			newPeers[newIdx] = c.peers[oldIdx]
		}
		c.state, c.values, c.lamports, c.peers = newState, newValues, newLamports, newPeers
	}

	sort.Strings(t.colOrder)
}

// RestoreCell places a cell directly into live state at (row, col), without
// the precedence checks Set applies. Used only by the snapshot importer,
// which reconstructs a table from a blob that already represents the
// post-merge winning state — re-running LWW precedence checks while
// replaying it would be redundant at best and order-dependent-wrong at
// worst (a row tombstone restored before its surviving cells would
// otherwise look like it dominates them).
func (t *Table) RestoreCell(row, col string, value Value, id OpId) {
	ri := t.rowAt(row)
	c := t.columnAt(col)
	state, _, _ := c.at(ri)
	wasTouched := state != cellAbsent
	wasLive := state == cellLive
	c.state[ri] = cellLive
	c.values[ri] = value
	c.lamports[ri] = id.Lamport
	c.peers[ri] = id.Peer
	if !wasTouched {
		c.touched++
	}
	if !wasLive {
		c.liveCount++
	}
}

// RestoreTombstone places a cell directly into tombstone state at (row,
// col), without the precedence checks Delete applies. Used by the snapshot
// importer to reconstruct a cell-level delete that still needs to dominate
// a later stale write from another peer.
func (t *Table) RestoreTombstone(row, col string, id OpId) {
	ri := t.rowAt(row)
	c := t.columnAt(col)
	state, _, _ := c.at(ri)
	wasTouched := state != cellAbsent
	wasLive := state == cellLive
	c.state[ri] = cellTombstone
	c.values[ri] = Deleted
	c.lamports[ri] = id.Lamport
	c.peers[ri] = id.Peer
	if !wasTouched {
		c.touched++
	}
	if wasLive {
		c.liveCount--
	}
}

// RestoreRow ensures row exists (with no cells and no cleared tombstone),
// for the snapshot importer to record a row that was present in the row
// list but carries neither live cells nor a row tombstone.
func (t *Table) RestoreRow(row string) {
	t.rowAt(row)
}

// RestoreRowCleared sets row's cleared_at tombstone directly, creating the
// row if unseen.
func (t *Table) RestoreRowCleared(row string, id OpId) {
	ri := t.rowAt(row)
	t.clearedSet[ri] = true
	t.clearedLamport[ri] = id.Lamport
	t.clearedPeer[ri] = id.Peer
}

// RestoreRemoved sets the table-level tombstone directly.
func (t *Table) RestoreRemoved(id OpId) {
	t.removedSet = true
	t.removed = id
}

// Equal compares two tables by logical content — row/column presence,
// per-cell (value, OpId), and the row/table tombstones — independent of
// physical array order, so callers need not Sort before comparing.
func (t *Table) Equal(other *Table) bool {
	if t.removedSet != other.removedSet || (t.removedSet && t.removed != other.removed) {
		return false
	}
	if len(t.rows) != len(other.rows) {
		return false
	}
	for _, row := range t.rows {
		if !other.HasRow(row) {
			return false
		}
		c1, ok1 := t.RowCleared(row)
		c2, ok2 := other.RowCleared(row)
		if ok1 != ok2 || (ok1 && c1 != c2) {
			return false
		}
		cells1 := t.IterRow(row)
		cells2 := other.IterRow(row)
		if len(cells1) != len(cells2) {
			return false
		}
		m2 := make(map[string]RowCell, len(cells2))
		for _, rc := range cells2 {
			m2[rc.Col] = rc
		}
		for _, rc := range cells1 {
			match, ok := m2[rc.Col]
			if !ok || match.Id != rc.Id || !match.Value.Equal(rc.Value) {
				return false
			}
		}
	}
	return true
}
