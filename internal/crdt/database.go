package crdt

import "sort"

// Database holds one replica's tables, its peer identity, and its OpLog. It
// is the dispatch point for every mutation: it mints the OpId, auto-creates
// the target table if needed, invokes the Table-level operation, and — only
// if that operation actually changed something — records the corresponding
// oplog entry, which is what advances max_lamport and the vector clock.
type Database struct {
	peer   Peer
	tables map[string]*Table
	// tableOrder preserves table creation order so IterTables is
	// deterministic, mirroring the column/row insertion-order convention
	// used throughout Table.
	tableOrder []string
	log        *OpLog
}

// New returns an empty Database identified by peer. Peer minting itself
// (the "random peer-id generation" external collaborator) lives in
// internal/peerid; Database just accepts whatever its caller hands it.
func New(peer Peer) *Database {
	return &Database{
		peer:   peer,
		tables: make(map[string]*Table),
		log:    NewOpLog(),
	}
}

// SetPeer overrides the replica's peer id. The caller is responsible for
// uniqueness — this is an escape hatch for tests and deterministic replays,
// not something a running replica should call after minting operations.
func (d *Database) SetPeer(peer Peer) { d.peer = peer }

// Peer returns the replica's own peer id.
func (d *Database) Peer() Peer { return d.peer }

// nextId mints the OpId for the next local mutation: one past the highest
// lamport this replica has ever observed (from itself or any peer), tagged
// with this replica's own peer id.
func (d *Database) nextId() OpId {
	return OpId{Lamport: d.log.MaxLamport() + 1, Peer: d.peer}
}

func (d *Database) tableAt(name string) *Table {
	t, ok := d.tables[name]
	if !ok {
		t = NewTable()
		d.tables[name] = t
		d.tableOrder = append(d.tableOrder, name)
	}
	return t
}

// Set writes value into (table, row, col), auto-creating the table on
// demand, and returns the OpId it was assigned.
func (d *Database) Set(table, row, col string, value Value) OpId {
	id := d.nextId()
	t := d.tableAt(table)
	if t.Set(row, col, value, id) {
		d.log.RecordUpdate(id, table, row)
	}
	return id
}

// Delete writes a Deleted tombstone at (table, row, col).
func (d *Database) Delete(table, row, col string) OpId {
	id := d.nextId()
	t := d.tableAt(table)
	if t.Delete(row, col, id) {
		d.log.RecordUpdate(id, table, row)
	}
	return id
}

// DeleteRow clears every cell in (table, row) and marks it cleared.
func (d *Database) DeleteRow(table, row string) OpId {
	id := d.nextId()
	t := d.tableAt(table)
	if t.DeleteRow(row, id) {
		d.log.RecordDeleteRow(id, table, row)
	}
	return id
}

// DeleteTable clears every cell in table and marks it removed.
func (d *Database) DeleteTable(table string) OpId {
	id := d.nextId()
	t := d.tableAt(table)
	if t.DeleteTable(id) {
		d.log.RecordDeleteTable(id, table)
	}
	return id
}

// ApplyRemoteSet replays a remote cell write (or tombstone, if value is
// Deleted) at the given OpId and records the resulting oplog entry exactly
// as a local Set/Delete would.
func (d *Database) ApplyRemoteSet(table, row, col string, value Value, id OpId) bool {
	t := d.tableAt(table)
	applied := t.Set(row, col, value, id)
	if applied {
		d.log.RecordUpdate(id, table, row)
	}
	d.bumpLamport(id)
	return applied
}

// ApplyRemoteDeleteRow replays a remote row tombstone.
func (d *Database) ApplyRemoteDeleteRow(table, row string, id OpId) bool {
	t := d.tableAt(table)
	applied := t.DeleteRow(row, id)
	if applied {
		d.log.RecordDeleteRow(id, table, row)
	}
	d.bumpLamport(id)
	return applied
}

// ApplyRemoteDeleteTable replays a remote table tombstone.
func (d *Database) ApplyRemoteDeleteTable(table string, id OpId) bool {
	t := d.tableAt(table)
	applied := t.DeleteTable(id)
	if applied {
		d.log.RecordDeleteTable(id, table)
	}
	d.bumpLamport(id)
	return applied
}

// bumpLamport folds a remote OpId into the running max_lamport and vector
// clock even when the mutation it produced was a no-op — the replica has
// still *observed* the operation, which is what the vector clock tracks.
func (d *Database) bumpLamport(id OpId) {
	if id.Lamport > d.log.maxLamport {
		d.log.maxLamport = id.Lamport
	}
	d.log.clock.Observe(id)
}

// GetCell returns the live value at (table, row, col), if any.
func (d *Database) GetCell(table, row, col string) (Value, bool) {
	t, ok := d.tables[table]
	if !ok {
		return Value{}, false
	}
	v, _, ok := t.GetCell(row, col)
	return v, ok
}

// IterRow yields every live (col, value) pair in (table, row).
func (d *Database) IterRow(table, row string) []RowCell {
	t, ok := d.tables[table]
	if !ok {
		return nil
	}
	return t.IterRow(row)
}

// Table returns the named table and whether it has ever been created.
func (d *Database) Table(name string) (*Table, bool) {
	t, ok := d.tables[name]
	return t, ok
}

// IterTables yields every (name, table) pair in table-creation order.
func (d *Database) IterTables() []struct {
	Name  string
	Table *Table
} {
	out := make([]struct {
		Name  string
		Table *Table
	}, 0, len(d.tableOrder))
	for _, name := range d.tableOrder {
		out = append(out, struct {
			Name  string
			Table *Table
		}{Name: name, Table: d.tables[name]})
	}
	return out
}

// TableNames returns every table name, sorted, for callers (e.g. the
// snapshot codec) that want deterministic iteration independent of creation
// order.
func (d *Database) TableNames() []string {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version returns the database's current vector clock.
func (d *Database) Version() VectorClock {
	return d.log.Clock()
}

// Log exposes the oplog for the codec package. Not part of the public
// façade — internal/codec lives in the same module and reaches in directly,
// the way the teacher's internal/store and internal/cluster packages share
// package-private fields across an internal/ boundary.
func (d *Database) Log() *OpLog { return d.log }

// RebuildFrom replaces the database's tables and oplog wholesale — used only
// by the snapshot importer, which builds a complete Table set and an
// OpLogBuilder-derived OpLog before ever touching the Database.
func (d *Database) RebuildFrom(tables map[string]*Table, order []string, log *OpLog) {
	d.tables = tables
	d.tableOrder = order
	d.log = log
}

// AdoptFrom replaces d's tables and oplog with other's, keeping d's own
// peer identity. Used by the host layer to bootstrap a running replica from
// a freshly decoded snapshot without losing the replica's established peer
// id (and therefore its place in every peer's vector clock).
func (d *Database) AdoptFrom(other *Database) {
	d.tables = other.tables
	d.tableOrder = other.tableOrder
	d.log = other.log
}

// CheckEqual reports whether two databases hold identical content: the same
// table names, each comparing Equal. Peer identity and physical oplog
// layout are not part of this comparison — only the directly observable
// CRDT state is, which is what "byte-identical after the same operations"
// cashes out to for two independently-represented replicas.
func (d *Database) CheckEqual(other *Database) bool {
	names1 := d.TableNames()
	names2 := other.TableNames()
	if len(names1) != len(names2) {
		return false
	}
	for i, name := range names1 {
		if names2[i] != name {
			return false
		}
		t1 := d.tables[name]
		t2 := other.tables[name]
		if !t1.Equal(t2) {
			return false
		}
	}
	return true
}
