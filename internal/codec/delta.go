package codec

import (
	"sort"

	"tablecrdt/internal/crdt"
)

// record is one decoded (or about-to-be-encoded) delta entry. Row/Col follow
// the wire convention directly: present=false means "None".
type record struct {
	Table      string
	Row        string
	RowPresent bool
	Col        string
	ColPresent bool
	Value      crdt.Value
	Id         crdt.OpId
}

// ExportUpdates walks db's oplog for every operation not yet observed by
// from and returns a zstd-compressed delta blob. DeleteTable/DeleteRow
// entries are emitted directly as Deleted records with null col (and, for
// DeleteTable, null row too); Update entries are deduplicated per (table,
// row) and expanded into one record per cell (live or tombstoned) whose OpId
// is new to `from` — the oplog itself only ever stored the touched marker, not
// the value, so the live table is the source of truth for "what actually
// won".
func ExportUpdates(db *crdt.Database, from crdt.VectorClock) []byte {
	entries := db.Log().IterFrom(from)

	var records []record
	type dirtyKey struct{ table, row string }
	seen := make(map[dirtyKey]bool)
	var dirty []dirtyKey

	for _, e := range entries {
		switch e.Op.Kind {
		case crdt.OpDeleteTable:
			records = append(records, record{
				Table: e.Op.Table,
				Value: crdt.Deleted,
				Id:    e.Id,
			})
		case crdt.OpDeleteRow:
			records = append(records, record{
				Table:      e.Op.Table,
				Row:        e.Op.Row,
				RowPresent: true,
				Value:      crdt.Deleted,
				Id:         e.Id,
			})
		case crdt.OpUpdate:
			k := dirtyKey{e.Op.Table, e.Op.Row}
			if !seen[k] {
				seen[k] = true
				dirty = append(dirty, k)
			}
		}
	}

	for _, k := range dirty {
		t, ok := db.Table(k.table)
		if !ok {
			continue
		}
		// IterRowAll, not IterRow: a cell-level delete leaves only a
		// tombstone behind (no longer "live"), but it still needs to reach
		// a peer holding the stale pre-delete value, so deleted cells must
		// be walked here too, not just currently-live ones.
		for _, cell := range t.IterRowAll(k.row) {
			if from.Includes(cell.Id) {
				continue
			}
			records = append(records, record{
				Table:      k.table,
				Row:        k.row,
				RowPresent: true,
				Col:        cell.Col,
				ColPresent: true,
				Value:      cell.Value,
				Id:         cell.Id,
			})
		}
	}

	return compress(encodeRecords(records))
}

// encodeRecords lays out the delta blob exactly: a string pool, a peer pool,
// then six equal-length (= len(records)) parallel streams — table, row,
// col, value, peer_idx, lamport — with row/col using the "0 means None,
// else index+1" convention into the string pool.
func encodeRecords(records []record) []byte {
	strs := NewRegister[string]()
	peers := NewRegister[uint64]()

	tableIdx := make([]int64, len(records))
	rowIdx := make([]int64, len(records))
	colIdx := make([]int64, len(records))
	peerIdx := make([]int64, len(records))
	lamports := make([]int64, len(records))
	var values []byte

	for i, r := range records {
		tableIdx[i] = int64(strs.Add(r.Table))
		if r.RowPresent {
			rowIdx[i] = int64(strs.Add(r.Row)) + 1
		}
		if r.ColPresent {
			colIdx[i] = int64(strs.Add(r.Col)) + 1
		}
		peerIdx[i] = int64(peers.Add(uint64(r.Id.Peer)))
		lamports[i] = int64(r.Id.Lamport)
		values = putValue(values, r.Value)
	}

	var buf []byte
	strPool := strs.Finish()
	buf = putUvarint(buf, uint64(len(strPool)))
	for _, s := range strPool {
		buf = putString(buf, s)
	}
	peerPool := peers.Finish()
	buf = putUvarint(buf, uint64(len(peerPool)))
	for _, p := range peerPool {
		buf = putUvarint(buf, p)
	}

	buf = putUvarint(buf, uint64(len(records)))
	buf = putBytes(buf, EncodeDeltaRLE(tableIdx))
	buf = putBytes(buf, EncodeDeltaRLE(rowIdx))
	buf = putBytes(buf, EncodeDeltaRLE(colIdx))
	buf = putBytes(buf, values)
	buf = putBytes(buf, EncodeDeltaRLE(peerIdx))
	buf = putBytes(buf, EncodeDeltaRLE(lamports))
	return buf
}

// decodeRecords is encodeRecords's inverse. It stages everything into local
// slices before the caller ever touches a Database, per the staged-decode
// guarantee.
func decodeRecords(data []byte) ([]record, error) {
	strCount, rest, err := getUvarint(data, "delta.strpool")
	if err != nil {
		return nil, err
	}
	strs := make([]string, strCount)
	for i := range strs {
		var s string
		s, rest, err = getString(rest, "delta.strpool")
		if err != nil {
			return nil, err
		}
		strs[i] = s
	}

	peerCount, rest2, err := getUvarint(rest, "delta.peerpool")
	if err != nil {
		return nil, err
	}
	rest = rest2
	peers := make([]uint64, peerCount)
	for i := range peers {
		var p uint64
		p, rest, err = getUvarint(rest, "delta.peerpool")
		if err != nil {
			return nil, err
		}
		peers[i] = p
	}

	n, rest3, err := getUvarint(rest, "delta.count")
	if err != nil {
		return nil, err
	}
	rest = rest3
	count := int(n)

	tableBytes, rest4, err := getBytes(rest, "delta.table")
	if err != nil {
		return nil, err
	}
	rest = rest4
	rowBytes, rest5, err := getBytes(rest, "delta.row")
	if err != nil {
		return nil, err
	}
	rest = rest5
	colBytes, rest6, err := getBytes(rest, "delta.col")
	if err != nil {
		return nil, err
	}
	rest = rest6
	valueBytes, rest7, err := getBytes(rest, "delta.value")
	if err != nil {
		return nil, err
	}
	rest = rest7
	peerIdxBytes, rest8, err := getBytes(rest, "delta.peer_idx")
	if err != nil {
		return nil, err
	}
	rest = rest8
	lamportBytes, _, err := getBytes(rest, "delta.lamport")
	if err != nil {
		return nil, err
	}

	tableIdx, err := DecodeDeltaRLE(tableBytes)
	if err != nil {
		return nil, err
	}
	rowIdx, err := DecodeDeltaRLE(rowBytes)
	if err != nil {
		return nil, err
	}
	colIdx, err := DecodeDeltaRLE(colBytes)
	if err != nil {
		return nil, err
	}
	peerIdx, err := DecodeDeltaRLE(peerIdxBytes)
	if err != nil {
		return nil, err
	}
	lamports, err := DecodeDeltaRLE(lamportBytes)
	if err != nil {
		return nil, err
	}
	if len(tableIdx) != count || len(rowIdx) != count || len(colIdx) != count ||
		len(peerIdx) != count || len(lamports) != count {
		return nil, malformed("delta", "stream length mismatch")
	}

	records := make([]record, count)
	for i := 0; i < count; i++ {
		var v crdt.Value
		v, valueBytes, err = getValue(valueBytes)
		if err != nil {
			return nil, err
		}
		if tableIdx[i] < 0 || int(tableIdx[i]) >= len(strs) {
			return nil, malformed("delta.table", "index out of range")
		}
		r := record{Table: strs[tableIdx[i]], Value: v}

		if rowIdx[i] != 0 {
			ri := rowIdx[i] - 1
			if ri < 0 || int(ri) >= len(strs) {
				return nil, malformed("delta.row", "index out of range")
			}
			r.Row = strs[ri]
			r.RowPresent = true
		}
		if colIdx[i] != 0 {
			ci := colIdx[i] - 1
			if ci < 0 || int(ci) >= len(strs) {
				return nil, malformed("delta.col", "index out of range")
			}
			r.Col = strs[ci]
			r.ColPresent = true
		}
		if peerIdx[i] < 0 || int(peerIdx[i]) >= len(peers) {
			return nil, malformed("delta.peer_idx", "index out of range")
		}
		r.Id = crdt.OpId{Lamport: crdt.Lamport(lamports[i]), Peer: crdt.Peer(peers[peerIdx[i]])}
		if err := validateRecordShape(r); err != nil {
			return nil, err
		}
		records[i] = r
	}
	return records, nil
}

// validateRecordShape rejects a structurally invalid record — a live value
// with no row or no col, or a row-less record carrying a col — before the
// caller ever sees it. Checking this here, rather than while applying
// records to a Database, keeps decode fully staged: a malformed record
// anywhere in a blob fails the whole decode before any record is applied.
func validateRecordShape(r record) error {
	switch {
	case r.Value.IsDeleted() && !r.RowPresent && !r.ColPresent:
	case r.Value.IsDeleted() && r.RowPresent && !r.ColPresent:
	case r.Value.IsDeleted() && r.RowPresent && r.ColPresent:
	case !r.Value.IsDeleted() && r.RowPresent && r.ColPresent:
	default:
		return malformed("delta.record", "non-deleted value with missing row or col")
	}
	return nil
}

// ImportUpdates decompresses and decodes a delta blob and replays each
// record through the same LWW merge path a local write takes, so import is
// safely replayable and idempotent.
func ImportUpdates(db *crdt.Database, blob []byte) error {
	raw, err := decompress(blob)
	if err != nil {
		return err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return err
	}
	for _, r := range records {
		switch {
		case r.Value.IsDeleted() && !r.RowPresent && !r.ColPresent:
			db.ApplyRemoteDeleteTable(r.Table, r.Id)
		case r.Value.IsDeleted() && r.RowPresent && !r.ColPresent:
			db.ApplyRemoteDeleteRow(r.Table, r.Row, r.Id)
		case r.Value.IsDeleted() && r.RowPresent && r.ColPresent:
			db.ApplyRemoteSet(r.Table, r.Row, r.Col, crdt.Deleted, r.Id)
		case !r.Value.IsDeleted() && r.RowPresent && r.ColPresent:
			db.ApplyRemoteSet(r.Table, r.Row, r.Col, r.Value, r.Id)
		}
	}
	return nil
}

// sortRecords orders a record slice deterministically (table, row, col, then
// OpId) — used by tests that want to compare two independently-built delta
// exports for equivalence regardless of oplog iteration order.
func sortRecords(records []record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.Id.Less(b.Id)
	})
}
