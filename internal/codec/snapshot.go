package codec

import (
	"sort"

	"tablecrdt/internal/crdt"
)

// ExportSnapshot serializes db's entire current state — not the oplog — as
// described in the design notes: a global peer pool, then one zstd-compressed
// body per table holding the table's removed tombstone (if any), its sorted
// row/column names, a column-major presence bitmap, the value stream for
// present cells, parallel lamport/peer-index streams for present cells, and a
// row-deletion bitmap with parallel streams for cleared rows.
func ExportSnapshot(db *crdt.Database) []byte {
	peers := NewRegister[uint64]()
	names := db.TableNames()

	type tableBlob struct {
		name string
		body []byte
	}
	blobs := make([]tableBlob, 0, len(names))
	for _, name := range names {
		t, _ := db.Table(name)
		blobs = append(blobs, tableBlob{name: name, body: compress(encodeTableBody(t, peers))})
	}

	var buf []byte
	peerPool := peers.Finish()
	buf = putUvarint(buf, uint64(len(peerPool)))
	for _, p := range peerPool {
		buf = putUvarint(buf, p)
	}
	buf = putUvarint(buf, uint64(len(blobs)))
	for _, b := range blobs {
		buf = putString(buf, b.name)
		buf = putBytes(buf, b.body)
	}
	return buf
}

func encodeTableBody(t *crdt.Table, peers *Register[uint64]) []byte {
	rowNames := t.Rows()
	sort.Strings(rowNames)
	colNames := t.Columns()
	sort.Strings(colNames)

	var buf []byte

	if removed, ok := t.Removed(); ok {
		buf = putBool(buf, true)
		buf = putUvarint(buf, uint64(peers.Add(uint64(removed.Peer))))
		buf = putUvarint(buf, uint64(removed.Lamport))
	} else {
		buf = putBool(buf, false)
	}

	buf = putUvarint(buf, uint64(len(rowNames)))
	for _, r := range rowNames {
		buf = putString(buf, r)
	}
	buf = putUvarint(buf, uint64(len(colNames)))
	for _, c := range colNames {
		buf = putString(buf, c)
	}

	// Column-major presence bitmap and, for present cells only, the value /
	// lamport / peer-index streams in the same traversal order. "Present"
	// includes tombstoned cells (CellAny, not GetCell) so a cell-level delete
	// round-trips through a snapshot instead of silently reverting.
	presence := make([]bool, 0, len(rowNames)*len(colNames))
	var values []byte
	var lamports []int64
	var peerIdx []int64
	for _, col := range colNames {
		for _, row := range rowNames {
			value, id, ok := t.CellAny(row, col)
			presence = append(presence, ok)
			if !ok {
				continue
			}
			values = putValue(values, value)
			lamports = append(lamports, int64(id.Lamport))
			peerIdx = append(peerIdx, int64(peers.Add(uint64(id.Peer))))
		}
	}
	buf = putBytes(buf, EncodeBoolRLE(presence))
	buf = putBytes(buf, values)
	buf = putBytes(buf, EncodeDeltaRLE(lamports))
	buf = putBytes(buf, EncodeDeltaRLE(peerIdx))

	deletionBitmap := make([]bool, len(rowNames))
	var clearedLamports []int64
	var clearedPeerIdx []int64
	for i, row := range rowNames {
		id, ok := t.RowCleared(row)
		deletionBitmap[i] = ok
		if !ok {
			continue
		}
		clearedLamports = append(clearedLamports, int64(id.Lamport))
		clearedPeerIdx = append(clearedPeerIdx, int64(peers.Add(uint64(id.Peer))))
	}
	buf = putBytes(buf, EncodeBoolRLE(deletionBitmap))
	buf = putBytes(buf, EncodeDeltaRLE(clearedLamports))
	buf = putBytes(buf, EncodeDeltaRLE(clearedPeerIdx))

	return buf
}

// FromSnapshot reconstructs a *crdt.Database from a blob written by
// ExportSnapshot. peer is the identity the returned database should adopt —
// minting it is the caller's job (see internal/peerid), keeping this package
// decoupled from peer-id generation. Every decoded cell, row tombstone, and
// table tombstone is replayed into an OpLogBuilder so the returned database
// can immediately participate in delta export/import, satisfying the
// invariant that a snapshot round-trip never loses causal information the
// oplog would otherwise track.
func FromSnapshot(data []byte, peer crdt.Peer) (*crdt.Database, error) {
	peerCount, rest, err := getUvarint(data, "snapshot.peerpool")
	if err != nil {
		return nil, err
	}
	peers := make([]uint64, peerCount)
	for i := range peers {
		var p uint64
		p, rest, err = getUvarint(rest, "snapshot.peerpool")
		if err != nil {
			return nil, err
		}
		peers[i] = p
	}

	tableCount, rest2, err := getUvarint(rest, "snapshot.tablecount")
	if err != nil {
		return nil, err
	}
	rest = rest2

	tables := make(map[string]*crdt.Table, tableCount)
	order := make([]string, 0, tableCount)
	builder := crdt.NewBuilder()

	for i := uint64(0); i < tableCount; i++ {
		var name string
		name, rest, err = getString(rest, "snapshot.tablename")
		if err != nil {
			return nil, err
		}
		var body []byte
		body, rest, err = getBytes(rest, "snapshot.tablebody")
		if err != nil {
			return nil, err
		}
		raw, err := decompress(body)
		if err != nil {
			return nil, err
		}
		t, err := decodeTableBody(raw, peers, builder, name)
		if err != nil {
			return nil, err
		}
		tables[name] = t
		order = append(order, name)
	}

	db := crdt.New(peer)
	db.RebuildFrom(tables, order, builder.Build())
	return db, nil
}

func decodeTableBody(data []byte, peers []uint64, builder *crdt.Builder, tableName string) (*crdt.Table, error) {
	t := crdt.NewTable()

	removedPresent, rest, err := getBool(data, "snapshot.removed")
	if err != nil {
		return nil, err
	}
	var removed crdt.OpId
	if removedPresent {
		var pIdx, lamport uint64
		pIdx, rest, err = getUvarint(rest, "snapshot.removed.peer")
		if err != nil {
			return nil, err
		}
		lamport, rest, err = getUvarint(rest, "snapshot.removed.lamport")
		if err != nil {
			return nil, err
		}
		if pIdx >= uint64(len(peers)) {
			return nil, malformed("snapshot.removed.peer", "index out of range")
		}
		removed = crdt.OpId{Lamport: crdt.Lamport(lamport), Peer: crdt.Peer(peers[pIdx])}
		t.RestoreRemoved(removed)
		builder.Add(removed, crdt.Op{Kind: crdt.OpDeleteTable, Table: tableName})
	}

	rowCount, rest2, err := getUvarint(rest, "snapshot.rowcount")
	if err != nil {
		return nil, err
	}
	rest = rest2
	rowNames := make([]string, rowCount)
	for i := range rowNames {
		rowNames[i], rest, err = getString(rest, "snapshot.rowname")
		if err != nil {
			return nil, err
		}
	}

	colCount, rest3, err := getUvarint(rest, "snapshot.colcount")
	if err != nil {
		return nil, err
	}
	rest = rest3
	colNames := make([]string, colCount)
	for i := range colNames {
		colNames[i], rest, err = getString(rest, "snapshot.colname")
		if err != nil {
			return nil, err
		}
	}

	presenceBytes, rest4, err := getBytes(rest, "snapshot.presence")
	if err != nil {
		return nil, err
	}
	rest = rest4
	presence, err := DecodeBoolRLE(presenceBytes)
	if err != nil {
		return nil, err
	}

	valueBytes, rest5, err := getBytes(rest, "snapshot.values")
	if err != nil {
		return nil, err
	}
	rest = rest5

	lamportBytes, rest6, err := getBytes(rest, "snapshot.lamports")
	if err != nil {
		return nil, err
	}
	rest = rest6
	lamports, err := DecodeDeltaRLE(lamportBytes)
	if err != nil {
		return nil, err
	}

	peerIdxBytes, rest7, err := getBytes(rest, "snapshot.peeridx")
	if err != nil {
		return nil, err
	}
	rest = rest7
	peerIdx, err := DecodeDeltaRLE(peerIdxBytes)
	if err != nil {
		return nil, err
	}

	if len(presence) != int(rowCount)*int(colCount) {
		return nil, malformed("snapshot.presence", "bitmap length mismatch")
	}

	cellIdx := 0
	pi := 0
	for _, col := range colNames {
		for _, row := range rowNames {
			present := presence[pi]
			pi++
			if !present {
				continue
			}
			if cellIdx >= len(lamports) || cellIdx >= len(peerIdx) {
				return nil, malformed("snapshot", "value stream shorter than presence count")
			}
			var value crdt.Value
			value, valueBytes, err = getValue(valueBytes)
			if err != nil {
				return nil, err
			}
			idx := peerIdx[cellIdx]
			if idx < 0 || int(idx) >= len(peers) {
				return nil, malformed("snapshot.peeridx", "index out of range")
			}
			id := crdt.OpId{Lamport: crdt.Lamport(lamports[cellIdx]), Peer: crdt.Peer(peers[idx])}
			if value.IsDeleted() {
				t.RestoreTombstone(row, col, id)
			} else {
				t.RestoreCell(row, col, value, id)
			}
			builder.Add(id, crdt.Op{Kind: crdt.OpUpdate, Table: tableName, Row: row})
			cellIdx++
		}
	}

	deletionBytes, rest8, err := getBytes(rest, "snapshot.rowdeletion")
	if err != nil {
		return nil, err
	}
	rest = rest8
	deletion, err := DecodeBoolRLE(deletionBytes)
	if err != nil {
		return nil, err
	}
	if len(deletion) != int(rowCount) {
		return nil, malformed("snapshot.rowdeletion", "bitmap length mismatch")
	}

	clearedLamportBytes, rest9, err := getBytes(rest, "snapshot.clearedlamports")
	if err != nil {
		return nil, err
	}
	rest = rest9
	clearedLamports, err := DecodeDeltaRLE(clearedLamportBytes)
	if err != nil {
		return nil, err
	}

	clearedPeerIdxBytes, _, err := getBytes(rest, "snapshot.clearedpeeridx")
	if err != nil {
		return nil, err
	}
	clearedPeerIdx, err := DecodeDeltaRLE(clearedPeerIdxBytes)
	if err != nil {
		return nil, err
	}

	ci := 0
	for i, row := range rowNames {
		if !deletion[i] {
			if !t.HasRow(row) {
				t.RestoreRow(row)
			}
			continue
		}
		if ci >= len(clearedLamports) || ci >= len(clearedPeerIdx) {
			return nil, malformed("snapshot", "row-deletion stream shorter than deletion count")
		}
		idx := clearedPeerIdx[ci]
		if idx < 0 || int(idx) >= len(peers) {
			return nil, malformed("snapshot.clearedpeeridx", "index out of range")
		}
		id := crdt.OpId{Lamport: crdt.Lamport(clearedLamports[ci]), Peer: crdt.Peer(peers[idx])}
		t.RestoreRowCleared(row, id)
		builder.Add(id, crdt.Op{Kind: crdt.OpDeleteRow, Table: tableName, Row: row})
		ci++
	}

	return t, nil
}
