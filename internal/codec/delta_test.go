package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablecrdt/internal/crdt"
)

func TestEncodeDecodeRecordsRoundTrip(t *testing.T) {
	records := []record{
		{Table: "t", Row: "r1", RowPresent: true, Col: "c1", ColPresent: true,
			Value: crdt.I64(1), Id: crdt.OpId{Lamport: 1, Peer: 1}},
		{Table: "t", Row: "r1", RowPresent: true, Col: "c2", ColPresent: true,
			Value: crdt.Str("hi"), Id: crdt.OpId{Lamport: 2, Peer: 1}},
		{Table: "t", Row: "r2", RowPresent: true,
			Value: crdt.Deleted, Id: crdt.OpId{Lamport: 3, Peer: 2}},
		{Table: "t",
			Value: crdt.Deleted, Id: crdt.OpId{Lamport: 4, Peer: 2}},
	}

	encoded := encodeRecords(records)
	decoded, err := decodeRecords(encoded)
	require.NoError(t, err)

	sortRecords(records)
	sortRecords(decoded)
	require.Len(t, decoded, len(records))
	for i := range records {
		assert.Equal(t, records[i].Table, decoded[i].Table)
		assert.Equal(t, records[i].Row, decoded[i].Row)
		assert.Equal(t, records[i].RowPresent, decoded[i].RowPresent)
		assert.Equal(t, records[i].Col, decoded[i].Col)
		assert.Equal(t, records[i].ColPresent, decoded[i].ColPresent)
		assert.True(t, records[i].Value.Equal(decoded[i].Value))
		assert.Equal(t, records[i].Id, decoded[i].Id)
	}
}

// S3 — two-replica sync via the wire-level delta codec.
func TestExportImportUpdatesTwoReplicaSync(t *testing.T) {
	a := crdt.New(crdt.Peer(1))
	b := crdt.New(crdt.Peer(2))

	a.Set("t", "r1", "c1", crdt.I64(1))
	b.Set("t", "r3", "c1", crdt.I64(3))

	blobFromA := ExportUpdates(a, b.Version())
	require.NoError(t, ImportUpdates(b, blobFromA))

	blobFromB := ExportUpdates(b, a.Version())
	require.NoError(t, ImportUpdates(a, blobFromB))

	assert.True(t, a.CheckEqual(b))

	v, ok := b.GetCell("t", "r1", "c1")
	assert.True(t, ok)
	assert.True(t, v.Equal(crdt.I64(1)))
	v, ok = a.GetCell("t", "r3", "c1")
	assert.True(t, ok)
	assert.True(t, v.Equal(crdt.I64(3)))
}

// A cell-level delete must propagate through a delta exactly like a write
// does: a stale peer holding the pre-delete value has to converge to the
// tombstone, not keep the old value forever.
func TestExportImportUpdatesCellDeletePropagates(t *testing.T) {
	a := crdt.New(crdt.Peer(1))
	a.Set("t", "r", "c", crdt.I64(1))

	b := crdt.New(crdt.Peer(2))
	blob := ExportUpdates(a, crdt.NewVectorClock())
	require.NoError(t, ImportUpdates(b, blob))

	v, ok := b.GetCell("t", "r", "c")
	require.True(t, ok)
	assert.True(t, v.Equal(crdt.I64(1)))

	a.Delete("t", "r", "c")

	delBlob := ExportUpdates(a, b.Version())
	require.NoError(t, ImportUpdates(b, delBlob))

	_, ok = b.GetCell("t", "r", "c")
	assert.False(t, ok)
	assert.True(t, a.CheckEqual(b))
}

func TestImportUpdatesIdempotent(t *testing.T) {
	a := crdt.New(crdt.Peer(1))
	a.Set("t", "r1", "c1", crdt.I64(1))

	b := crdt.New(crdt.Peer(2))
	blob := ExportUpdates(a, crdt.NewVectorClock())

	require.NoError(t, ImportUpdates(b, blob))
	require.NoError(t, ImportUpdates(b, blob))

	v, ok := b.GetCell("t", "r1", "c1")
	assert.True(t, ok)
	assert.True(t, v.Equal(crdt.I64(1)))
}

func TestImportUpdatesMalformedRecord(t *testing.T) {
	// A non-deleted value with no row/col is structurally invalid.
	records := []record{
		{Table: "t", Value: crdt.I64(1), Id: crdt.OpId{Lamport: 1, Peer: 1}},
	}
	blob := compress(encodeRecords(records))
	db := crdt.New(crdt.Peer(2))
	err := ImportUpdates(db, blob)
	assert.Error(t, err)
}

func TestExportUpdatesEmptyFromGivesEverything(t *testing.T) {
	db := crdt.New(crdt.Peer(1))
	db.Set("t", "r1", "c1", crdt.I64(1))
	db.DeleteRow("t", "r1")

	blob := ExportUpdates(db, crdt.NewVectorClock())
	raw, err := decompress(blob)
	require.NoError(t, err)
	records, err := decodeRecords(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}
