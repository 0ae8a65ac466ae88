package crdt

import "sort"

// OpKind discriminates the three shapes an OpLog entry can take. Update is a
// marker, not a value: it records that some cell(s) in (table, row) were
// touched at this OpId; exporters recover the current winning value from the
// live Table rather than the oplog.
type OpKind uint8

const (
	OpUpdate OpKind = iota
	OpDeleteRow
	OpDeleteTable
)

// Op is one oplog entry's payload.
type Op struct {
	Kind  OpKind
	Table string
	Row   string // unused for OpDeleteTable
}

// Entry pairs an OpId with the Op it produced.
type Entry struct {
	Id OpId
	Op Op
}

// peerLog is one peer's ordered-by-lamport operation history.
type peerLog struct {
	lamports []Lamport // ascending
	ops      []Op
}

// insert places (lamport, op) in ascending-lamport position. Lamports are
// minted strictly increasing per peer in normal operation, so this is
// almost always an append; binary-search insertion keeps OpLogBuilder (which
// may feed entries out of order while reconstructing from a snapshot)
// correct too.
func (p *peerLog) insert(lamport Lamport, op Op) {
	i := sort.Search(len(p.lamports), func(i int) bool { return p.lamports[i] >= lamport })
	if i < len(p.lamports) && p.lamports[i] == lamport {
		p.ops[i] = op // idempotent re-application of the same OpId
		return
	}
	p.lamports = append(p.lamports, 0)
	p.ops = append(p.ops, Op{})
	copy(p.lamports[i+1:], p.lamports[i:])
	copy(p.ops[i+1:], p.ops[i:])
	p.lamports[i] = lamport
	p.ops[i] = op
}

// OpLog is the per-peer ordered log of row/table-touching operations, plus
// the running max lamport and vector-clock summary. Physically a
// map<Peer, ordered-map<Lamport, Op>>, exactly as the design calls for.
type OpLog struct {
	byPeer     map[Peer]*peerLog
	maxLamport Lamport
	clock      VectorClock
}

// NewOpLog returns an empty oplog.
func NewOpLog() *OpLog {
	return &OpLog{
		byPeer: make(map[Peer]*peerLog),
		clock:  NewVectorClock(),
	}
}

// MaxLamport returns the highest lamport recorded by any peer so far.
func (l *OpLog) MaxLamport() Lamport { return l.maxLamport }

// Clock returns the oplog's running vector-clock summary. Callers must treat
// it as read-only; it is the same map the oplog advances in place.
func (l *OpLog) Clock() VectorClock { return l.clock }

// record appends one entry and advances max_lamport / the vector clock.
func (l *OpLog) record(id OpId, op Op) {
	pl, ok := l.byPeer[id.Peer]
	if !ok {
		pl = &peerLog{}
		l.byPeer[id.Peer] = pl
	}
	pl.insert(id.Lamport, op)

	if id.Lamport > l.maxLamport {
		l.maxLamport = id.Lamport
	}
	l.clock.Observe(id)
}

// RecordUpdate logs that (table, row) was touched at id.
func (l *OpLog) RecordUpdate(id OpId, table, row string) {
	l.record(id, Op{Kind: OpUpdate, Table: table, Row: row})
}

// RecordDeleteRow logs a row-level tombstone at id.
func (l *OpLog) RecordDeleteRow(id OpId, table, row string) {
	l.record(id, Op{Kind: OpDeleteRow, Table: table, Row: row})
}

// RecordDeleteTable logs a table-level tombstone at id.
func (l *OpLog) RecordDeleteTable(id OpId, table string) {
	l.record(id, Op{Kind: OpDeleteTable, Table: table})
}

// IterFrom yields every entry not yet observed by from, i.e. every
// (OpId, Op) with from.Get(peer) < lamport. Per-peer ordering is ascending
// lamport; across peers the order is whatever map iteration gives, which is
// fine because each entry carries its own OpId and the codec does not rely
// on a global order for correctness.
func (l *OpLog) IterFrom(from VectorClock) []Entry {
	var out []Entry
	for peer, pl := range l.byPeer {
		known := from.Get(peer)
		// lamports is sorted ascending, so skip the known prefix via search
		// rather than a linear scan per peer.
		start := sort.Search(len(pl.lamports), func(i int) bool { return pl.lamports[i] > known })
		for i := start; i < len(pl.lamports); i++ {
			out = append(out, Entry{
				Id: OpId{Lamport: pl.lamports[i], Peer: peer},
				Op: pl.ops[i],
			})
		}
	}
	return out
}

// Builder reconstructs an OpLog out of order, the way a snapshot importer
// must: every decoded cell, row-tombstone, and table-tombstone mints a
// synthetic Update/DeleteRow/DeleteTable entry, and only once every entry has
// been collected does the builder sort each peer's entries by lamport and
// derive the vector clock — a single batch sort rather than repeated
// insertion-sort churn while decoding.
type Builder struct {
	entries []Entry
}

// NewBuilder returns an empty oplog builder.
func NewBuilder() *Builder { return &Builder{} }

// Add stages one entry for the eventual Build.
func (b *Builder) Add(id OpId, op Op) {
	b.entries = append(b.entries, Entry{Id: id, Op: op})
}

// Build sorts the staged entries per peer and returns the finished OpLog.
func (b *Builder) Build() *OpLog {
	l := NewOpLog()
	byPeer := make(map[Peer][]Entry)
	for _, e := range b.entries {
		byPeer[e.Id.Peer] = append(byPeer[e.Id.Peer], e)
	}
	for peer, entries := range byPeer {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Id.Lamport < entries[j].Id.Lamport })
		pl := &peerLog{
			lamports: make([]Lamport, len(entries)),
			ops:      make([]Op, len(entries)),
		}
		for i, e := range entries {
			pl.lamports[i] = e.Id.Lamport
			pl.ops[i] = e.Op
			if e.Id.Lamport > l.maxLamport {
				l.maxLamport = e.Id.Lamport
			}
			l.clock.Observe(e.Id)
		}
		l.byPeer[peer] = pl
	}
	return l
}
