// Package crdt implements the in-memory, last-write-wins conflict-free
// replicated table store: per-cell, per-row, and per-table tombstones under a
// hybrid logical-clock ordering, plus the operation log and vector clock that
// let a replica compute what a peer has not yet seen.
//
// The package is single-threaded and non-reentrant: a Database is owned by
// one goroutine at a time. Callers that share a Database across goroutines
// (see internal/api) must serialize access themselves, the same way the
// teacher's internal/store.Store guards its map with a mutex one level up.
package crdt

import "maps"

// Peer is an opaque replica identifier. It is minted once per replica (see
// internal/peerid) and never changes for the lifetime of that replica's
// Database, short of an explicit SetPeer override.
type Peer uint64

// Lamport is a 32-bit monotonically non-decreasing counter local to a
// Database. Assignment rule: on every local mutation,
// lamport = max(all lamports ever observed) + 1.
//
// OpId minting always starts at 1, so lamport 0 never names a real
// operation; absent slots in Table's columnar arrays hold lamport 0, but
// absence itself is tracked by a per-cell state, not by the lamport.
type Lamport uint32

// OpId identifies a single operation and doubles as the LWW precedence
// relation for the whole system. Two OpIds compare by Lamport first, Peer as
// tiebreaker — this order is total, so "greater OpId wins" is unambiguous
// even for two operations minted at literally the same logical time by
// different peers.
type OpId struct {
	Lamport Lamport
	Peer    Peer
}

// Less reports whether id happened-before other in the OpId total order.
func (id OpId) Less(other OpId) bool {
	if id.Lamport != other.Lamport {
		return id.Lamport < other.Lamport
	}
	return id.Peer < other.Peer
}

// Greater reports whether id strictly dominates other.
func (id OpId) Greater(other OpId) bool {
	return other.Less(id)
}

// Max returns whichever of id, other is greater under the OpId order.
func Max(id, other OpId) OpId {
	if id.Less(other) {
		return other
	}
	return id
}

// VectorClock summarises, for each Peer, the highest Lamport a replica has
// observed originating at that peer. A replica's VectorClock contains an
// entry for peer P iff it has applied at least one operation minted by P.
type VectorClock map[Peer]Lamport

// NewVectorClock returns an empty clock — "give me everything" when used as
// the `from` argument of a delta export.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Get returns the highest lamport observed for peer, or 0 if none.
func (vc VectorClock) Get(peer Peer) Lamport {
	return vc[peer]
}

// Includes reports whether id has already been observed by this clock, i.e.
// whether id.Lamport <= vc[id.Peer].
func (vc VectorClock) Includes(id OpId) bool {
	return id.Lamport <= vc[id.Peer]
}

// Observe folds id into the clock, raising the peer's counter if id is newer
// than anything seen from that peer so far.
func (vc VectorClock) Observe(id OpId) {
	if id.Lamport > vc[id.Peer] {
		vc[id.Peer] = id.Lamport
	}
}

// Merge returns a new clock holding, per peer, the maximum of the two inputs.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	merged := vc.Clone()
	for peer, lamport := range other {
		if lamport > merged[peer] {
			merged[peer] = lamport
		}
	}
	return merged
}

// Clone deep-copies the clock so the caller can mutate the result without
// aliasing the receiver — maps are reference types in Go.
func (vc VectorClock) Clone() VectorClock {
	c := make(VectorClock, len(vc))
	maps.Copy(c, vc)
	return c
}

// Equal reports whether the two clocks carry identical peer/lamport pairs.
func (vc VectorClock) Equal(other VectorClock) bool {
	if len(vc) != len(other) {
		return false
	}
	for peer, lamport := range vc {
		if other[peer] != lamport {
			return false
		}
	}
	return true
}
