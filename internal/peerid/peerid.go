// Package peerid mints the random 64-bit replica identifier crdt.Database
// needs at construction time. Kept out of internal/crdt so the core package
// never imports a random-source dependency — callers that want determinism
// (tests, replay) can always skip this package and call Database.SetPeer
// directly.
package peerid

import (
	"hash/fnv"

	"github.com/google/uuid"
	"tablecrdt/internal/crdt"
)

// New mints a fresh peer id by folding a v4 UUID through FNV-64a. A UUID
// already carries 122 bits of randomness from the standard library's crypto
// source; folding it down to 64 bits is simpler and more portable across
// platforms than reimplementing a PRNG, and collisions are only a liveness
// concern (two replicas sharing a peer id can still converge correctly,
// they just can't be told apart as distinct authors).
func New() crdt.Peer {
	id := uuid.New()
	h := fnv.New64a()
	_, _ = h.Write(id[:])
	return crdt.Peer(h.Sum64())
}
