package cluster

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"tablecrdt/internal/codec"
	"tablecrdt/internal/crdt"
)

// Gossiper periodically picks a random peer and exchanges deltas with it,
// converging the cluster without a coordinator or a read/write quorum —
// the CRDT merge rule guarantees that applying the same operation twice, or
// applying operations in either order, reaches the same state either way.
//
// This replaces the teacher's quorum-based Replicator: that design existed
// to give a plain last-write-per-key store linearizable-ish guarantees
// across N/W/R; a table CRDT does not need it; every node already accepts
// writes locally and anti-entropy gossip is enough for convergence.
type Gossiper struct {
	selfID     string
	membership *Membership
	db         *crdt.Database
	mu         *sync.Mutex // guards db; shared with the HTTP handlers that also touch it
	httpClient *http.Client
	interval   time.Duration
}

// NewGossiper returns a Gossiper for db, guarded by mu, gossiping with
// membership's peers every interval.
func NewGossiper(selfID string, membership *Membership, db *crdt.Database, mu *sync.Mutex, interval time.Duration) *Gossiper {
	return &Gossiper{
		selfID:     selfID,
		membership: membership,
		db:         db,
		mu:         mu,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		interval:   interval,
	}
}

// Run loops until ctx is cancelled, gossiping with one random peer per tick.
func (g *Gossiper) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			peer := g.pickPeer()
			if peer == nil {
				continue
			}
			if err := g.gossipWith(peer); err != nil {
				log.Printf("cluster: gossip with %s failed: %v", peer.ID, err)
			}
		}
	}
}

// pickPeer selects a uniformly random live node other than self.
func (g *Gossiper) pickPeer() *Node {
	all := g.membership.All()
	var candidates []Node
	for _, n := range all {
		if n.ID != g.selfID && n.IsAlive {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		return &candidates[0]
	}
	n := candidates[idx.Int64()]
	return &n
}

// gossipWith performs one full bidirectional exchange: pull whatever peer
// has that we lack, then push whatever we have that peer lacked as of its
// pre-pull version.
func (g *Gossiper) gossipWith(peer *Node) error {
	g.mu.Lock()
	ourVersion := g.db.Version().Clone()
	g.mu.Unlock()

	peerVersion, delta, err := g.pull(peer, ourVersion)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	g.mu.Lock()
	if err := codec.ImportUpdates(g.db, delta); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("import pulled delta: %w", err)
	}
	pushBlob := codec.ExportUpdates(g.db, peerVersion)
	g.mu.Unlock()

	if err := g.push(peer, pushBlob); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// pull asks peer for everything it has beyond ourVersion, returning peer's
// own pre-exchange version (so we know what to push back) and the delta.
func (g *Gossiper) pull(peer *Node, ourVersion crdt.VectorClock) (crdt.VectorClock, []byte, error) {
	body := codec.EncodeVectorClock(ourVersion)
	url := fmt.Sprintf("http://%s/internal/gossip/pull", peer.Address)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("peer returned HTTP %d", resp.StatusCode)
	}

	peerVersionLen := resp.Header.Get("X-Version-Length")
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	n, err := parseHeaderLen(peerVersionLen)
	if err != nil || n > len(raw) {
		return nil, nil, fmt.Errorf("malformed gossip response framing")
	}
	peerVersion, err := codec.DecodeVectorClock(raw[:n])
	if err != nil {
		return nil, nil, err
	}
	return peerVersion, raw[n:], nil
}

// push sends a delta blob to peer for it to import.
func (g *Gossiper) push(peer *Node, delta []byte) error {
	url := fmt.Sprintf("http://%s/internal/gossip/push", peer.Address)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(delta))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func parseHeaderLen(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
