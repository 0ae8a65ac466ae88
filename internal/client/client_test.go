package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablecrdt/internal/api"
	"tablecrdt/internal/cluster"
	"tablecrdt/internal/crdt"
)

func newTestServer(t *testing.T, db *crdt.Database) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var mu sync.Mutex
	m := cluster.NewMembership([]cluster.Node{{ID: "self", Address: "localhost:0"}}, 10)
	api.NewHandler(&mu, db, m, "self").Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSetGetDelete(t *testing.T) {
	db := crdt.New(crdt.Peer(1))
	srv := newTestServer(t, db)
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	_, err := c.Set(ctx, "t", "r1", "c1", crdt.Str("hi"))
	require.NoError(t, err)

	v, err := c.Get(ctx, "t", "r1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "hi", v.Str)

	_, err = c.Delete(ctx, "t", "r1", "c1")
	require.NoError(t, err)

	_, err = c.Get(ctx, "t", "r1", "c1")
	assert.Equal(t, ErrNotFound, err)
}

func TestClientVersion(t *testing.T) {
	db := crdt.New(crdt.Peer(5))
	srv := newTestServer(t, db)
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	_, err := c.Set(ctx, "t", "r1", "c1", crdt.I64(1))
	require.NoError(t, err)

	vc, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, crdt.Lamport(1), vc.Get(crdt.Peer(5)))
}

func TestClientSnapshotRoundTrip(t *testing.T) {
	db := crdt.New(crdt.Peer(1))
	srv := newTestServer(t, db)
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	_, err := c.Set(ctx, "t", "r1", "c1", crdt.I64(3))
	require.NoError(t, err)

	blob, err := c.ExportSnapshot(ctx)
	require.NoError(t, err)

	other := crdt.New(crdt.Peer(2))
	srv2 := newTestServer(t, other)
	c2 := New(srv2.URL, time.Second)
	require.NoError(t, c2.ImportSnapshot(ctx, blob))

	v, err := c2.Get(ctx, "t", "r1", "c1")
	require.NoError(t, err)
	assert.True(t, v.Equal(crdt.I64(3)))
}

func TestClientClusterJoinLeave(t *testing.T) {
	db := crdt.New(crdt.Peer(1))
	srv := newTestServer(t, db)
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, c.JoinCluster(ctx, "node2", "localhost:1234"))

	nodes, err := c.GetRaw(ctx, "/cluster/nodes")
	require.NoError(t, err)
	assert.Contains(t, nodes, "node2")

	require.NoError(t, c.LeaveCluster(ctx, "node2"))
}
