// Package api wires up the Gin HTTP router with all handler functions.
package api

import (
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"tablecrdt/internal/cluster"
	"tablecrdt/internal/codec"
	"tablecrdt/internal/crdt"
)

// Handler holds all dependencies injected from main. Every touch of db
// below is serialized behind mu — the crdt package itself is single-
// threaded and non-reentrant, so the host owns the only lock in the
// system, matching the "a database instance is owned by one actor at a
// time" invariant.
type Handler struct {
	mu         *sync.Mutex
	db         *crdt.Database
	membership *cluster.Membership
	selfID     string
}

// NewHandler creates a Handler.
func NewHandler(mu *sync.Mutex, db *crdt.Database, m *cluster.Membership, selfID string) *Handler {
	return &Handler{mu: mu, db: db, membership: m, selfID: selfID}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	tables := r.Group("/tables")
	tables.PUT("/:table/rows/:row/cols/:col", h.SetCell)
	tables.DELETE("/:table/rows/:row/cols/:col", h.DeleteCell)
	tables.GET("/:table/rows/:row/cols/:col", h.GetCell)
	tables.DELETE("/:table/rows/:row", h.DeleteRow)
	tables.GET("/:table/rows/:row", h.IterRow)
	tables.DELETE("/:table", h.DeleteTable)

	r.GET("/version", h.Version)

	sync := r.Group("/sync")
	sync.POST("/deltas", h.ExportDeltas)
	sync.POST("/import", h.ImportDeltas)
	sync.GET("/snapshot", h.ExportSnapshot)
	sync.POST("/snapshot", h.ImportSnapshot)

	clusterGroup := r.Group("/cluster")
	clusterGroup.POST("/join", h.Join)
	clusterGroup.POST("/leave", h.Leave)
	clusterGroup.GET("/nodes", h.ListNodes)

	internal := r.Group("/internal")
	internal.POST("/gossip/pull", h.GossipPull)
	internal.POST("/gossip/push", h.GossipPush)
}

// ─── Table cell/row/table handlers ───────────────────────────────────────────

// SetCell handles PUT /tables/:table/rows/:row/cols/:col. Body: jsonValue.
func (h *Handler) SetCell(c *gin.Context) {
	var body jsonValue
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, err := valueFromJSON(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	id := h.db.Set(c.Param("table"), c.Param("row"), c.Param("col"), value)
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"lamport": id.Lamport, "peer": id.Peer})
}

// DeleteCell handles DELETE /tables/:table/rows/:row/cols/:col.
func (h *Handler) DeleteCell(c *gin.Context) {
	h.mu.Lock()
	id := h.db.Delete(c.Param("table"), c.Param("row"), c.Param("col"))
	h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"lamport": id.Lamport, "peer": id.Peer})
}

// GetCell handles GET /tables/:table/rows/:row/cols/:col.
func (h *Handler) GetCell(c *gin.Context) {
	h.mu.Lock()
	value, ok := h.db.GetCell(c.Param("table"), c.Param("row"), c.Param("col"))
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "cell not found"})
		return
	}
	c.JSON(http.StatusOK, valueToJSON(value))
}

// IterRow handles GET /tables/:table/rows/:row.
func (h *Handler) IterRow(c *gin.Context) {
	h.mu.Lock()
	cells := h.db.IterRow(c.Param("table"), c.Param("row"))
	h.mu.Unlock()

	out := make(map[string]jsonValue, len(cells))
	for _, cell := range cells {
		out[cell.Col] = valueToJSON(cell.Value)
	}
	c.JSON(http.StatusOK, gin.H{"row": c.Param("row"), "cols": out})
}

// DeleteRow handles DELETE /tables/:table/rows/:row.
func (h *Handler) DeleteRow(c *gin.Context) {
	h.mu.Lock()
	id := h.db.DeleteRow(c.Param("table"), c.Param("row"))
	h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"lamport": id.Lamport, "peer": id.Peer})
}

// DeleteTable handles DELETE /tables/:table.
func (h *Handler) DeleteTable(c *gin.Context) {
	h.mu.Lock()
	id := h.db.DeleteTable(c.Param("table"))
	h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"lamport": id.Lamport, "peer": id.Peer})
}

// Version handles GET /version.
func (h *Handler) Version(c *gin.Context) {
	h.mu.Lock()
	vc := h.db.Version().Clone()
	h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"version": vc})
}

// ─── Sync handlers ────────────────────────────────────────────────────────────

// ExportDeltas handles POST /sync/deltas. Body: an encoded VectorClock
// (application/octet-stream); response: the zstd-compressed delta blob.
func (h *Handler) ExportDeltas(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := codec.DecodeVectorClock(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	blob := codec.ExportUpdates(h.db, from)
	h.mu.Unlock()

	c.Data(http.StatusOK, "application/octet-stream", blob)
}

// ImportDeltas handles POST /sync/import. Body: a zstd-compressed delta blob.
func (h *Handler) ImportDeltas(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	err = codec.ImportUpdates(h.db, raw)
	h.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportSnapshot handles GET /sync/snapshot.
func (h *Handler) ExportSnapshot(c *gin.Context) {
	h.mu.Lock()
	blob := codec.ExportSnapshot(h.db)
	h.mu.Unlock()
	c.Data(http.StatusOK, "application/octet-stream", blob)
}

// ImportSnapshot handles POST /sync/snapshot: replaces this replica's table
// state with the snapshot's, keeping the replica's own peer identity.
func (h *Handler) ImportSnapshot(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	decoded, err := codec.FromSnapshot(raw, h.db.Peer())
	if err == nil {
		h.db.AdoptFrom(decoded)
	}
	h.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Cluster management handlers ─────────────────────────────────────────────

// Join handles POST /cluster/join. Body: {"id", "address"}.
func (h *Handler) Join(c *gin.Context) {
	var node cluster.Node
	if err := c.ShouldBindJSON(&node); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.membership.Join(node); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": node.ID})
}

// Leave handles POST /cluster/leave. Body: {"id"}.
func (h *Handler) Leave(c *gin.Context) {
	var body struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.membership.Leave(body.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": body.ID})
}

// ListNodes handles GET /cluster/nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": h.membership.All()})
}

// ─── Internal gossip handlers ────────────────────────────────────────────────

// GossipPull handles POST /internal/gossip/pull: a peer sends its vector
// clock, we respond with our own version followed by the delta it's
// missing, framed as `X-Version-Length` bytes of encoded VectorClock then
// the remainder is the delta blob.
func (h *Handler) GossipPull(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := codec.DecodeVectorClock(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	ourVersion := codec.EncodeVectorClock(h.db.Version().Clone())
	delta := codec.ExportUpdates(h.db, from)
	h.mu.Unlock()

	c.Header("X-Version-Length", strconv.Itoa(len(ourVersion)))
	c.Data(http.StatusOK, "application/octet-stream", append(ourVersion, delta...))
}

// GossipPush handles POST /internal/gossip/push: a peer sends a delta blob
// for us to merge.
func (h *Handler) GossipPush(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	err = codec.ImportUpdates(h.db, raw)
	h.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

