// Package client provides a Go SDK for talking to a single tablecrdt node
// over HTTP. It hides request construction, JSON encoding, and error
// mapping behind a small typed API; it implements no distributed logic of
// its own — that lives in the node it talks to.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tablecrdt/internal/codec"
	"tablecrdt/internal/crdt"
)

// Client talks to exactly one tablecrdt node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Client. baseURL looks like "http://localhost:8080".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type jsonValue struct {
	Type string  `json:"type"`
	F64  float64 `json:"f64,omitempty"`
	I64  int64   `json:"i64,omitempty"`
	Str  string  `json:"str,omitempty"`
}

func toJSONValue(v crdt.Value) jsonValue {
	switch v.Kind {
	case crdt.KindDouble:
		return jsonValue{Type: "double", F64: v.F64}
	case crdt.KindI64:
		return jsonValue{Type: "i64", I64: v.I64}
	case crdt.KindStr:
		return jsonValue{Type: "str", Str: v.Str}
	case crdt.KindTrue:
		return jsonValue{Type: "true"}
	case crdt.KindFalse:
		return jsonValue{Type: "false"}
	default:
		return jsonValue{Type: "null"}
	}
}

func fromJSONValue(j jsonValue) crdt.Value {
	switch j.Type {
	case "double":
		return crdt.Double(j.F64)
	case "i64":
		return crdt.I64(j.I64)
	case "str":
		return crdt.Str(j.Str)
	case "true":
		return crdt.True
	case "false":
		return crdt.False
	default:
		return crdt.Null
	}
}

// OpResult reports the OpId a mutation was assigned.
type OpResult struct {
	Lamport uint32 `json:"lamport"`
	Peer    uint64 `json:"peer"`
}

// Set writes value into (table, row, col).
func (c *Client) Set(ctx context.Context, table, row, col string, value crdt.Value) (*OpResult, error) {
	body, _ := json.Marshal(toJSONValue(value))
	path := fmt.Sprintf("/tables/%s/rows/%s/cols/%s", table, row, col)
	var result OpResult
	if err := c.doJSON(ctx, http.MethodPut, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get retrieves the live value at (table, row, col).
func (c *Client) Get(ctx context.Context, table, row, col string) (crdt.Value, error) {
	path := fmt.Sprintf("/tables/%s/rows/%s/cols/%s", table, row, col)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return crdt.Value{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return crdt.Value{}, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return crdt.Value{}, ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return crdt.Value{}, err
	}
	var jv jsonValue
	if err := json.NewDecoder(resp.Body).Decode(&jv); err != nil {
		return crdt.Value{}, err
	}
	return fromJSONValue(jv), nil
}

// Delete writes a Deleted tombstone at (table, row, col).
func (c *Client) Delete(ctx context.Context, table, row, col string) (*OpResult, error) {
	path := fmt.Sprintf("/tables/%s/rows/%s/cols/%s", table, row, col)
	var result OpResult
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteRow clears every cell in (table, row).
func (c *Client) DeleteRow(ctx context.Context, table, row string) (*OpResult, error) {
	path := fmt.Sprintf("/tables/%s/rows/%s", table, row)
	var result OpResult
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteTable clears table entirely.
func (c *Client) DeleteTable(ctx context.Context, table string) (*OpResult, error) {
	path := fmt.Sprintf("/tables/%s", table)
	var result OpResult
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Version returns the node's current vector clock.
func (c *Client) Version(ctx context.Context) (crdt.VectorClock, error) {
	var body struct {
		Version map[string]uint32 `json:"version"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/version", nil, &body); err != nil {
		return nil, err
	}
	vc := crdt.NewVectorClock()
	for peer, lamport := range body.Version {
		var p uint64
		if _, err := fmt.Sscanf(peer, "%d", &p); err != nil {
			return nil, fmt.Errorf("malformed peer id %q in version response", peer)
		}
		vc[crdt.Peer(p)] = crdt.Lamport(lamport)
	}
	return vc, nil
}

// ExportSnapshot fetches the node's full-state snapshot blob.
func (c *Client) ExportSnapshot(ctx context.Context) ([]byte, error) {
	return c.getBinary(ctx, "/sync/snapshot")
}

// ImportSnapshot pushes a snapshot blob for the node to adopt.
func (c *Client) ImportSnapshot(ctx context.Context, blob []byte) error {
	return c.postBinary(ctx, "/sync/snapshot", blob)
}

// ExportDeltas fetches everything the node has beyond from.
func (c *Client) ExportDeltas(ctx context.Context, from crdt.VectorClock) ([]byte, error) {
	return c.postBinaryForBinary(ctx, "/sync/deltas", codec.EncodeVectorClock(from))
}

// ImportDeltas pushes a delta blob for the node to merge.
func (c *Client) ImportDeltas(ctx context.Context, blob []byte) error {
	return c.postBinary(ctx, "/sync/import", blob)
}

// JoinCluster registers a node into the cluster.
func (c *Client) JoinCluster(ctx context.Context, nodeID, address string) error {
	body, _ := json.Marshal(map[string]string{"id": nodeID, "address": address})
	return c.doJSON(ctx, http.MethodPost, "/cluster/join", body, nil)
}

// LeaveCluster removes a node from the cluster.
func (c *Client) LeaveCluster(ctx context.Context, nodeID string) error {
	body, _ := json.Marshal(map[string]string{"id": nodeID})
	return c.doJSON(ctx, http.MethodPost, "/cluster/leave", body, nil)
}

// ─── transport helpers ────────────────────────────────────────────────────────

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postBinary(ctx context.Context, path string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) postBinaryForBinary(ctx context.Context, path string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getBinary(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a cell does not exist on the node.
var ErrNotFound = fmt.Errorf("cell not found")

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
