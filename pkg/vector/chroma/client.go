// Package chroma provides a vector.Store client for the ChromaDB HTTP
// bridge. The bridge wraps a ChromaDB instance with auto-embedding, so this
// client never sees raw vectors: documents go in, ranked documents come out.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lorekeep/lorekeep-go/pkg/vector"
)

// DefaultTimeout bounds every bridge call. The bridge is known to hang when
// the underlying ChromaDB server is wedged, so no call may run unbounded.
const DefaultTimeout = 5 * time.Second

// Config contains configuration for the Chroma bridge client.
type Config struct {
	// BaseURL is the bridge base URL, e.g. "http://localhost:8001".
	BaseURL string

	// Timeout bounds each call. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// Client implements vector.Store against the Chroma bridge HTTP API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

var _ vector.Store = (*Client)(nil)

// NewClient creates a Chroma bridge client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chroma: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// CreateCollection creates or reuses a collection on the bridge.
func (c *Client) CreateCollection(ctx context.Context, name string) error {
	var resp struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/collection/"+name, nil, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("chroma: create collection %q: %s", name, resp.Error)
	}
	return nil
}

// Upsert writes a document, replacing any existing document with the same id.
func (c *Client) Upsert(ctx context.Context, collection, id, document string, metadata map[string]interface{}) error {
	body := map[string]interface{}{
		"ids":       []string{id},
		"documents": []string{document},
	}
	if metadata != nil {
		body["metadatas"] = []map[string]interface{}{metadata}
	}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/collection/"+collection+"/add", body, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("chroma: upsert into %q: %s", collection, resp.Error)
	}
	return nil
}

// Query performs a semantic search. The bridge returns ChromaDB's nested
// result arrays (one inner slice per query text); this client always sends
// one query text and flattens the first slice.
func (c *Client) Query(ctx context.Context, collection, queryText string, limit int, filter map[string]interface{}) ([]vector.Result, error) {
	body := map[string]interface{}{
		"query_texts": []string{queryText},
		"n_results":   limit,
	}
	if filter != nil {
		body["where"] = filter
	}

	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Documents [][]string                 `json:"documents"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Distances [][]float64                `json:"distances"`
		Error     string                     `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/collection/"+collection+"/query", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("chroma: query %q: %s", collection, resp.Error)
	}

	if len(resp.IDs) == 0 {
		return nil, nil
	}

	ids := resp.IDs[0]
	results := make([]vector.Result, 0, len(ids))
	for i, id := range ids {
		r := vector.Result{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			// Chroma reports cosine distance; similarity = 1 - distance.
			r.Similarity = 1.0 - resp.Distances[0][i]
			if r.Similarity < 0 {
				r.Similarity = 0
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// Count returns the number of documents in a collection.
func (c *Client) Count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Count int    `json:"count"`
		Error string `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, "/collection/"+collection+"/count", nil, &resp); err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("chroma: count %q: %s", collection, resp.Error)
	}
	return resp.Count, nil
}

// DeleteCollection removes a collection and its documents.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, http.MethodDelete, "/collection/"+name, nil, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("chroma: delete collection %q: %s", name, resp.Error)
	}
	return nil
}

// Close releases client resources. The underlying http.Client needs no
// explicit shutdown; retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}

// do executes one bridge call bounded by the configured timeout.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chroma: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("chroma: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chroma: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("chroma: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("chroma: decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
