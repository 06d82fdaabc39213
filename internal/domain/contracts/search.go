// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package contracts

import (
	"context"
	"encoding/json"
	"io"
)

// HighlightSpec asks the engine to wrap query-term matches of Field in the given tags
type HighlightSpec struct {
	Field   string
	PreTag  string
	PostTag string
}

// SearchRequest is an engine-neutral description of a paged search
type SearchRequest struct {
	// Field and Text form a match query; a blank Text matches every document.
	Field string
	Text  string

	From int
	Size int

	Highlight *HighlightSpec

	// SortField orders hits by a document field; empty orders by relevance score.
	SortField string
	SortDesc  bool
}

// MatchAll reports whether the request has no query text
func (r *SearchRequest) MatchAll() bool {
	return r.Text == ""
}

// SearchHit is a single engine hit
type SearchHit struct {
	ID        string              `json:"_id"`
	Score     float64             `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// SearchResult is one page of hits together with the total hit count
type SearchResult struct {
	Total int64
	Hits  []SearchHit
}

// SearchRepository defines the interface for search engine data access operations
type SearchRepository interface {
	// Index stores a document body under docID
	Index(ctx context.Context, index string, docID string, body io.Reader) error

	// Get fetches one document; ErrDocumentNotFound when absent
	Get(ctx context.Context, index string, docID string) (*SearchHit, error)

	// Delete removes a document; deleting an absent document is not an error
	Delete(ctx context.Context, index string, docID string) error

	// Search runs a paged search
	Search(ctx context.Context, index string, req *SearchRequest) (*SearchResult, error)

	// IndexExists reports whether the index exists
	IndexExists(ctx context.Context, index string) (bool, error)

	// EnsureIndex creates the index with the given mapping when it does not exist
	EnsureIndex(ctx context.Context, index string, mapping []byte) error

	// Scan visits every document of the index in batches
	Scan(ctx context.Context, index string, batchSize int, visit func([]SearchHit) error) error

	// HealthCheck checks the health of the search engine connection
	HealthCheck(ctx context.Context) error
}
