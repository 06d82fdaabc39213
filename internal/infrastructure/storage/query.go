// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
)

// buildSearchBody renders a SearchRequest as query DSL understood by both
// OpenSearch and Elasticsearch.
func buildSearchBody(req *contracts.SearchRequest) map[string]any {
	body := map[string]any{
		"from":             req.From,
		"size":             req.Size,
		"track_total_hits": true,
	}

	if req.MatchAll() {
		body["query"] = map[string]any{"match_all": map[string]any{}}
	} else {
		body["query"] = map[string]any{
			"match": map[string]any{
				req.Field: map[string]any{"query": req.Text},
			},
		}
	}

	if req.Highlight != nil {
		body["highlight"] = map[string]any{
			"pre_tags":  []string{req.Highlight.PreTag},
			"post_tags": []string{req.Highlight.PostTag},
			"fields": map[string]any{
				req.Highlight.Field: map[string]any{"number_of_fragments": 0},
			},
		}
	}

	order := "asc"
	if req.SortDesc {
		order = "desc"
	}
	sortField := req.SortField
	if sortField == "" {
		sortField = "_score"
	}
	body["sort"] = []map[string]any{
		{sortField: map[string]any{"order": order}},
	}

	return body
}

// scanBody is the scroll query used to visit every document
func scanBody(batchSize int) map[string]any {
	return map[string]any{
		"size":  batchSize,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []string{"_doc"},
	}
}

func encodeBody(body map[string]any) (io.Reader, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrMarshalQuery, err)
	}
	return bytes.NewReader(raw), nil
}

// searchResponse is the subset of the search/scroll response both engines share
type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []contracts.SearchHit `json:"hits"`
	} `json:"hits"`
}

func decodeSearchResponse(r io.Reader) (*contracts.SearchResult, string, error) {
	var response searchResponse
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		return nil, "", fmt.Errorf("%s: %w", constants.ErrDecodeResponse, err)
	}
	return &contracts.SearchResult{
		Total: response.Hits.Total.Value,
		Hits:  response.Hits.Hits,
	}, response.ScrollID, nil
}

// getResponse is the document GET response
type getResponse struct {
	ID     string          `json:"_id"`
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

func decodeGetResponse(r io.Reader) (*contracts.SearchHit, error) {
	var response getResponse
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrDecodeResponse, err)
	}
	if !response.Found {
		return nil, contracts.ErrDocumentNotFound
	}
	return &contracts.SearchHit{ID: response.ID, Source: response.Source}, nil
}

func statusError(operation string, code int, status string) error {
	return &contracts.StatusError{Operation: operation, StatusCode: code, Status: status}
}
