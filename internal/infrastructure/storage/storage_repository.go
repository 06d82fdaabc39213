// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package storage provides the search index repositories for the image host:
// OpenSearch, Elasticsearch and an embedded bleve index.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// OpenSearchRepository implements contracts.SearchRepository on OpenSearch
type OpenSearchRepository struct {
	client *opensearch.Client
	logger *slog.Logger
}

// NewOpenSearchRepository creates a new OpenSearch search repository
func NewOpenSearchRepository(client *opensearch.Client, logger *slog.Logger) *OpenSearchRepository {
	return &OpenSearchRepository{
		client: client,
		logger: logging.WithFields(logging.WithComponent(logger, constants.ComponentSearch),
			map[string]any{"engine": constants.EngineOpenSearch}),
	}
}

// Index indexes a document body into OpenSearch
func (r *OpenSearchRepository) Index(ctx context.Context, index string, docID string, body io.Reader) error {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Indexing document", "document_id", docID, "index", index)

	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: docID,
		Body:       body,
		Refresh:    constants.RefreshTrue,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		logger.Error(constants.LogFailedIndexDocument, "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrIndexDocument, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		logger.Error("Index request failed", "status", res.Status())
		return fmt.Errorf("%s: %w", constants.ErrIndexDocument, statusError("index", res.StatusCode, res.Status()))
	}

	logger.Debug("Document indexed successfully", "status", res.Status())
	return nil
}

// Get fetches a single document by id
func (r *OpenSearchRepository) Get(ctx context.Context, index string, docID string) (*contracts.SearchHit, error) {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Getting document", "document_id", docID, "index", index)

	req := opensearchapi.GetRequest{
		Index:      index,
		DocumentID: docID,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		logger.Error("Get request failed", "error", err.Error())
		return nil, fmt.Errorf("%s: %w", constants.ErrGetDocument, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		logger.Debug("Document not found", "document_id", docID)
		return nil, contracts.ErrDocumentNotFound
	}
	if res.IsError() {
		logger.Error("Get response error", "status", res.Status())
		return nil, fmt.Errorf("%s: %w", constants.ErrGetDocument, statusError("get", res.StatusCode, res.Status()))
	}

	return decodeGetResponse(res.Body)
}

// Search runs a paged search, returning raw hits with highlight fragments
func (r *OpenSearchRepository) Search(ctx context.Context, index string, sr *contracts.SearchRequest) (*contracts.SearchResult, error) {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Searching documents", "index", index, "match_all", sr.MatchAll(), "from", sr.From, "size", sr.Size)

	body, err := encodeBody(buildSearchBody(sr))
	if err != nil {
		logger.Error("Failed to marshal query", "error", err.Error())
		return nil, err
	}

	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  body,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		logger.Error("Search request failed", "error", err.Error())
		return nil, fmt.Errorf("%s: %w", constants.ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		logger.Error("Search response error", "status", res.Status())
		return nil, fmt.Errorf("%s: %w", constants.ErrSearchFailed, statusError("search", res.StatusCode, res.Status()))
	}

	result, _, err := decodeSearchResponse(res.Body)
	if err != nil {
		logger.Error("Failed to decode response", "error", err.Error())
		return nil, err
	}

	logger.Debug("Search completed successfully", "result_count", len(result.Hits), "total_hits", result.Total)
	return result, nil
}

// Delete deletes a document from OpenSearch
func (r *OpenSearchRepository) Delete(ctx context.Context, index string, docID string) error {
	logger := logging.WithFields(
		logging.FromContext(ctx, r.logger),
		map[string]any{
			"document_id": docID,
			"index":       index,
		},
	)

	logger.Debug("Deleting document from OpenSearch")

	req := opensearchapi.DeleteRequest{
		Index:      index,
		DocumentID: docID,
		Refresh:    constants.RefreshTrue,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		logger.Error("Failed to execute delete request", "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrDeleteDocument, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// 404 is not an error for delete operations
		if res.StatusCode == http.StatusNotFound {
			logger.Debug("Document not found for deletion", "status", res.Status())
			return nil
		}

		logger.Error("Delete request failed", "status", res.Status())
		return fmt.Errorf("%s: %w", constants.ErrDeleteDocument, statusError("delete", res.StatusCode, res.Status()))
	}

	logger.Debug("Document deleted successfully", "status", res.Status())
	return nil
}

// IndexExists reports whether the index exists
func (r *OpenSearchRepository) IndexExists(ctx context.Context, index string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{index}}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return false, fmt.Errorf("%s: %w", constants.ErrIndexExists, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w", constants.ErrIndexExists, statusError("exists", res.StatusCode, res.Status()))
	}
}

// EnsureIndex creates the index with mapping unless it already exists
func (r *OpenSearchRepository) EnsureIndex(ctx context.Context, index string, mapping []byte) error {
	exists, err := r.IndexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	r.logger.Info("Creating index", "index", index)
	req := opensearchapi.IndicesCreateRequest{
		Index: index,
		Body:  bytes.NewReader(mapping),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrCreateIndex, err)
	}
	defer res.Body.Close()

	// Another replica may have created it in the meantime
	if res.StatusCode == http.StatusBadRequest {
		if exists, _ := r.IndexExists(ctx, index); exists {
			return nil
		}
	}
	if res.IsError() {
		return fmt.Errorf("%s: %w", constants.ErrCreateIndex, statusError("create index", res.StatusCode, res.Status()))
	}
	return nil
}

// Scan visits every document using the scroll API
func (r *OpenSearchRepository) Scan(ctx context.Context, index string, batchSize int, visit func([]contracts.SearchHit) error) error {
	logger := logging.FromContext(ctx, r.logger)

	body, err := encodeBody(scanBody(batchSize))
	if err != nil {
		return err
	}

	req := opensearchapi.SearchRequest{
		Index:  []string{index},
		Body:   body,
		Scroll: constants.ScrollKeepAlive,
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrScrollFailed, err)
	}

	var scrollID string
	defer func() {
		if scrollID != "" {
			r.clearScroll(scrollID, logger)
		}
	}()

	visited := 0
	for {
		result, nextID, err := r.readScrollPage(res)
		if err != nil {
			return err
		}
		if nextID != "" {
			scrollID = nextID
		}
		if len(result.Hits) == 0 {
			break
		}
		if err := visit(result.Hits); err != nil {
			return err
		}
		visited += len(result.Hits)

		scroll := opensearchapi.ScrollRequest{
			ScrollID: scrollID,
			Scroll:   constants.ScrollKeepAlive,
		}
		res, err = scroll.Do(ctx, r.client)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.ErrScrollFailed, err)
		}
	}

	logger.Debug("Scan completed", "index", index, "documents", visited)
	return nil
}

func (r *OpenSearchRepository) readScrollPage(res *opensearchapi.Response) (*contracts.SearchResult, string, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, "", fmt.Errorf("%s: %w", constants.ErrScrollFailed, statusError("scroll", res.StatusCode, res.Status()))
	}
	return decodeSearchResponse(res.Body)
}

func (r *OpenSearchRepository) clearScroll(scrollID string, logger *slog.Logger) {
	req := opensearchapi.ClearScrollRequest{ScrollID: []string{scrollID}}
	res, err := req.Do(context.Background(), r.client)
	if err != nil {
		logger.Warn("Failed to clear scroll", "error", err.Error())
		return
	}
	res.Body.Close()
}

// HealthCheck checks the health of the OpenSearch connection
func (r *OpenSearchRepository) HealthCheck(ctx context.Context) error {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Checking OpenSearch health")

	req := opensearchapi.InfoRequest{}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		logger.Error("Failed to execute health check request", "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrHealthCheck, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		logger.Error("Health check request failed", "status", res.Status())
		return fmt.Errorf("%s: %s", constants.ErrHealthCheck, res.Status())
	}

	logger.Debug("Health check completed successfully", "status", res.Status())
	return nil
}
