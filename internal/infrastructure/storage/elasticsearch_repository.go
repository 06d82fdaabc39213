// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// ElasticsearchRepository implements contracts.SearchRepository on Elasticsearch 8
type ElasticsearchRepository struct {
	client *elasticsearch.Client
	logger *slog.Logger
}

// NewElasticsearchRepository creates a new Elasticsearch search repository
func NewElasticsearchRepository(client *elasticsearch.Client, logger *slog.Logger) *ElasticsearchRepository {
	return &ElasticsearchRepository{
		client: client,
		logger: logging.WithFields(logging.WithComponent(logger, constants.ComponentSearch),
			map[string]any{"engine": constants.EngineElasticsearch}),
	}
}

// Index indexes a document body into Elasticsearch
func (r *ElasticsearchRepository) Index(ctx context.Context, index string, docID string, body io.Reader) error {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Indexing document", "document_id", docID, "index", index)

	req := esapi.IndexRequest{
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
	return nil
}

// Get fetches a single document by id
func (r *ElasticsearchRepository) Get(ctx context.Context, index string, docID string) (*contracts.SearchHit, error) {
	req := esapi.GetRequest{Index: index, DocumentID: docID}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrGetDocument, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, contracts.ErrDocumentNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("%s: %w", constants.ErrGetDocument, statusError("get", res.StatusCode, res.Status()))
	}
	return decodeGetResponse(res.Body)
}

// Search runs a paged search, returning raw hits with highlight fragments
func (r *ElasticsearchRepository) Search(ctx context.Context, index string, sr *contracts.SearchRequest) (*contracts.SearchResult, error) {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Searching documents", "index", index, "match_all", sr.MatchAll(), "from", sr.From, "size", sr.Size)

	body, err := encodeBody(buildSearchBody(sr))
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
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
	return result, err
}

// Delete deletes a document; a missing document is not an error
func (r *ElasticsearchRepository) Delete(ctx context.Context, index string, docID string) error {
	req := esapi.DeleteRequest{
		Index:      index,
		DocumentID: docID,
		Refresh:    constants.RefreshTrue,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrDeleteDocument, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("%s: %w", constants.ErrDeleteDocument, statusError("delete", res.StatusCode, res.Status()))
	}
	return nil
}

// IndexExists reports whether the index exists
func (r *ElasticsearchRepository) IndexExists(ctx context.Context, index string) (bool, error) {
	req := esapi.IndicesExistsRequest{Index: []string{index}}

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
func (r *ElasticsearchRepository) EnsureIndex(ctx context.Context, index string, mapping []byte) error {
	exists, err := r.IndexExists(ctx, index)
	if err != nil || exists {
		return err
	}

	r.logger.Info("Creating index", "index", index)
	req := esapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(mapping)}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrCreateIndex, err)
	}
	defer res.Body.Close()

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
func (r *ElasticsearchRepository) Scan(ctx context.Context, index string, batchSize int, visit func([]contracts.SearchHit) error) error {
	body, err := encodeBody(scanBody(batchSize))
	if err != nil {
		return err
	}

	req := esapi.SearchRequest{
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
		if scrollID == "" {
			return
		}
		clear := esapi.ClearScrollRequest{ScrollID: []string{scrollID}}
		if res, err := clear.Do(context.Background(), r.client); err == nil {
			res.Body.Close()
		}
	}()

	for {
		result, nextID, err := readESPage(res)
		if err != nil {
			return err
		}
		if nextID != "" {
			scrollID = nextID
		}
		if len(result.Hits) == 0 {
			return nil
		}
		if err := visit(result.Hits); err != nil {
			return err
		}

		scroll := esapi.ScrollRequest{ScrollID: scrollID, Scroll: constants.ScrollKeepAlive}
		res, err = scroll.Do(ctx, r.client)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.ErrScrollFailed, err)
		}
	}
}

func readESPage(res *esapi.Response) (*contracts.SearchResult, string, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, "", fmt.Errorf("%s: %w", constants.ErrScrollFailed, statusError("scroll", res.StatusCode, res.Status()))
	}
	return decodeSearchResponse(res.Body)
}

// HealthCheck checks the Elasticsearch cluster answers
func (r *ElasticsearchRepository) HealthCheck(ctx context.Context) error {
	req := esapi.InfoRequest{}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		r.logger.Error("Failed to execute health check request", "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrHealthCheck, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%s: %s", constants.ErrHealthCheck, res.Status())
	}
	return nil
}
