// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/pkg/constants"
)

func configFor(engine, url string) config.SearchConfig {
	return config.SearchConfig{Engine: engine, URL: url, Index: constants.DefaultIndex}
}

func newTestElasticsearchRepo(t *testing.T) (*ElasticsearchRepository, *fakeCluster) {
	t.Helper()
	fc := newFakeCluster(t)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{fc.URL}})
	require.NoError(t, err)
	return NewElasticsearchRepository(client, setupTestLogger(t)), fc
}

func TestElasticsearchRepository_IndexAndGet(t *testing.T) {
	repo, fc := newTestElasticsearchRepo(t)
	fc.handle("PUT /image-host/_doc/doc-1", http.StatusCreated, `{"result":"created"}`)
	fc.handle("GET /image-host/_doc/doc-1", http.StatusOK, `{"_id":"doc-1","found":true,"_source":{"md5":"abc"}}`)

	require.NoError(t, repo.Index(context.Background(), "image-host", "doc-1", strings.NewReader(`{"md5":"abc"}`)))

	hit, err := repo.Get(context.Background(), "image-host", "doc-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"md5":"abc"}`, string(hit.Source))

	_, err = repo.Get(context.Background(), "image-host", "nope")
	assert.ErrorIs(t, err, contracts.ErrDocumentNotFound)
}

func TestElasticsearchRepository_Search(t *testing.T) {
	repo, fc := newTestElasticsearchRepo(t)
	fc.handle("POST /image-host/_search", http.StatusOK, searchResponseBody)

	result, err := repo.Search(context.Background(), "image-host", &contracts.SearchRequest{Field: "tags", Text: "cat", Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Total)
	assert.Len(t, result.Hits, 2)
}

func TestElasticsearchRepository_DeleteAndExists(t *testing.T) {
	repo, fc := newTestElasticsearchRepo(t)
	fc.handle("DELETE /image-host/_doc/doc-1", http.StatusOK, `{"result":"deleted"}`)

	assert.NoError(t, repo.Delete(context.Background(), "image-host", "doc-1"))
	assert.NoError(t, repo.Delete(context.Background(), "image-host", "missing"))

	exists, err := repo.IndexExists(context.Background(), "image-host")
	require.NoError(t, err)
	assert.False(t, exists)

	fc.handle("PUT /image-host", http.StatusOK, `{"acknowledged":true}`)
	require.NoError(t, repo.EnsureIndex(context.Background(), "image-host", []byte(`{}`)))
	_, created := fc.last(http.MethodPut, "/image-host")
	assert.True(t, created)
}

func TestElasticsearchRepository_Scan(t *testing.T) {
	repo, fc := newTestElasticsearchRepo(t)
	fc.handle("POST /image-host/_search", http.StatusOK, `{"_scroll_id":"s1","hits":{"hits":[{"_id":"a","_source":{}}]}}`)
	fc.handle("POST /_search/scroll", http.StatusOK, `{"_scroll_id":"s1","hits":{"hits":[]}}`)
	fc.handle("DELETE /_search/scroll", http.StatusOK, `{}`)

	var seen int
	err := repo.Scan(context.Background(), "image-host", 1, func(hits []contracts.SearchHit) error {
		seen += len(hits)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestElasticsearchRepository_HealthCheck(t *testing.T) {
	repo, fc := newTestElasticsearchRepo(t)
	assert.NoError(t, repo.HealthCheck(context.Background()))

	fc.handle("GET /", http.StatusInternalServerError, `{}`)
	assert.Error(t, repo.HealthCheck(context.Background()))
}
