// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package container

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuituidan/image-host/internal/domain/entities"
	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// bucketServer answers the bucket and object calls made during start-up and uploads
type bucketServer struct {
	mu      sync.Mutex
	bucket  bool
	objects map[string]int
}

func (b *bucketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := strings.Trim(r.URL.Path, "/")
	switch {
	case !strings.Contains(path, "/") && r.Method == http.MethodHead:
		if !b.bucket {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case !strings.Contains(path, "/") && r.Method == http.MethodPut:
		b.bucket = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		size, ok := b.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", "Tue, 02 Jan 2024 03:04:05 GMT")
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[path] = len(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(b.objects, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (b *bucketServer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func testConfig(t *testing.T) (*config.AppConfig, *bucketServer) {
	bucket := &bucketServer{objects: make(map[string]int)}
	server := httptest.NewServer(bucket)
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.Search.Engine = constants.EngineBleve
	cfg.Search.Index = "container-test"
	cfg.Storage.Endpoint = strings.TrimPrefix(server.URL, "http://")
	cfg.Storage.AccessKey = "access"
	cfg.Storage.SecretKey = "secret"
	cfg.Storage.Region = "us-east-1"
	cfg.Storage.PublicURL = "http://cdn.test/images"
	cfg.NATS.Enabled = false
	cfg.Pool.CoreWorkers = 2
	cfg.Pool.MaxWorkers = 4
	cfg.Pool.QueueCapacity = 8
	return cfg, bucket
}

func newTestContainer(t *testing.T, cfg *config.AppConfig) *Container {
	logger, _ := logging.TestLogger(t)
	c, err := NewContainer(logger, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

func TestContainer_NewContainer(t *testing.T) {
	cfg, _ := testConfig(t)
	c := newTestContainer(t, cfg)

	assert.NotNil(t, c.SearchRepository)
	assert.NotNil(t, c.ObjectStorage)
	assert.NotNil(t, c.Pool)
	assert.NotNil(t, c.FileCache)
	assert.NotNil(t, c.FileService)
	assert.NotNil(t, c.HealthService)
	assert.NotNil(t, c.FileHandler)
	assert.NotNil(t, c.HealthHandler)
	assert.NotNil(t, c.IndexRequestHandler)
	assert.NotNil(t, c.CleanupRepository)
	assert.NotNil(t, c.WarmUpScheduler)
	assert.Nil(t, c.MessagingRepository)
	assert.Nil(t, c.NATSConnection)
	assert.Nil(t, c.AuthRepository)
}

func TestContainer_ConfigValidation(t *testing.T) {
	logger, _ := logging.TestLogger(t)

	cfg, _ := testConfig(t)
	cfg.Search.Engine = "solr"
	_, err := NewContainer(logger, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	cfg, _ = testConfig(t)
	cfg.Cache.WarmSchedule = "every now and then"
	_, err = NewContainer(logger, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize services")
}

func TestContainer_JWTAndJanitorToggles(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.JWT.Enabled = true
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Janitor.Enabled = false
	c := newTestContainer(t, cfg)

	assert.NotNil(t, c.AuthRepository)
	assert.Nil(t, c.CleanupRepository)

	// mutating routes require a bearer token
	server := httptest.NewServer(c.Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/files/some-id", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/v1/files")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestContainer_StartPreparesBucketAndIndex(t *testing.T) {
	cfg, bucket := testConfig(t)
	c := newTestContainer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	require.NoError(t, c.Start(ctx, &wg))

	bucket.mu.Lock()
	assert.True(t, bucket.bucket)
	bucket.mu.Unlock()

	exists, err := c.SearchRepository.IndexExists(ctx, cfg.Search.Index)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, c.CleanupRepository.IsRunning())

	require.NoError(t, c.HealthCheck(ctx))

	cancel()
	wg.Wait()
	assert.False(t, c.CleanupRepository.IsRunning())
}

func TestContainer_UploadAndSearchEndToEnd(t *testing.T) {
	cfg, bucket := testConfig(t)
	c := newTestContainer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	require.NoError(t, c.Start(ctx, &wg))

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	upload := func() (entities.UploadResult, int) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", "kitten.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\nkitten"))
		require.NoError(t, err)
		require.NoError(t, writer.WriteField("tags", "kitten sleepy"))
		require.NoError(t, writer.Close())

		resp, err := http.Post(server.URL+"/api/v1/files", writer.FormDataContentType(), &body)
		require.NoError(t, err)
		defer resp.Body.Close()
		var result entities.UploadResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		return result, resp.StatusCode
	}

	uploaded, status := upload()
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "http://cdn.test/images/"+uploaded.Path, uploaded.URL)
	assert.Equal(t, 1, bucket.count())

	// same bytes again: the stored object is found and reused
	duplicate, status := upload()
	require.Equal(t, http.StatusOK, status)
	assert.True(t, duplicate.Duplicate)
	assert.Equal(t, uploaded.Path, duplicate.Path)
	assert.Equal(t, 1, bucket.count())

	var page entities.Page[entities.FileDoc]
	require.Eventually(t, func() bool {
		resp, err := http.Get(server.URL + "/api/v1/files?tags=kitten")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		page = entities.Page[entities.FileDoc]{}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return false
		}
		return page.Total == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.Len(t, page.Content, 1)
	doc := page.Content[0]
	assert.Equal(t, "kitten.png", doc.Name)
	assert.Equal(t, uploaded.URL, doc.Path)
	assert.Contains(t, doc.Tags, `<span style="color:red">kitten</span>`)
	assert.Equal(t, "image/png", doc.ContentType)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/files/"+doc.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, bucket.count())

	resp, err = http.Get(server.URL + constants.MetricsPath)
	require.NoError(t, err)
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(metrics), "imagehost_http_requests_total")
}

func TestContainer_ShutdownIsIdempotent(t *testing.T) {
	cfg, _ := testConfig(t)
	logger, _ := logging.TestLogger(t)
	c, err := NewContainer(logger, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx))

	err = c.HealthCheck(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ComponentSearch)
}
