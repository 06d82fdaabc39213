// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// fakeS3 keeps objects and buckets in memory and speaks just enough of the
// S3 path-style API for the repository.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	deny    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deny {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		body, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Type", f.types[bucket+"/"+key])
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = body
		f.types[bucket+"/"+key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, bucket+"/"+key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) hasBucket(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[name]
}

func (f *fakeS3) object(key string) ([]byte, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	return body, f.types[key], ok
}

func (f *fakeS3) set(fn func(*fakeS3)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newTestRepo(t *testing.T, publicURL string) (*MinioRepository, *fakeS3) {
	t.Helper()
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.StorageConfig{
		Endpoint:      strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:     "access",
		SecretKey:     "secret",
		Bucket:        "images",
		Region:        "us-east-1",
		PublicURL:     publicURL,
		PresignExpiry: time.Hour,
	}
	client, err := NewMinioClient(cfg)
	require.NoError(t, err)

	logger, _ := logging.TestLogger(t)
	return NewMinioRepository(client, cfg, logger), fake
}

func TestMinioRepository_EnsureBucketAndHealth(t *testing.T) {
	repo, fake := newTestRepo(t, "")
	ctx := context.Background()

	assert.Error(t, repo.HealthCheck(ctx), "missing bucket is unhealthy")

	require.NoError(t, repo.EnsureBucket(ctx))
	assert.True(t, fake.hasBucket("images"))
	assert.NoError(t, repo.HealthCheck(ctx))

	require.NoError(t, repo.EnsureBucket(ctx), "existing bucket is left alone")
}

func TestMinioRepository_PutAndRemove(t *testing.T) {
	repo, fake := newTestRepo(t, "")
	ctx := context.Background()
	fake.set(func(f *fakeS3) { f.buckets["images"] = true })

	content := "png-bytes"
	err := repo.PutObject(ctx, "2024/01/02/abc.png", strings.NewReader(content), int64(len(content)), "image/png")
	require.NoError(t, err)
	body, contentType, ok := fake.object("images/2024/01/02/abc.png")
	require.True(t, ok)
	assert.Equal(t, []byte(content), body)
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, repo.RemoveObject(ctx, "2024/01/02/abc.png"))
	_, _, ok = fake.object("images/2024/01/02/abc.png")
	assert.False(t, ok)
}

func TestMinioRepository_ObjectExists(t *testing.T) {
	repo, fake := newTestRepo(t, "")
	ctx := context.Background()
	fake.set(func(f *fakeS3) { f.buckets["images"] = true })

	exists, err := repo.ObjectExists(ctx, "2024/01/02/abc.png")
	require.NoError(t, err)
	assert.False(t, exists)

	content := "png-bytes"
	require.NoError(t, repo.PutObject(ctx, "2024/01/02/abc.png", strings.NewReader(content), int64(len(content)), "image/png"))
	exists, err = repo.ObjectExists(ctx, "2024/01/02/abc.png")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.RemoveObject(ctx, "2024/01/02/abc.png"))
	exists, err = repo.ObjectExists(ctx, "2024/01/02/abc.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMinioRepository_Errors(t *testing.T) {
	repo, fake := newTestRepo(t, "")
	fake.set(func(f *fakeS3) { f.deny = true })
	ctx := context.Background()

	err := repo.PutObject(ctx, "k.png", strings.NewReader("x"), 1, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ErrPutObject)

	err = repo.RemoveObject(ctx, "k.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ErrRemoveObject)

	err = repo.EnsureBucket(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ErrEnsureBucket)

	_, err = repo.ObjectExists(ctx, "k.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ErrStatObject)
}

func TestMinioRepository_ObjectURL(t *testing.T) {
	t.Run("presigned", func(t *testing.T) {
		repo, _ := newTestRepo(t, "")
		u, err := repo.ObjectURL(context.Background(), "2024/01/02/abc.png")
		require.NoError(t, err)
		assert.Contains(t, u, "/images/2024/01/02/abc.png")
		assert.Contains(t, u, "X-Amz-Signature=")
		assert.Contains(t, u, "X-Amz-Expires=3600")
	})

	t.Run("public base", func(t *testing.T) {
		repo, _ := newTestRepo(t, "https://cdn.example.com/images/")
		u, err := repo.ObjectURL(context.Background(), "2024/01/02/abc.png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/images/2024/01/02/abc.png", u)
	})
}
