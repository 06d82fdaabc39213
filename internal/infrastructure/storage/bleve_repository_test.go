// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
)

func newTestBleveRepo(t *testing.T, path string) *BleveRepository {
	t.Helper()
	repo, err := NewBleveRepository(path, setupTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func indexDoc(t *testing.T, repo *BleveRepository, id, tags, created string) {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"name":"%s.png","tags":%q,"create_date":%q}`, id, id, tags, created)
	require.NoError(t, repo.Index(context.Background(), "files", id, strings.NewReader(body)))
}

func TestBleveRepository_IndexGetDelete(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	ctx := context.Background()

	exists, err := repo.IndexExists(ctx, "files")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Get(ctx, "files", "a")
	assert.ErrorIs(t, err, contracts.ErrDocumentNotFound)

	indexDoc(t, repo, "a", "cat dog", "2024-01-01T00:00:00Z")

	exists, err = repo.IndexExists(ctx, "files")
	require.NoError(t, err)
	assert.True(t, exists)

	hit, err := repo.Get(ctx, "files", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", hit.ID)
	assert.Contains(t, string(hit.Source), `"tags":"cat dog"`)

	require.NoError(t, repo.Delete(ctx, "files", "a"))
	_, err = repo.Get(ctx, "files", "a")
	assert.ErrorIs(t, err, contracts.ErrDocumentNotFound)

	assert.NoError(t, repo.Delete(ctx, "files", "a"), "deleting twice is not an error")
	assert.NoError(t, repo.Delete(ctx, "other", "a"), "deleting from a missing index is not an error")
}

func TestBleveRepository_IndexRejectsInvalidJSON(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	err := repo.Index(context.Background(), "files", "a", strings.NewReader("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), constants.ErrIndexDocument)
}

func TestBleveRepository_SearchWithHighlight(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	indexDoc(t, repo, "a", "cat dog", "2024-01-01T00:00:00Z")
	indexDoc(t, repo, "b", "bird", "2024-01-02T00:00:00Z")
	indexDoc(t, repo, "c", "cat", "2024-01-03T00:00:00Z")

	result, err := repo.Search(context.Background(), "files", &contracts.SearchRequest{
		Field: "tags",
		Text:  "cat",
		Size:  10,
		Highlight: &contracts.HighlightSpec{
			Field:   "tags",
			PreTag:  constants.HighlightPreTag,
			PostTag: constants.HighlightPostTag,
		},
		SortDesc: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	require.Len(t, result.Hits, 2)

	for _, hit := range result.Hits {
		require.NotEmpty(t, hit.Highlight["tags"], "hit %s", hit.ID)
		assert.Contains(t, hit.Highlight["tags"][0], `<span style="color:red">cat</span>`)
		assert.NotContains(t, hit.Highlight["tags"][0], "<mark>")
	}
}

func TestBleveRepository_HighlightReturnsWholeField(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	tags := strings.Repeat("word ", 80) + "dog"
	indexDoc(t, repo, "a", tags, "2024-01-01T00:00:00Z")

	result, err := repo.Search(context.Background(), "files", &contracts.SearchRequest{
		Field: "tags",
		Text:  "dog",
		Size:  10,
		Highlight: &contracts.HighlightSpec{
			Field:   "tags",
			PreTag:  constants.HighlightPreTag,
			PostTag: constants.HighlightPostTag,
		},
		SortDesc: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Len(t, result.Hits[0].Highlight["tags"], 1)

	want := strings.Repeat("word ", 80) + `<span style="color:red">dog</span>`
	assert.Equal(t, want, result.Hits[0].Highlight["tags"][0])
}

func TestBleveRepository_SearchMatchAllPagedByDate(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	indexDoc(t, repo, "a", "one", "2024-01-01T00:00:00Z")
	indexDoc(t, repo, "b", "two", "2024-01-02T00:00:00Z")
	indexDoc(t, repo, "c", "three", "2024-01-03T00:00:00Z")

	req := &contracts.SearchRequest{Size: 2, SortField: constants.CreateDateField, SortDesc: true}
	first, err := repo.Search(context.Background(), "files", req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Total)
	require.Len(t, first.Hits, 2)
	assert.Equal(t, "c", first.Hits[0].ID)
	assert.Equal(t, "b", first.Hits[1].ID)

	req.From = 2
	second, err := repo.Search(context.Background(), "files", req)
	require.NoError(t, err)
	require.Len(t, second.Hits, 1)
	assert.Equal(t, "a", second.Hits[0].ID)
}

func TestBleveRepository_SearchMissingIndex(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	result, err := repo.Search(context.Background(), "absent", &contracts.SearchRequest{Size: 5})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Empty(t, result.Hits)
}

func TestBleveRepository_Scan(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	for i := 0; i < 5; i++ {
		indexDoc(t, repo, fmt.Sprintf("doc-%d", i), "x", "2024-01-01T00:00:00Z")
	}

	var batches, total int
	err := repo.Scan(context.Background(), "files", 2, func(hits []contracts.SearchHit) error {
		batches++
		total += len(hits)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, batches)

	assert.NoError(t, repo.Scan(context.Background(), "absent", 2, func([]contracts.SearchHit) error {
		t.Fatal("visit must not be called for a missing index")
		return nil
	}))
}

func TestBleveRepository_OnDiskReopen(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewBleveRepository(dir, setupTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, repo.EnsureIndex(context.Background(), "files", nil))
	indexDoc(t, repo, "a", "cat", "2024-01-01T00:00:00Z")
	require.NoError(t, repo.Close())

	reopened := newTestBleveRepo(t, dir)
	exists, err := reopened.IndexExists(context.Background(), "files")
	require.NoError(t, err)
	assert.True(t, exists)

	hit, err := reopened.Get(context.Background(), "files", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", hit.ID)
}

func TestBleveRepository_Close(t *testing.T) {
	repo := newTestBleveRepo(t, "")
	indexDoc(t, repo, "a", "cat", "2024-01-01T00:00:00Z")
	assert.NoError(t, repo.HealthCheck(context.Background()))

	require.NoError(t, repo.Close())
	assert.ErrorIs(t, repo.HealthCheck(context.Background()), ErrRepositoryClosed)
	_, err := repo.Get(context.Background(), "files", "a")
	assert.ErrorIs(t, err, ErrRepositoryClosed)
	assert.NoError(t, repo.Close())
}
