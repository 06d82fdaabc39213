// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/highlight"
	htmlformat "github.com/blevesearch/bleve/v2/search/highlight/format/html"
	simplefragmenter "github.com/blevesearch/bleve/v2/search/highlight/fragmenter/simple"
	simplehighlighter "github.com/blevesearch/bleve/v2/search/highlight/highlighter/simple"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// sourceKeyPrefix namespaces the raw document bodies kept in bleve's internal store
const sourceKeyPrefix = "_source/"

// bleve's html fragment formatter marks matches with these tags
const (
	bleveMarkOpen  = "<mark>"
	bleveMarkClose = "</mark>"
)

// wholeFieldHighlighter returns the complete field value as a single fragment,
// matching number_of_fragments 0 on OpenSearch and Elasticsearch.
const (
	wholeFieldHighlighter   = "image-host-whole-field"
	wholeFieldFragmentChars = 1 << 16
)

func init() {
	registry.RegisterHighlighter(wholeFieldHighlighter, func(map[string]interface{}, *registry.Cache) (highlight.Highlighter, error) {
		return simplehighlighter.NewHighlighter(
			simplefragmenter.NewFragmenter(wholeFieldFragmentChars),
			htmlformat.NewFragmentFormatter(bleveMarkOpen, bleveMarkClose),
			simplehighlighter.DefaultSeparator,
		), nil
	})
}

// ErrRepositoryClosed is returned once the embedded indexes have been closed
var ErrRepositoryClosed = errors.New("search repository is closed")

// BleveRepository implements contracts.SearchRepository on embedded bleve
// indexes. An empty root path keeps every index in memory.
type BleveRepository struct {
	mu      sync.RWMutex
	root    string
	indexes map[string]bleve.Index
	closed  bool
	logger  *slog.Logger
}

// NewBleveRepository creates a bleve backed repository rooted at path
func NewBleveRepository(path string, logger *slog.Logger) (*BleveRepository, error) {
	if path != "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", path, err)
		}
	}
	return &BleveRepository{
		root:    path,
		indexes: make(map[string]bleve.Index),
		logger: logging.WithFields(logging.WithComponent(logger, constants.ComponentSearch),
			map[string]any{"engine": constants.EngineBleve}),
	}, nil
}

// lookup returns an already opened index or opens it from disk
func (r *BleveRepository) lookup(index string) (bleve.Index, error) {
	r.mu.RLock()
	idx, ok := r.indexes[index]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRepositoryClosed
	}
	if ok {
		return idx, nil
	}
	if r.root == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.indexes[index]; ok {
		return idx, nil
	}
	idx, err := bleve.Open(filepath.Join(r.root, index))
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.indexes[index] = idx
	return idx, nil
}

// open returns the named index, creating it with the default mapping when missing
func (r *BleveRepository) open(index string) (bleve.Index, error) {
	idx, err := r.lookup(index)
	if err != nil || idx != nil {
		return idx, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRepositoryClosed
	}
	if idx, ok := r.indexes[index]; ok {
		return idx, nil
	}

	indexMapping := bleve.NewIndexMapping()
	if r.root == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.New(filepath.Join(r.root, index), indexMapping)
	}
	if err != nil {
		return nil, err
	}
	r.indexes[index] = idx
	r.logger.Info("Created bleve index", "index", index, "in_memory", r.root == "")
	return idx, nil
}

// Index stores the document body and indexes its fields
func (r *BleveRepository) Index(ctx context.Context, index string, docID string, body io.Reader) error {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Indexing document", "document_id", docID, "index", index)

	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrIndexDocument, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrIndexDocument, err)
	}

	idx, err := r.open(index)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrIndexDocument, err)
	}
	if err := idx.Index(docID, fields); err != nil {
		logger.Error(constants.LogFailedIndexDocument, "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrIndexDocument, err)
	}
	if err := idx.SetInternal(sourceKey(docID), raw); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrIndexDocument, err)
	}
	return nil
}

// Get fetches a document body by id
func (r *BleveRepository) Get(_ context.Context, index string, docID string) (*contracts.SearchHit, error) {
	idx, err := r.lookup(index)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrGetDocument, err)
	}
	if idx == nil {
		return nil, contracts.ErrDocumentNotFound
	}

	raw, err := idx.GetInternal(sourceKey(docID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrGetDocument, err)
	}
	if raw == nil {
		return nil, contracts.ErrDocumentNotFound
	}
	return &contracts.SearchHit{ID: docID, Source: raw}, nil
}

// Delete removes a document; a missing document is not an error
func (r *BleveRepository) Delete(_ context.Context, index string, docID string) error {
	idx, err := r.lookup(index)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrDeleteDocument, err)
	}
	if idx == nil {
		return nil
	}
	if err := idx.Delete(docID); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrDeleteDocument, err)
	}
	if err := idx.DeleteInternal(sourceKey(docID)); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrDeleteDocument, err)
	}
	return nil
}

// Search runs a paged search and maps bleve fragments onto the shared hit shape
func (r *BleveRepository) Search(ctx context.Context, index string, sr *contracts.SearchRequest) (*contracts.SearchResult, error) {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Searching documents", "index", index, "match_all", sr.MatchAll(), "from", sr.From, "size", sr.Size)

	idx, err := r.lookup(index)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrSearchFailed, err)
	}
	if idx == nil {
		return &contracts.SearchResult{Hits: []contracts.SearchHit{}}, nil
	}

	var q query.Query
	if sr.MatchAll() {
		q = bleve.NewMatchAllQuery()
	} else {
		mq := bleve.NewMatchQuery(sr.Text)
		mq.SetField(sr.Field)
		q = mq
	}

	req := bleve.NewSearchRequestOptions(q, sr.Size, sr.From, false)
	sortField := sr.SortField
	if sortField == "" {
		sortField = "_score"
	}
	if sr.SortDesc {
		sortField = "-" + sortField
	}
	req.SortBy([]string{sortField})
	if sr.Highlight != nil {
		req.Highlight = bleve.NewHighlightWithStyle(wholeFieldHighlighter)
		req.Highlight.AddField(sr.Highlight.Field)
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		logger.Error("Search request failed", "error", err.Error())
		return nil, fmt.Errorf("%s: %w", constants.ErrSearchFailed, err)
	}

	result := &contracts.SearchResult{
		Total: int64(res.Total),
		Hits:  make([]contracts.SearchHit, 0, len(res.Hits)),
	}
	var marks *strings.Replacer
	if sr.Highlight != nil {
		marks = strings.NewReplacer(bleveMarkOpen, sr.Highlight.PreTag, bleveMarkClose, sr.Highlight.PostTag)
	}
	for _, match := range res.Hits {
		raw, err := idx.GetInternal(sourceKey(match.ID))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", constants.ErrSearchFailed, err)
		}
		if raw == nil {
			continue
		}
		hit := contracts.SearchHit{ID: match.ID, Score: match.Score, Source: raw}
		if marks != nil && len(match.Fragments) > 0 {
			hit.Highlight = make(map[string][]string, len(match.Fragments))
			for field, fragments := range match.Fragments {
				for _, fragment := range fragments {
					hit.Highlight[field] = append(hit.Highlight[field], marks.Replace(fragment))
				}
			}
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// IndexExists reports whether the index has been created
func (r *BleveRepository) IndexExists(_ context.Context, index string) (bool, error) {
	idx, err := r.lookup(index)
	if err != nil {
		return false, fmt.Errorf("%s: %w", constants.ErrIndexExists, err)
	}
	return idx != nil, nil
}

// EnsureIndex creates the index when missing. The mapping argument is
// engine DSL and does not apply here; bleve maps the JSON fields dynamically.
func (r *BleveRepository) EnsureIndex(_ context.Context, index string, _ []byte) error {
	if _, err := r.open(index); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrCreateIndex, err)
	}
	return nil
}

// Scan visits every document in id order, batchSize at a time
func (r *BleveRepository) Scan(ctx context.Context, index string, batchSize int, visit func([]contracts.SearchHit) error) error {
	idx, err := r.lookup(index)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrScrollFailed, err)
	}
	if idx == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = constants.ScrollBatchSize
	}

	for from := 0; ; from += batchSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), batchSize, from, false)
		req.SortBy([]string{"_id"})
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.ErrScrollFailed, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		batch := make([]contracts.SearchHit, 0, len(res.Hits))
		for _, match := range res.Hits {
			raw, err := idx.GetInternal(sourceKey(match.ID))
			if err != nil {
				return fmt.Errorf("%s: %w", constants.ErrScrollFailed, err)
			}
			if raw != nil {
				batch = append(batch, contracts.SearchHit{ID: match.ID, Source: raw})
			}
		}
		if err := visit(batch); err != nil {
			return err
		}
		if len(res.Hits) < batchSize {
			return nil
		}
	}
}

// HealthCheck reports whether the repository is still open
func (r *BleveRepository) HealthCheck(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return fmt.Errorf("%s: %w", constants.ErrHealthCheck, ErrRepositoryClosed)
	}
	return nil
}

// Close closes every open index
func (r *BleveRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for name, idx := range r.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index %s: %w", name, err))
		}
	}
	r.indexes = nil
	return errors.Join(errs...)
}

func sourceKey(docID string) []byte {
	return []byte(sourceKeyPrefix + docID)
}
