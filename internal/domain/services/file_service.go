// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/domain/entities"
	"github.com/tuituidan/image-host/internal/domain/resultmapper"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

var (
	// ErrFileNotFound is returned when no document has the requested id
	ErrFileNotFound = errors.New("file not found")
	// ErrEmptyFile is returned for zero byte uploads
	ErrEmptyFile = errors.New("file is empty")
	// ErrFileTooLarge is returned when an upload exceeds the configured limit
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")
)

// FileService stores uploads in object storage, indexes their metadata and
// serves tag searches over the index
type FileService struct {
	search  contracts.SearchRepository
	objects contracts.ObjectStorage
	cache   contracts.FileCache
	pool    contracts.TaskSubmitter
	janitor contracts.CleanupRepository
	events  contracts.EventPublisher

	index         string
	maxUploadSize int64
	logger        *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewFileService creates a new file service over index
func NewFileService(
	search contracts.SearchRepository,
	objects contracts.ObjectStorage,
	cache contracts.FileCache,
	pool contracts.TaskSubmitter,
	index string,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		search:        search,
		objects:       objects,
		cache:         cache,
		pool:          pool,
		index:         index,
		maxUploadSize: constants.MaxUploadSize,
		logger:        logging.WithComponent(logger, constants.Component),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// WithJanitor hands failed object removals to janitor for retry
func (s *FileService) WithJanitor(janitor contracts.CleanupRepository) *FileService {
	s.janitor = janitor
	return s
}

// WithEventPublisher publishes file events through events
func (s *FileService) WithEventPublisher(events contracts.EventPublisher) *FileService {
	s.events = events
	return s
}

// WithMaxUploadSize overrides the upload size limit
func (s *FileService) WithMaxUploadSize(limit int64) *FileService {
	if limit > 0 {
		s.maxUploadSize = limit
	}
	return s
}

// EnsureIndex creates the file index with its mapping when it is missing
func (s *FileService) EnsureIndex(ctx context.Context) error {
	return s.search.EnsureIndex(ctx, s.index, entities.FileDocMapping)
}

// WarmUpCache rebuilds the cache from every md5 -> path pair of the index, so
// entries of documents deleted elsewhere are dropped. A missing index leaves the
// cache untouched.
func (s *FileService) WarmUpCache(ctx context.Context) error {
	logger := logging.FromContext(ctx, s.logger)

	exists, err := s.search.IndexExists(ctx, s.index)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrWarmUpCache, err)
	}
	if !exists {
		logger.Info("Index does not exist yet, skipping cache warm-up", "index", s.index)
		return nil
	}

	start := time.Now()
	fresh := make(map[string]string)
	err = s.search.Scan(ctx, s.index, constants.ScrollBatchSize, func(hits []contracts.SearchHit) error {
		for _, hit := range hits {
			var doc struct {
				Path string `json:"path"`
				MD5  string `json:"md5"`
			}
			if err := json.Unmarshal(hit.Source, &doc); err != nil {
				logger.Warn("Skipping undecodable document during warm-up", "document_id", hit.ID, "error", err.Error())
				continue
			}
			if strings.TrimSpace(doc.MD5) == "" || strings.TrimSpace(doc.Path) == "" {
				continue
			}
			fresh[doc.MD5] = doc.Path
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrWarmUpCache, err)
	}

	s.cache.Replace(fresh)
	logger.Info("File cache warmed up", "loaded", len(fresh), "cached", s.cache.Len(), "duration", time.Since(start))
	return nil
}

// Upload stores the bytes read from r. Content already known by md5 is not
// stored again; its existing path is returned with Duplicate set.
func (s *FileService) Upload(ctx context.Context, info entities.FileInfo, r io.Reader) (*entities.UploadResult, error) {
	logger := logging.FromContext(ctx, s.logger)

	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrUploadFile, err)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrReadUpload, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, ErrFileTooLarge
	}

	info.Size = int64(len(data))
	if info.ContentType == "" {
		info.ContentType = http.DetectContentType(data)
	}
	sum := md5.Sum(data)
	digest := hex.EncodeToString(sum[:])

	if existing, ok := s.cache.Get(digest); ok {
		stored, err := s.objects.ObjectExists(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", constants.ErrUploadFile, err)
		}
		if stored {
			logger.Info("Duplicate upload, reusing stored object", "md5", digest, "path", existing)
			url, err := s.objects.ObjectURL(ctx, existing)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", constants.ErrUploadFile, err)
			}
			return &entities.UploadResult{Path: existing, URL: url, MD5: digest, Duplicate: true}, nil
		}
		logger.Warn("Cached object no longer stored, uploading again", "md5", digest, "path", existing)
		s.cache.RemoveIf(digest, existing)
	}

	key := s.objectKey(info.Ext)
	if err := s.objects.PutObject(ctx, key, bytes.NewReader(data), info.Size, info.ContentType); err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrUploadFile, err)
	}
	s.cache.Put(digest, key)

	save := func(taskCtx context.Context) {
		_ = s.AsyncSaveFileDoc(taskCtx, info, key, digest)
	}
	if err := s.pool.Submit(ctx, save); err != nil {
		// the object is stored and cached, so index it inline rather than leave it unsearchable
		logger.Warn("Worker pool unavailable, indexing inline", "path", key, "error", err.Error())
		save(context.WithoutCancel(ctx))
	}

	s.publish(ctx, constants.ActionUploaded, "", digest, key)

	url, err := s.objects.ObjectURL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrUploadFile, err)
	}

	logger.Info("File uploaded", "path", key, "md5", digest, "size", info.Size)
	return &entities.UploadResult{Path: key, URL: url, MD5: digest}, nil
}

// objectKey builds yyyy/MM/dd/<uuid><ext>
func (s *FileService) objectKey(ext string) string {
	return s.now().Format(constants.ObjectKeyDateShape) + "/" + s.newID() + ext
}

// AsyncSaveFileDoc indexes the document of an uploaded object. It runs on
// the worker pool; failures are logged and returned for callers that care.
func (s *FileService) AsyncSaveFileDoc(ctx context.Context, info entities.FileInfo, objectPath, digest string) error {
	logger := logging.FromContext(ctx, s.logger)

	doc := entities.NewFileDoc(s.newID(), info, objectPath, digest, s.now())
	body, err := json.Marshal(doc)
	if err != nil {
		logger.Error("Failed to marshal file document", "path", objectPath, "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrSaveFileDoc, err)
	}

	if err := s.search.Index(ctx, s.index, doc.ID, bytes.NewReader(body)); err != nil {
		logging.LogError(logger, constants.LogFailedIndexDocument, err, "document_id", doc.ID, "path", objectPath)
		// the object has no document now, later uploads must not reuse it
		s.cache.RemoveIf(digest, objectPath)
		return fmt.Errorf("%s: %w", constants.ErrSaveFileDoc, err)
	}

	logger.Debug("File document indexed", "document_id", doc.ID, "path", objectPath)
	s.publish(ctx, constants.ActionIndexed, doc.ID, digest, objectPath)
	return nil
}

// IndexStored indexes an object another service already put in the bucket.
// Unlike uploads it runs synchronously so the requester learns the outcome.
func (s *FileService) IndexStored(ctx context.Context, req *entities.IndexRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrInvalidRequest, err)
	}
	if existing, ok := s.cache.Get(req.MD5); ok && existing == req.Path {
		logging.FromContext(ctx, s.logger).Debug("Object already indexed", "path", req.Path, "md5", req.MD5)
		return nil
	}
	if err := s.AsyncSaveFileDoc(ctx, req.File, req.Path, req.MD5); err != nil {
		return err
	}
	s.cache.Put(req.MD5, req.Path)
	return nil
}

// Search runs a paged tag search. With tags the hits are ranked by score and
// the tags field carries the highlighted fragment; without tags every file
// is listed newest first. Paths are replaced by object URLs.
func (s *FileService) Search(ctx context.Context, query entities.FileQuery) (entities.Page[entities.FileDoc], error) {
	q := query.Normalize(constants.DefaultPageSize, constants.MaxPageSize)

	req := &contracts.SearchRequest{From: q.Offset(), Size: q.PageSize}
	if q.HasTags() {
		req.Field = constants.HighlightField
		req.Text = q.Tags
		req.Highlight = &contracts.HighlightSpec{
			Field:   constants.HighlightField,
			PreTag:  constants.HighlightPreTag,
			PostTag: constants.HighlightPostTag,
		}
		req.SortDesc = true
	} else {
		req.SortField = constants.CreateDateField
		req.SortDesc = true
	}

	result, err := s.search.Search(ctx, s.index, req)
	if err != nil {
		if contracts.IsStatus(err, http.StatusNotFound) {
			return resultmapper.MapResults[entities.FileDoc](nil, q.PageIndex, q.PageSize)
		}
		return entities.Page[entities.FileDoc]{}, fmt.Errorf("%s: %w", constants.ErrSearchFiles, err)
	}

	page, err := resultmapper.MapResults[entities.FileDoc](result, q.PageIndex, q.PageSize)
	if err != nil {
		return entities.Page[entities.FileDoc]{}, fmt.Errorf("%s: %w", constants.ErrSearchFiles, err)
	}

	for i := range page.Content {
		url, err := s.objects.ObjectURL(ctx, page.Content[i].Path)
		if err != nil {
			return entities.Page[entities.FileDoc]{}, fmt.Errorf("%s: %w", constants.ErrSearchFiles, err)
		}
		page.Content[i].Path = url
	}
	return page, nil
}

// Get returns one document with its path resolved to a URL
func (s *FileService) Get(ctx context.Context, id string) (*entities.FileDoc, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := s.objects.ObjectURL(ctx, doc.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrGetFile, err)
	}
	doc.Path = url
	return doc, nil
}

func (s *FileService) load(ctx context.Context, id string) (*entities.FileDoc, error) {
	hit, err := s.search.Get(ctx, s.index, id)
	if errors.Is(err, contracts.ErrDocumentNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrGetFile, err)
	}

	doc, err := resultmapper.MapHit[entities.FileDoc](*hit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", constants.ErrGetFile, err)
	}
	return &doc, nil
}

// Delete removes the document and its object. Deleting an unknown id is a
// no-op. A failed object removal is queued to the janitor when one is set.
func (s *FileService) Delete(ctx context.Context, id string) error {
	logger := logging.FromContext(ctx, s.logger)

	doc, err := s.load(ctx, id)
	if errors.Is(err, ErrFileNotFound) {
		logger.Debug("Delete of unknown file ignored", "document_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrDeleteFile, err)
	}

	if err := s.search.Delete(ctx, s.index, id); err != nil {
		logging.LogError(logger, constants.LogFailedDeleteDocument, err, "document_id", id)
		return fmt.Errorf("%s: %w", constants.ErrDeleteFile, err)
	}
	s.cache.Remove(doc.MD5)

	if err := s.objects.RemoveObject(ctx, doc.Path); err != nil {
		logging.LogError(logger, constants.LogFailedRemoveObject, err, "path", doc.Path)
		if s.janitor == nil {
			return fmt.Errorf("%s: %w", constants.ErrDeleteFile, err)
		}
		s.janitor.CheckItem(doc.Path)
	}

	s.publish(ctx, constants.ActionDeleted, id, doc.MD5, doc.Path)
	logger.Info("File deleted", "document_id", id, "path", doc.Path)
	return nil
}

// publish sends a file event when a publisher is configured; failures are only logged
func (s *FileService) publish(ctx context.Context, action, id, digest, objectPath string) {
	if s.events == nil {
		return
	}
	event := &entities.FileEvent{
		Action:    action,
		ID:        id,
		MD5:       digest,
		Path:      objectPath,
		Timestamp: s.now().UTC(),
	}
	if err := s.events.PublishFileEvent(ctx, event); err != nil {
		logging.FromContext(ctx, s.logger).Warn(constants.LogFailedPublishEvent, "action", action, "error", err.Error())
	}
}
