// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package mocks provides hand-written, in-memory test doubles for the domain contracts.
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/domain/entities"
)

// MockSearchRepository implements contracts.SearchRepository over in-memory documents
type MockSearchRepository struct {
	mu sync.RWMutex

	// Mock state: index -> id -> raw source
	Documents map[string]map[string][]byte
	Indexes   map[string]bool

	// SearchResult, when set, is returned by Search instead of matching stored documents
	SearchResult *contracts.SearchResult

	// AfterScanSnapshot, when set, runs once Scan has read its documents and
	// before it hands them over, like a scroll whose snapshot predates later writes
	AfterScanSnapshot func()

	// Mock behavior
	IndexError  error
	GetError    error
	DeleteError error
	SearchError error
	ExistsError error
	EnsureError error
	ScanError   error
	HealthError error

	// Call tracking
	IndexCalls  []IndexCall
	DeleteCalls []DeleteCall
	SearchCalls []SearchCall
	EnsureCalls []string
}

// IndexCall records one Index invocation
type IndexCall struct {
	Index string
	DocID string
	Body  string
}

// DeleteCall records one Delete invocation
type DeleteCall struct {
	Index string
	DocID string
}

// SearchCall records one Search invocation
type SearchCall struct {
	Index   string
	Request contracts.SearchRequest
}

// NewMockSearchRepository creates a new mock search repository
func NewMockSearchRepository() *MockSearchRepository {
	return &MockSearchRepository{
		Documents: make(map[string]map[string][]byte),
		Indexes:   make(map[string]bool),
	}
}

// Put stores a document directly, creating the index
func (m *MockSearchRepository) Put(index, docID string, doc any) {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(index, docID, raw)
}

func (m *MockSearchRepository) putLocked(index, docID string, raw []byte) {
	if m.Documents[index] == nil {
		m.Documents[index] = make(map[string][]byte)
	}
	m.Documents[index][docID] = raw
	m.Indexes[index] = true
}

// Index mocks indexing a document
func (m *MockSearchRepository) Index(_ context.Context, index string, docID string, body io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IndexError != nil {
		return m.IndexError
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.IndexCalls = append(m.IndexCalls, IndexCall{Index: index, DocID: docID, Body: string(raw)})
	m.putLocked(index, docID, raw)
	return nil
}

// Get mocks fetching a document
func (m *MockSearchRepository) Get(_ context.Context, index string, docID string) (*contracts.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	raw, ok := m.Documents[index][docID]
	if !ok {
		return nil, contracts.ErrDocumentNotFound
	}
	return &contracts.SearchHit{ID: docID, Source: raw}, nil
}

// Delete mocks deleting a document
func (m *MockSearchRepository) Delete(_ context.Context, index string, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.DeleteCalls = append(m.DeleteCalls, DeleteCall{Index: index, DocID: docID})
	delete(m.Documents[index], docID)
	return nil
}

// Search returns SearchResult when configured, otherwise every stored document of the index
func (m *MockSearchRepository) Search(_ context.Context, index string, req *contracts.SearchRequest) (*contracts.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SearchCalls = append(m.SearchCalls, SearchCall{Index: index, Request: *req})
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	if m.SearchResult != nil {
		return m.SearchResult, nil
	}

	hits := m.sortedHitsLocked(index)
	result := &contracts.SearchResult{Total: int64(len(hits)), Hits: []contracts.SearchHit{}}
	if req.From < len(hits) {
		end := min(req.From+req.Size, len(hits))
		result.Hits = hits[req.From:end]
	}
	return result, nil
}

func (m *MockSearchRepository) sortedHitsLocked(index string) []contracts.SearchHit {
	ids := make([]string, 0, len(m.Documents[index]))
	for id := range m.Documents[index] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	hits := make([]contracts.SearchHit, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, contracts.SearchHit{ID: id, Source: m.Documents[index][id]})
	}
	return hits
}

// IndexExists mocks the index existence check
func (m *MockSearchRepository) IndexExists(_ context.Context, index string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	return m.Indexes[index], nil
}

// EnsureIndex mocks index creation
func (m *MockSearchRepository) EnsureIndex(_ context.Context, index string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EnsureCalls = append(m.EnsureCalls, index)
	if m.EnsureError != nil {
		return m.EnsureError
	}
	m.Indexes[index] = true
	return nil
}

// Scan visits stored documents in id order
func (m *MockSearchRepository) Scan(_ context.Context, index string, batchSize int, visit func([]contracts.SearchHit) error) error {
	m.mu.RLock()
	if m.ScanError != nil {
		m.mu.RUnlock()
		return m.ScanError
	}
	hits := m.sortedHitsLocked(index)
	afterSnapshot := m.AfterScanSnapshot
	m.mu.RUnlock()

	if afterSnapshot != nil {
		afterSnapshot()
	}

	if batchSize <= 0 {
		batchSize = len(hits)
	}
	for start := 0; start < len(hits); start += batchSize {
		end := min(start+batchSize, len(hits))
		if err := visit(hits[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheck mocks health check
func (m *MockSearchRepository) HealthCheck(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HealthError
}

// Count returns how many documents the index holds
func (m *MockSearchRepository) Count(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Documents[index])
}

// GetIndexCalls returns a copy of the recorded Index calls
func (m *MockSearchRepository) GetIndexCalls() []IndexCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]IndexCall(nil), m.IndexCalls...)
}

// GetSearchCalls returns a copy of the recorded Search calls
func (m *MockSearchRepository) GetSearchCalls() []SearchCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SearchCall(nil), m.SearchCalls...)
}

// MockObjectStorage implements contracts.ObjectStorage in memory
type MockObjectStorage struct {
	mu sync.RWMutex

	Objects map[string][]byte
	BaseURL string

	// Mock behavior
	PutError    error
	RemoveError error
	URLError    error
	StatError   error
	EnsureError error
	HealthError error
	// FailRemoves makes the next N RemoveObject calls fail with RemoveError or a generic error
	FailRemoves int

	// Call tracking
	PutCalls    []string
	RemoveCalls []string
	EnsureCalls int
}

// NewMockObjectStorage creates a new mock object store
func NewMockObjectStorage() *MockObjectStorage {
	return &MockObjectStorage{
		Objects: make(map[string][]byte),
		BaseURL: "http://objects.test/bucket",
	}
}

// PutObject mocks an upload
func (m *MockObjectStorage) PutObject(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls = append(m.PutCalls, key)
	if m.PutError != nil {
		return m.PutError
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.Objects[key] = data
	return nil
}

// RemoveObject mocks a removal
func (m *MockObjectStorage) RemoveObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RemoveCalls = append(m.RemoveCalls, key)
	if m.FailRemoves > 0 {
		m.FailRemoves--
		if m.RemoveError != nil {
			return m.RemoveError
		}
		return errors.New("remove failed")
	}
	if m.RemoveError != nil {
		return m.RemoveError
	}
	delete(m.Objects, key)
	return nil
}

// ObjectExists mocks an object stat
func (m *MockObjectStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.StatError != nil {
		return false, m.StatError
	}
	_, ok := m.Objects[key]
	return ok, nil
}

// ObjectURL returns BaseURL/key
func (m *MockObjectStorage) ObjectURL(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.URLError != nil {
		return "", m.URLError
	}
	return m.BaseURL + "/" + key, nil
}

// EnsureBucket mocks bucket creation
func (m *MockObjectStorage) EnsureBucket(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsureCalls++
	return m.EnsureError
}

// HealthCheck mocks health check
func (m *MockObjectStorage) HealthCheck(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HealthError
}

// Has reports whether key is stored
func (m *MockObjectStorage) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Objects[key]
	return ok
}

// GetRemoveCalls returns a copy of the keys passed to RemoveObject
func (m *MockObjectStorage) GetRemoveCalls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.RemoveCalls...)
}

// MockEventPublisher implements contracts.EventPublisher
type MockEventPublisher struct {
	mu sync.RWMutex

	Events       []entities.FileEvent
	PublishError error
}

// NewMockEventPublisher creates a new mock publisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

// PublishFileEvent records the event
func (m *MockEventPublisher) PublishFileEvent(_ context.Context, event *entities.FileEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishError != nil {
		return m.PublishError
	}
	m.Events = append(m.Events, *event)
	return nil
}

// GetEvents returns a copy of the published events
func (m *MockEventPublisher) GetEvents() []entities.FileEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]entities.FileEvent(nil), m.Events...)
}

// MockCleanupRepository implements contracts.CleanupRepository
type MockCleanupRepository struct {
	mu sync.RWMutex

	CheckedItems []string
	running      bool
}

// NewMockCleanupRepository creates a new mock janitor
func NewMockCleanupRepository() *MockCleanupRepository {
	return &MockCleanupRepository{}
}

// CheckItem records the key
func (m *MockCleanupRepository) CheckItem(objectKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckedItems = append(m.CheckedItems, objectKey)
}

// StartItemLoop marks the janitor as running
func (m *MockCleanupRepository) StartItemLoop(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}

// Shutdown marks the janitor as stopped
func (m *MockCleanupRepository) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// GetMetrics returns the recorded item count
func (m *MockCleanupRepository) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]any{"items_checked": len(m.CheckedItems), "is_running": m.running}
}

// IsRunning reports the simulated running state
func (m *MockCleanupRepository) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetCheckedItems returns a copy of the queued keys
func (m *MockCleanupRepository) GetCheckedItems() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.CheckedItems...)
}

// MockTaskSubmitter implements contracts.TaskSubmitter by running tasks inline
type MockTaskSubmitter struct {
	mu sync.Mutex

	SubmitError error
	// Defer queues tasks instead of running them; RunPending executes them
	Defer   bool
	pending []contracts.Task
	Submits int
}

// NewMockTaskSubmitter creates a submitter that runs tasks synchronously
func NewMockTaskSubmitter() *MockTaskSubmitter {
	return &MockTaskSubmitter{}
}

// Submit runs or queues the task
func (m *MockTaskSubmitter) Submit(ctx context.Context, task contracts.Task) error {
	m.mu.Lock()
	m.Submits++
	if m.SubmitError != nil {
		m.mu.Unlock()
		return m.SubmitError
	}
	if m.Defer {
		m.pending = append(m.pending, task)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	task(context.WithoutCancel(ctx))
	return nil
}

// RunPending runs queued tasks and returns how many ran
func (m *MockTaskSubmitter) RunPending(ctx context.Context) int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, task := range pending {
		task(ctx)
	}
	return len(pending)
}
