// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/domain/entities"
)

// MockMessagingRepository implements contracts.MessagingRepository and
// contracts.EventPublisher in memory
type MockMessagingRepository struct {
	mu sync.RWMutex

	// Mock data
	PublishedMessages  map[string][][]byte // subject -> payloads
	Subscriptions      map[string]contracts.MessageHandler
	ReplySubscriptions map[string]contracts.MessageHandlerWithReply

	// Mock behavior
	SubscribeError error
	PublishError   error
	CloseError     error
	DrainError     error
	HealthError    error

	// Call tracking
	SubscribeCalls []SubscribeCall
	CloseCalls     int
	DrainCalls     int
}

// SubscribeCall records one subscription
type SubscribeCall struct {
	Subject string
	Queue   string
}

// NewMockMessagingRepository creates a new mock messaging repository
func NewMockMessagingRepository() *MockMessagingRepository {
	return &MockMessagingRepository{
		PublishedMessages:  make(map[string][][]byte),
		Subscriptions:      make(map[string]contracts.MessageHandler),
		ReplySubscriptions: make(map[string]contracts.MessageHandlerWithReply),
	}
}

func (m *MockMessagingRepository) track(subject, queue string) error {
	if m.SubscribeError != nil {
		return m.SubscribeError
	}
	m.SubscribeCalls = append(m.SubscribeCalls, SubscribeCall{Subject: subject, Queue: queue})
	return nil
}

// Subscribe mocks subscribing to messages
func (m *MockMessagingRepository) Subscribe(_ context.Context, subject string, handler contracts.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track(subject, ""); err != nil {
		return err
	}
	m.Subscriptions[subject] = handler
	return nil
}

// QueueSubscribe mocks a queue subscription
func (m *MockMessagingRepository) QueueSubscribe(_ context.Context, subject string, queue string, handler contracts.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track(subject, queue); err != nil {
		return err
	}
	m.Subscriptions[subject] = handler
	return nil
}

// QueueSubscribeWithReply mocks a queue subscription whose handler can reply
func (m *MockMessagingRepository) QueueSubscribeWithReply(_ context.Context, subject string, queue string, handler contracts.MessageHandlerWithReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track(subject, queue); err != nil {
		return err
	}
	m.ReplySubscriptions[subject] = handler
	return nil
}

// Publish mocks publishing a message
func (m *MockMessagingRepository) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishError != nil {
		return m.PublishError
	}
	m.PublishedMessages[subject] = append(m.PublishedMessages[subject], append([]byte(nil), data...))
	return nil
}

// PublishFileEvent publishes the JSON encoded event on imagehost.file.<action>
func (m *MockMessagingRepository) PublishFileEvent(ctx context.Context, event *entities.FileEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return m.Publish(ctx, "imagehost.file."+event.Action, data)
}

// Close mocks closing the connection
func (m *MockMessagingRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return m.CloseError
}

// DrainWithTimeout mocks draining the connection
func (m *MockMessagingRepository) DrainWithTimeout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DrainCalls++
	return m.DrainError
}

// HealthCheck mocks health check
func (m *MockMessagingRepository) HealthCheck(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HealthError
}

// SimulateMessage delivers data to the handler subscribed on subject
func (m *MockMessagingRepository) SimulateMessage(ctx context.Context, subject string, data []byte) error {
	m.mu.RLock()
	handler, exists := m.Subscriptions[subject]
	m.mu.RUnlock()

	if !exists {
		return nil
	}
	return handler.Handle(ctx, data, subject)
}

// SimulateRequest delivers data to the reply handler on subject and returns the reply
func (m *MockMessagingRepository) SimulateRequest(ctx context.Context, subject string, data []byte) ([]byte, error) {
	m.mu.RLock()
	handler, exists := m.ReplySubscriptions[subject]
	m.mu.RUnlock()

	if !exists {
		return nil, errors.New("no responders")
	}

	var reply []byte
	err := handler.HandleWithReply(ctx, data, subject, func(b []byte) error {
		reply = append([]byte(nil), b...)
		return nil
	})
	return reply, err
}

// GetPublished returns a copy of the payloads published on subject
func (m *MockMessagingRepository) GetPublished(subject string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.PublishedMessages[subject]...)
}

// MockAuthRepository implements contracts.AuthRepository over a fixed token table
type MockAuthRepository struct {
	mu sync.Mutex

	ValidTokens   map[string]*contracts.Principal
	ValidateError error
	HealthError   error
	ValidateCalls int
}

// NewMockAuthRepository creates a new mock auth repository
func NewMockAuthRepository() *MockAuthRepository {
	return &MockAuthRepository{
		ValidTokens: make(map[string]*contracts.Principal),
	}
}

// SetValidToken configures a valid token for testing
func (m *MockAuthRepository) SetValidToken(token string, principal *contracts.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidTokens[token] = principal
}

// ValidateToken returns the configured principal for token
func (m *MockAuthRepository) ValidateToken(_ context.Context, token string) (*contracts.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ValidateCalls++
	if m.ValidateError != nil {
		return nil, m.ValidateError
	}
	if principal, ok := m.ValidTokens[token]; ok {
		return principal, nil
	}
	return nil, errors.New("invalid token")
}

// GetMetrics returns the recorded call count
func (m *MockAuthRepository) GetMetrics() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{"validate_calls": m.ValidateCalls}
}

// HealthCheck mocks health check
func (m *MockAuthRepository) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HealthError
}
