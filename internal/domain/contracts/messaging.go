// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package contracts defines the interfaces and contracts for the domain layer of the image host service.
package contracts

import (
	"context"

	"github.com/tuituidan/image-host/internal/domain/entities"
)

// MessageHandler defines the interface for handling messages
type MessageHandler interface {
	Handle(ctx context.Context, data []byte, subject string) error
}

// MessageHandlerWithReply defines the interface for handling messages with reply support
type MessageHandlerWithReply interface {
	HandleWithReply(ctx context.Context, data []byte, subject string, reply func([]byte) error) error
}

// MessagingRepository defines the interface for NATS message operations
type MessagingRepository interface {
	// Subscribe subscribes to NATS messages
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error

	// QueueSubscribe subscribes to NATS messages with queue group for load balancing
	QueueSubscribe(ctx context.Context, subject string, queue string, handler MessageHandler) error

	// QueueSubscribeWithReply subscribes to NATS messages with queue group and reply support
	QueueSubscribeWithReply(ctx context.Context, subject string, queue string, handler MessageHandlerWithReply) error

	// Publish publishes a message to NATS
	Publish(ctx context.Context, subject string, data []byte) error

	// Close closes the NATS connection
	Close() error

	// HealthCheck checks the health of the NATS connection
	HealthCheck(ctx context.Context) error

	// DrainWithTimeout performs graceful NATS connection drain with timeout
	DrainWithTimeout() error
}

// EventPublisher announces file lifecycle changes to other services
type EventPublisher interface {
	PublishFileEvent(ctx context.Context, event *entities.FileEvent) error
}
