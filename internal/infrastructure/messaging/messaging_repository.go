// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package messaging provides NATS-based messaging infrastructure for the image host service.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/domain/entities"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// MessagingRepository implements contracts.MessagingRepository and
// contracts.EventPublisher on a NATS connection
type MessagingRepository struct {
	conn           *nats.Conn
	logger         *slog.Logger
	subscriptions  []*nats.Subscription
	mu             sync.RWMutex
	drainTimeout   time.Duration
	isShuttingDown bool
	published      int64
}

// NewMessagingRepository creates a new NATS messaging repository
func NewMessagingRepository(conn *nats.Conn, logger *slog.Logger, drainTimeout time.Duration) *MessagingRepository {
	msgLogger := logging.WithComponent(logger, constants.ComponentNATS)
	msgLogger.Info("NATS messaging repository initialized", "drain_timeout", drainTimeout)

	return &MessagingRepository{
		conn:          conn,
		logger:        msgLogger,
		subscriptions: make([]*nats.Subscription, 0),
		drainTimeout:  drainTimeout,
	}
}

// Connect dials NATS with the reconnect settings used by the service
func Connect(url string, maxReconnects int, reconnectWait, timeout time.Duration, logger *slog.Logger) (*nats.Conn, error) {
	natsLogger := logging.WithComponent(logger, constants.ComponentNATS)
	return nats.Connect(url,
		nats.Name(constants.ServiceName),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				natsLogger.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			natsLogger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
}

// subscribe registers msgHandler on subject, optionally in a queue group, and tracks the subscription
func (r *MessagingRepository) subscribe(ctx context.Context, subject, queue string, msgHandler nats.MsgHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return fmt.Errorf("failed to subscribe to subject %s: NATS connection is nil", subject)
	}

	r.logger.InfoContext(ctx, "Creating NATS subscription", "subject", subject, "queue", queue)

	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = r.conn.Subscribe(subject, msgHandler)
	} else {
		sub, err = r.conn.QueueSubscribe(subject, queue, msgHandler)
	}
	if err != nil {
		r.logger.Error("Failed to subscribe to NATS", "subject", subject, "queue", queue, "error", err.Error())
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	r.subscriptions = append(r.subscriptions, sub)
	r.logger.Info("NATS subscription created", "subject", subject, "queue", queue)
	return nil
}

// handlerFor adapts a MessageHandler to a NATS callback carrying a fresh request id
func (r *MessagingRepository) handlerFor(queue string, handler contracts.MessageHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, logger := logging.WithRequestID(context.Background(), r.logger)
		logger.Debug("NATS message received", "subject", msg.Subject, "queue", queue, "size", len(msg.Data))

		if err := handler.Handle(ctx, msg.Data, msg.Subject); err != nil {
			logger.Error("Message handler failed", "subject", msg.Subject, "error", err.Error())
		}
	}
}

// Subscribe subscribes to NATS messages
func (r *MessagingRepository) Subscribe(ctx context.Context, subject string, handler contracts.MessageHandler) error {
	return r.subscribe(ctx, subject, "", r.handlerFor("", handler))
}

// QueueSubscribe subscribes to NATS messages with queue group for load balancing
func (r *MessagingRepository) QueueSubscribe(ctx context.Context, subject string, queue string, handler contracts.MessageHandler) error {
	return r.subscribe(ctx, subject, queue, r.handlerFor(queue, handler))
}

// QueueSubscribeWithReply subscribes to NATS messages with queue group and reply support.
// The reply function is nil when the sender did not ask for a response.
func (r *MessagingRepository) QueueSubscribeWithReply(ctx context.Context, subject string, queue string, handler contracts.MessageHandlerWithReply) error {
	return r.subscribe(ctx, subject, queue, func(msg *nats.Msg) {
		ctx, logger := logging.WithRequestID(context.Background(), r.logger)
		logger.Debug("NATS request received", "subject", msg.Subject, "queue", queue, "has_reply", msg.Reply != "")

		var reply func([]byte) error
		if msg.Reply != "" {
			reply = func(data []byte) error {
				if err := msg.Respond(data); err != nil {
					logger.Error("Failed to send reply", "reply_subject", msg.Reply, "error", err.Error())
					return err
				}
				return nil
			}
		}

		if err := handler.HandleWithReply(ctx, msg.Data, msg.Subject, reply); err != nil {
			logger.Error("Request handler failed", "subject", msg.Subject, "error", err.Error())
		}
	})
}

// Publish publishes a message to NATS
func (r *MessagingRepository) Publish(ctx context.Context, subject string, data []byte) error {
	logger := logging.FromContext(ctx, r.logger)

	if !r.IsConnected() {
		logger.Error("Cannot publish: NATS connection not available", "subject", subject)
		return fmt.Errorf("NATS connection not available for publishing to subject %s", subject)
	}

	if err := r.conn.Publish(subject, data); err != nil {
		logger.Error("Failed to publish message to NATS", "subject", subject, "error", err.Error())
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	r.mu.Lock()
	r.published++
	r.mu.Unlock()

	logger.Debug("Message published to NATS", "subject", subject, "size", len(data))
	return nil
}

// PublishFileEvent publishes event on imagehost.file.<action>
func (r *MessagingRepository) PublishFileEvent(ctx context.Context, event *entities.FileEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrMarshalDocument, err)
	}
	return r.Publish(ctx, EventSubject(event.Action), data)
}

// EventSubject returns the subject file events with action are published on
func EventSubject(action string) string {
	return constants.FileEventPrefix + action
}

// DrainWithTimeout performs graceful NATS connection drain with timeout
func (r *MessagingRepository) DrainWithTimeout() error {
	r.mu.Lock()
	r.isShuttingDown = true
	totalSubscriptions := len(r.subscriptions)
	r.mu.Unlock()

	if r.conn == nil {
		r.logger.Warn("NATS connection is nil, skipping drain")
		return nil
	}
	if r.conn.IsClosed() || r.conn.IsDraining() {
		r.logger.Info("NATS connection already closed or draining")
		return nil
	}

	r.logger.Info("Starting NATS graceful drain", "timeout", r.drainTimeout, "subscriptions", totalSubscriptions)

	closed := make(chan struct{})
	r.conn.SetClosedHandler(func(*nats.Conn) { close(closed) })

	if err := r.conn.Drain(); err != nil {
		r.logger.Error("Failed to start NATS drain", "error", err.Error())
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	select {
	case <-closed:
		r.logger.Info("NATS drain completed", "subscriptions_processed", totalSubscriptions)
	case <-time.After(r.drainTimeout):
		r.logger.Warn("NATS drain timeout reached", "timeout", r.drainTimeout)
	}
	return nil
}

// Close drains if needed, unsubscribes and closes the connection
func (r *MessagingRepository) Close() error {
	r.mu.RLock()
	draining := r.isShuttingDown
	r.mu.RUnlock()

	if !draining {
		if err := r.DrainWithTimeout(); err != nil {
			r.logger.Warn("Graceful drain failed, proceeding with immediate close", "error", err.Error())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	failures := 0
	for _, sub := range r.subscriptions {
		if sub == nil || !sub.IsValid() {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			failures++
			r.logger.Error("Failed to unsubscribe", "subject", sub.Subject, "error", err.Error())
		}
	}
	r.subscriptions = nil

	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}

	r.logger.Info("NATS repository closed", "subscription_errors", failures)
	return nil
}

// HealthCheck checks the health of the NATS connection
func (r *MessagingRepository) HealthCheck(_ context.Context) error {
	if r.conn == nil {
		return fmt.Errorf("%s: NATS connection is nil", constants.ErrHealthCheck)
	}

	if status := r.conn.Status(); status != nats.CONNECTED {
		r.logger.Error("NATS health check failed", "status", status.String())
		return fmt.Errorf("%s: NATS connection status is not connected: %s", constants.ErrHealthCheck, status)
	}

	r.mu.RLock()
	total, active := r.subscriptionCounts()
	r.mu.RUnlock()

	if total > 0 && active < total {
		r.logger.Warn("NATS subscriptions degraded", "total_subscriptions", total, "active_subscriptions", active)
	}
	return nil
}

// subscriptionCounts must be called with mu held
func (r *MessagingRepository) subscriptionCounts() (total, active int) {
	for _, sub := range r.subscriptions {
		if sub != nil && sub.IsValid() {
			active++
		}
	}
	return len(r.subscriptions), active
}

// GetSubscriptionCount returns the number of tracked subscriptions
func (r *MessagingRepository) GetSubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// IsConnected checks if the NATS connection is active
func (r *MessagingRepository) IsConnected() bool {
	return r.conn != nil && r.conn.IsConnected()
}

// GetMetrics returns messaging repository metrics for monitoring
func (r *MessagingRepository) GetMetrics() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total, active := r.subscriptionCounts()
	status := "nil"
	if r.conn != nil {
		status = r.conn.Status().String()
	}

	return map[string]any{
		"connection_status":    status,
		"connected":            r.conn != nil && r.conn.IsConnected(),
		"total_subscriptions":  total,
		"active_subscriptions": active,
		"messages_published":   r.published,
		"is_shutting_down":     r.isShuttingDown,
		"drain_timeout":        r.drainTimeout.String(),
	}
}
