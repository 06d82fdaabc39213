// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package logging provides structured logging functionality for the image host service.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"strings"

	"github.com/tuituidan/image-host/pkg/env"
)

type contextKey string

const (
	requestLoggerKey contextKey = "request_logger"
	requestIDKey     contextKey = "request_id"
)

// NewRequestID generates a 16-character request ID
func NewRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes) // crypto/rand.Read only fails on system issues
	return hex.EncodeToString(bytes)
}

// NewLogger creates a logger with container-optimized defaults (JSON, Info level).
// Reads LOG_FORMAT and LOG_LEVEL from the environment; the optional debug
// parameter overrides LOG_LEVEL and enables AddSource.
func NewLogger(debug ...bool) *slog.Logger {
	return NewLoggerWithLevel(
		env.GetString("LOG_LEVEL", "info"),
		env.GetString("LOG_FORMAT", "json"),
		len(debug) > 0 && debug[0],
	)
}

// NewLoggerWithLevel creates the process logger for an explicit level and
// format ("json" or "text") and installs it as the slog default.
func NewLoggerWithLevel(level, format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a level name to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID creates context with a fresh request_id and enhanced logger
func WithRequestID(ctx context.Context, baseLogger *slog.Logger) (context.Context, *slog.Logger) {
	return WithGivenRequestID(ctx, baseLogger, NewRequestID())
}

// WithGivenRequestID is WithRequestID for callers that already carry an id
// (for example an inbound X-Request-ID header). An empty id gets a fresh one.
func WithGivenRequestID(ctx context.Context, baseLogger *slog.Logger, requestID string) (context.Context, *slog.Logger) {
	if requestID == "" {
		requestID = NewRequestID()
	}

	enhancedLogger := baseLogger.With("request_id", requestID)

	ctx = context.WithValue(ctx, requestIDKey, requestID)
	ctx = context.WithValue(ctx, requestLoggerKey, enhancedLogger)

	return ctx, enhancedLogger
}

// FromContext extracts the enhanced logger from context
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

// WithComponent adds component field to logger
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithOperation adds operation field to logger
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With("operation", operation)
}

// WithFields adds multiple fields to logger
func WithFields(logger *slog.Logger, fields map[string]any) *slog.Logger {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return logger.With(attrs...)
}

// LogError logs an error with structured context
func LogError(logger *slog.Logger, msg string, err error, fields ...any) {
	attrs := []any{"error", err.Error()}
	attrs = append(attrs, fields...)
	logger.Error(msg, attrs...)
}

// GetRequestID extracts request_id from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
