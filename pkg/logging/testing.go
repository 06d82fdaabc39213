// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
)

// syncBuffer guards the buffer since pool workers and janitor goroutines log concurrently
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// TestLogger creates a logger that captures output for testing.
// Read the returned buffer only after the goroutines that log have finished.
func TestLogger(_ *testing.T) (*slog.Logger, *bytes.Buffer) {
	sb := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(sb, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	return logger, &sb.buf
}

// TestContext creates a context with request_id for testing
func TestContext(_ *testing.T, logger *slog.Logger) context.Context {
	ctx, _ := WithRequestID(context.Background(), logger)
	return ctx
}

// AssertLogContains checks if log output contains expected text
func AssertLogContains(t *testing.T, buf *bytes.Buffer, expected string) {
	if !bytes.Contains(buf.Bytes(), []byte(expected)) {
		t.Errorf("Expected log to contain %q, got: %s", expected, buf.String())
	}
}
