// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tuituidan/image-host/internal/domain/entities"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// StoredFileIndexer indexes objects that are already in the bucket
type StoredFileIndexer interface {
	IndexStored(ctx context.Context, req *entities.IndexRequest) error
}

// IndexRequestHandler handles index requests arriving over NATS
type IndexRequestHandler struct {
	indexer StoredFileIndexer
	logger  *slog.Logger
}

// NewIndexRequestHandler creates a new index request handler
func NewIndexRequestHandler(indexer StoredFileIndexer, logger *slog.Logger) *IndexRequestHandler {
	return &IndexRequestHandler{
		indexer: indexer,
		logger:  logging.WithComponent(logger, constants.ComponentNATS),
	}
}

// Handle processes a request that expects no reply
func (h *IndexRequestHandler) Handle(ctx context.Context, data []byte, subject string) error {
	return h.process(ctx, data, subject)
}

// HandleWithReply processes a request and replies "OK" or "ERROR: <reason>"
func (h *IndexRequestHandler) HandleWithReply(ctx context.Context, data []byte, subject string, reply func([]byte) error) error {
	err := h.process(ctx, data, subject)
	if err != nil {
		h.respond(ctx, reply, []byte(fmt.Sprintf("ERROR: %s", err.Error())), subject)
		return err
	}
	h.respond(ctx, reply, []byte(constants.ReplyOK), subject)
	return nil
}

func (h *IndexRequestHandler) process(ctx context.Context, data []byte, subject string) error {
	var req entities.IndexRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrInvalidRequest, err)
	}

	logging.FromContext(ctx, h.logger).Debug("Index request received",
		"subject", subject,
		"path", req.Path,
		"md5", req.MD5)
	return h.indexer.IndexStored(ctx, &req)
}

func (h *IndexRequestHandler) respond(ctx context.Context, reply func([]byte) error, payload []byte, subject string) {
	logger := logging.FromContext(ctx, h.logger)
	if reply == nil {
		logger.Debug("No reply subject for index request", "subject", subject)
		return
	}
	if err := reply(payload); err != nil {
		logger.Error("Failed to send reply to NATS",
			"subject", subject,
			"reply_error", err.Error())
	}
}
