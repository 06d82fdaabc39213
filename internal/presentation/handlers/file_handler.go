// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tuituidan/image-host/internal/domain/entities"
	"github.com/tuituidan/image-host/internal/domain/services"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// FileOperations is the part of the file service the HTTP API drives
type FileOperations interface {
	Upload(ctx context.Context, info entities.FileInfo, r io.Reader) (*entities.UploadResult, error)
	Search(ctx context.Context, query entities.FileQuery) (entities.Page[entities.FileDoc], error)
	Get(ctx context.Context, id string) (*entities.FileDoc, error)
	Delete(ctx context.Context, id string) error
}

// multipartOverhead is allowed on top of the file size for boundaries and form fields
const multipartOverhead = 1 << 20

// FileHandler serves the file upload, search and delete API
type FileHandler struct {
	files         FileOperations
	maxUploadSize int64
	logger        *slog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(files FileOperations, maxUploadSize int64, logger *slog.Logger) *FileHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = constants.MaxUploadSize
	}
	return &FileHandler{
		files:         files,
		maxUploadSize: maxUploadSize,
		logger:        logging.WithComponent(logger, "file_handler"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleUpload accepts a multipart form with a "file" part and optional "tags"
func (h *FileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, services.ErrFileTooLarge.Error())
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		h.writeError(w, r, http.StatusBadRequest, "file name is required")
		return
	}

	info := entities.FileInfo{
		Name:        header.Filename,
		Tags:        strings.TrimSpace(r.FormValue("tags")),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	if info.ContentType == "application/octet-stream" {
		info.ContentType = ""
	}

	result, err := h.files.Upload(r.Context(), info, file)
	switch {
	case errors.Is(err, services.ErrEmptyFile):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrFileTooLarge):
		h.writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	h.writeJSON(w, r, status, result)
}

// HandleSearch lists files, filtered by tags when the tags parameter is set
func (h *FileHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := entities.FileQuery{Tags: params.Get("tags")}

	var err error
	if query.PageIndex, err = intParam(params.Get("pageIndex")); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "pageIndex must be an integer")
		return
	}
	if query.PageSize, err = intParam(params.Get("pageSize")); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "pageSize must be an integer")
		return
	}

	page, err := h.files.Search(r.Context(), query)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, page)
}

// HandleGet returns one file document
func (h *FileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.files.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, services.ErrFileNotFound) {
		h.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, doc)
}

// HandleDelete removes a file; unknown ids succeed
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers the file API. protect wraps the mutating routes
// and may be nil when authentication is disabled.
func (h *FileHandler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /api/v1/files", protect(http.HandlerFunc(h.HandleUpload)))
	mux.HandleFunc("GET /api/v1/files", h.HandleSearch)
	mux.HandleFunc("GET /api/v1/files/{id}", h.HandleGet)
	mux.Handle("DELETE /api/v1/files/{id}", protect(http.HandlerFunc(h.HandleDelete)))
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *FileHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context(), h.logger).Error("File request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error())
	h.writeError(w, r, http.StatusInternalServerError, "internal server error")
}

func (h *FileHandler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, errorResponse{Error: msg})
}

func (h *FileHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context(), h.logger).Warn("Failed to write response", "error", err.Error())
	}
}
