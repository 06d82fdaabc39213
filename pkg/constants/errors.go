// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// Error messages (centralized from scattered string literals)
const (
	ErrHealthCheck     = "health check failed"
	ErrShutdownTimeout = "shutdown timeout exceeded"

	// Result mapping
	ErrTagHighlight = "tag highlight failed"

	// File service errors
	ErrUploadFile     = "failed to upload file"
	ErrReadUpload     = "failed to read upload"
	ErrSaveFileDoc    = "failed to save file document"
	ErrSearchFiles    = "failed to search files"
	ErrDeleteFile     = "failed to delete file"
	ErrGetFile        = "failed to get file"
	ErrWarmUpCache    = "failed to warm up file cache"
	ErrSubmitTask     = "failed to submit task"
	ErrInvalidRequest = "invalid index request"

	// Storage specific errors
	ErrMarshalQuery    = "failed to marshal query"
	ErrSearchFailed    = "failed to search"
	ErrDecodeResponse  = "failed to decode search response"
	ErrIndexDocument   = "failed to index document"
	ErrGetDocument     = "failed to get document"
	ErrDeleteDocument  = "failed to delete document"
	ErrIndexExists     = "failed to check index existence"
	ErrCreateIndex     = "failed to create index"
	ErrScrollFailed    = "failed to scroll index"
	ErrMarshalDocument = "failed to marshal document"

	// Object storage errors
	ErrPutObject    = "failed to put object"
	ErrRemoveObject = "failed to remove object"
	ErrStatObject   = "failed to stat object"
	ErrObjectURL    = "failed to resolve object url"
	ErrEnsureBucket = "failed to ensure bucket"

	// Log messages
	LogFailedIndexDocument  = "Failed to index document"
	LogFailedDeleteDocument = "Failed to delete document"
	LogFailedRemoveObject   = "Failed to remove object"
	LogFailedPublishEvent   = "Failed to publish file event"
)
