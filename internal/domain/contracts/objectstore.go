// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package contracts

import (
	"context"
	"io"
)

// ObjectStorage defines the blob store holding the uploaded bytes
type ObjectStorage interface {
	// PutObject stores size bytes read from r under key
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// RemoveObject deletes the object; removing an absent object is not an error
	RemoveObject(ctx context.Context, key string) error

	// ObjectExists reports whether key is still stored
	ObjectExists(ctx context.Context, key string) (bool, error)

	// ObjectURL resolves the URL clients use to fetch the object
	ObjectURL(ctx context.Context, key string) (string, error)

	// EnsureBucket creates the bucket when it does not exist
	EnsureBucket(ctx context.Context) error

	// HealthCheck checks the object store is reachable
	HealthCheck(ctx context.Context) error
}
