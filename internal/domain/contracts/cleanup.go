// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package contracts

import "context"

// CleanupRepository defines the contract for cleanup/janitor operations.
// It retries object removals that failed while a file was being deleted.
type CleanupRepository interface {
	// CheckItem queues an object key for the janitor to remove
	CheckItem(objectKey string)

	// StartItemLoop starts the background cleanup processing loop
	StartItemLoop(ctx context.Context)

	// Shutdown gracefully stops the cleanup repository
	Shutdown()

	// GetMetrics returns cleanup repository metrics for monitoring
	GetMetrics() map[string]any

	// IsRunning returns whether the cleanup repository is currently running
	IsRunning() bool
}
