// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package contracts

import "context"

// Task is a unit of background work
type Task func(ctx context.Context)

// TaskSubmitter runs tasks in the background. Submit may block while the
// executor is saturated and fails only when it is closed or ctx ends.
type TaskSubmitter interface {
	Submit(ctx context.Context, task Task) error
}
