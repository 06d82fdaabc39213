// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package contracts

import (
	"context"
	"fmt"
)

// Principal identifies the caller of a mutating request
type Principal struct {
	Principal string
	Email     string
}

// String returns a formatted string representation of the principal
func (p Principal) String() string {
	if p.Email == "" {
		return p.Principal
	}
	return fmt.Sprintf("%s <%s>", p.Principal, p.Email)
}

// AuthRepository defines the contract for authentication operations
type AuthRepository interface {
	// ValidateToken validates a JWT token and returns principal information
	ValidateToken(ctx context.Context, token string) (*Principal, error)

	// GetMetrics returns authentication repository metrics for monitoring
	GetMetrics() map[string]any

	// HealthCheck verifies the authentication setup
	HealthCheck(ctx context.Context) error
}
