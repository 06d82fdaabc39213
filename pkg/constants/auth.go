// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package constants provides shared constants used throughout the image host service.
package constants

// Authentication constants
const (
	// Token prefixes
	BearerPrefix = "bearer "

	// Error messages for authentication
	ErrInvalidToken        = "invalid token"
	ErrJWTValidatorNotInit = "JWT validator is not initialized"
	ErrInvalidClaimsType   = "invalid claims type"
	ErrNoPrincipalFound    = "no principal identifier found in token"
	ErrSigningKeyMissing   = "JWT signing key is required"
)
