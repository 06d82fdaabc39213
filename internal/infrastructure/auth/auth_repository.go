// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package auth provides bearer token validation for the image host service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// UploaderClaims contains the custom claims parsed from the JWT token
type UploaderClaims struct {
	Principal string `json:"principal,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Validate rejects malformed email claims
func (c *UploaderClaims) Validate(_ context.Context) error {
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("invalid email claim %q", c.Email)
	}
	return nil
}

// AuthRepository implements contracts.AuthRepository with HS256 signed tokens
type AuthRepository struct {
	validator *validator.Validator
	issuer    string
	audiences []string
	logger    *slog.Logger

	validated atomic.Int64
	rejected  atomic.Int64
}

// NewAuthRepository creates a new JWT auth repository
func NewAuthRepository(secret, issuer string, audiences []string, clockSkew time.Duration, logger *slog.Logger) (*AuthRepository, error) {
	authLogger := logging.WithComponent(logger, constants.ComponentAuth)

	if secret == "" {
		return nil, errors.New(constants.ErrSigningKeyMissing)
	}

	keyFunc := func(context.Context) (interface{}, error) {
		return []byte(secret), nil
	}
	customClaims := func() validator.CustomClaims {
		return &UploaderClaims{}
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		issuer,
		audiences,
		validator.WithCustomClaims(customClaims),
		validator.WithAllowedClockSkew(clockSkew),
	)
	if err != nil {
		authLogger.Error("Failed to create JWT validator", "error", err.Error())
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}

	return &AuthRepository{
		validator: jwtValidator,
		issuer:    issuer,
		audiences: audiences,
		logger:    authLogger,
	}, nil
}

// ValidateToken validates a JWT token, with or without its bearer prefix
func (r *AuthRepository) ValidateToken(ctx context.Context, token string) (*contracts.Principal, error) {
	logger := logging.FromContext(ctx, r.logger)

	if len(token) > len(constants.BearerPrefix) && strings.ToLower(token[:len(constants.BearerPrefix)]) == constants.BearerPrefix {
		token = token[len(constants.BearerPrefix):]
	}
	if token == "" {
		r.rejected.Add(1)
		return nil, fmt.Errorf("%s: empty token", constants.ErrInvalidToken)
	}

	validated, err := r.validator.ValidateToken(ctx, token)
	if err != nil {
		r.rejected.Add(1)
		logger.Warn("Token validation failed", "error", err.Error(), "error_type", classifyAuthError(err))
		return nil, fmt.Errorf("%s: %w", constants.ErrInvalidToken, err)
	}

	principal, err := extractPrincipal(validated)
	if err != nil {
		r.rejected.Add(1)
		logger.Warn("Failed to extract principal from validated claims", "error", err.Error())
		return nil, fmt.Errorf("%s: %w", constants.ErrInvalidToken, err)
	}

	r.validated.Add(1)
	logger.Debug("Token validated", "principal", safePrincipalLog(principal.Principal))
	return principal, nil
}

// extractPrincipal prefers the principal claim and falls back to the subject
func extractPrincipal(claims interface{}) (*contracts.Principal, error) {
	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, errors.New(constants.ErrInvalidClaimsType)
	}

	principal := &contracts.Principal{Principal: validated.RegisteredClaims.Subject}
	if custom, ok := validated.CustomClaims.(*UploaderClaims); ok {
		if custom.Principal != "" {
			principal.Principal = custom.Principal
		}
		principal.Email = custom.Email
	}

	if principal.Principal == "" {
		return nil, errors.New(constants.ErrNoPrincipalFound)
	}
	return principal, nil
}

// HealthCheck checks the validator is initialized
func (r *AuthRepository) HealthCheck(_ context.Context) error {
	if r.validator == nil {
		return errors.New(constants.ErrJWTValidatorNotInit)
	}
	return nil
}

// GetMetrics returns auth repository metrics for monitoring
func (r *AuthRepository) GetMetrics() map[string]any {
	return map[string]any{
		"issuer":                r.issuer,
		"audiences":             r.audiences,
		"validator_initialized": r.validator != nil,
		"tokens_validated":      r.validated.Load(),
		"tokens_rejected":       r.rejected.Load(),
	}
}

// classifyAuthError categorizes authentication errors for logging
func classifyAuthError(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "expired"):
		return "expired_token"
	case strings.Contains(errStr, "not valid yet"):
		return "premature_token"
	case strings.Contains(errStr, "signature"):
		return "invalid_signature"
	case strings.Contains(errStr, "malformed"), strings.Contains(errStr, "could not parse"):
		return "malformed_token"
	case strings.Contains(errStr, "audience"):
		return "invalid_audience"
	case strings.Contains(errStr, "issuer"):
		return "invalid_issuer"
	default:
		return "invalid_claims"
	}
}

// safePrincipalLog masks the mailbox domain of email-shaped principals
func safePrincipalLog(principal string) string {
	if user, _, found := strings.Cut(principal, "@"); found {
		return user + "@***"
	}
	return principal
}
