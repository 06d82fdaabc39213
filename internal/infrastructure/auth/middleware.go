// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/pkg/logging"
)

// Middleware rejects requests without a valid bearer token and stores the
// caller's principal in the request context
func (r *AuthRepository) Middleware(next http.Handler) http.Handler {
	mw := jwtmiddleware.New(
		func(ctx context.Context, token string) (interface{}, error) {
			return r.ValidateToken(ctx, token)
		},
		jwtmiddleware.WithErrorHandler(r.writeAuthError),
	)
	return mw.CheckJWT(next)
}

func (r *AuthRepository) writeAuthError(w http.ResponseWriter, req *http.Request, err error) {
	logging.FromContext(req.Context(), r.logger).Info("Request rejected", "path", req.URL.Path, "error", err.Error())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="image-host"`)
	w.WriteHeader(http.StatusUnauthorized)

	message := "invalid token"
	if errors.Is(err, jwtmiddleware.ErrJWTMissing) {
		message = "missing bearer token"
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// PrincipalFromContext returns the principal stored by Middleware
func PrincipalFromContext(ctx context.Context) (*contracts.Principal, bool) {
	principal, ok := ctx.Value(jwtmiddleware.ContextKey{}).(*contracts.Principal)
	return principal, ok && principal != nil
}
