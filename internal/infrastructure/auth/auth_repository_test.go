// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"

	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

const (
	testSecret   = "test-signing-secret-with-enough-bytes"
	testIssuer   = "image-host"
	testAudience = "uploads"
)

func setupTestLogger(t *testing.T) *slog.Logger {
	logger, _ := logging.TestLogger(t)
	return logger
}

func newTestRepo(t *testing.T) *AuthRepository {
	t.Helper()
	repo, err := NewAuthRepository(testSecret, testIssuer, []string{testAudience}, 5*time.Second, setupTestLogger(t))
	require.NoError(t, err)
	return repo
}

type tokenOptions struct {
	secret    string
	issuer    string
	audience  string
	subject   string
	expiry    time.Time
	principal string
	email     string
}

func signToken(t *testing.T, opts tokenOptions) string {
	t.Helper()
	if opts.secret == "" {
		opts.secret = testSecret
	}
	if opts.issuer == "" {
		opts.issuer = testIssuer
	}
	if opts.audience == "" {
		opts.audience = testAudience
	}
	if opts.expiry.IsZero() {
		opts.expiry = time.Now().Add(time.Hour)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(opts.secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	custom := map[string]any{}
	if opts.principal != "" {
		custom["principal"] = opts.principal
	}
	if opts.email != "" {
		custom["email"] = opts.email
	}

	token, err := jwt.Signed(signer).
		Claims(jwt.Claims{
			Issuer:   opts.issuer,
			Audience: jwt.Audience{opts.audience},
			Subject:  opts.subject,
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Expiry:   jwt.NewNumericDate(opts.expiry),
		}).
		Claims(custom).
		CompactSerialize()
	require.NoError(t, err)
	return token
}

func TestNewAuthRepository(t *testing.T) {
	t.Run("requires a signing secret", func(t *testing.T) {
		_, err := NewAuthRepository("", testIssuer, []string{testAudience}, 0, setupTestLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), constants.ErrSigningKeyMissing)
	})

	t.Run("requires an audience", func(t *testing.T) {
		_, err := NewAuthRepository(testSecret, testIssuer, nil, 0, setupTestLogger(t))
		assert.Error(t, err)
	})

	t.Run("valid configuration", func(t *testing.T) {
		repo := newTestRepo(t)
		assert.NoError(t, repo.HealthCheck(context.Background()))
		metrics := repo.GetMetrics()
		assert.Equal(t, testIssuer, metrics["issuer"])
		assert.Equal(t, true, metrics["validator_initialized"])
	})
}

func TestAuthRepository_ValidateToken(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		token         string
		wantPrincipal string
		wantEmail     string
		wantErr       bool
	}{
		{
			name:          "principal claim",
			token:         signToken(t, tokenOptions{subject: "sub-1", principal: "alice", email: "alice@example.com"}),
			wantPrincipal: "alice",
			wantEmail:     "alice@example.com",
		},
		{
			name:          "bearer prefix is accepted",
			token:         "Bearer " + signToken(t, tokenOptions{principal: "bob"}),
			wantPrincipal: "bob",
		},
		{
			name:          "subject fallback",
			token:         signToken(t, tokenOptions{subject: "svc-uploader"}),
			wantPrincipal: "svc-uploader",
		},
		{name: "no principal", token: signToken(t, tokenOptions{}), wantErr: true},
		{name: "wrong secret", token: signToken(t, tokenOptions{secret: "another-secret-another-secret!!", principal: "x"}), wantErr: true},
		{name: "wrong issuer", token: signToken(t, tokenOptions{issuer: "someone-else", principal: "x"}), wantErr: true},
		{name: "wrong audience", token: signToken(t, tokenOptions{audience: "other", principal: "x"}), wantErr: true},
		{name: "expired", token: signToken(t, tokenOptions{expiry: time.Now().Add(-time.Hour), principal: "x"}), wantErr: true},
		{name: "malformed email", token: signToken(t, tokenOptions{principal: "x", email: "not-an-email"}), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := repo.ValidateToken(ctx, tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), constants.ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrincipal, principal.Principal)
			assert.Equal(t, tt.wantEmail, principal.Email)
		})
	}

	metrics := repo.GetMetrics()
	assert.Equal(t, int64(3), metrics["tokens_validated"])
	assert.Equal(t, int64(8), metrics["tokens_rejected"])
}

func TestAuthRepository_Middleware(t *testing.T) {
	repo := newTestRepo(t)

	var seen string
	protected := repo.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = principal.Principal
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/files/1", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, tokenOptions{principal: "alice"}))
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "alice", seen)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/files/1", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing bearer token")
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/files/1", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, tokenOptions{principal: "x", audience: "other"}))
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid token")
	})
}

func TestPrincipalFromContext_Missing(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)
}

func TestClassifyAuthError(t *testing.T) {
	assert.Equal(t, "expired_token", classifyAuthError(errors.New("token is expired")))
	assert.Equal(t, "invalid_audience", classifyAuthError(errors.New("expected claims not validated: invalid audience")))
	assert.Equal(t, "invalid_claims", classifyAuthError(errors.New("boom")))
}

func TestSafePrincipalLog(t *testing.T) {
	assert.Equal(t, "alice@***", safePrincipalLog("alice@example.com"))
	assert.Equal(t, "svc-uploader", safePrincipalLog("svc-uploader"))
}
