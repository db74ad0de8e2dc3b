package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/models"
	"github.com/studyhub/dashboard-api/internal/request"
)

// Authenticator validates bearer tokens against a JWKS endpoint and
// attaches the resulting principal to the request context
type Authenticator struct {
	jwksURL string
	cache   *jwk.Cache
	logger  *zap.Logger
}

// NewAuthenticator creates an authenticator with a refreshing JWKS cache.
// ctx bounds the lifetime of the background key refresh.
func NewAuthenticator(ctx context.Context, jwksURL string, logger *zap.Logger) (*Authenticator, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register jwks url: %w", err)
	}

	return &Authenticator{
		jwksURL: jwksURL,
		cache:   cache,
		logger:  logger,
	}, nil
}

// Middleware verifies the Authorization header on each request
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondAuthError(w, http.StatusUnauthorized, "Missing Authorization header", a.logger)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondAuthError(w, http.StatusUnauthorized, "Invalid Authorization header format", a.logger)
			return
		}

		ctx := r.Context()
		keySet, err := a.cache.Get(ctx, a.jwksURL)
		if err != nil {
			a.logger.Error("failed_to_load_jwks", zap.Error(err))
			respondAuthError(w, http.StatusInternalServerError, "Failed to load signing keys", a.logger)
			return
		}

		token, err := jwt.ParseString(parts[1], jwt.WithKeySet(keySet), jwt.WithValidate(true))
		if err != nil {
			a.logger.Debug("token_verification_failed", zap.Error(err))
			respondAuthError(w, http.StatusUnauthorized, "Invalid or expired token", a.logger)
			return
		}

		// The token subject is the user id snapshots are keyed by
		userID, err := uuid.Parse(token.Subject())
		if err != nil {
			respondAuthError(w, http.StatusUnauthorized, "Token subject is not a valid user id", a.logger)
			return
		}

		principal := &models.Principal{
			UserID:  userID,
			Subject: token.Subject(),
		}
		if email, ok := token.Get("email"); ok {
			if s, ok := email.(string); ok {
				principal.Email = s
			}
		}

		ctx = request.WithPrincipal(ctx, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func respondAuthError(w http.ResponseWriter, status int, message string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success": false,
		"error":   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed_to_encode_error_response", zap.Error(err))
	}
}
