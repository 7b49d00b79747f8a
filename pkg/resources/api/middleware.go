package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/tendant/simple-resources/pkg/resources"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// RequireDB answers 503 when the tree repository cannot be reached
func RequireDB(repo resources.TreeRepository, timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			if err := repo.Ping(ctx); err != nil {
				slog.Warn("Database unavailable", "error", err)
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, ErrorResponse{Error: "Database unavailable"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth verifies a Bearer HS256 token and answers 401 with a JSON body
// otherwise.
func RequireAuth(ja *jwtauth.JWTAuth) Middleware {
	verify := jwtauth.Verify(ja, jwtauth.TokenFromHeader)
	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil || jwt.Validate(token) != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, ErrorResponse{Error: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// NewJWTAuth returns the HS256 verifier for secret
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}
