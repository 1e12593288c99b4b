package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dds-registration/internal/identity"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"
	"dds-registration/internal/utils"
)

type contextKey string

const userKey contextKey = "user"

// UserResolver maps verified claims to a stored user.
type UserResolver interface {
	EnsureUser(ctx context.Context, claims identity.Claims) (*models.User, error)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(utils.ErrorResponse(message, detail))
}

// Middleware authenticates the bearer token and puts the caller's user record
// into the request context.
func Middleware(verifier Verifier, users UserResolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}

			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}

			user, err := users.EnsureUser(r.Context(), claims)
			if err != nil {
				if errors.Is(err, models.ErrValidation) {
					writeError(w, http.StatusUnauthorized, "Unauthorized", "token carries no usable email")
					return
				}
				log.Error("AUTH", fmt.Sprintf("Failed to resolve user %s: %v", claims.Email, err))
				writeError(w, http.StatusInternalServerError, "Internal server error", "")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireStaff rejects callers without the staff flag. It must run after Middleware.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		if user == nil || !user.IsStaff {
			writeError(w, http.StatusForbidden, "Forbidden", "staff only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// Helper to extract the authenticated user in handlers
func UserFrom(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}

// DevToken is a convenience for local setups without an identity provider.
func DevToken(secret, email string) (string, error) {
	return SignHMACToken(secret, email, 24*time.Hour)
}
