package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dds-registration/internal/identity"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeUsers struct {
	err error
}

func (f fakeUsers) EnsureUser(_ context.Context, claims identity.Claims) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: 7, Email: claims.Email, IsStaff: claims.Email == "staff@example.org"}, nil
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Token abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	token, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier(secret)
	ctx := context.Background()

	token, err := SignHMACToken(secret, "ada@example.org", time.Hour)
	require.NoError(t, err)
	claims, err := v.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.org", claims.Email)

	forged, err := SignHMACToken("other", "ada@example.org", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignHMACToken(secret, "ada@example.org", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = v.Verify(ctx, noEmail)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func protected(users UserResolver) http.Handler {
	mw := Middleware(NewHMACVerifier(secret), users, logger.NewNopLogger())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		w.Write([]byte(user.Email))
	}))
}

func TestMiddleware(t *testing.T) {
	h := protected(fakeUsers{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := DevToken(secret, "ada@example.org")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.org", rec.Body.String())

	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareResolverFailure(t *testing.T) {
	token, err := DevToken(secret, "ada@example.org")
	require.NoError(t, err)

	for _, tc := range []struct {
		err  error
		code int
	}{
		{models.NewValidationError("email", "bad"), http.StatusUnauthorized},
		{errors.New("db down"), http.StatusInternalServerError},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected(fakeUsers{err: tc.err}).ServeHTTP(rec, req)
		assert.Equal(t, tc.code, rec.Code)
	}
}

func TestRequireStaff(t *testing.T) {
	h := RequireStaff(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), &models.User{ID: 1})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), &models.User{ID: 2, IsStaff: true})))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
