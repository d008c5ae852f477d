package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
)

var testSecret = []byte("test-secret")

func TestIssueAndParseUser(t *testing.T) {
	token, err := IssueToken(models.User{ID: "user-1", Email: "ana@example.com", Name: "Ana"}, testSecret, time.Hour)
	require.NoError(t, err)

	user, err := ParseUser(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.Name)
}

func TestParseUser_Rejects(t *testing.T) {
	expired, err := IssueToken(models.User{ID: "user-1"}, testSecret, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken(models.User{ID: "user-1"}, []byte("other"), time.Hour)
	require.NoError(t, err)
	noSubject, err := IssueToken(models.User{}, testSecret, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"alg none":   none,
		"garbage":    "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUser(token, testSecret)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Token abc")
	_, err = ExtractTokenFromRequest(r)
	assert.ErrorIs(t, err, ErrTokenFormat)

	r.Header.Set("Authorization", "bearer abc")
	token, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestMiddleware(t *testing.T) {
	var seen models.User
	handler := Middleware(testSecret, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := IssueToken(models.User{ID: "user-1"}, testSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-1", seen.ID)
}
