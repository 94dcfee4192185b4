package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVerifier struct {
	inner TokenVerifier
	calls int
}

func (v *countingVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	v.calls++
	return v.inner.Verify(ctx, token)
}

func newTestRouter(auth *Authenticator, permission string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		w.Header().Set("X-User", principal.Username)
		w.WriteHeader(http.StatusNoContent)
	})
	return auth.Middleware(RequirePermission(permission)(ok))
}

func serve(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthenticator_StatusCodes(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	verifier := NewStaticVerifier(map[string]Principal{
		"reader": {Username: "ana", Permissions: []string{PermSyncRead}},
		"admin":  {Username: "root", Permissions: []string{"*"}},
	})
	auth := NewAuthenticator(verifier, time.Minute, clock)
	h := newTestRouter(auth, PermSyncTrigger)

	assert.Equal(t, http.StatusUnauthorized, serve(h, "/sync/client", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "/sync/client", "nope").Code)

	w := serve(h, "/sync/client", "reader")
	assert.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(http.StatusForbidden), body["status"])
	assert.Contains(t, body["msg"], PermSyncTrigger)

	w = serve(h, "/sync/client", "admin")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "root", w.Header().Get("X-User"))

	health := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	assert.Equal(t, http.StatusOK, serve(health, "/health", "").Code, "whitelisted")
}

func TestAuthenticator_CachesVerification(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	expires := clock.Now().Add(90 * time.Second)
	verifier := &countingVerifier{inner: NewStaticVerifier(map[string]Principal{
		"t": {Username: "ana", Permissions: []string{PermSyncTrigger}},
		"e": {Username: "bia", Permissions: []string{PermSyncTrigger}, ExpiresAt: &expires},
	})}
	auth := NewAuthenticator(verifier, time.Minute, clock)
	h := newTestRouter(auth, PermSyncTrigger)

	serve(h, "/sync/client", "t")
	serve(h, "/sync/client", "t")
	assert.Equal(t, 1, verifier.calls)

	clock.Advance(time.Minute)
	serve(h, "/sync/client", "t")
	assert.Equal(t, 2, verifier.calls, "cache entry expired")

	auth.Invalidate("t")
	serve(h, "/sync/client", "t")
	assert.Equal(t, 3, verifier.calls)

	assert.Equal(t, http.StatusNoContent, serve(h, "/sync/client", "e").Code)
	clock.Advance(45 * time.Second)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "/sync/client", "e").Code, "token expired before the cache ttl")
}

func TestPostgRESTVerifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/verify_token", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req["token"] {
		case "good":
			json.NewEncoder(w).Encode(TokenVerificationResponse{Success: true, Valid: true, Username: "ana", Permissions: []string{PermAlertsRead}})
		case "bad":
			json.NewEncoder(w).Encode(TokenVerificationResponse{Success: true, Valid: false, Message: "expired"})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	verifier := NewPostgRESTVerifier(server.URL+"/", time.Second)

	principal, err := verifier.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "ana", principal.Username)
	assert.True(t, principal.Has(PermAlertsRead))
	assert.False(t, principal.Has(PermProvidersMerge))

	_, err = verifier.Verify(context.Background(), "bad")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = verifier.Verify(context.Background(), "boom")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidToken))

	h := newTestRouter(NewAuthenticator(verifier, time.Minute, nil), PermAlertsRead)
	assert.Equal(t, http.StatusInternalServerError, serve(h, "/alerts", "boom").Code)
}
