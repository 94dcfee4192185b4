/*
 * @module api/middleware/auth
 * @description Bearer token authentication and permission checks
 * @architecture Middleware pattern - HTTP request interception
 * @stateFlow extract token -> cache lookup -> TokenVerifier -> principal in context -> RequirePermission
 * @rules 401 for a missing or rejected token, 403 for a missing permission; both before the handler runs
 * @dependencies github.com/go-chi/render, service/cache
 * @refs api/routes.go
 */

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"backoffice-service/service/cache"
	"backoffice-service/service/utils"

	"github.com/go-chi/render"
)

// Permissions
const (
	PermSyncTrigger    = "sync:trigger"
	PermSyncRead       = "sync:read"
	PermAlertsGenerate = "alerts:generate"
	PermAlertsRead     = "alerts:read"
	PermProvidersRead  = "providers:read"
	PermProvidersMerge = "providers:merge"
)

// AllPermissions every permission checked by the API
var AllPermissions = []string{
	PermSyncTrigger, PermSyncRead,
	PermAlertsGenerate, PermAlertsRead,
	PermProvidersRead, PermProvidersMerge,
}

// ContextKey context key type
type ContextKey string

const (
	// TokenKey bearer token in the request context
	TokenKey ContextKey = "token"
	// PrincipalKey verified principal in the request context
	PrincipalKey ContextKey = "principal"
)

// ErrInvalidToken the verifier rejected the token
var ErrInvalidToken = errors.New("invalid token")

// AuthorizationError rejected request
type AuthorizationError struct {
	Status int
	Reason string
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

// Principal the caller behind a verified token
type Principal struct {
	Username    string     `json:"username"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Has reports whether p holds permission; "*" grants everything
func (p *Principal) Has(permission string) bool {
	for _, granted := range p.Permissions {
		if granted == permission || granted == "*" {
			return true
		}
	}
	return false
}

// TokenVerifier resolves a bearer token to its principal; ErrInvalidToken when rejected
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// TokenVerificationResponse PostgREST rpc/verify_token response
type TokenVerificationResponse struct {
	Success     bool       `json:"success"`
	Valid       bool       `json:"valid"`
	Message     string     `json:"message"`
	Username    string     `json:"username"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// PostgRESTVerifier verifies tokens through PostgREST rpc/verify_token
type PostgRESTVerifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewPostgRESTVerifier creates a verifier against baseURL
func NewPostgRESTVerifier(baseURL string, timeout time.Duration) *PostgRESTVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgRESTVerifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Verify calls rpc/verify_token
func (v *PostgRESTVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	reqBody, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/rpc/verify_token", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Accept-Profile", "postgrest")
	req.Header.Set("Content-Profile", "postgrest")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify token: status %d: %s", resp.StatusCode, string(respBody))
	}

	var verifyResp TokenVerificationResponse
	if err := json.Unmarshal(respBody, &verifyResp); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if !verifyResp.Success || !verifyResp.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, verifyResp.Message)
	}

	return &Principal{
		Username:    verifyResp.Username,
		Permissions: verifyResp.Permissions,
		ExpiresAt:   verifyResp.ExpiresAt,
	}, nil
}

// StaticVerifier fixed token table
type StaticVerifier struct {
	tokens map[string]Principal
}

// NewStaticVerifier creates a verifier over tokens
func NewStaticVerifier(tokens map[string]Principal) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// Verify looks token up
func (v *StaticVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	p, ok := v.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &p, nil
}

// Authenticator authentication middleware with a verification cache
type Authenticator struct {
	verifier       TokenVerifier
	cache          *cache.TTLCache[string, *Principal]
	clock          utils.Clock
	whitelistPaths []string
}

// NewAuthenticator verified principals are cached for ttl, or until their token expires
func NewAuthenticator(verifier TokenVerifier, ttl time.Duration, clock utils.Clock) *Authenticator {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Authenticator{
		verifier: verifier,
		cache:    cache.NewTTLCache[string, *Principal](ttl, clock),
		clock:    clock,
		whitelistPaths: []string{
			"/health",
			"/ready",
			"/metrics",
		},
	}
}

// AddWhitelistPath path prefix served without authentication
func (a *Authenticator) AddWhitelistPath(path string) {
	a.whitelistPaths = append(a.whitelistPaths, path)
}

// IsWhitelistPath checks path against the whitelist prefixes
func (a *Authenticator) IsWhitelistPath(path string) bool {
	for _, prefix := range a.whitelistPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Invalidate drops the cached verification of token
func (a *Authenticator) Invalidate(token string) {
	a.cache.Invalidate(token)
}

// Purge drops every cached verification
func (a *Authenticator) Purge() {
	a.cache.Purge()
}

// Middleware authenticates every non-whitelisted request
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.IsWhitelistPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			respondAuthError(w, r, err)
			return
		}

		principal, err := a.authenticate(r.Context(), token)
		if err != nil {
			respondAuthError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), TokenKey, token)
		ctx = context.WithValue(ctx, PrincipalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(ctx context.Context, token string) (*Principal, error) {
	if principal, ok := a.cache.Get(token); ok {
		if principal.ExpiresAt == nil || a.clock.Now().Before(*principal.ExpiresAt) {
			return principal, nil
		}
		a.cache.Invalidate(token)
	}

	principal, err := a.verifier.Verify(ctx, token)
	if errors.Is(err, ErrInvalidToken) {
		return nil, &AuthorizationError{Status: http.StatusUnauthorized, Reason: err.Error()}
	}
	if err != nil {
		return nil, err
	}
	if principal.ExpiresAt != nil && !a.clock.Now().Before(*principal.ExpiresAt) {
		return nil, &AuthorizationError{Status: http.StatusUnauthorized, Reason: "token expired"}
	}

	a.cache.Set(token, principal)
	return principal, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", &AuthorizationError{Status: http.StatusUnauthorized, Reason: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", &AuthorizationError{Status: http.StatusUnauthorized, Reason: "Authorization header must be a Bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", &AuthorizationError{Status: http.StatusUnauthorized, Reason: "empty bearer token"}
	}
	return token, nil
}

// PrincipalFromContext principal set by the authentication middleware
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(PrincipalKey).(*Principal)
	return principal, ok
}

// RequirePermission rejects requests whose principal lacks permission
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				respondAuthError(w, r, &AuthorizationError{Status: http.StatusUnauthorized, Reason: "not authenticated"})
				return
			}
			if !principal.Has(permission) {
				respondAuthError(w, r, &AuthorizationError{Status: http.StatusForbidden, Reason: fmt.Sprintf("missing permission %s", permission)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "token verification failed"
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		status = authErr.Status
		message = authErr.Reason
	} else {
		slog.Error("token verification failed", "path", r.URL.Path, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, map[string]interface{}{
		"status": status,
		"msg":    message,
	})
}
