package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tranche-vault/internal/access"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	policy := NewDefaultPolicy(nil, nil)
	mw := NewMiddleware(secret, policy)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vaults/credit", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_HolderForbiddenProcessBatch(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "alice", "holder")
	policy := NewDefaultPolicy(nil, nil)
	mw := NewMiddleware(secret, policy)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vaults/credit/process-batch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_HolderMayRequestEarlyExit(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "alice", "holder")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	var caller access.Caller
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vaults/credit/early-exit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if caller.Address != "alice" {
		t.Fatalf("expected caller alice, got %q", caller.Address)
	}
	if caller.Has(access.CapVaultOperator) {
		t.Fatalf("holder must not carry operator capability")
	}
}

func TestAuthMiddleware_OperatorCarriesCapabilities(t *testing.T) {
	secret := []byte("test-secret")
	token, err := SignToken(secret, "keeper", RoleOperator, time.Hour, access.CapFeesAdmin)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil))
	var caller access.Caller
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vaults/credit/requests/4/process", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !caller.Has(access.CapVaultOperator) || !caller.Has(access.CapFeesAdmin) {
		t.Fatalf("expected operator and fee admin capabilities, got %v", caller.Capabilities())
	}
	if caller.Has(access.CapNavAdmin) {
		t.Fatalf("operator must not carry nav admin")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected exempt 200, got %d", resp.Code)
	}
}

func TestPolicy_NavRoutes(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)
	cases := []struct {
		method string
		path   string
		want   Role
	}{
		{http.MethodGet, "/api/v1/nav", RoleHolder},
		{http.MethodPost, "/api/v1/nav", RoleAdmin},
		{http.MethodPut, "/api/v1/nav/credit", RoleHolder},
		{http.MethodPut, "/api/v1/nav/credit/thresholds", RoleAdmin},
		{http.MethodPut, "/api/v1/fees/credit", RoleAdmin},
	}
	for _, tc := range cases {
		got, ok := policy.RequiredRole(httptest.NewRequest(tc.method, tc.path, nil))
		if !ok || got != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.method, tc.path, tc.want, got)
		}
	}
}

func mustToken(t *testing.T, secret []byte, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
