package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	apihttp "tranche-vault/internal/api/http"
	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	eligibilitymem "tranche-vault/internal/eligibility/infrastructure/memory"
)

func TestEligibilityHandler(t *testing.T) {
	store, err := eligibilitymem.NewAllowList()
	require.NoError(t, err)
	log := &audit.MemoryLog{}
	handler, err := NewHandler(store, apihttp.NewAuditor(log, nil))
	require.NoError(t, err)
	router := mux.NewRouter()
	handler.Register(router)

	call := func(role auth.Role, method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), role, "desk"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call(auth.RoleAdmin, http.MethodPut, "/api/v1/eligibility/private-credit/alice")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(auth.RoleOperator, http.MethodGet, "/api/v1/eligibility/private-credit/alice")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"asset_class":"private-credit","address":"alice","eligible":true}`, rec.Body.String())

	rec = call(auth.RoleOperator, http.MethodGet, "/api/v1/eligibility/private-credit")
	require.JSONEq(t, `{"asset_class":"private-credit","addresses":["alice"]}`, rec.Body.String())

	rec = call(auth.RoleOperator, http.MethodDelete, "/api/v1/eligibility/private-credit/alice")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(auth.RoleAdmin, http.MethodDelete, "/api/v1/eligibility/private-credit/alice")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(auth.RoleOperator, http.MethodGet, "/api/v1/eligibility/private-credit/alice")
	require.JSONEq(t, `{"asset_class":"private-credit","address":"alice","eligible":false}`, rec.Body.String())

	entries := log.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "rejected", entries[1].Result)
}
