package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	custody "tranche-vault/internal/custody/domain"
	custodymem "tranche-vault/internal/custody/infrastructure/memory"
	eligibility "tranche-vault/internal/eligibility/domain"
	fees "tranche-vault/internal/fees/domain"
	"tranche-vault/internal/vault/application"
	vaultmem "tranche-vault/internal/vault/infrastructure/memory"
)

const testClass = "private-credit"

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testNav struct {
	mu    sync.Mutex
	value math.Uint
}

func (n *testNav) Nav(string) (math.Uint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value, nil
}

func (n *testNav) Add(amount uint64) {
	n.mu.Lock()
	n.value = n.value.AddUint64(amount)
	n.mu.Unlock()
}

type fixture struct {
	router *mux.Router
	clock  *testClock
	nav    *testNav
	ledger *custodymem.Ledger
	audit  *audit.MemoryLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		router: mux.NewRouter(),
		clock:  &testClock{now: t0},
		nav:    &testNav{value: math.ZeroUint()},
		ledger: custodymem.NewLedger(),
		audit:  &audit.MemoryLog{},
	}
	f.ledger.Credit("alice", math.NewUint(10_000))

	account, err := custody.NewVaultAccount(f.ledger, "vault:"+testClass)
	require.NoError(t, err)
	schedule, err := fees.NewSchedule(fees.Params{
		Rates:      fees.Rates{ManagementBps: 200, PerformanceBps: 2000, PenaltyBps: 500},
		Recipients: fees.Recipients{Management: "mgmt", Performance: "perf", Penalty: "penalty"},
	}, nil)
	require.NoError(t, err)
	engine, err := application.NewEngine(context.Background(), testClass, 30*24*time.Hour, application.Dependencies{
		Repository:  vaultmem.NewRepository(),
		Custody:     account,
		Eligibility: eligibility.AllowAll{},
		Nav:         f.nav,
		Fees:        schedule,
		Clock:       f.clock,
	})
	require.NoError(t, err)

	handler, err := NewHandler([]*application.Engine{engine}, f.audit, nil, WithNow(f.clock.Now))
	require.NoError(t, err)
	handler.Register(f.router)
	return f
}

func (f *fixture) do(t *testing.T, role auth.Role, subject, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req = req.WithContext(auth.WithIdentity(req.Context(), role, subject))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHandler_DepositAndPosition(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/deposit", map[string]string{"assets": "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var deposit struct {
		Shares string `json:"shares"`
	}
	decode(t, rec, &deposit)
	require.Equal(t, "1000", deposit.Shares)
	f.nav.Add(1000)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/positions/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var position struct {
		Balance  string `json:"balance"`
		Unlocked string `json:"unlocked"`
	}
	decode(t, rec, &position)
	require.Equal(t, "1000", position.Balance)
	require.Equal(t, "0", position.Unlocked)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "vault.deposit", entries[0].Action)
	require.Equal(t, "success", entries[0].Result)
	require.Equal(t, testClass, entries[0].AssetClass)
}

func TestHandler_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/deposit", map[string]string{"assets": "1000"})
	f.nav.Add(1000)

	rec := f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/real-estate", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/deposit", map[string]string{"assets": "ten"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/redeem", map[string]string{"shares": "1000"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Kind string `json:"kind"`
		Code string `json:"code"`
	}
	decode(t, rec, &body)
	require.Equal(t, "insufficient", body.Kind)
	require.Equal(t, "vault/5", body.Code)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/collect-fees", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/requests/9/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_EarlyExitLifecycle(t *testing.T) {
	f := newFixture(t)
	f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/deposit", map[string]string{"assets": "1000"})
	f.nav.Add(1000)

	rec := f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/early-exit", map[string]string{"shares": "500"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var request struct {
		ID      uint64 `json:"id"`
		Penalty string `json:"penalty"`
		Status  string `json:"status"`
	}
	decode(t, rec, &request)
	require.Equal(t, uint64(1), request.ID)
	require.Equal(t, "25", request.Penalty)
	require.Equal(t, "open", request.Status)

	rec = f.do(t, auth.RoleOperator, "keeper", http.MethodPost, "/api/v1/vaults/private-credit/requests/1/process", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/requests?due=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"due":[]}`, rec.Body.String())

	f.clock.Advance(24 * time.Hour)
	rec = f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/requests?due=true", nil)
	require.JSONEq(t, `{"due":[1]}`, rec.Body.String())

	rec = f.do(t, auth.RoleOperator, "keeper", http.MethodPost, "/api/v1/vaults/private-credit/process-batch", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch struct {
		Processed []struct {
			RequestID uint64 `json:"request_id"`
			Net       string `json:"net"`
		} `json:"processed"`
		Skipped []struct{} `json:"skipped"`
	}
	decode(t, rec, &batch)
	require.Len(t, batch.Processed, 1)
	require.Equal(t, "475", batch.Processed[0].Net)
	require.Empty(t, batch.Skipped)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/requests/1", nil)
	decode(t, rec, &request)
	require.Equal(t, "processed", request.Status)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/requests/1/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Preview(t *testing.T) {
	f := newFixture(t)
	f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/deposit", map[string]string{"assets": "1000"})
	f.nav.Add(1000)
	f.nav.Add(1000)

	rec := f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/preview?shares=100", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"assets":"200","shares":"100"}`, rec.Body.String())

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/preview", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Statements(t *testing.T) {
	f := newFixture(t)
	f.do(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/private-credit/deposit", map[string]string{"assets": "1000"})
	f.nav.Add(1000)

	rec := f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/statements/alice.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = f.do(t, auth.RoleHolder, "bob", http.MethodGet, "/api/v1/vaults/private-credit/statements/alice.pdf", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, auth.RoleOperator, "keeper", http.MethodGet, "/api/v1/vaults/private-credit/statements/alice.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults/private-credit/statements/alice.csv", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListVaults(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, auth.RoleHolder, "alice", http.MethodGet, "/api/v1/vaults", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []struct {
		AssetClass string `json:"asset_class"`
		Supply     string `json:"supply"`
	}
	decode(t, rec, &summaries)
	require.Len(t, summaries, 1)
	require.Equal(t, testClass, summaries[0].AssetClass)
	require.Equal(t, "0", summaries[0].Supply)
}
