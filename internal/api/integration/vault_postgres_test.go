package integration_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	apihttp "tranche-vault/internal/api/http"
	custody "tranche-vault/internal/custody/domain"
	custodypg "tranche-vault/internal/custody/infrastructure/postgres"
	eligibilitypg "tranche-vault/internal/eligibility/infrastructure/postgres"
	eligibilityhttp "tranche-vault/internal/eligibility/interfaces/http"
	fees "tranche-vault/internal/fees/domain"
	feesrepo "tranche-vault/internal/fees/infrastructure/postgres"
	nav "tranche-vault/internal/nav/domain"
	navrepo "tranche-vault/internal/nav/infrastructure/postgres"
	navhttp "tranche-vault/internal/nav/interfaces/http"
	"tranche-vault/internal/vault/application"
	vaultrepo "tranche-vault/internal/vault/infrastructure/postgres"
	vaulthttp "tranche-vault/internal/vault/interfaces/http"
)

const (
	testClass   = "itest-credit"
	vaultAcct   = "vault:itest-credit"
	penaltyAcct = "itest-penalty"
)

var secret = []byte("integration-secret")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, applyMigrations(db))

	ctx := context.Background()
	for _, table := range []string{"vault_state", "vault_balances", "vault_tranches", "redemption_requests", "nav_records", "fee_params", "eligibility_allowlist"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE asset_class = $1", testClass)
		require.NoError(t, err)
	}
	_, err = db.ExecContext(ctx, "DELETE FROM custody_balances WHERE account = ANY($1)", []string{"alice", vaultAcct, penaltyAcct})
	require.NoError(t, err)
	return db
}

func applyMigrations(db *sql.DB) error {
	files, err := filepath.Glob(filepath.Join(projectRoot(), "migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}

type stack struct {
	server *httptest.Server
	engine *application.Engine
	ledger *custodypg.Ledger
}

func newStack(t *testing.T, db *sql.DB, now *clock) *stack {
	t.Helper()
	ctx := context.Background()

	oracle := nav.NewOracle(navrepo.NewNavRepository(db), nav.WithClock(now))
	require.NoError(t, oracle.Restore(ctx))
	schedule, err := fees.NewSchedule(fees.Params{
		Rates:      fees.Rates{ManagementBps: 0, PerformanceBps: 0, PenaltyBps: 500},
		Recipients: fees.Recipients{Management: "itest-mgmt", Performance: "itest-perf", Penalty: penaltyAcct},
	}, feesrepo.NewFeeRepository(db))
	require.NoError(t, err)
	require.NoError(t, schedule.Restore(ctx))

	ledger := custodypg.NewLedger(db)
	account, err := custody.NewVaultAccount(ledger, vaultAcct)
	require.NoError(t, err)
	engine, err := application.NewEngine(ctx, testClass, 30*24*time.Hour, application.Dependencies{
		Repository:  vaultrepo.NewVaultRepository(db),
		Custody:     account,
		Eligibility: eligibilitypg.NewAllowList(db),
		Nav:         oracle,
		Fees:        schedule,
		Clock:       now,
	})
	require.NoError(t, err)

	auditLog := &audit.MemoryLog{}
	router := mux.NewRouter()
	vaultHandler, err := vaulthttp.NewHandler([]*application.Engine{engine}, auditLog, nil, vaulthttp.WithNow(now.Now))
	require.NoError(t, err)
	vaultHandler.Register(router)
	navHandler, err := navhttp.NewHandler(oracle, apihttp.NewAuditor(auditLog, nil))
	require.NoError(t, err)
	navHandler.Register(router)
	eligibilityHandler, err := eligibilityhttp.NewHandler(eligibilitypg.NewAllowList(db), apihttp.NewAuditor(auditLog, nil))
	require.NoError(t, err)
	eligibilityHandler.Register(router)

	mw := auth.NewMiddleware(secret, auth.NewDefaultPolicy(nil, nil))
	server := httptest.NewServer(mw.Wrap(router))
	t.Cleanup(server.Close)
	return &stack{server: server, engine: engine, ledger: ledger}
}

func (s *stack) call(t *testing.T, role auth.Role, subject, method, path string, body any) (int, []byte) {
	t.Helper()
	token, err := auth.SignToken(secret, subject, role, time.Hour)
	require.NoError(t, err)
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out.Bytes()
}

func TestVaultLifecycle_Postgres(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := &clock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	s := newStack(t, db, now)
	require.NoError(t, s.ledger.Credit(ctx, "alice", math.NewUint(10_000)))

	status, body := s.call(t, auth.RoleAdmin, "admin", http.MethodPost, "/api/v1/nav", map[string]any{
		"asset_class":          testClass,
		"change_threshold_bps": 1000,
		"staleness_seconds":    86400,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.call(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/"+testClass+"/deposit", map[string]string{"assets": "1000"})
	require.Equal(t, http.StatusForbidden, status, string(body))

	status, body = s.call(t, auth.RoleAdmin, "admin", http.MethodPut, "/api/v1/eligibility/"+testClass+"/alice", nil)
	require.Equal(t, http.StatusNoContent, status, string(body))

	status, body = s.call(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/"+testClass+"/deposit", map[string]string{"assets": "1000"})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = s.call(t, auth.RoleAdmin, "admin", http.MethodPut, "/api/v1/nav/"+testClass, map[string]string{"nav": "1000"})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = s.call(t, auth.RoleHolder, "alice", http.MethodPost, "/api/v1/vaults/"+testClass+"/early-exit", map[string]string{"shares": "500"})
	require.Equal(t, http.StatusAccepted, status, string(body))

	now.Advance(24 * time.Hour)
	status, body = s.call(t, auth.RoleOperator, "keeper", http.MethodPost, "/api/v1/vaults/"+testClass+"/process-batch", map[string]any{})
	require.Equal(t, http.StatusOK, status, string(body))
	var batch struct {
		Processed []struct {
			Net     string `json:"net"`
			Penalty string `json:"penalty"`
		} `json:"processed"`
	}
	require.NoError(t, json.Unmarshal(body, &batch))
	require.Len(t, batch.Processed, 1)
	require.Equal(t, "475", batch.Processed[0].Net)
	require.Equal(t, "25", batch.Processed[0].Penalty)

	alice, err := s.ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "9475", alice.String())
	penalty, err := s.ledger.Balance(ctx, penaltyAcct)
	require.NoError(t, err)
	require.Equal(t, "25", penalty.String())

	restarted := newStack(t, db, now)
	summary, err := restarted.engine.Summary()
	require.NoError(t, err)
	require.Equal(t, "500", summary.Supply.String())
	require.Equal(t, "1000", summary.TotalAssets.String())
	request, ok := restarted.engine.Request(1)
	require.True(t, ok)
	require.True(t, request.IsProcessed)
	require.Empty(t, restarted.engine.ListDue())
}
