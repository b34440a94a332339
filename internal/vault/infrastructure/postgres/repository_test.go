package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"cosmossdk.io/math"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	vault "tranche-vault/internal/vault/domain"
)

func TestVaultRepositoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	const class = "test-private-credit"
	for _, table := range []string{"vault_state", "vault_balances", "vault_tranches", "redemption_requests"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE asset_class = $1", class)
		require.NoError(t, err)
	}

	repo := NewVaultRepository(db)
	missing, err := repo.Load(ctx, class)
	require.NoError(t, err)
	require.Nil(t, missing)

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v, err := vault.NewVault(class, 30*24*time.Hour)
	require.NoError(t, err)
	_, err = v.Mint("alice", math.NewUint(1000), t0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, v))
	v.MarkPersisted()

	_, err = v.RequestEarlyExit("alice", "alice", math.NewUint(500), math.NewUint(500), math.NewUint(25), t0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, v))
	v.MarkPersisted()

	loaded, err := repo.Load(ctx, class)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "500", loaded.Supply().String())
	require.Equal(t, "500", loaded.BalanceOf("alice").String())
	require.Equal(t, 30*24*time.Hour, loaded.LockDuration())

	request, ok := loaded.Request(1)
	require.True(t, ok)
	require.Equal(t, "25", request.Penalty.String())
	require.True(t, request.SettlementDate.Equal(t0.Add(vault.SettlementDelay)))
	require.Len(t, request.Pieces, 1)
	require.Equal(t, "500", request.Pieces[0].Shares.String())
	require.True(t, request.Pieces[0].UnlockAt.Equal(t0.Add(30*24*time.Hour)))
	require.Equal(t, []uint64{1}, loaded.ListDue(t0.Add(vault.SettlementDelay)))
}
