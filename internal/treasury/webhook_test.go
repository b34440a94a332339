package treasury

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"tranche-vault/internal/vault/application"
)

func TestWebhookSinkPostsDeployment(t *testing.T) {
	var got webhookPayload
	var auth, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		key = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewWebhookSink("treasury", server.URL, WithBearerToken("secret"))
	deployment := application.Deployment{
		ID:         "dep-1",
		AssetClass: "credit",
		Account:    "treasury",
		Amount:     math.NewUint(1200),
		At:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Receive(context.Background(), deployment))
	require.Equal(t, "Bearer secret", auth)
	require.Equal(t, "dep-1", key)
	require.Equal(t, "treasury.deployment", got.Type)
	require.Equal(t, "1200", got.Deployment.Amount.String())
	require.Equal(t, "treasury", sink.Account())
}

func TestWebhookSinkRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	sink := NewWebhookSink("treasury", server.URL)
	err := sink.Receive(context.Background(), application.Deployment{ID: "dep-2", Amount: math.NewUint(1)})
	require.Error(t, err)

	require.Error(t, NewWebhookSink("treasury", "").Receive(context.Background(), application.Deployment{}))
}
