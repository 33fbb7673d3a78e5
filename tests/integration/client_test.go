package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Ghostified/autoexpress-dashboard/internal/testutil"
	"github.com/Ghostified/autoexpress-dashboard/pkg/auth"
	"github.com/Ghostified/autoexpress-dashboard/pkg/client"
	"github.com/Ghostified/autoexpress-dashboard/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newClient builds a live-mode client over a Redis store and mock backend
// with a fast retry policy so exhaustion tests stay quick.
func newClient(t *testing.T, redisClient *redis.Client, backend *testutil.MockBackend) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(backend.URL(), "autoexpress", storage.NewRedisStore(redisClient))
	cfg.Mode = client.ModeLive
	cfg.RequestTimeout = 250 * time.Millisecond
	cfg.Retry = client.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
	}

	c, err := client.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	return c
}

// TestFullRequestFlow exercises the complete path: request -> failure
// classification -> retry with backoff -> success, over Redis-backed state.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend()
	defer backend.Close()

	backend.SetSequence(client.PathOpportunities,
		testutil.MockResponse{StatusCode: 503, Body: `{"message":"warming up"}`},
		testutil.MockResponse{StatusCode: 500, Body: `{"message":"still warming up"}`},
		testutil.MockResponse{StatusCode: 200, Body: `{"items":[{"id":"opp-1","name":"n","stage":"s","owner":"o","amount":10,"close_date":"2026-09-01"}],"summary":{"pipeline_total":10,"count":1,"average":10}}`},
	)

	c := newClient(t, redisClient, backend)

	list, err := c.ListOpportunities(context.Background(), client.OpportunityFilter{})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if list.Summary.Count != 1 {
		t.Errorf("Summary count = %d, want 1", list.Summary.Count)
	}
	if backend.GetRequestCount() != 3 {
		t.Errorf("Backend requests = %d, want 3", backend.GetRequestCount())
	}
}

// TestTokenPersistsAcrossClients verifies the credential survives a process
// restart simulated by constructing a second client over the same Redis.
func TestTokenPersistsAcrossClients(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse(client.PathLogin, testutil.MockResponse{
		StatusCode: 200,
		Body:       `{"token":"tok-integration"}`,
	})

	first := newClient(t, redisClient, backend)
	if _, err := first.Login(context.Background(), client.Credentials{Username: "amara", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	second := newClient(t, redisClient, backend)
	value, ok := second.Tokens().Get()
	if !ok || value != "tok-integration" {
		t.Errorf("Rehydrated token = (%q, %v), want tok-integration", value, ok)
	}
}

// TestAuthErrorClearsPersistedToken verifies a 401 removes the credential
// from durable storage, not only from memory.
func TestAuthErrorClearsPersistedToken(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse(client.PathDashboard, testutil.MockResponse{
		StatusCode: 401,
		Body:       `{"message":"token expired"}`,
	})

	store := storage.NewRedisStore(redisClient)
	ctx := context.Background()

	tokens, err := auth.NewTokenStore(ctx, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenStore failed: %v", err)
	}
	if err := tokens.Set(ctx, "tok-stale"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cfg := client.DefaultConfig(backend.URL(), "autoexpress", store)
	cfg.Mode = client.ModeLive
	cfg.Tokens = tokens
	c, err := client.New(ctx, cfg)
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	if _, err := c.GetDashboardSummary(ctx); err == nil {
		t.Fatal("Expected AUTH_ERROR")
	}

	if _, err := store.Get(ctx, storage.KeyAuthToken); err != storage.ErrNotFound {
		t.Errorf("Persisted token lookup = %v, want ErrNotFound", err)
	}
}

// TestMockModeFlagPersistedInRedis verifies the persisted preference flag
// selects mock mode at construction.
func TestMockModeFlagPersistedInRedis(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := storage.NewRedisStore(redisClient)

	if err := client.EnableMockMode(ctx, store, true); err != nil {
		t.Fatalf("EnableMockMode failed: %v", err)
	}

	flag, err := store.Get(ctx, storage.KeyMockMode)
	if err != nil || flag != "true" {
		t.Errorf("Persisted flag = (%q, %v), want true", flag, err)
	}
}
