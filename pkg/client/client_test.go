package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Ghostified/autoexpress-dashboard/pkg/storage"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// sequenceBackend answers each request from a scripted sequence, repeating
// the final step once the script is exhausted.
type sequenceBackend struct {
	mu    sync.Mutex
	steps []func(w http.ResponseWriter, r *http.Request)
	calls int

	LastHeader http.Header
}

func (b *sequenceBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		step := b.calls
		if step >= len(b.steps) {
			step = len(b.steps) - 1
		}
		b.calls++
		b.LastHeader = r.Header.Clone()
		fn := b.steps[step]
		b.mu.Unlock()

		fn(w, r)
	}
}

func (b *sequenceBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func respondStatus(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != "" {
			w.Write([]byte(body))
		}
	}
}

func respondSlow(delay time.Duration, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

// newLiveClient builds a live-mode client against a test backend with an
// instrumented sleep that records delays instead of waiting.
func newLiveClient(t *testing.T, baseURL string, opts ...func(*Config)) (*Client, *[]time.Duration) {
	t.Helper()

	cfg := DefaultConfig(baseURL, "autoexpress", storage.NewMemoryStore())
	cfg.Mode = ModeLive
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	delays := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return c, delays
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("http://localhost:8080", "autoexpress", storage.NewMemoryStore()),
			expectError: false,
		},
		{
			name:        "nil storage",
			config:      Config{TenantID: "autoexpress"},
			expectError: true,
			errorMsg:    "storage is required",
		},
		{
			name:        "empty tenant",
			config:      Config{Store: storage.NewMemoryStore()},
			expectError: true,
			errorMsg:    "tenant id is required",
		},
		{
			name: "mock mode without router",
			config: Config{
				TenantID: "autoexpress",
				Store:    storage.NewMemoryStore(),
				Mode:     ModeMock,
			},
			expectError: true,
			errorMsg:    "mock mode requires a router",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(ctx, tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("Client is nil")
			}
		})
	}
}

func TestResolveMode(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit mode wins", func(t *testing.T) {
		store := storage.NewMemoryStore()
		store.Set(ctx, storage.KeyMockMode, "true")
		cfg := Config{Mode: ModeLive, Store: store, BaseURL: ""}
		if got := resolveMode(ctx, cfg); got != ModeLive {
			t.Errorf("resolveMode = %s, want live", got)
		}
	})

	t.Run("persisted flag selects mock", func(t *testing.T) {
		store := storage.NewMemoryStore()
		store.Set(ctx, storage.KeyMockMode, "true")
		cfg := Config{Store: store, BaseURL: "http://localhost:8080"}
		if got := resolveMode(ctx, cfg); got != ModeMock {
			t.Errorf("resolveMode = %s, want mock", got)
		}
	})

	t.Run("sentinel base url selects mock", func(t *testing.T) {
		cfg := Config{Store: storage.NewMemoryStore(), BaseURL: MockBaseURL}
		if got := resolveMode(ctx, cfg); got != ModeMock {
			t.Errorf("resolveMode = %s, want mock", got)
		}
	})

	t.Run("empty base url selects mock", func(t *testing.T) {
		cfg := Config{Store: storage.NewMemoryStore()}
		if got := resolveMode(ctx, cfg); got != ModeMock {
			t.Errorf("resolveMode = %s, want mock", got)
		}
	})

	t.Run("real base url selects live", func(t *testing.T) {
		cfg := Config{Store: storage.NewMemoryStore(), BaseURL: "http://localhost:8080"}
		if got := resolveMode(ctx, cfg); got != ModeLive {
			t.Errorf("resolveMode = %s, want live", got)
		}
	})
}

func TestRequest_DefaultHeaders(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(200, `{"ok":true}`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)
	if err := c.tokens.Set(context.Background(), "tok-xyz"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := c.Get(context.Background(), PathOpportunities); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	header := backend.LastHeader
	if got := header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
	if got := header.Get("X-Tenant-ID"); got != "autoexpress" {
		t.Errorf("X-Tenant-ID = %q", got)
	}
	if header.Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID missing")
	}
	if got := header.Get("Authorization"); got != "Bearer tok-xyz" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRequest_FreshCorrelationIDPerAttempt(t *testing.T) {
	var mu sync.Mutex
	var ids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Correlation-ID"))
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)
	_, err := c.Get(context.Background(), PathDashboard)
	if err == nil {
		t.Fatal("Expected terminal error")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 4 {
		t.Fatalf("Attempts = %d, want 4", len(ids))
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("Correlation id %q reused across attempts", id)
		}
		seen[id] = true
	}

	var rec *ErrorRecord
	if !errors.As(err, &rec) {
		t.Fatalf("Error is %T, want *ErrorRecord", err)
	}
	if rec.CorrelationID != ids[len(ids)-1] {
		t.Errorf("Terminal record carries %q, want last attempt id %q", rec.CorrelationID, ids[len(ids)-1])
	}
}

func TestRequest_TimeoutTwiceThenSuccess(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondSlow(time.Second, `{}`),
		respondSlow(time.Second, `{}`),
		respondStatus(200, `{"items":[],"summary":{"pipeline_total":0,"count":0,"average":0}}`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, delays := newLiveClient(t, server.URL, func(cfg *Config) {
		cfg.RequestTimeout = 50 * time.Millisecond
	})

	env, err := c.Get(context.Background(), PathOpportunities)
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if env.Kind != ContentJSON {
		t.Errorf("Kind = %s, want json", env.Kind)
	}

	if backend.Calls() != 3 {
		t.Errorf("Backend calls = %d, want 3", backend.Calls())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("Delay suspensions = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("Delay %d = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestRequest_ServerErrorExhaustsRetries(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(500, `{"message":"boom"}`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, delays := newLiveClient(t, server.URL)

	err := c.SendEmail(context.Background(), EmailRequest{
		To:      []string{"ops@example.com"},
		Subject: "weekly report",
	})
	if err == nil {
		t.Fatal("Expected terminal error")
	}

	var rec *ErrorRecord
	if !errors.As(err, &rec) {
		t.Fatalf("Error is %T, want *ErrorRecord", err)
	}
	if rec.Kind != KindServerError {
		t.Errorf("Kind = %s, want SERVER_ERROR", rec.Kind)
	}
	if rec.HTTPStatus != 500 {
		t.Errorf("HTTPStatus = %d, want 500", rec.HTTPStatus)
	}
	if rec.Message != "boom" {
		t.Errorf("Message = %q, want boom", rec.Message)
	}

	if backend.Calls() != 4 {
		t.Errorf("Total attempts = %d, want 4 (1 initial + 3 retries)", backend.Calls())
	}
	if len(*delays) != 3 {
		t.Errorf("Retries = %d, want 3", len(*delays))
	}
}

func TestRequest_NonRetryableKindsFailImmediately(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{401, KindAuthError},
		{403, KindForbidden},
		{404, KindNotFound},
		{409, KindHTTPError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
				respondStatus(tt.status, ""),
			}}
			server := httptest.NewServer(backend.handler())
			defer server.Close()

			c, delays := newLiveClient(t, server.URL)

			_, err := c.Get(context.Background(), PathSalesOrders)
			var rec *ErrorRecord
			if !errors.As(err, &rec) {
				t.Fatalf("Error is %T, want *ErrorRecord", err)
			}
			if rec.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", rec.Kind, tt.kind)
			}
			if backend.Calls() != 1 {
				t.Errorf("Attempts = %d, want 1 (zero retries)", backend.Calls())
			}
			if len(*delays) != 0 {
				t.Errorf("Delays = %v, want none", *delays)
			}
		})
	}
}

func TestRequest_AuthErrorClearsTokenAndNotifies(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(401, `{"message":"token expired"}`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)
	ctx := context.Background()
	if err := c.tokens.Set(ctx, "tok-stale"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	authRequired := 0
	c.OnAuthRequired(func() { authRequired++ })

	tokenEvents := 0
	c.Tokens().OnChange(func(hasToken bool) {
		if !hasToken {
			tokenEvents++
		}
	})

	_, err := c.Get(ctx, PathDashboard)
	var rec *ErrorRecord
	if !errors.As(err, &rec) || rec.Kind != KindAuthError {
		t.Fatalf("Expected AUTH_ERROR record, got %v", err)
	}

	if _, ok := c.Tokens().Get(); ok {
		t.Error("Token should be cleared after 401")
	}
	if authRequired != 1 {
		t.Errorf("auth-required callbacks = %d, want 1", authRequired)
	}
	if tokenEvents != 1 {
		t.Errorf("token-cleared notifications = %d, want 1", tokenEvents)
	}
}

func TestOnAuthRequired_AllObserversFire(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(401, `{"message":"token expired"}`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)

	var fired []int
	c.OnAuthRequired(func() { fired = append(fired, 1) })
	c.OnAuthRequired(func() { fired = append(fired, 2) })
	c.OnAuthRequired(func() { fired = append(fired, 3) })

	if _, err := c.Get(context.Background(), PathDashboard); err == nil {
		t.Fatal("Expected AUTH_ERROR")
	}

	want := []int{1, 2, 3}
	if len(fired) != len(want) {
		t.Fatalf("Observers fired = %v, want %v", fired, want)
	}
	for i, v := range want {
		if fired[i] != v {
			t.Errorf("Observer order = %v, want %v", fired, want)
			break
		}
	}
}

func TestRequest_ErrorBodyFallsBackToStatusText(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(404, `not json at all`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)

	_, err := c.Get(context.Background(), "/opportunities/opp-9999")
	var rec *ErrorRecord
	if !errors.As(err, &rec) {
		t.Fatalf("Error is %T, want *ErrorRecord", err)
	}
	if rec.Message != http.StatusText(404) {
		t.Errorf("Message = %q, want %q", rec.Message, http.StatusText(404))
	}
}

func TestRequest_ErrorBodyDetails(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(403, `{"message":"access denied","details":"missing scope"}`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)

	_, err := c.Get(context.Background(), PathHelpdeskTickets)
	var rec *ErrorRecord
	if !errors.As(err, &rec) {
		t.Fatalf("Error is %T, want *ErrorRecord", err)
	}
	if rec.Message != "access denied: missing scope" {
		t.Errorf("Message = %q", rec.Message)
	}
}

func TestRequest_ContentKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"a":1}`))
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("plain body"))
		case "/binary":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte{0x25, 0x50, 0x44, 0x46})
		}
	}))
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)
	ctx := context.Background()

	env, err := c.Get(ctx, "/json")
	if err != nil || env.Kind != ContentJSON {
		t.Errorf("JSON envelope = (%v, %v)", env, err)
	}

	env, err = c.Get(ctx, "/text")
	if err != nil || env.Kind != ContentText || env.Text != "plain body" {
		t.Errorf("Text envelope = (%v, %v)", env, err)
	}

	env, err = c.Get(ctx, "/binary")
	if err != nil || env.Kind != ContentBinary || len(env.Binary) != 4 {
		t.Errorf("Binary envelope = (%v, %v)", env, err)
	}
}

func TestRequest_InvalidJSONIsParseError(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(200, `{"broken":`),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, delays := newLiveClient(t, server.URL)

	_, err := c.Get(context.Background(), PathDashboard)
	var rec *ErrorRecord
	if !errors.As(err, &rec) {
		t.Fatalf("Error is %T, want *ErrorRecord", err)
	}
	if rec.Kind != KindParseError {
		t.Errorf("Kind = %s, want PARSE_ERROR", rec.Kind)
	}
	if len(*delays) != 0 {
		t.Errorf("PARSE_ERROR should not be retried, got delays %v", *delays)
	}
}

func TestRequest_NonRetryableDescriptorSkipsRetry(t *testing.T) {
	backend := &sequenceBackend{steps: []func(http.ResponseWriter, *http.Request){
		respondStatus(500, ""),
	}}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	c, delays := newLiveClient(t, server.URL)

	_, err := c.Request(context.Background(), RequestDescriptor{
		Endpoint: PathEmailSend,
		Method:   http.MethodPost,
	})
	if err == nil {
		t.Fatal("Expected terminal error")
	}
	if backend.Calls() != 1 {
		t.Errorf("Attempts = %d, want 1 for non-retryable descriptor", backend.Calls())
	}
	if len(*delays) != 0 {
		t.Errorf("Delays = %v, want none", *delays)
	}
}

func TestLogin_StoresTokenOnLiveMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathLogin {
			t.Errorf("Path = %s, want %s", r.URL.Path, PathLogin)
		}
		var creds Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Username != "amara" {
			t.Errorf("Username = %q", creds.Username)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-live-1"}`))
	}))
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)

	resp, err := c.Login(context.Background(), Credentials{Username: "amara", Password: "secret"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Token != "tok-live-1" {
		t.Errorf("Token = %q", resp.Token)
	}
	if value, ok := c.Tokens().Get(); !ok || value != "tok-live-1" {
		t.Errorf("Stored token = (%q, %v)", value, ok)
	}
}

func TestLogout_ClearsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)
	ctx := context.Background()
	if err := c.tokens.Set(ctx, "tok-live-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, ok := c.Tokens().Get(); ok {
		t.Error("Token should be cleared after logout")
	}
}

func TestListOpportunities_EncodesFilters(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[],"summary":{"pipeline_total":0,"count":0,"average":0}}`))
	}))
	defer server.Close()

	c, _ := newLiveClient(t, server.URL)

	_, err := c.ListOpportunities(context.Background(), OpportunityFilter{Stage: "proposal", Owner: "amara"})
	if err != nil {
		t.Fatalf("ListOpportunities failed: %v", err)
	}
	if gotQuery != "owner=amara&stage=proposal" {
		t.Errorf("Query = %q", gotQuery)
	}
}
