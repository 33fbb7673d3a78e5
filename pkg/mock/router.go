// Package mock implements the offline execution mode: a router that answers
// the live endpoint contract from local deterministic fixtures.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Ghostified/autoexpress-dashboard/pkg/auth"
	"github.com/Ghostified/autoexpress-dashboard/pkg/client"
	"github.com/Ghostified/autoexpress-dashboard/pkg/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// DefaultLatency is the simulated per-route delay. It preserves the
// asynchronous contract callers expect from the live transport.
const DefaultLatency = 200 * time.Millisecond

// handlerFunc answers one mock route.
type handlerFunc func(ctx context.Context, vars map[string]string, payload any) (*client.ResponseEnvelope, error)

// routeHandler adapts handlerFunc to http.Handler so gorilla/mux can carry
// it through route matching. ServeHTTP is never invoked.
type routeHandler struct {
	fn handlerFunc
}

func (routeHandler) ServeHTTP(http.ResponseWriter, *http.Request) {}

// Config holds the mock router configuration.
type Config struct {
	// Store persists the user-preference object (REQUIRED).
	Store storage.Store

	// Tokens is updated by the login/logout/refresh routes (REQUIRED).
	Tokens *auth.TokenStore

	// Latency is the simulated per-route delay. Defaults to DefaultLatency.
	Latency time.Duration
}

// Router answers the dashboard endpoint contract deterministically, without
// a live network. Routes are matched purely on method and path; query
// strings are ignored. Unmatched routes return an empty JSON object so
// callers built against the live contract degrade gracefully.
type Router struct {
	mux     *mux.Router
	store   storage.Store
	tokens  *auth.TokenStore
	latency time.Duration
	logger  zerolog.Logger
}

// NewRouter creates a mock router over the built-in fixture set.
func NewRouter(cfg Config, logger zerolog.Logger) (*Router, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}

	latency := cfg.Latency
	if latency <= 0 {
		latency = DefaultLatency
	}

	r := &Router{
		mux:     mux.NewRouter(),
		store:   cfg.Store,
		tokens:  cfg.Tokens,
		latency: latency,
		logger:  logger.With().Str("component", "mock-router").Logger(),
	}
	r.registerRoutes()

	return r, nil
}

func (r *Router) registerRoutes() {
	r.handle(http.MethodGet, client.PathOpportunities, r.listOpportunities)
	r.handle(http.MethodGet, client.PathSalesOrders, r.listSalesOrders)
	r.handle(http.MethodGet, client.PathDashboard, r.dashboardSummary)
	r.handle(http.MethodGet, client.PathHelpdeskTickets, r.listTickets)
	r.handle(http.MethodGet, client.PathUserPreferences, r.getPreferences)
	r.handle(http.MethodPut, client.PathUserPreferences, r.putPreferences)
	r.handle(http.MethodPost, client.PathPDFGenerate, r.generatePDF)
	r.handle(http.MethodGet, client.PathPDFDownload+"/{id}", r.downloadPDF)
	r.handle(http.MethodPost, client.PathEmailSend, r.sendEmail)
	r.handle(http.MethodPost, client.PathLogin, r.login)
	r.handle(http.MethodPost, client.PathLogout, r.logout)
	r.handle(http.MethodPost, client.PathRefresh, r.refresh)
	r.handle(http.MethodGet, client.PathHealth, r.health)
}

func (r *Router) handle(method, path string, fn handlerFunc) {
	r.mux.Handle(path, routeHandler{fn: fn}).Methods(method)
}

// Route answers one request. Every route simulates a fixed small latency.
func (r *Router) Route(ctx context.Context, method, path string, payload any) (*client.ResponseEnvelope, error) {
	if err := r.simulateLatency(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, "mock://fixtures"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build match request: %w", err)
	}

	var match mux.RouteMatch
	if !r.mux.Match(req, &match) || match.Handler == nil {
		r.logger.Debug().
			Str("method", method).
			Str("path", req.URL.Path).
			Msg("No mock route matched, returning empty object")
		return client.JSONEnvelope([]byte("{}")), nil
	}

	handler, ok := match.Handler.(routeHandler)
	if !ok {
		return client.JSONEnvelope([]byte("{}")), nil
	}

	r.logger.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Msg("Mock route matched")

	return handler.fn(ctx, match.Vars, payload)
}

// simulateLatency waits the configured delay, honoring ctx cancellation.
func (r *Router) simulateLatency(ctx context.Context) error {
	timer := time.NewTimer(r.latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Router) listOpportunities(context.Context, map[string]string, any) (*client.ResponseEnvelope, error) {
	return jsonEnvelope(client.OpportunityList{
		Items:   opportunityFixtures,
		Summary: summarizeOpportunities(opportunityFixtures),
	})
}

func (r *Router) listSalesOrders(context.Context, map[string]string, any) (*client.ResponseEnvelope, error) {
	return jsonEnvelope(client.SalesOrderList{Items: salesOrderFixtures})
}

// dashboardSummary combines the opportunity and sales-order fixtures.
func (r *Router) dashboardSummary(context.Context, map[string]string, any) (*client.ResponseEnvelope, error) {
	var ordersTotal float64
	for _, order := range salesOrderFixtures {
		ordersTotal += order.Total
	}

	openTickets := 0
	for _, ticket := range ticketFixtures {
		if ticket.Status == "open" {
			openTickets++
		}
	}

	return jsonEnvelope(client.DashboardSummary{
		Pipeline:    summarizeOpportunities(opportunityFixtures),
		OrderCount:  len(salesOrderFixtures),
		OrdersTotal: ordersTotal,
		OpenTickets: openTickets,
	})
}

func (r *Router) listTickets(context.Context, map[string]string, any) (*client.ResponseEnvelope, error) {
	return jsonEnvelope(client.TicketList{Items: ticketFixtures})
}

func (r *Router) getPreferences(ctx context.Context, _ map[string]string, _ any) (*client.ResponseEnvelope, error) {
	value, err := r.store.Get(ctx, storage.KeyUserPreferences)
	if errors.Is(err, storage.ErrNotFound) {
		return jsonEnvelope(defaultPreferences)
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	return client.JSONEnvelope([]byte(value)), nil
}

func (r *Router) putPreferences(ctx context.Context, _ map[string]string, payload any) (*client.ResponseEnvelope, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	if err := r.store.Set(ctx, storage.KeyUserPreferences, string(encoded)); err != nil {
		return nil, fmt.Errorf("persist preferences: %w", err)
	}
	return client.JSONEnvelope(encoded), nil
}

func (r *Router) generatePDF(context.Context, map[string]string, any) (*client.ResponseEnvelope, error) {
	return jsonEnvelope(client.PDFReceipt{ID: "pdf-" + uuid.NewString()})
}

// downloadPDF returns a synthetic binary payload for the given identifier.
func (r *Router) downloadPDF(_ context.Context, vars map[string]string, _ any) (*client.ResponseEnvelope, error) {
	payload := []byte("%PDF-1.4\n% synthetic report " + vars["id"] + "\n%%EOF\n")
	return &client.ResponseEnvelope{
		Kind:   client.ContentBinary,
		Status: http.StatusOK,
		Binary: payload,
	}, nil
}

func (r *Router) sendEmail(context.Context, map[string]string, any) (*client.ResponseEnvelope, error) {
	return client.JSONEnvelope([]byte(`{"status":"queued"}`)), nil
}

// login mints a fresh synthetic token and stores it.
func (r *Router) login(ctx context.Context, _ map[string]string, _ any) (*client.ResponseEnvelope, error) {
	token := "mock-token-" + uuid.NewString()
	if err := r.tokens.Set(ctx, token); err != nil {
		return nil, fmt.Errorf("store mock token: %w", err)
	}
	return jsonEnvelope(client.TokenResponse{Token: token})
}

func (r *Router) logout(ctx context.Context, _ map[string]string, _ any) (*client.ResponseEnvelope, error) {
	if err := r.tokens.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear mock token: %w", err)
	}
	return client.JSONEnvelope([]byte("{}")), nil
}

func (r *Router) refresh(ctx context.Context, _ map[string]string, _ any) (*client.ResponseEnvelope, error) {
	token := "mock-token-" + uuid.NewString()
	if err := r.tokens.Set(ctx, token); err != nil {
		return nil, fmt.Errorf("store refreshed mock token: %w", err)
	}
	return jsonEnvelope(client.TokenResponse{Token: token})
}

func (r *Router) health(context.Context, map[string]string, any) (*client.ResponseEnvelope, error) {
	return client.JSONEnvelope([]byte(`{"status":"ok"}`)), nil
}

func jsonEnvelope(v any) (*client.ResponseEnvelope, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode fixture: %w", err)
	}
	return client.JSONEnvelope(encoded), nil
}

// compile-time check that Router satisfies the client contract.
var _ client.Router = (*Router)(nil)
