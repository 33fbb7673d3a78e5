// Command dashboard-proxy exposes the dashboard API client over HTTP for
// browser consumers, with /health and /metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/Ghostified/autoexpress-dashboard/pkg/auth"
	"github.com/Ghostified/autoexpress-dashboard/pkg/client"
	"github.com/Ghostified/autoexpress-dashboard/pkg/logging"
	"github.com/Ghostified/autoexpress-dashboard/pkg/mock"
	"github.com/Ghostified/autoexpress-dashboard/pkg/storage"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "false") == "true",
		Output: os.Stderr,
	})

	port := getEnv("PORT", "8080")
	baseURL := getEnv("API_BASE_URL", "")
	tenantID := getEnv("TENANT_ID", "autoexpress")
	redisURL := getEnv("REDIS_URL", "")

	ctx := context.Background()

	// Storage: Redis when configured, in-memory otherwise (mock/dev runs).
	var store storage.Store
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		store = storage.NewRedisStore(redisClient)
		logger.Info().Str("redis_url", redisURL).Msg("Connected to Redis")
	} else {
		store = storage.NewMemoryStore()
		logger.Warn().Msg("No REDIS_URL configured, using in-memory storage")
	}

	tokens, err := auth.NewTokenStore(ctx, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create token store")
	}

	router, err := mock.NewRouter(mock.Config{Store: store, Tokens: tokens}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create mock router")
	}

	cfg := client.DefaultConfig(baseURL, tenantID, store)
	cfg.Tokens = tokens
	cfg.Router = router
	if mode := getEnv("TRANSPORT_MODE", ""); mode != "" {
		cfg.Mode = client.TransportMode(mode)
	}

	apiClient, err := client.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	apiClient.OnAuthRequired(func() {
		logger.Warn().Msg("Authentication required, credential cleared")
	})

	srv := newServer(apiClient)

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("mode", string(apiClient.Mode())).
		Msg("Starting dashboard proxy")

	if err := http.ListenAndServe(addr, srv); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// newServer builds the HTTP routing over the API client.
func newServer(apiClient *client.Client) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/opportunities", opportunitiesHandler(apiClient)).Methods(http.MethodGet)
	api.HandleFunc("/sales-orders", salesOrdersHandler(apiClient)).Methods(http.MethodGet)
	api.HandleFunc("/helpdesk-tickets", ticketsHandler(apiClient)).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/summary", dashboardHandler(apiClient)).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func opportunitiesHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		list, err := apiClient.ListOpportunities(r.Context(), client.OpportunityFilter{
			Stage: query.Get("stage"),
			Owner: query.Get("owner"),
		})
		respond(w, list, err)
	}
}

func salesOrdersHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		list, err := apiClient.ListSalesOrders(r.Context(), client.OrderFilter{
			Status:   query.Get("status"),
			Customer: query.Get("customer"),
		})
		respond(w, list, err)
	}
}

func ticketsHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		list, err := apiClient.ListHelpdeskTickets(r.Context(), client.TicketFilter{
			Status:   query.Get("status"),
			Priority: query.Get("priority"),
		})
		respond(w, list, err)
	}
}

func dashboardHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := apiClient.GetDashboardSummary(r.Context())
		respond(w, summary, err)
	}
}

// respond writes a JSON payload or maps an ErrorRecord to an HTTP status.
func respond(w http.ResponseWriter, payload any, err error) {
	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		status := errorStatus(err)
		w.WriteHeader(status)
		var rec *client.ErrorRecord
		if errors.As(err, &rec) {
			json.NewEncoder(w).Encode(map[string]string{
				"message":        rec.Message,
				"kind":           string(rec.Kind),
				"correlation_id": rec.CorrelationID,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
		return
	}

	json.NewEncoder(w).Encode(payload)
}

// errorStatus maps client error kinds onto proxy response statuses.
func errorStatus(err error) int {
	var rec *client.ErrorRecord
	if !errors.As(err, &rec) {
		return http.StatusInternalServerError
	}

	switch rec.Kind {
	case client.KindAuthError:
		return http.StatusUnauthorized
	case client.KindForbidden:
		return http.StatusForbidden
	case client.KindNotFound:
		return http.StatusNotFound
	case client.KindRateLimit:
		return http.StatusTooManyRequests
	case client.KindTimeout:
		return http.StatusGatewayTimeout
	case client.KindNetworkError, client.KindServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

