package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cashback-ledger/internal/idempotency"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/security"
	"cashback-ledger/internal/service"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Service      service.CashbackService
	TokenManager security.TokenManager
	Idempotency  idempotency.Store
	Database     Pinger
	Gatherer     prometheus.Gatherer
}

// NewRouter wires every route with logging, auth and idempotency.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(NewAuthMiddleware(cfg.TokenManager).Handler)
	if cfg.Idempotency != nil {
		router.Use(IdempotencyMiddleware(cfg.Idempotency))
	}

	router.HandleFunc("/healthz", healthz(cfg.Database)).Methods(http.MethodGet)
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	NewRedemptionHandler(cfg.Service).RegisterRoutes(router)
	NewSalesHandler(cfg.Service).RegisterRoutes(router)
	NewProgramHandler(cfg.Service).RegisterRoutes(router)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Rota não encontrada.")
	})
	return router
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.Warn("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
