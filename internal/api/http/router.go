package http

import (
	"context"
	"net/http"
	"time"

	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/service"

	"github.com/gorilla/mux"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterConfig struct {
	Gateway  gateway.Gateway
	Payments service.PaymentCoordinator
	// DB is checked by /healthz when set.
	DB Pinger
	// WebhookRatePerMinute bounds webhook calls per client IP.
	WebhookRatePerMinute int
}

// NewRouter builds the side HTTP server: payment webhooks, health, and the
// mock payment routes when the mock gateway is in use.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestLogger)

	limiter := NewRateLimiter(cfg.WebhookRatePerMinute, 0)
	webhooks := NewWebhookHandler(cfg.Gateway, cfg.Payments)
	router.Handle("/webhooks/payments", limiter.Middleware(http.HandlerFunc(webhooks.HandlePaymentWebhook))).Methods("POST")

	router.HandleFunc("/healthz", healthHandler(cfg.DB)).Methods("GET")

	if mock, ok := cfg.Gateway.(*gateway.MockGateway); ok {
		logger.Info("Registering mock payment routes")
		RegisterMockPaymentRoutes(router, mock, cfg.Payments)
	}
	return router
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				logger.Warn("Health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
