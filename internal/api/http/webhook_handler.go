package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/service"
)

const maxWebhookBytes = 64 << 10

// WebhookHandler receives payment processor notifications.
type WebhookHandler struct {
	gateway  gateway.Gateway
	payments service.PaymentCoordinator
}

func NewWebhookHandler(gw gateway.Gateway, payments service.PaymentCoordinator) *WebhookHandler {
	return &WebhookHandler{gateway: gw, payments: payments}
}

// HandlePaymentWebhook verifies and reconciles one event. Any non-2xx answer
// makes the processor redeliver, so only failures that may succeed later get one.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	ev, err := h.gateway.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, gateway.ErrUnhandledEvent):
		logger.Debug("Ignoring unhandled webhook event", "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case errors.Is(err, gateway.ErrInvalidSignature):
		logger.Warn("Rejected webhook with invalid signature", "remote", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		logger.Warn("Rejected malformed webhook", "error", err)
		http.Error(w, "Malformed event", http.StatusBadRequest)
		return
	}

	log := logger.Get().With("eventID", ev.ID, "eventType", ev.Type, "paymentIntentID", ev.PaymentIntentID)
	b, err := h.payments.Reconcile(r.Context(), *ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "booking_id": b.ID})
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("Webhook for unknown payment intent acknowledged")
		writeJSON(w, http.StatusOK, map[string]string{"status": "unknown_intent"})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidState):
		log.Error("Webhook event cannot be applied", "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
	case domain.IsTransient(err), errors.Is(err, domain.ErrConcurrentModification):
		log.Warn("Webhook processing failed, asking for redelivery", "error", err)
		http.Error(w, "Temporarily unavailable", http.StatusServiceUnavailable)
	default:
		log.Error("Webhook processing failed", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}
