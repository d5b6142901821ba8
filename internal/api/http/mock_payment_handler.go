package http

import (
	"errors"
	"net/http"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/service"

	"github.com/gorilla/mux"
)

// MockPaymentHandler stands in for the hosted payment page when the mock
// gateway is configured.
type MockPaymentHandler struct {
	mock     *gateway.MockGateway
	payments service.PaymentCoordinator
}

func NewMockPaymentHandler(mock *gateway.MockGateway, payments service.PaymentCoordinator) *MockPaymentHandler {
	return &MockPaymentHandler{mock: mock, payments: payments}
}

func (h *MockPaymentHandler) simulate(w http.ResponseWriter, r *http.Request, fire func(intentID string) (*domain.PaymentEvent, error)) {
	intentID := mux.Vars(r)["intentID"]
	if intentID == "" {
		http.Error(w, "Missing payment intent", http.StatusBadRequest)
		return
	}
	ev, err := fire(intentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	b, err := h.payments.Reconcile(r.Context(), *ev)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleSucceed captures the intent as if the renter paid.
func (h *MockPaymentHandler) HandleSucceed(w http.ResponseWriter, r *http.Request) {
	h.simulate(w, r, h.mock.Succeed)
}

// HandleDecline declines the intent as if the card was refused.
func (h *MockPaymentHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	h.simulate(w, r, h.mock.Decline)
}

// HandleRefundEvent delivers the refund notification for refunds issued so far.
func (h *MockPaymentHandler) HandleRefundEvent(w http.ResponseWriter, r *http.Request) {
	h.simulate(w, r, h.mock.RefundEvent)
}

// RegisterMockPaymentRoutes registers the mock payment HTTP endpoints
func RegisterMockPaymentRoutes(router *mux.Router, mock *gateway.MockGateway, payments service.PaymentCoordinator) {
	handler := NewMockPaymentHandler(mock, payments)
	router.HandleFunc("/api/v1/mock-payments/{intentID}/succeed", handler.HandleSucceed).Methods("POST")
	router.HandleFunc("/api/v1/mock-payments/{intentID}/decline", handler.HandleDecline).Methods("POST")
	router.HandleFunc("/api/v1/mock-payments/{intentID}/refund-event", handler.HandleRefundEvent).Methods("POST")
}
