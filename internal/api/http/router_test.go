package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/lock"
	"ubertool-booking/internal/pricing"
	"ubertool-booking/internal/repository/memory"
	"ubertool-booking/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type env struct {
	router   http.Handler
	gw       *gateway.MockGateway
	bookings service.BookingService
	payments service.PaymentCoordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	store.PutTool(domain.Tool{ID: 1, OwnerID: 2, Name: "Saw", DailyPriceCents: 10000, Status: domain.ToolStatusAvailable})
	repos := store.Repositories()

	engine, err := pricing.NewEngine(pricing.DefaultLimits, pricing.DefaultPolicy)
	require.NoError(t, err)
	cfg := service.Config{Now: func() time.Time { return time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC) }}

	gw := gateway.NewMockGateway(webhookSecret)
	payments := service.NewPaymentCoordinator(repos.Bookings, repos.PaymentEvents, gw, nil, cfg)
	bookings := service.NewBookingService(repos.Tools, repos.Bookings, lock.NewLocal(), service.NewAvailabilityChecker(repos.Tools, repos.Bookings), engine, payments, nil, cfg)

	return &env{
		router:   NewRouter(RouterConfig{Gateway: gw, Payments: payments}),
		gw:       gw,
		bookings: bookings,
		payments: payments,
	}
}

// pendingIntent returns an approved booking with an open payment intent.
func (e *env) pendingIntent(t *testing.T) (*domain.Booking, string) {
	t.Helper()
	ctx := context.Background()
	b, err := e.bookings.CreateBooking(ctx, service.CreateBookingInput{RenterID: 3, ToolID: 1, StartDate: "2024-07-01", EndDate: "2024-07-03"})
	require.NoError(t, err)
	_, err = e.bookings.ApproveBooking(ctx, 2, b.ID)
	require.NoError(t, err)
	session, err := e.payments.InitiatePayment(ctx, 3, b.ID)
	require.NoError(t, err)
	return b, session.PaymentIntentID
}

func (e *env) postWebhook(t *testing.T, ev *domain.PaymentEvent) *httptest.ResponseRecorder {
	t.Helper()
	payload, header, err := e.gw.Sign(ev)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhook(t *testing.T) {
	e := newEnv(t)
	b, intentID := e.pendingIntent(t)

	ev, err := e.gw.Succeed(intentID)
	require.NoError(t, err)

	rec := e.postWebhook(t, ev)
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := e.bookings.GetBooking(context.Background(), 3, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)

	t.Run("Redelivery is acknowledged", func(t *testing.T) {
		rec := e.postWebhook(t, ev)
		assert.Equal(t, http.StatusOK, rec.Code)
		again, err := e.bookings.GetBooking(context.Background(), 3, b.ID)
		require.NoError(t, err)
		assert.Equal(t, got.Version, again.Version)
	})

	t.Run("Invalid signature", func(t *testing.T) {
		payload, _ := json.Marshal(ev)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown intent", func(t *testing.T) {
		rec := e.postWebhook(t, &domain.PaymentEvent{ID: "evt_x", Type: domain.PaymentEventSucceeded, PaymentIntentID: "pi_unknown", AmountCents: 100})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown_intent")
	})

	t.Run("Unhandled event type", func(t *testing.T) {
		rec := e.postWebhook(t, &domain.PaymentEvent{ID: "evt_y", Type: "dispute_opened", PaymentIntentID: intentID})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ignored")
	})
}

type MockPaymentCoordinator struct {
	mock.Mock
	service.PaymentCoordinator
}

func (m *MockPaymentCoordinator) Reconcile(ctx context.Context, ev domain.PaymentEvent) (*domain.Booking, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func TestPaymentWebhookTransientFailure(t *testing.T) {
	gw := gateway.NewMockGateway(webhookSecret)
	payments := new(MockPaymentCoordinator)
	router := NewRouter(RouterConfig{Gateway: gw, Payments: payments})

	payments.On("Reconcile", mock.Anything, mock.Anything).
		Return(nil, &domain.GatewayError{Op: "GetIntent", Transient: true, Err: errors.New("503")}).Once()
	payments.On("Reconcile", mock.Anything, mock.Anything).
		Return(nil, domain.NewConcurrentModificationError("b1", nil)).Once()

	for range 2 {
		payload, header, err := gw.Sign(&domain.PaymentEvent{ID: "evt_1", Type: domain.PaymentEventSucceeded, PaymentIntentID: "pi_1"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	payments.AssertExpectations(t)
}

func TestMockPaymentRoutes(t *testing.T) {
	e := newEnv(t)
	b, intentID := e.pendingIntent(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mock-payments/"+intentID+"/decline", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, domain.PaymentStatusFailed, got.PaymentStatus)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/mock-payments/pi_missing/succeed", nil)
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type pinger struct{ err error }

func (p pinger) PingContext(ctx context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	gw := gateway.NewMockGateway("")
	for _, tc := range []struct {
		db   Pinger
		code int
	}{
		{nil, http.StatusOK},
		{pinger{}, http.StatusOK},
		{pinger{err: errors.New("down")}, http.StatusServiceUnavailable},
	} {
		router := NewRouter(RouterConfig{Gateway: gw, DB: tc.db})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, tc.code, rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/webhooks/payments", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/webhooks/payments", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
