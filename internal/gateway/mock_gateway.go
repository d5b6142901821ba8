package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ubertool-booking/internal/domain"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76/webhook"
)

// DeclinedPaymentMethod is the payment method the mock always declines.
const DeclinedPaymentMethod = "pm_card_declined"

// MockGateway implements Gateway in memory
// This is for demo/testing without a Stripe account. Webhook payloads are
// PaymentEvent JSON signed with the Stripe-Signature scheme.
type MockGateway struct {
	mu            sync.Mutex
	webhookSecret string
	intents       map[string]*mockIntent
	intentKeys    map[string]string // idempotency key -> intent id
	refundKeys    map[string]string // idempotency key -> refund id
	failures      map[string][]error
	seq           int
}

type mockIntent struct {
	intent   domain.PaymentIntent
	metadata map[string]string
	refunded int64
}

func NewMockGateway(webhookSecret string) *MockGateway {
	return &MockGateway{
		webhookSecret: webhookSecret,
		intents:       make(map[string]*mockIntent),
		intentKeys:    make(map[string]string),
		refundKeys:    make(map[string]string),
		failures:      make(map[string][]error),
	}
}

// FailNext makes the next call to op return err.
func (m *MockGateway) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// injected pops a queued failure for op. Callers hold the lock.
func (m *MockGateway) injected(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &domain.GatewayError{Op: op, OutcomeUnknown: true, Err: err}
	}
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	m.failures[op] = queue[1:]
	return queue[0]
}

func (m *MockGateway) lookup(op, intentID string) (*mockIntent, error) {
	mi, ok := m.intents[intentID]
	if !ok {
		return nil, &domain.GatewayError{Op: op, Err: fmt.Errorf("no such payment intent: %s", intentID)}
	}
	return mi, nil
}

func (m *MockGateway) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_mock_%d", prefix, m.seq)
}

func (m *MockGateway) CreateIntent(ctx context.Context, req IntentRequest) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(ctx, "CreateIntent"); err != nil {
		return nil, err
	}
	if req.AmountCents <= 0 {
		return nil, &domain.GatewayError{Op: "CreateIntent", Err: fmt.Errorf("amount must be positive")}
	}
	if id, ok := m.intentKeys[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		out := m.intents[id].intent
		return &out, nil
	}

	id := m.nextID("pi")
	mi := &mockIntent{
		intent: domain.PaymentIntent{
			ID:           id,
			ClientSecret: id + "_secret_" + uuid.NewString(),
			Status:       domain.IntentStatusRequiresPaymentMethod,
			AmountCents:  req.AmountCents,
		},
		metadata: req.Metadata,
	}
	m.intents[id] = mi
	if req.IdempotencyKey != "" {
		m.intentKeys[req.IdempotencyKey] = id
	}
	out := mi.intent
	return &out, nil
}

func (m *MockGateway) GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(ctx, "GetIntent"); err != nil {
		return nil, err
	}
	mi, err := m.lookup("GetIntent", intentID)
	if err != nil {
		return nil, err
	}
	out := mi.intent
	return &out, nil
}

func (m *MockGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(ctx, "ConfirmIntent"); err != nil {
		return nil, err
	}
	mi, err := m.lookup("ConfirmIntent", intentID)
	if err != nil {
		return nil, err
	}
	switch mi.intent.Status {
	case domain.IntentStatusSucceeded:
		out := mi.intent
		return &out, nil
	case domain.IntentStatusCanceled:
		return nil, &domain.GatewayError{Op: "ConfirmIntent", Err: fmt.Errorf("payment intent %s was canceled", intentID)}
	}

	if paymentMethodID == DeclinedPaymentMethod {
		mi.intent.Status = domain.IntentStatusRequiresPaymentMethod
		mi.intent.LastError = "Your card was declined."
	} else {
		m.capture(mi)
	}
	out := mi.intent
	return &out, nil
}

func (m *MockGateway) capture(mi *mockIntent) {
	mi.intent.Status = domain.IntentStatusSucceeded
	mi.intent.ChargeID = m.nextID("ch")
	mi.intent.LastError = ""
}

func (m *MockGateway) CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(ctx, "CancelIntent"); err != nil {
		return nil, err
	}
	mi, err := m.lookup("CancelIntent", intentID)
	if err != nil {
		return nil, err
	}
	if mi.intent.Status == domain.IntentStatusSucceeded {
		return nil, &domain.GatewayError{Op: "CancelIntent", Err: fmt.Errorf("payment intent %s already succeeded", intentID)}
	}
	mi.intent.Status = domain.IntentStatusCanceled
	out := mi.intent
	return &out, nil
}

func (m *MockGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(ctx, "Refund"); err != nil {
		return "", err
	}
	if id, ok := m.refundKeys[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return id, nil
	}
	mi, err := m.lookup("Refund", req.PaymentIntentID)
	if err != nil {
		return "", err
	}
	if mi.intent.Status != domain.IntentStatusSucceeded {
		return "", &domain.GatewayError{Op: "Refund", Err: fmt.Errorf("payment intent %s has no captured charge", req.PaymentIntentID)}
	}
	if req.AmountCents <= 0 || req.AmountCents > mi.intent.AmountCents-mi.refunded {
		return "", &domain.GatewayError{Op: "Refund", Err: fmt.Errorf("refund of %d exceeds remaining %d", req.AmountCents, mi.intent.AmountCents-mi.refunded)}
	}
	mi.refunded += req.AmountCents
	id := m.nextID("re")
	if req.IdempotencyKey != "" {
		m.refundKeys[req.IdempotencyKey] = id
	}
	return id, nil
}

func (m *MockGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if m.webhookSecret != "" {
		if err := webhook.ValidatePayload(payload, signature, m.webhookSecret); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}
	var ev domain.PaymentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch ev.Type {
	case domain.PaymentEventSucceeded, domain.PaymentEventFailed, domain.PaymentEventRefunded, domain.PaymentEventCanceled:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnhandledEvent, ev.Type)
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	return &ev, nil
}

// Succeed captures the intent as if the renter paid in the browser and
// returns the event the processor would deliver.
func (m *MockGateway) Succeed(intentID string) (*domain.PaymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, err := m.lookup("Succeed", intentID)
	if err != nil {
		return nil, err
	}
	if mi.intent.Status != domain.IntentStatusSucceeded {
		m.capture(mi)
	}
	return m.event(mi, domain.PaymentEventSucceeded, mi.intent.AmountCents), nil
}

// Decline records a declined attempt and returns the failure event.
func (m *MockGateway) Decline(intentID string) (*domain.PaymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, err := m.lookup("Decline", intentID)
	if err != nil {
		return nil, err
	}
	mi.intent.Status = domain.IntentStatusRequiresPaymentMethod
	mi.intent.LastError = "Your card was declined."
	return m.event(mi, domain.PaymentEventFailed, mi.intent.AmountCents), nil
}

// RefundEvent returns the event for the refunds issued so far.
func (m *MockGateway) RefundEvent(intentID string) (*domain.PaymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, err := m.lookup("RefundEvent", intentID)
	if err != nil {
		return nil, err
	}
	return m.event(mi, domain.PaymentEventRefunded, mi.refunded), nil
}

func (m *MockGateway) event(mi *mockIntent, typ domain.PaymentEventType, amount int64) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:              "evt_" + uuid.NewString(),
		Type:            typ,
		PaymentIntentID: mi.intent.ID,
		ChargeID:        mi.intent.ChargeID,
		AmountCents:     amount,
		Status:          mi.intent.Status,
		BookingID:       mi.metadata["booking_id"],
		ReceivedAt:      time.Now().UTC(),
	}
}

// Sign encodes ev and returns the payload with its Stripe-Signature header.
func (m *MockGateway) Sign(ev *domain.PaymentEvent) ([]byte, string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: m.webhookSecret})
	return payload, signed.Header, nil
}

// Refunded reports the total refunded against an intent.
func (m *MockGateway) Refunded(intentID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mi, ok := m.intents[intentID]; ok {
		return mi.refunded
	}
	return 0
}
