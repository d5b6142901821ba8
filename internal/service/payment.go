package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/notify"
	"ubertool-booking/internal/repository"
)

type paymentCoordinator struct {
	bookingRepo repository.BookingRepository
	eventRepo   repository.PaymentEventRepository
	gateway     gateway.Gateway
	notifier    notifier
	mutator     mutator
	cfg         Config
}

func NewPaymentCoordinator(
	bookingRepo repository.BookingRepository,
	eventRepo repository.PaymentEventRepository,
	gw gateway.Gateway,
	sink notify.Sink,
	cfg Config,
) PaymentCoordinator {
	return &paymentCoordinator{
		bookingRepo: bookingRepo,
		eventRepo:   eventRepo,
		gateway:     gw,
		notifier:    notifier{sink: sink},
		mutator:     mutator{bookings: bookingRepo},
		cfg:         cfg.withDefaults(),
	}
}

func (c *paymentCoordinator) load(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := c.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, translate(bookingID, err)
	}
	return b, nil
}

func (c *paymentCoordinator) session(b *domain.Booking, intent *domain.PaymentIntent) *PaymentSession {
	amount := intent.AmountCents
	if amount == 0 {
		amount = b.AmountDueCents()
	}
	return &PaymentSession{
		BookingID:       b.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     amount,
		Currency:        b.Currency,
	}
}

// InitiatePayment opens a payment intent sized to the booking. A pending
// intent that is still usable is handed back instead of creating another.
func (c *paymentCoordinator) InitiatePayment(ctx context.Context, renterID int32, bookingID string) (*PaymentSession, error) {
	logger.EnterMethod("paymentCoordinator.InitiatePayment", "renterID", renterID, "bookingID", bookingID)

	b, err := c.load(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("paymentCoordinator.InitiatePayment", err)
		return nil, err
	}
	if b.RenterID != renterID {
		return nil, domain.NewAuthorizationError(b.ID, "only the renter can pay for a booking")
	}
	if b.Status != domain.BookingStatusPending && b.Status != domain.BookingStatusApproved {
		return nil, domain.NewInvalidStateError(b.ID, b.Status, "pay for")
	}
	if b.PaymentStatus.Captured() {
		return nil, &domain.Error{Kind: domain.ErrInvalidState, BookingID: b.ID, Message: "booking is already paid"}
	}
	if b.AmountDueCents() <= 0 {
		return nil, domain.NewValidationError("amount", "booking has nothing to pay").WithBooking(b.ID)
	}

	if b.PaymentIntentID != "" && b.PaymentStatus == domain.PaymentStatusPending {
		intent, err := c.gateway.GetIntent(ctx, b.PaymentIntentID)
		if err != nil {
			logger.ExitMethodWithError("paymentCoordinator.InitiatePayment", err, "reason", "existing intent lookup")
			return nil, err
		}
		switch intent.Status {
		case domain.IntentStatusCanceled:
			// fall through to a fresh intent
		case domain.IntentStatusSucceeded:
			if ev, ok := domain.EventFromIntent(intent, c.cfg.Now()); ok {
				ev.BookingID = b.ID
				if _, err := c.Reconcile(ctx, ev); err != nil {
					return nil, err
				}
			}
			return nil, &domain.Error{Kind: domain.ErrInvalidState, BookingID: b.ID, Message: "booking is already paid"}
		default:
			logger.ExitMethod("paymentCoordinator.InitiatePayment", "paymentIntentID", intent.ID, "reused", true)
			return c.session(b, intent), nil
		}
	}

	if b.PaymentIntentID != "" && b.PaymentStatus == domain.PaymentStatusFailed {
		captured, err := c.retireIntent(ctx, b)
		if err != nil {
			logger.ExitMethodWithError("paymentCoordinator.InitiatePayment", err, "reason", "retire failed intent")
			return nil, err
		}
		if captured {
			return nil, &domain.Error{Kind: domain.ErrInvalidState, BookingID: b.ID, Message: "booking is already paid"}
		}
	}

	intent, err := c.gateway.CreateIntent(ctx, gateway.IntentRequest{
		AmountCents: b.AmountDueCents(),
		Currency:    b.Currency,
		Metadata: map[string]string{
			"booking_id": b.ID,
			"tool_id":    strconv.Itoa(int(b.ToolID)),
			"renter_id":  strconv.Itoa(int(b.RenterID)),
		},
		// Keyed on the version so a retry after a failed payment opens a new intent.
		IdempotencyKey: fmt.Sprintf("intent_%s_v%d", b.ID, b.Version),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			err = domain.NewConcurrentModificationError(b.ID, err)
		}
		logger.ExitMethodWithError("paymentCoordinator.InitiatePayment", err, "reason", "create intent")
		return nil, err
	}

	now := c.cfg.Now()
	out, _, err := c.mutator.apply(ctx, b.ID, func(cur domain.Booking) (domain.Booking, bool, error) {
		if cur.PaymentIntentID == intent.ID {
			return cur, false, nil
		}
		if cur.Version != b.Version {
			return cur, false, domain.NewConcurrentModificationError(cur.ID, repository.ErrVersionConflict)
		}
		next, err := domain.ResetPayment(cur, intent.ID, now)
		return next, err == nil, err
	})
	if err != nil {
		c.voidOrphan(ctx, b.ID, intent.ID)
		logger.ExitMethodWithError("paymentCoordinator.InitiatePayment", err, "reason", "save intent")
		return nil, err
	}

	logger.ExitMethod("paymentCoordinator.InitiatePayment", "paymentIntentID", intent.ID, "amountCents", intent.AmountCents)
	return c.session(out, intent), nil
}

// retireIntent cancels the failed intent a new attempt replaces, so its client
// secret can no longer be paid. When the gateway refuses the cancel, the
// intent is read back instead and a capture on it is reconciled. It reports
// whether the booking turned out to be paid.
func (c *paymentCoordinator) retireIntent(ctx context.Context, b *domain.Booking) (bool, error) {
	intent, err := c.gateway.CancelIntent(ctx, b.PaymentIntentID)
	if err != nil {
		logger.WithBooking(b.ID).Warn("Failed to cancel superseded payment intent", "paymentIntentID", b.PaymentIntentID, "error", err)
		if intent, err = c.gateway.GetIntent(ctx, b.PaymentIntentID); err != nil {
			return false, err
		}
	}
	if intent.Status != domain.IntentStatusSucceeded {
		return false, nil
	}
	ev, _ := domain.EventFromIntent(intent, c.cfg.Now())
	ev.BookingID = b.ID
	if _, err := c.Reconcile(ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}

// voidOrphan cancels an intent that lost the race to be stored on the booking.
func (c *paymentCoordinator) voidOrphan(ctx context.Context, bookingID, intentID string) {
	if cur, err := c.bookingRepo.GetByID(ctx, bookingID); err == nil && cur.PaymentIntentID == intentID {
		return
	}
	if _, err := c.gateway.CancelIntent(ctx, intentID); err != nil {
		logger.WithBooking(bookingID).Warn("Failed to cancel orphaned payment intent", "paymentIntentID", intentID, "error", err)
	}
}

func (c *paymentCoordinator) ConfirmPayment(ctx context.Context, renterID int32, bookingID, paymentMethodID string) (*domain.Booking, error) {
	b, err := c.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RenterID != renterID {
		return nil, domain.NewAuthorizationError(b.ID, "only the renter can pay for a booking")
	}
	if paymentMethodID == "" {
		return nil, domain.NewValidationError("payment_method_id", "payment method is required").WithBooking(b.ID)
	}
	if b.PaymentIntentID == "" {
		return nil, &domain.Error{Kind: domain.ErrInvalidState, BookingID: b.ID, Message: "payment has not been initiated"}
	}
	if b.PaymentStatus.Captured() {
		return b, nil
	}

	intent, err := c.gateway.ConfirmIntent(ctx, b.PaymentIntentID, paymentMethodID)
	if err != nil {
		return nil, err
	}
	ev, ok := domain.EventFromIntent(intent, c.cfg.Now())
	if !ok {
		logger.WithBooking(b.ID).Info("Payment still in flight", "paymentIntentID", intent.ID, "status", intent.Status)
		return b, nil
	}
	ev.BookingID = b.ID
	return c.Reconcile(ctx, ev)
}

// Reconcile applies a gateway event to the booking owning its intent.
// Replays and events that no longer change anything are no-ops.
func (c *paymentCoordinator) Reconcile(ctx context.Context, ev domain.PaymentEvent) (*domain.Booking, error) {
	key := ev.IdempotencyKey()
	log := logger.Get().With("paymentIntentID", ev.PaymentIntentID, "eventType", ev.Type, "eventKey", key)

	seen, err := c.eventRepo.Seen(ctx, key)
	if err != nil {
		return nil, err
	}
	b, err := c.bookingRepo.GetByPaymentIntentID(ctx, ev.PaymentIntentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) && ev.BookingID != "" {
			return c.reconcileSuperseded(ctx, ev, seen)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewNotFoundError("payment intent", ev.PaymentIntentID)
		}
		return nil, err
	}
	if seen {
		log.Debug("Payment event already processed", "bookingID", b.ID)
		return b, nil
	}

	now := c.cfg.Now()
	out, changed, err := c.mutator.applyWithRetry(ctx, c.cfg.MaxConflictRetries, b.ID, func(cur domain.Booking) (domain.Booking, bool, error) {
		return c.applyEvent(cur, ev, now)
	})
	if err != nil {
		log.Warn("Failed to apply payment event", "bookingID", b.ID, "error", err)
		return nil, err
	}
	if err := c.eventRepo.MarkProcessed(ctx, key, &ev); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		log.Warn("Failed to record payment event", "bookingID", out.ID, "error", err)
	}
	log.Info("Payment event reconciled", "bookingID", out.ID, "changed", changed, "paymentStatus", out.PaymentStatus, "status", out.Status)

	if !changed {
		return out, nil
	}
	c.announce(ctx, out, ev)

	lateCapture := ev.Type == domain.PaymentEventSucceeded &&
		(out.Status == domain.BookingStatusCancelled || out.Status == domain.BookingStatusRejected)
	if lateCapture && out.RefundOwedCents > 0 {
		if _, err := c.SettleRefund(ctx, out.ID); err != nil {
			log.Warn("Refund of late capture failed, will retry", "bookingID", out.ID, "error", err)
		}
		if fresh, err := c.bookingRepo.GetByID(ctx, out.ID); err == nil {
			out = fresh
		}
	}
	return out, nil
}

// reconcileSuperseded handles an event for an intent its booking has since
// replaced. The booking never records money taken on such an intent, so a
// capture is refunded in full.
func (c *paymentCoordinator) reconcileSuperseded(ctx context.Context, ev domain.PaymentEvent, seen bool) (*domain.Booking, error) {
	b, err := c.bookingRepo.GetByID(ctx, ev.BookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewNotFoundError("payment intent", ev.PaymentIntentID)
		}
		return nil, err
	}
	log := logger.WithBooking(b.ID).With("paymentIntentID", ev.PaymentIntentID, "eventType", ev.Type)
	if seen || ev.Type != domain.PaymentEventSucceeded {
		log.Debug("Ignoring event for superseded payment intent")
		return b, nil
	}

	amount := ev.AmountCents
	if amount <= 0 {
		intent, err := c.gateway.GetIntent(ctx, ev.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		amount = intent.AmountCents
	}
	refundID, err := c.gateway.Refund(ctx, gateway.RefundRequest{
		PaymentIntentID: ev.PaymentIntentID,
		ChargeID:        ev.ChargeID,
		AmountCents:     amount,
		IdempotencyKey:  "refund_superseded_" + ev.PaymentIntentID,
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicateRequest) {
		log.Warn("Failed to refund capture on superseded intent", "amountCents", amount, "error", err)
		return nil, err
	}
	if err := c.eventRepo.MarkProcessed(ctx, ev.IdempotencyKey(), &ev); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		log.Warn("Failed to record payment event", "error", err)
	}
	log.Info("Refunded capture on superseded payment intent", "amountCents", amount, "refundID", refundID)
	c.notifier.send(ctx, b, b.RenterID, domain.NotificationRefund,
		fmt.Sprintf("A payment of %d cents on an earlier attempt was refunded", amount))
	return b, nil
}

func (c *paymentCoordinator) applyEvent(cur domain.Booking, ev domain.PaymentEvent, now time.Time) (domain.Booking, bool, error) {
	switch ev.Type {
	case domain.PaymentEventSucceeded:
		amount := ev.AmountCents
		if amount <= 0 {
			amount = cur.AmountDueCents()
		}
		next, changed, err := domain.MarkPaid(cur, ev.ChargeID, amount, now)
		if err != nil || !changed {
			return cur, false, err
		}
		if next.Status == domain.BookingStatusApproved {
			if activated, err := domain.Activate(next, now, !c.cfg.ActivateOnPayment); err == nil {
				next = activated
			}
		}
		return next, true, nil

	case domain.PaymentEventFailed:
		next, changed := domain.MarkPaymentFailed(cur, now)
		return next, changed, nil

	case domain.PaymentEventCanceled:
		if cur.Status.IsTerminal() {
			return cur, false, nil
		}
		next, changed := domain.MarkPaymentFailed(cur, now)
		return next, changed, nil

	case domain.PaymentEventRefunded:
		// Refund events carry the cumulative amount refunded at the gateway.
		delta := min(ev.AmountCents-cur.RefundedCents, cur.RefundableCents())
		if delta <= 0 {
			return cur, false, nil
		}
		next, err := domain.ApplyRefund(cur, delta, now)
		return next, err == nil, err
	}
	return cur, false, domain.NewValidationError("type", fmt.Sprintf("unknown payment event type %q", ev.Type))
}

func (c *paymentCoordinator) announce(ctx context.Context, b *domain.Booking, ev domain.PaymentEvent) {
	switch ev.Type {
	case domain.PaymentEventSucceeded:
		c.notifier.send(ctx, b, b.RenterID, domain.NotificationPayment, "Payment received")
		c.notifier.send(ctx, b, b.OwnerID, domain.NotificationPayment, "The renter has paid for the booking")
		if b.Status == domain.BookingStatusActive {
			c.notifier.send(ctx, b, b.RenterID, domain.NotificationStatusChange, "Your booking is now active")
		}
	case domain.PaymentEventFailed:
		c.notifier.send(ctx, b, b.RenterID, domain.NotificationPayment, "Payment failed, please try another payment method")
	case domain.PaymentEventRefunded:
		c.notifier.send(ctx, b, b.RenterID, domain.NotificationRefund, fmt.Sprintf("%d cents have been refunded in total", b.RefundedCents))
	}
}

// Refund returns amountCents to the renter. The gateway call is keyed on the
// amount refunded so far, so a retried refund is never paid twice.
func (c *paymentCoordinator) Refund(ctx context.Context, bookingID string, amountCents int64) (string, error) {
	logger.EnterMethod("paymentCoordinator.Refund", "bookingID", bookingID, "amountCents", amountCents)

	b, err := c.load(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("paymentCoordinator.Refund", err)
		return "", err
	}
	now := c.cfg.Now()
	if _, err := domain.ApplyRefund(*b, amountCents, now); err != nil {
		logger.ExitMethodWithError("paymentCoordinator.Refund", err, "reason", "refund rejected")
		return "", err
	}

	refundedBefore := b.RefundedCents
	refundID, err := c.gateway.Refund(ctx, gateway.RefundRequest{
		PaymentIntentID: b.PaymentIntentID,
		ChargeID:        b.PaymentChargeID,
		AmountCents:     amountCents,
		IdempotencyKey:  fmt.Sprintf("refund_%s_%d_%d", b.ID, refundedBefore, amountCents),
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicateRequest) {
		logger.ExitMethodWithError("paymentCoordinator.Refund", err, "reason", "gateway refund")
		return "", err
	}

	out, changed, err := c.mutator.applyWithRetry(ctx, c.cfg.MaxConflictRetries, b.ID, func(cur domain.Booking) (domain.Booking, bool, error) {
		// A refund webhook may have recorded it already.
		if cur.RefundedCents != refundedBefore {
			return cur, false, nil
		}
		next, err := domain.ApplyRefund(cur, amountCents, now)
		return next, err == nil, err
	})
	if err != nil {
		logger.ExitMethodWithError("paymentCoordinator.Refund", err, "reason", "record refund", "refundID", refundID)
		return refundID, err
	}
	if changed {
		c.notifier.send(ctx, out, out.RenterID, domain.NotificationRefund, fmt.Sprintf("Refund of %d cents issued", amountCents))
	}
	logger.ExitMethod("paymentCoordinator.Refund", "refundID", refundID, "refundedCents", out.RefundedCents)
	return refundID, nil
}

func (c *paymentCoordinator) SettleRefund(ctx context.Context, bookingID string) (int64, error) {
	b, err := c.load(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	if b.RefundOwedCents <= 0 {
		return 0, nil
	}
	amount := min(b.RefundOwedCents, b.RefundableCents())
	if amount <= 0 {
		// Nothing left at the gateway to pay it from.
		_, _, err := c.mutator.applyWithRetry(ctx, c.cfg.MaxConflictRetries, b.ID, func(cur domain.Booking) (domain.Booking, bool, error) {
			if cur.RefundOwedCents == 0 || cur.RefundableCents() > 0 {
				return cur, false, nil
			}
			next := cur.Clone()
			next.RefundOwedCents = 0
			next.UpdatedAt = c.cfg.Now()
			return next, true, nil
		})
		return 0, err
	}
	if _, err := c.Refund(ctx, b.ID, amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// ReleaseDeposit refunds the deposit a completed booking marked as owed.
func (c *paymentCoordinator) ReleaseDeposit(ctx context.Context, bookingID string) (int64, error) {
	amount, err := c.SettleRefund(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	if amount > 0 {
		logger.WithBooking(bookingID).Info("Deposit released", "amountCents", amount)
	}
	return amount, nil
}

// VoidIntent cancels an uncaptured intent. When the gateway refuses, the
// intent state is synced instead so a capture that slipped through is seen.
func (c *paymentCoordinator) VoidIntent(ctx context.Context, bookingID string) error {
	b, err := c.load(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.PaymentIntentID == "" || b.PaymentStatus != domain.PaymentStatusPending {
		return nil
	}
	intent, err := c.gateway.CancelIntent(ctx, b.PaymentIntentID)
	if err != nil {
		if _, syncErr := c.SyncPayment(ctx, b.ID); syncErr == nil {
			return nil
		}
		return err
	}
	if ev, ok := domain.EventFromIntent(intent, c.cfg.Now()); ok {
		ev.BookingID = b.ID
		_, err = c.Reconcile(ctx, ev)
	}
	return err
}

func (c *paymentCoordinator) SyncPayment(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := c.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentIntentID == "" {
		return b, nil
	}
	intent, err := c.gateway.GetIntent(ctx, b.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	ev, ok := domain.EventFromIntent(intent, c.cfg.Now())
	if !ok {
		return b, nil
	}
	ev.BookingID = b.ID
	return c.Reconcile(ctx, ev)
}
