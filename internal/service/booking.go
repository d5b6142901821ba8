package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/notify"
	"ubertool-booking/internal/pricing"
	"ubertool-booking/internal/repository"

	"github.com/google/uuid"
)

type bookingService struct {
	toolRepo     repository.ToolRepository
	bookingRepo  repository.BookingRepository
	locker       repository.ToolLocker
	availability AvailabilityChecker
	engine       *pricing.Engine
	payments     PaymentCoordinator
	notifier     notifier
	mutator      mutator
	cfg          Config
}

func NewBookingService(
	toolRepo repository.ToolRepository,
	bookingRepo repository.BookingRepository,
	locker repository.ToolLocker,
	availability AvailabilityChecker,
	engine *pricing.Engine,
	payments PaymentCoordinator,
	sink notify.Sink,
	cfg Config,
) BookingService {
	return &bookingService{
		toolRepo:     toolRepo,
		bookingRepo:  bookingRepo,
		locker:       locker,
		availability: availability,
		engine:       engine,
		payments:     payments,
		notifier:     notifier{sink: sink},
		mutator:      mutator{bookings: bookingRepo},
		cfg:          cfg.withDefaults(),
	}
}

// acquire takes the per-tool lock, waiting at most the configured lock timeout.
func (s *bookingService) acquire(ctx context.Context, toolID int32) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()
	return s.locker.AcquireToolLock(lockCtx, toolID)
}

func (s *bookingService) load(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, translate(bookingID, err)
	}
	return b, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CreateBooking", "renterID", in.RenterID, "toolID", in.ToolID, "startDate", in.StartDate, "endDate", in.EndDate)

	r, err := domain.ParseDateRange(in.StartDate, in.EndDate)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "invalid dates")
		return nil, err
	}

	if in.IdempotencyKey != "" {
		existing, err := s.bookingRepo.GetByIdempotencyKey(ctx, in.RenterID, in.IdempotencyKey)
		if err == nil {
			logger.ExitMethod("bookingService.CreateBooking", "bookingID", existing.ID, "replayed", true)
			return replay(existing, in, r)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "idempotency lookup failed")
			return nil, err
		}
	}

	tool, err := s.toolRepo.GetByID(ctx, in.ToolID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = domain.NewNotFoundError("tool", strconv.Itoa(int(in.ToolID)))
		}
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "tool lookup failed")
		return nil, err
	}
	if tool.Status != domain.ToolStatusAvailable {
		return nil, domain.NewConflictError("", fmt.Sprintf("tool %d is not available for booking", tool.ID))
	}
	if tool.OwnerID == in.RenterID {
		return nil, domain.NewValidationError("tool_id", "owners cannot book their own tool")
	}

	now := s.cfg.Now()
	fees := make([]domain.Fee, len(s.cfg.Fees))
	for i, f := range s.cfg.Fees {
		f.Date = now
		fees[i] = f
	}
	quote, err := s.engine.ComputePrice(tool.DailyPriceCents, r, fees)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "pricing rejected request")
		return nil, err
	}

	release, err := s.acquire(ctx, tool.ID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "tool lock")
		return nil, translate("", err)
	}
	defer release()

	available, err := s.availability.IsAvailable(ctx, tool.ID, r, "")
	if err != nil {
		return nil, err
	}
	if !available {
		err := domain.NewConflictError("", fmt.Sprintf("tool %d is already booked for %s", tool.ID, r))
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "unavailable")
		return nil, err
	}

	b := domain.Booking{
		ID:              uuid.NewString(),
		ToolID:          tool.ID,
		RenterID:        in.RenterID,
		OwnerID:         tool.OwnerID,
		StartDate:       r.Start,
		EndDate:         r.End,
		DurationDays:    quote.DurationDays,
		DailyPriceCents: tool.DailyPriceCents,
		DepositCents:    tool.DepositCents,
		AdditionalFees:  fees,
		TotalPriceCents: quote.TotalPriceCents,
		Currency:        s.cfg.Currency,
		ChargeDeposit:   s.cfg.ChargeDeposit && tool.DepositCents > 0,
		Status:          domain.BookingStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		IdempotencyKey:  in.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b = domain.AddNotification(b, domain.NotificationStatusChange, "Booking requested", now)

	if err := s.bookingRepo.Create(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrDuplicate) && in.IdempotencyKey != "" {
			if existing, getErr := s.bookingRepo.GetByIdempotencyKey(ctx, in.RenterID, in.IdempotencyKey); getErr == nil {
				return replay(existing, in, r)
			}
		}
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "reason", "insert failed")
		return nil, translate(b.ID, err)
	}
	release()

	s.notifier.send(ctx, &b, b.OwnerID, domain.NotificationStatusChange,
		fmt.Sprintf("New booking request for %s from %s to %s", tool.Name, r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout)))
	logger.ExitMethod("bookingService.CreateBooking", "bookingID", b.ID, "totalPriceCents", b.TotalPriceCents)
	return &b, nil
}

// replay returns the booking an idempotency key already produced, refusing
// a key reused for a different request.
func replay(existing *domain.Booking, in CreateBookingInput, r domain.DateRange) (*domain.Booking, error) {
	if existing.ToolID != in.ToolID || !existing.StartDate.Equal(r.Start) || !existing.EndDate.Equal(r.End) {
		return nil, domain.NewValidationError("idempotency_key", "key was already used for a different booking request")
	}
	return existing, nil
}

func (s *bookingService) ApproveBooking(ctx context.Context, ownerID int32, bookingID string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.ApproveBooking", "ownerID", ownerID, "bookingID", bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.ApproveBooking", err)
		return nil, err
	}
	if b.OwnerID != ownerID {
		return nil, domain.NewAuthorizationError(b.ID, "only the tool owner can approve a booking")
	}
	if b.Status != domain.BookingStatusPending {
		return nil, approvalError(*b)
	}

	release, err := s.acquire(ctx, b.ToolID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.ApproveBooking", err, "reason", "tool lock")
		return nil, translate(b.ID, err)
	}
	defer release()

	now := s.cfg.Now()
	out, _, err := s.mutator.apply(ctx, bookingID, func(cur domain.Booking) (domain.Booking, bool, error) {
		if cur.Status != domain.BookingStatusPending {
			return cur, false, approvalError(cur)
		}
		next, err := domain.Approve(cur, now)
		if err != nil {
			return cur, false, err
		}
		available, err := s.availability.IsAvailable(ctx, cur.ToolID, cur.Range(), cur.ID)
		if err != nil {
			return cur, false, err
		}
		if !available {
			return cur, false, domain.NewConflictError(cur.ID, fmt.Sprintf("another booking was approved for %s", cur.Range()))
		}
		// Paid before the owner decided: activate the same way a payment would.
		if next.PaymentStatus == domain.PaymentStatusPaid {
			if activated, err := domain.Activate(next, now, !s.cfg.ActivateOnPayment); err == nil {
				next = activated
			}
		}
		return next, true, nil
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.ApproveBooking", err, "bookingID", bookingID)
		return nil, err
	}
	release()

	s.notifier.send(ctx, out, out.RenterID, domain.NotificationStatusChange, "Your booking request was approved")
	if out.Status == domain.BookingStatusActive {
		s.notifier.send(ctx, out, out.RenterID, domain.NotificationStatusChange, "Your booking is now active")
	}
	logger.ExitMethod("bookingService.ApproveBooking", "bookingID", out.ID, "version", out.Version)
	return out, nil
}

// approvalError reports why b cannot be approved. Approving a booking that
// was already approved conflicts with that decision; closed bookings are in
// the wrong state.
func approvalError(b domain.Booking) error {
	if b.Status == domain.BookingStatusApproved || b.Status == domain.BookingStatusActive {
		return domain.NewConflictError(b.ID, fmt.Sprintf("booking is already %s", b.Status))
	}
	return domain.NewInvalidStateError(b.ID, b.Status, "approve")
}

func (s *bookingService) RejectBooking(ctx context.Context, ownerID int32, bookingID string) (*domain.Booking, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != ownerID {
		return nil, domain.NewAuthorizationError(b.ID, "only the tool owner can reject a booking")
	}

	now := s.cfg.Now()
	out, _, err := s.mutator.apply(ctx, bookingID, func(cur domain.Booking) (domain.Booking, bool, error) {
		next, err := domain.Reject(cur, now)
		return next, err == nil, err
	})
	if err != nil {
		return nil, err
	}

	out = s.settleAfterClose(ctx, out)
	s.notifier.send(ctx, out, out.RenterID, domain.NotificationStatusChange, "Your booking request was rejected")
	return out, nil
}

// settleAfterClose refunds what a closed booking owes, or voids a payment
// that was never captured. Gateway failures are left to the sweeps.
func (s *bookingService) settleAfterClose(ctx context.Context, b *domain.Booking) *domain.Booking {
	log := logger.WithBooking(b.ID)
	switch {
	case b.RefundOwedCents > 0:
		if _, err := s.payments.SettleRefund(ctx, b.ID); err != nil {
			log.Warn("Refund not issued yet, will retry", "owedCents", b.RefundOwedCents, "error", err)
		}
	case b.PaymentIntentID != "" && b.PaymentStatus == domain.PaymentStatusPending:
		if err := s.payments.VoidIntent(ctx, b.ID); err != nil {
			log.Warn("Failed to void payment intent", "paymentIntentID", b.PaymentIntentID, "error", err)
		}
	default:
		return b
	}
	if fresh, err := s.bookingRepo.GetByID(ctx, b.ID); err == nil {
		return fresh
	}
	return b
}

func (s *bookingService) ActivateBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	now := s.cfg.Now()
	out, _, err := s.mutator.applyWithRetry(ctx, s.cfg.MaxConflictRetries, bookingID, func(cur domain.Booking) (domain.Booking, bool, error) {
		next, err := domain.Activate(cur, now, !s.cfg.ActivateOnPayment)
		return next, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.send(ctx, out, out.RenterID, domain.NotificationStatusChange, "Your booking is now active")
	s.notifier.send(ctx, out, out.OwnerID, domain.NotificationStatusChange, "A booking for your tool is now active")
	return out, nil
}

func (s *bookingService) CompleteBooking(ctx context.Context, actorID int32, bookingID string) (*domain.Booking, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	attempts := 1
	if actorID == 0 {
		if now.Before(b.EndDate) {
			return nil, &domain.Error{Kind: domain.ErrInvalidState, BookingID: b.ID, Message: "rental period has not ended"}
		}
		attempts = s.cfg.MaxConflictRetries
	} else if actorID != b.OwnerID {
		return nil, domain.NewAuthorizationError(b.ID, "only the tool owner can complete a booking")
	}

	out, _, err := s.mutator.applyWithRetry(ctx, attempts, bookingID, func(cur domain.Booking) (domain.Booking, bool, error) {
		next, err := domain.Complete(cur, now)
		return next, err == nil, err
	})
	if err != nil {
		return nil, err
	}

	if out.RefundOwedCents > 0 {
		if _, err := s.payments.ReleaseDeposit(ctx, out.ID); err != nil {
			logger.WithBooking(out.ID).Warn("Deposit release failed, will retry", "error", err)
		}
		if fresh, err := s.bookingRepo.GetByID(ctx, out.ID); err == nil {
			out = fresh
		}
	}
	s.notifier.send(ctx, out, out.RenterID, domain.NotificationStatusChange, "Your booking is complete")
	return out, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, userID int32, bookingID, reason string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CancelBooking", "userID", userID, "bookingID", bookingID)

	b, err := s.load(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.CancelBooking", err)
		return nil, err
	}
	if !b.IsParticipant(userID) {
		return nil, domain.NewAuthorizationError(b.ID, "only the renter or the owner can cancel a booking")
	}

	now := s.cfg.Now()
	var quote pricing.CancellationQuote
	out, _, err := s.mutator.apply(ctx, bookingID, func(cur domain.Booking) (domain.Booking, bool, error) {
		quote = s.engine.ComputeCancellation(&cur, now)
		if !quote.CanCancel {
			if quote.Reason == pricing.ReasonBookingClosed {
				return cur, false, domain.NewInvalidStateError(cur.ID, cur.Status, "cancel")
			}
			return cur, false, &domain.Error{Kind: domain.ErrInvalidState, BookingID: cur.ID, Message: "cannot cancel: " + string(quote.Reason)}
		}
		next, err := domain.Cancel(cur, userID, reason, quote.FeeCents, quote.RefundCents, now)
		return next, err == nil, err
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.CancelBooking", err, "bookingID", bookingID)
		return nil, err
	}

	out = s.settleAfterClose(ctx, out)

	other := out.OwnerID
	if userID == out.OwnerID {
		other = out.RenterID
	}
	msg := "A booking was cancelled"
	if reason != "" {
		msg += ": " + reason
	}
	s.notifier.send(ctx, out, other, domain.NotificationCancellation, msg)
	logger.ExitMethod("bookingService.CancelBooking", "bookingID", out.ID, "feeCents", quote.FeeCents, "refundCents", quote.RefundCents)
	return out, nil
}

func (s *bookingService) GetBooking(ctx context.Context, userID int32, bookingID string) (*domain.Booking, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(userID) {
		return nil, domain.NewAuthorizationError(b.ID, "not a participant of this booking")
	}
	return b, nil
}

func (s *bookingService) ListBookings(ctx context.Context, userID int32, role Role, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	if status != "" {
		if _, err := domain.ParseBookingStatus(status); err != nil {
			return nil, 0, domain.NewValidationError("status", err.Error())
		}
	}
	switch role {
	case RoleRenter:
		return s.bookingRepo.ListByRenter(ctx, userID, status, page, pageSize)
	case RoleOwner:
		return s.bookingRepo.ListByOwner(ctx, userID, status, page, pageSize)
	default:
		return nil, 0, domain.NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}
}

func (s *bookingService) GetCancellationEligibility(ctx context.Context, userID int32, bookingID string) (*pricing.CancellationQuote, error) {
	b, err := s.GetBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	q := s.engine.ComputeCancellation(b, s.cfg.Now())
	return &q, nil
}

func (s *bookingService) CheckAvailability(ctx context.Context, toolID int32, startDate, endDate string) (bool, error) {
	r, err := domain.ParseDateRange(startDate, endDate)
	if err != nil {
		return false, err
	}
	return s.availability.IsAvailable(ctx, toolID, r, "")
}

func (s *bookingService) GetBookedPeriods(ctx context.Context, toolID int32) ([]domain.BookedPeriod, error) {
	return s.availability.BookedPeriods(ctx, toolID)
}
