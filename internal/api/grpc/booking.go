package grpc

import (
	"context"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/service"
)

type BookingHandler struct {
	bookingSvc service.BookingService
	paymentSvc service.PaymentCoordinator
}

func NewBookingHandler(bookingSvc service.BookingService, paymentSvc service.PaymentCoordinator) *BookingHandler {
	return &BookingHandler{bookingSvc: bookingSvc, paymentSvc: paymentSvc}
}

func bookingResponse(b *domain.Booking, err error) (*BookingResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &BookingResponse{Booking: MapDomainBookingToProto(b)}, nil
}

func (h *BookingHandler) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return bookingResponse(h.bookingSvc.CreateBooking(ctx, service.CreateBookingInput{
		RenterID:       userID,
		ToolID:         req.ToolID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		IdempotencyKey: req.IdempotencyKey,
	}))
}

func (h *BookingHandler) ApproveBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return bookingResponse(h.bookingSvc.ApproveBooking(ctx, userID, req.BookingID))
}

func (h *BookingHandler) RejectBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return bookingResponse(h.bookingSvc.RejectBooking(ctx, userID, req.BookingID))
}

// ActivateBooking lets the owner hand the tool over once the booking is paid.
func (h *BookingHandler) ActivateBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	b, err := h.bookingSvc.GetBooking(ctx, userID, req.BookingID)
	if err != nil {
		return nil, toStatus(err)
	}
	if b.OwnerID != userID {
		return nil, toStatus(domain.NewAuthorizationError(b.ID, "only the tool owner can activate a booking"))
	}
	return bookingResponse(h.bookingSvc.ActivateBooking(ctx, b.ID))
}

func (h *BookingHandler) CompleteBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return bookingResponse(h.bookingSvc.CompleteBooking(ctx, userID, req.BookingID))
}

func (h *BookingHandler) CancelBooking(ctx context.Context, req *CancelBookingRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return bookingResponse(h.bookingSvc.CancelBooking(ctx, userID, req.BookingID, req.Reason))
}

func (h *BookingHandler) GetBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return bookingResponse(h.bookingSvc.GetBooking(ctx, userID, req.BookingID))
}

func (h *BookingHandler) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	bookings, count, err := h.bookingSvc.ListBookings(ctx, userID, service.Role(req.Role), req.Status, req.Page, req.PageSize)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListBookingsResponse{Bookings: make([]*Booking, 0, len(bookings)), TotalCount: count}
	for i := range bookings {
		resp.Bookings = append(resp.Bookings, MapDomainBookingToProto(&bookings[i]))
	}
	return resp, nil
}

func (h *BookingHandler) GetCancellationEligibility(ctx context.Context, req *BookingRequest) (*CancellationEligibilityResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	q, err := h.bookingSvc.GetCancellationEligibility(ctx, userID, req.BookingID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancellationEligibilityResponse{Quote: *q}, nil
}

func (h *BookingHandler) CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error) {
	ok, err := h.bookingSvc.CheckAvailability(ctx, req.ToolID, req.StartDate, req.EndDate)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CheckAvailabilityResponse{Available: ok}, nil
}

func (h *BookingHandler) GetBookedPeriods(ctx context.Context, req *BookedPeriodsRequest) (*BookedPeriodsResponse, error) {
	periods, err := h.bookingSvc.GetBookedPeriods(ctx, req.ToolID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &BookedPeriodsResponse{Periods: make([]BookedPeriod, 0, len(periods))}
	for _, p := range periods {
		resp.Periods = append(resp.Periods, MapDomainBookedPeriodToProto(p))
	}
	return resp, nil
}

func (h *BookingHandler) InitiatePayment(ctx context.Context, req *BookingRequest) (*PaymentSessionResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	s, err := h.paymentSvc.InitiatePayment(ctx, userID, req.BookingID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PaymentSessionResponse{
		BookingID:       s.BookingID,
		PaymentIntentID: s.PaymentIntentID,
		ClientSecret:    s.ClientSecret,
		AmountCents:     s.AmountCents,
		Currency:        s.Currency,
	}, nil
}

func (h *BookingHandler) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest) (*BookingResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return bookingResponse(h.paymentSvc.ConfirmPayment(ctx, userID, req.BookingID, req.PaymentMethodID))
}
