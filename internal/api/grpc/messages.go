package grpc

import "ubertool-booking/internal/pricing"

type Fee struct {
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description,omitempty"`
}

type Booking struct {
	ID                   string `json:"id"`
	ToolID               int32  `json:"tool_id"`
	RenterID             int32  `json:"renter_id"`
	OwnerID              int32  `json:"owner_id"`
	StartDate            string `json:"start_date"`
	EndDate              string `json:"end_date"`
	DurationDays         int    `json:"duration_days"`
	DailyPriceCents      int64  `json:"daily_price_cents"`
	DepositCents         int64  `json:"deposit_cents"`
	AdditionalFees       []Fee  `json:"additional_fees,omitempty"`
	TotalPriceCents      int64  `json:"total_price_cents"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
	PaymentStatus        string `json:"payment_status"`
	PaymentIntentID      string `json:"payment_intent_id,omitempty"`
	CapturedCents        int64  `json:"captured_cents"`
	RefundedCents        int64  `json:"refunded_cents"`
	CancellationFeeCents int64  `json:"cancellation_fee_cents,omitempty"`
	RefundAmountCents    int64  `json:"refund_amount_cents,omitempty"`
	CancellationReason   string `json:"cancellation_reason,omitempty"`
	CancelledAt          string `json:"cancelled_at,omitempty"`
	CancelledBy          int32  `json:"cancelled_by,omitempty"`
	Version              int64  `json:"version"`
	CreatedOn            string `json:"created_on"`
	UpdatedOn            string `json:"updated_on"`
}

type BookedPeriod struct {
	BookingID string `json:"booking_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
}

type Notification struct {
	ID         int32             `json:"id"`
	BookingID  string            `json:"booking_id,omitempty"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedOn  string            `json:"created_on"`
}

type CreateBookingRequest struct {
	ToolID         int32  `json:"tool_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// BookingRequest addresses a single booking.
type BookingRequest struct {
	BookingID string `json:"booking_id"`
}

type CancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason,omitempty"`
}

type BookingResponse struct {
	Booking *Booking `json:"booking"`
}

type ListBookingsRequest struct {
	// Role is "renter" or "owner".
	Role     string `json:"role"`
	Status   string `json:"status,omitempty"`
	Page     int32  `json:"page"`
	PageSize int32  `json:"page_size"`
}

type ListBookingsResponse struct {
	Bookings   []*Booking `json:"bookings"`
	TotalCount int32      `json:"total_count"`
}

type CancellationEligibilityResponse struct {
	Quote pricing.CancellationQuote `json:"quote"`
}

type CheckAvailabilityRequest struct {
	ToolID    int32  `json:"tool_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type CheckAvailabilityResponse struct {
	Available bool `json:"available"`
}

type BookedPeriodsRequest struct {
	ToolID int32 `json:"tool_id"`
}

type BookedPeriodsResponse struct {
	Periods []BookedPeriod `json:"periods"`
}

type PaymentSessionResponse struct {
	BookingID       string `json:"booking_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

type ConfirmPaymentRequest struct {
	BookingID       string `json:"booking_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

type GetNotificationsRequest struct {
	Page     int32 `json:"page"`
	PageSize int32 `json:"page_size"`
}

type GetNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	TotalCount    int32          `json:"total_count"`
}

type MarkNotificationReadRequest struct {
	NotificationID int32 `json:"notification_id"`
}

type MarkNotificationReadResponse struct {
	Success bool `json:"success"`
}
