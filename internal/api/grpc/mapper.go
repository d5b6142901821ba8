package grpc

import (
	"time"

	"ubertool-booking/internal/domain"
)

func MapDomainBookingToProto(b *domain.Booking) *Booking {
	if b == nil {
		return nil
	}
	out := &Booking{
		ID:                   b.ID,
		ToolID:               b.ToolID,
		RenterID:             b.RenterID,
		OwnerID:              b.OwnerID,
		StartDate:            b.StartDate.Format(domain.DateLayout),
		EndDate:              b.EndDate.Format(domain.DateLayout),
		DurationDays:         b.DurationDays,
		DailyPriceCents:      b.DailyPriceCents,
		DepositCents:         b.DepositCents,
		TotalPriceCents:      b.TotalPriceCents,
		Currency:             b.Currency,
		Status:               string(b.Status),
		PaymentStatus:        string(b.PaymentStatus),
		PaymentIntentID:      b.PaymentIntentID,
		CapturedCents:        b.CapturedCents,
		RefundedCents:        b.RefundedCents,
		CancellationFeeCents: b.CancellationFeeCents,
		RefundAmountCents:    b.RefundAmountCents,
		CancellationReason:   b.CancellationReason,
		Version:              b.Version,
		CreatedOn:            b.CreatedAt.Format(time.RFC3339),
		UpdatedOn:            b.UpdatedAt.Format(time.RFC3339),
	}
	for _, f := range b.AdditionalFees {
		out.AdditionalFees = append(out.AdditionalFees, Fee{Type: f.Type, AmountCents: f.AmountCents, Description: f.Description})
	}
	if b.CancelledAt != nil {
		out.CancelledAt = b.CancelledAt.Format(time.RFC3339)
	}
	if b.CancelledBy != nil {
		out.CancelledBy = *b.CancelledBy
	}
	return out
}

func MapDomainBookedPeriodToProto(p domain.BookedPeriod) BookedPeriod {
	return BookedPeriod{
		BookingID: p.BookingID,
		StartDate: p.StartDate.Format(domain.DateLayout),
		EndDate:   p.EndDate.Format(domain.DateLayout),
		Status:    string(p.Status),
	}
}

func MapDomainNotificationToProto(n domain.Notification) Notification {
	return Notification{
		ID:         n.ID,
		BookingID:  n.BookingID,
		Title:      n.Title,
		Message:    n.Message,
		IsRead:     n.IsRead,
		Attributes: n.Attributes,
		CreatedOn:  n.CreatedOn.Format(time.RFC3339),
	}
}
