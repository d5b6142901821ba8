package jobs

import (
	"context"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
)

// ActivateDueBookings activates approved, paid bookings whose start date has arrived
func (jr *JobRunner) ActivateDueBookings() {
	jr.runWithRecovery("ActivateDueBookings", jr.activateDue)
}

func (jr *JobRunner) activateDue(ctx context.Context) SweepResult {
	due, err := jr.bookings.ListDueForActivation(ctx, jr.now())
	if err != nil {
		logger.Error("Failed to list bookings due for activation", "error", err)
		return SweepResult{}
	}
	return sweep(ctx, "ActivateDueBookings", due, func(ctx context.Context, b domain.Booking) error {
		out, err := jr.services.Booking.ActivateBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		logger.Debug("Activated booking", "booking_id", out.ID, "tool_id", out.ToolID, "start_date", out.StartDate.Format(domain.DateLayout))
		return nil
	})
}

// CompleteEndedBookings completes active bookings whose end date has passed
func (jr *JobRunner) CompleteEndedBookings() {
	jr.runWithRecovery("CompleteEndedBookings", jr.completeEnded)
}

func (jr *JobRunner) completeEnded(ctx context.Context) SweepResult {
	ended, err := jr.bookings.ListEndedActive(ctx, jr.now())
	if err != nil {
		logger.Error("Failed to list ended bookings", "error", err)
		return SweepResult{}
	}
	return sweep(ctx, "CompleteEndedBookings", ended, func(ctx context.Context, b domain.Booking) error {
		out, err := jr.services.Booking.CompleteBooking(ctx, 0, b.ID)
		if err != nil {
			return err
		}
		logger.Debug("Completed booking", "booking_id", out.ID, "deposit_released", out.DepositReleased)
		return nil
	})
}
