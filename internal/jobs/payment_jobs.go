package jobs

import (
	"context"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
)

// ReconcileStalePayments asks the gateway about intents that have been pending
// longer than the configured age, in case a webhook never arrived.
func (jr *JobRunner) ReconcileStalePayments() {
	jr.runWithRecovery("ReconcileStalePayments", jr.reconcileStale)
}

func (jr *JobRunner) reconcileStale(ctx context.Context) SweepResult {
	cutoff := jr.now().Add(-jr.config.StalePaymentAge())
	stale, err := jr.bookings.ListStalePayments(ctx, cutoff)
	if err != nil {
		logger.Error("Failed to list stale payments", "error", err)
		return SweepResult{}
	}
	return sweep(ctx, "ReconcileStalePayments", stale, func(ctx context.Context, b domain.Booking) error {
		out, err := jr.services.Payment.SyncPayment(ctx, b.ID)
		if err != nil {
			return err
		}
		if out.PaymentStatus != b.PaymentStatus {
			logger.Info("Stale payment reconciled", "booking_id", out.ID, "payment_status", out.PaymentStatus)
		}
		return nil
	})
}

// RetryOwedRefunds pays out refunds a cancellation or completion promised but
// the gateway did not accept at the time.
func (jr *JobRunner) RetryOwedRefunds() {
	jr.runWithRecovery("RetryOwedRefunds", jr.retryOwedRefunds)
}

func (jr *JobRunner) retryOwedRefunds(ctx context.Context) SweepResult {
	owed, err := jr.bookings.ListOwedRefunds(ctx)
	if err != nil {
		logger.Error("Failed to list owed refunds", "error", err)
		return SweepResult{}
	}
	return sweep(ctx, "RetryOwedRefunds", owed, func(ctx context.Context, b domain.Booking) error {
		amount, err := jr.services.Payment.SettleRefund(ctx, b.ID)
		if err != nil {
			return err
		}
		logger.Info("Owed refund settled", "booking_id", b.ID, "amount_cents", amount)
		return nil
	})
}
