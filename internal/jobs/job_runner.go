package jobs

import (
	"context"
	"time"

	"ubertool-booking/internal/config"
	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/repository"
	"ubertool-booking/internal/service"
)

// jobTimeout bounds a single sweep.
const jobTimeout = 5 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	bookings repository.BookingRepository
	services *Services
	config   *config.Config
	now      func() time.Time
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Booking service.BookingService
	Payment service.PaymentCoordinator
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(bookings repository.BookingRepository, services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		bookings: bookings,
		services: services,
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Candidates int
	Succeeded  int
	Failed     int
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) SweepResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	res := jobFunc(ctx)
	logger.Info("Job completed", "job", jobName, "candidates", res.Candidates, "succeeded", res.Succeeded, "failed", res.Failed)
}

// sweep applies fn to every booking, stopping early if ctx ends. A failure on
// one booking does not stop the others; the next run picks it up again.
func sweep(ctx context.Context, jobName string, list []domain.Booking, fn func(ctx context.Context, b domain.Booking) error) SweepResult {
	res := SweepResult{Candidates: len(list)}
	for _, b := range list {
		if ctx.Err() != nil {
			logger.Warn("Job interrupted", "job", jobName, "error", ctx.Err())
			break
		}
		if err := fn(ctx, b); err != nil {
			logger.Warn("Job step failed", "job", jobName, "booking_id", b.ID, "error", err)
			res.Failed++
			continue
		}
		res.Succeeded++
	}
	return res
}

// RunAll runs every sweep once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ActivateDueBookings()
	jr.CompleteEndedBookings()
	jr.ReconcileStalePayments()
	jr.RetryOwedRefunds()
}
