package service

import (
	"context"
	"errors"
	"strconv"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/repository"
)

type availabilityChecker struct {
	toolRepo    repository.ToolRepository
	bookingRepo repository.BookingRepository
}

func NewAvailabilityChecker(toolRepo repository.ToolRepository, bookingRepo repository.BookingRepository) AvailabilityChecker {
	return &availabilityChecker{toolRepo: toolRepo, bookingRepo: bookingRepo}
}

func (c *availabilityChecker) ensureTool(ctx context.Context, toolID int32) error {
	if _, err := c.toolRepo.GetByID(ctx, toolID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewNotFoundError("tool", strconv.Itoa(int(toolID)))
		}
		return err
	}
	return nil
}

// IsAvailable reports whether r is free of approved or active bookings on
// the tool. Ranges are half-open, so a booking ending on r.Start does not
// conflict.
func (c *availabilityChecker) IsAvailable(ctx context.Context, toolID int32, r domain.DateRange, excludingBookingID string) (bool, error) {
	if err := c.ensureTool(ctx, toolID); err != nil {
		return false, err
	}
	blocking, err := c.bookingRepo.ListByTool(ctx, toolID, domain.BookingStatusApproved, domain.BookingStatusActive)
	if err != nil {
		return false, err
	}
	for i := range blocking {
		b := &blocking[i]
		if b.ID == excludingBookingID {
			continue
		}
		if b.Range().Overlaps(r) {
			logger.Debug("Range overlaps existing booking", "toolID", toolID, "range", r.String(), "bookingID", b.ID)
			return false, nil
		}
	}
	return true, nil
}

// BookedPeriods lists the tool's open bookings for calendar display, pending
// requests included, ordered by start date.
func (c *availabilityChecker) BookedPeriods(ctx context.Context, toolID int32) ([]domain.BookedPeriod, error) {
	if err := c.ensureTool(ctx, toolID); err != nil {
		return nil, err
	}
	open, err := c.bookingRepo.ListByTool(ctx, toolID, domain.BookingStatusPending, domain.BookingStatusApproved, domain.BookingStatusActive)
	if err != nil {
		return nil, err
	}
	periods := make([]domain.BookedPeriod, 0, len(open))
	for _, b := range open {
		periods = append(periods, domain.BookedPeriod{
			BookingID: b.ID,
			StartDate: b.StartDate,
			EndDate:   b.EndDate,
			Status:    b.Status,
		})
	}
	return periods, nil
}
