package domain

import (
	"math"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateRange is a half-open calendar range [Start, End). Both bounds are
// midnight UTC; End is the first day the tool is free again.
type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// ParseDate parses a yyyy-mm-dd date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// TruncateToDate drops the time-of-day component after converting to UTC.
func TruncateToDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDateRange normalizes both bounds to calendar dates and checks ordering.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: TruncateToDate(start), End: TruncateToDate(end)}
	if !r.Start.Before(r.End) {
		return DateRange{}, NewValidationError("end_date", "end date must be after start date")
	}
	return r, nil
}

// ParseDateRange parses two yyyy-mm-dd strings into a range.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, NewValidationError("start_date", "start date must be formatted as yyyy-mm-dd")
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, NewValidationError("end_date", "end date must be formatted as yyyy-mm-dd")
	}
	return NewDateRange(s, e)
}

// Days returns the number of whole calendar days, rounding partial days up.
func (r DateRange) Days() int {
	return int(math.Ceil(r.End.Sub(r.Start).Hours() / 24))
}

// Overlaps reports whether two half-open ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}
