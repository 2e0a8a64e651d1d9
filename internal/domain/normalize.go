package domain

import (
	"fmt"
	"time"
)

// NormalizeTimestamp snaps a timestamp down to the nearest preceding
// 15-minute boundary: minute truncated to a multiple of 15, seconds and
// sub-seconds zeroed, date and hour preserved. The result is always in
// TimeLayout regardless of the input layout. Idempotent.
func NormalizeTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	snapped := time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute()/15*15, 0, 0, time.UTC,
	)
	return snapped.Format(TimeLayout), nil
}

// PartitionKey derives the month partition key ("YYYY-MM") from a normalized
// timestamp.
func PartitionKey(normalized string) string {
	if len(normalized) < 7 {
		return normalized
	}
	return normalized[:7]
}

// MonthsInRange enumerates every calendar month key from start's month
// through end's month inclusive. Returns nil when start is after end.
func MonthsInRange(start, end time.Time) []string {
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	var months []string
	for !cur.After(last) {
		months = append(months, cur.Format("2006-01"))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// ValidateRange checks that start does not come after end. Advisory
// conditions (end in the future, span over a year) are reported as
// non-blocking warnings, not errors.
func ValidateRange(start, end time.Time) (warnings []string, err error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start date %s after end date %s",
			ErrValidation, start.Format(TimeLayout), end.Format(TimeLayout))
	}
	if end.After(clock.Now()) {
		warnings = append(warnings, "end date is in the future")
	}
	if end.Sub(start) > 365*24*time.Hour {
		warnings = append(warnings, "date range exceeds 365 days")
	}
	return warnings, nil
}
