package domain

import (
	"fmt"
	"time"
)

// TimeLayout is the fixed-width, timezone-naive timestamp layout used in every
// stored and serialized record. Lexicographic order over strings in this
// layout equals chronological order, which the range filter relies on.
const TimeLayout = "2006-01-02T15:04:05"

// parseLayouts are the accepted input layouts, tried in order. Stored data is
// always TimeLayout; callers may hand in fractional seconds or an RFC 3339
// offset, which normalization strips.
var parseLayouts = []string{
	TimeLayout,
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
}

// Counts is the per-severity tally produced by one poll of the flood feed.
type Counts struct {
	Severes  int `json:"severes"`  // severity level 1
	Warnings int `json:"warnings"` // severity level 2
	Alerts   int `json:"alerts"`   // severity level 3
}

// CountRecord is the atomic stored unit: one severity tally at one
// 15-minute-aligned timestamp. Field order is a serialization contract
// (timestamp, severes, warnings, alerts) and must not be reordered.
type CountRecord struct {
	Timestamp string `json:"timestamp"`
	Severes   int    `json:"severes"`
	Warnings  int    `json:"warnings"`
	Alerts    int    `json:"alerts"`
}

// NewRecord builds a record from a counts tally at the given normalized
// timestamp.
func NewRecord(timestamp string, c Counts) CountRecord {
	return CountRecord{
		Timestamp: timestamp,
		Severes:   c.Severes,
		Warnings:  c.Warnings,
		Alerts:    c.Alerts,
	}
}

// DefaultRecord returns the canonical zero-valued record, stamped with the
// current time. Serving paths substitute it when a query yields nothing so
// clients always receive at least one well-formed record.
func DefaultRecord() CountRecord {
	return CountRecord{Timestamp: clock.Now().Format(TimeLayout)}
}

// ParseTimestamp parses an ISO-8601 timestamp in any accepted layout.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrParse, s)
}

// Validate checks the structural invariants required of any record read from
// or written to a partition: a parseable timestamp and non-negative counts.
func (r CountRecord) Validate() error {
	if _, err := ParseTimestamp(r.Timestamp); err != nil {
		return fmt.Errorf("%w: record timestamp: %v", ErrValidation, err)
	}
	if r.Severes < 0 || r.Warnings < 0 || r.Alerts < 0 {
		return fmt.Errorf("%w: negative count in record at %s", ErrValidation, r.Timestamp)
	}
	return nil
}

// ValidateRecords applies Validate to every record, failing on the first
// violation. Used as the structural gate around backend reads and writes.
func ValidateRecords(records []CountRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
