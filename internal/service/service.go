// Package service is the caller-facing query API. It composes the record
// store with span-keyed aggregation and pagination, and is the one layer that
// applies the graceful-default policy: every method returns a well-formed
// value, substituting the zero-valued default record when a read yields
// nothing or fails. Lower layers stay typed (errors and empty slices) so this
// policy remains an explicit choice here rather than baked into the core.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/floodwatch/floodcounts/internal/domain"
)

// Store is the record store surface the service consumes.
type Store interface {
	Store(ctx context.Context, timestamp string, counts domain.Counts) (domain.CountRecord, error)
	Latest(ctx context.Context) (domain.CountRecord, error)
	ReadRange(ctx context.Context, start, end time.Time) ([]domain.CountRecord, error)
}

// Summary aggregates the last seven days of counts for the summary endpoint.
type Summary struct {
	MaxSeveres  int     `json:"max_severes"`
	MaxWarnings int     `json:"max_warnings"`
	MaxAlerts   int     `json:"max_alerts"`
	AvgSeveres  float64 `json:"avg_severes"`
	AvgWarnings float64 `json:"avg_warnings"`
	AvgAlerts   float64 `json:"avg_alerts"`
}

// Service answers count queries.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New creates a Service over the given store.
func New(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Store upserts a tally at the given timestamp. Used by the poller and by
// manual backfills.
func (s *Service) Store(ctx context.Context, timestamp string, counts domain.Counts) (domain.CountRecord, error) {
	return s.store.Store(ctx, timestamp, counts)
}

// Current returns the most recent record of the current month, or the default
// zero record when the month has no data yet or the read fails.
func (s *Service) Current(ctx context.Context) domain.CountRecord {
	record, err := s.store.Latest(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoData) {
			s.logger.Error("latest counts query failed", "error", err)
		}
		return domain.DefaultRecord()
	}
	return record
}

// Historical returns the records between start and end inclusive, aggregated
// into time buckets keyed on the span (over 7 days → 6h, over 2 days → 2h,
// over 1 day → 1h, otherwise raw) and paginated when page and perPage are
// positive. An empty or failed query yields a single default record so
// callers always receive at least one.
func (s *Service) Historical(ctx context.Context, start, end time.Time, page, perPage int) []domain.CountRecord {
	records, err := s.store.ReadRange(ctx, start, end)
	if err != nil {
		s.logger.Error("historical query failed", "error", err,
			"start", start.Format(domain.TimeLayout), "end", end.Format(domain.TimeLayout))
		return []domain.CountRecord{domain.DefaultRecord()}
	}

	if width := domain.BucketWidth(end.Sub(start)); width > 0 {
		records = domain.Aggregate(records, width)
	}
	records = domain.Paginate(records, page, perPage)

	if len(records) == 0 {
		return []domain.CountRecord{domain.DefaultRecord()}
	}
	return records
}

// WeeklySummary computes max and mean counts over the trailing seven days.
// The statistics run over raw 15-minute records; span-keyed bucketing applies
// only to the historical endpoint. An empty week degrades to the default
// record's zeros.
func (s *Service) WeeklySummary(ctx context.Context, now time.Time) Summary {
	records, err := s.store.ReadRange(ctx, now.Add(-7*24*time.Hour), now)
	if err != nil {
		s.logger.Error("summary query failed", "error", err)
		records = nil
	}
	if len(records) == 0 {
		records = []domain.CountRecord{domain.DefaultRecord()}
	}

	var sum Summary
	var severes, warnings, alerts int
	for _, r := range records {
		severes += r.Severes
		warnings += r.Warnings
		alerts += r.Alerts
		sum.MaxSeveres = max(sum.MaxSeveres, r.Severes)
		sum.MaxWarnings = max(sum.MaxWarnings, r.Warnings)
		sum.MaxAlerts = max(sum.MaxAlerts, r.Alerts)
	}
	n := float64(len(records))
	sum.AvgSeveres = float64(severes) / n
	sum.AvgWarnings = float64(warnings) / n
	sum.AvgAlerts = float64(alerts) / n
	return sum
}
