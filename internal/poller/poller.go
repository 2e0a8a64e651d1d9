// Package poller drives the periodic fetch-and-store cycle: every interval it
// tallies the flood feed and upserts the counts into the record store.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/floodwatch/floodcounts/internal/domain"
	"github.com/floodwatch/floodcounts/internal/observability"
)

// Fetcher tallies the upstream feed once.
type Fetcher interface {
	FetchCounts(ctx context.Context) (domain.Counts, error)
}

// Storer upserts a tally at a timestamp and returns the record as stored.
type Storer interface {
	Store(ctx context.Context, timestamp string, counts domain.Counts) (domain.CountRecord, error)
}

// Publisher mirrors a stored record to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, record domain.CountRecord) error
}

// Poller runs the fetch-and-store loop on a fixed interval.
type Poller struct {
	fetcher   Fetcher
	storer    Storer
	publisher Publisher // nil when snapshot publishing is disabled
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Poller. Pass a nil publisher to disable snapshot publishing
// and a nil clock to use the shared domain time source.
func New(f Fetcher, s Storer, p Publisher, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	if clock == nil {
		clock = domain.Clock()
	}
	return &Poller{
		fetcher:   f,
		storer:    s,
		publisher: p,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one poll has stored a record.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no flood counts stored yet")
	}
	return nil
}

// Run polls immediately, then on every interval tick until the context is
// cancelled. A failed poll is logged and counted, never fatal: the next tick
// simply tries again.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.interval)
	p.metrics.PollerRunning.Set(1)
	defer p.metrics.PollerRunning.Set(0)

	p.poll(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.poll(ctx)
		}
	}
}

// poll runs one fetch-store-publish cycle.
func (p *Poller) poll(ctx context.Context) {
	counts, err := p.fetcher.FetchCounts(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("fetch flood counts failed", "error", err)
		p.metrics.PollsTotal.WithLabelValues("fetch_error").Inc()
		return
	}

	timestamp := p.clock.Now().UTC().Format(domain.TimeLayout)
	record, err := p.storer.Store(ctx, timestamp, counts)
	if err != nil {
		p.logger.Error("store flood counts failed", "error", err, "timestamp", timestamp)
		p.metrics.PollsTotal.WithLabelValues("store_error").Inc()
		return
	}

	p.metrics.PollsTotal.WithLabelValues("success").Inc()
	p.ready.Store(true)
	p.logger.Info("stored flood counts", "timestamp", record.Timestamp,
		"severes", record.Severes, "warnings", record.Warnings, "alerts", record.Alerts)

	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, record); err != nil {
		// Publishing is best-effort; the record is already durable.
		p.logger.Warn("publish snapshot failed", "error", err, "timestamp", record.Timestamp)
		p.metrics.PublishErrors.Inc()
		return
	}
	p.metrics.SnapshotsPublished.Inc()
}
