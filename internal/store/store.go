// Package store implements the month-partitioned record store: upsert by
// normalized timestamp, range reads across partitions, bounded retries, and a
// health-checked fallback backend for outages of the primary.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/floodwatch/floodcounts/internal/domain"
	"github.com/floodwatch/floodcounts/internal/observability"
)

// Options tune retry and probe behavior. Zero values take the defaults; a nil
// Clock follows the shared domain time source.
type Options struct {
	RetryAttempts int           // default 3
	RetryDelay    time.Duration // default 500ms
	ProbeInterval time.Duration // default 1m
	Clock         clockwork.Clock
}

// RecordStore is the durable home of count records. Writes are upserts keyed
// by normalized timestamp; a per-partition mutex serializes the
// read-modify-write cycle so concurrent writers to the same month cannot lose
// updates.
type RecordStore struct {
	sel     *selector
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock

	attempts      int
	delay         time.Duration
	probeInterval time.Duration

	// promoteMu excludes promotion while a write is in flight: writers hold
	// the read side across backend selection, the write, and the dirty mark,
	// so promotion sees a settled dirty set.
	promoteMu sync.RWMutex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a RecordStore over a primary and a fallback backend.
func New(primary, fallback Backend, opts Options, logger *slog.Logger, metrics *observability.Metrics) *RecordStore {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = domain.Clock()
	}
	return &RecordStore{
		sel:           newSelector(primary, fallback),
		logger:        logger,
		metrics:       metrics,
		clock:         opts.Clock,
		attempts:      opts.RetryAttempts,
		delay:         opts.RetryDelay,
		probeInterval: opts.ProbeInterval,
		locks:         make(map[string]*sync.Mutex),
	}
}

// Store normalizes the timestamp to its 15-minute slot and upserts the counts
// into the slot's month partition: any existing record at the exact timestamp
// is replaced, the partition stays sorted, and the whole partition is written
// back in one backend call. Returns the record as stored.
func (s *RecordStore) Store(ctx context.Context, timestamp string, counts domain.Counts) (domain.CountRecord, error) {
	normalized, err := domain.NormalizeTimestamp(timestamp)
	if err != nil {
		return domain.CountRecord{}, err
	}
	record := domain.NewRecord(normalized, counts)
	if err := record.Validate(); err != nil {
		return domain.CountRecord{}, err
	}

	key := domain.PartitionKey(normalized)
	unlock := s.lockPartition(key)
	defer unlock()

	existing, err := s.readPartition(ctx, key)
	if err != nil {
		// Refuse to write a partition we could not read: rewriting it with a
		// single record would clobber every earlier record in the month.
		return domain.CountRecord{}, fmt.Errorf("load partition %s: %w", key, err)
	}

	if err := s.writePartition(ctx, key, upsert(existing, record)); err != nil {
		return domain.CountRecord{}, fmt.Errorf("write partition %s: %w", key, err)
	}

	s.metrics.RecordsStored.Inc()
	s.logger.Debug("stored counts", "timestamp", normalized, "partition", key)
	return record, nil
}

// Latest returns the newest record in the current calendar month's partition.
// It deliberately does not look back at earlier months: at the start of a
// month, before the first write, it reports domain.ErrNoData even when prior
// data exists.
func (s *RecordStore) Latest(ctx context.Context) (domain.CountRecord, error) {
	timer := prometheus.NewTimer(s.metrics.QueryDuration.WithLabelValues("latest"))
	defer timer.ObserveDuration()

	key := s.clock.Now().UTC().Format("2006-01")
	records, err := s.readPartition(ctx, key)
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("read partition %s: %w", key, err)
	}
	if len(records) == 0 {
		return domain.CountRecord{}, domain.ErrNoData
	}
	return records[len(records)-1], nil
}

// ReadRange returns every record with start ≤ timestamp ≤ end, ascending,
// with no duplicate timestamps. Missing month partitions contribute nothing;
// a month whose read fails outright is skipped with a warning so one bad
// partition cannot take down the whole query. An empty result is an empty
// slice, not an error; the serving layer decides whether to substitute a
// default.
func (s *RecordStore) ReadRange(ctx context.Context, start, end time.Time) ([]domain.CountRecord, error) {
	timer := prometheus.NewTimer(s.metrics.QueryDuration.WithLabelValues("range"))
	defer timer.ObserveDuration()

	warnings, err := domain.ValidateRange(start, end)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.logger.Warn("date range advisory", "warning", w,
			"start", start.Format(domain.TimeLayout), "end", end.Format(domain.TimeLayout))
	}

	var all []domain.CountRecord
	for _, month := range domain.MonthsInRange(start, end) {
		records, err := s.readPartition(ctx, month)
		if err != nil {
			s.logger.Warn("skipping unreadable partition", "partition", month, "error", err)
			continue
		}
		all = append(all, records...)
	}

	// ISO timestamps in the fixed layout sort lexicographically, so the range
	// filter is a plain string comparison.
	startISO := start.Format(domain.TimeLayout)
	endISO := end.Format(domain.TimeLayout)
	filtered := all[:0:0]
	for _, r := range all {
		if startISO <= r.Timestamp && r.Timestamp <= endISO {
			filtered = append(filtered, r)
		}
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp < filtered[j].Timestamp })
	return dedupe(filtered), nil
}

// RunProbe drives fallback recovery until the context is cancelled: while
// demoted, it pings the primary on the probe interval and, once reachable,
// replays dirty partitions into it before promoting it back into service.
func (s *RecordStore) RunProbe(ctx context.Context) {
	ticker := s.clock.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tryPromote(ctx)
		}
	}
}

// Demoted reports whether the fallback backend is serving.
func (s *RecordStore) Demoted() bool {
	return s.sel.isDemoted()
}

func (s *RecordStore) tryPromote(ctx context.Context) {
	if !s.sel.isDemoted() {
		return
	}
	if err := s.sel.primary.Ping(ctx); err != nil {
		s.logger.Debug("primary still unreachable", "backend", s.sel.primary.Name(), "error", err)
		return
	}

	for _, key := range s.sel.dirtyKeys() {
		if err := s.replayPartition(ctx, key); err != nil {
			s.logger.Warn("promotion replay failed, staying on fallback",
				"partition", key, "error", err)
			return
		}
		s.sel.clearDirty(key)
	}

	// A write racing the replay loop may have dirtied a partition after the
	// snapshot above. Re-check with writers excluded; a non-empty set means
	// we stay demoted and the next probe replays the stragglers.
	s.promoteMu.Lock()
	defer s.promoteMu.Unlock()
	if keys := s.sel.dirtyKeys(); len(keys) > 0 {
		s.logger.Info("promotion deferred, partitions dirtied during replay", "partitions", keys)
		return
	}

	s.sel.promote()
	s.metrics.FallbackActive.Set(0)
	s.metrics.Promotions.Inc()
	s.logger.Info("primary backend promoted", "backend", s.sel.primary.Name())
}

// replayPartition merges the fallback's copy of a partition into the primary,
// fallback records winning on equal timestamps.
func (s *RecordStore) replayPartition(ctx context.Context, key string) error {
	unlock := s.lockPartition(key)
	defer unlock()

	fallbackRecords, err := s.sel.fallback.ReadPartition(ctx, key)
	if err != nil {
		return fmt.Errorf("read fallback partition %s: %w", key, err)
	}
	primaryRecords, err := s.sel.primary.ReadPartition(ctx, key)
	if err != nil {
		return fmt.Errorf("read primary partition %s: %w", key, err)
	}
	merged := mergeRecords(primaryRecords, fallbackRecords)
	if err := s.sel.primary.WritePartition(ctx, key, merged); err != nil {
		return fmt.Errorf("write primary partition %s: %w", key, err)
	}
	s.logger.Info("replayed partition to primary", "partition", key, "records", len(merged))
	return nil
}

// readPartition reads through the active backend with retries, demoting to
// the fallback when the primary's retries are exhausted. A structurally
// invalid partition counts as a failed read, so a corrupt primary copy falls
// back the same way an unreachable one does.
func (s *RecordStore) readPartition(ctx context.Context, key string) ([]domain.CountRecord, error) {
	var records []domain.CountRecord
	readFrom := func(backend Backend) func(context.Context) error {
		return func(ctx context.Context) error {
			var readErr error
			if records, readErr = backend.ReadPartition(ctx, key); readErr != nil {
				return readErr
			}
			if err := domain.ValidateRecords(records); err != nil {
				return fmt.Errorf("partition %s from %s: %w", key, backend.Name(), err)
			}
			return nil
		}
	}

	backend := s.sel.active()
	err := s.withRetry(ctx, readFrom(backend))
	if err != nil && backend == s.sel.primary {
		s.demote(err)
		err = s.withRetry(ctx, readFrom(s.sel.fallback))
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// writePartition writes through the active backend with retries. A primary
// write that exhausts its retries demotes and lands on the fallback instead,
// marking the partition dirty for later replay: durability to some location
// beats failing the caller for reproducible poll data.
func (s *RecordStore) writePartition(ctx context.Context, key string, records []domain.CountRecord) error {
	if err := domain.ValidateRecords(records); err != nil {
		return err
	}

	s.promoteMu.RLock()
	defer s.promoteMu.RUnlock()

	backend := s.sel.active()
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return backend.WritePartition(ctx, key, records)
	})
	if err != nil && backend == s.sel.primary {
		s.demote(err)
		err = s.withRetry(ctx, func(ctx context.Context) error {
			return s.sel.fallback.WritePartition(ctx, key, records)
		})
		if err == nil {
			s.sel.markDirty(key)
			s.metrics.FallbackWrites.Inc()
		}
	} else if err == nil && s.sel.isDemoted() {
		s.sel.markDirty(key)
		s.metrics.FallbackWrites.Inc()
	}
	return err
}

func (s *RecordStore) demote(cause error) {
	if s.sel.demote() {
		s.metrics.FallbackActive.Set(1)
		s.logger.Error("primary backend demoted, serving from fallback",
			"backend", s.sel.primary.Name(), "error", cause)
	}
}

// withRetry runs op up to the configured attempt count with a fixed
// context-aware delay between attempts. The final error is wrapped in
// domain.ErrRetriesExhausted.
func (s *RecordStore) withRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < s.attempts {
			s.metrics.StoreRetries.Inc()
			if !s.sleep(ctx, s.delay) {
				break
			}
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrRetriesExhausted, err)
}

func (s *RecordStore) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *RecordStore) lockPartition(key string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// upsert replaces any record sharing the new record's exact timestamp and
// keeps the partition sorted ascending. Last write wins.
func upsert(records []domain.CountRecord, record domain.CountRecord) []domain.CountRecord {
	out := make([]domain.CountRecord, 0, len(records)+1)
	for _, r := range records {
		if r.Timestamp != record.Timestamp {
			out = append(out, r)
		}
	}
	out = append(out, record)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// dedupe removes adjacent duplicate timestamps from a sorted slice, keeping
// the last occurrence.
func dedupe(records []domain.CountRecord) []domain.CountRecord {
	if len(records) < 2 {
		return records
	}
	out := records[:0:0]
	for i, r := range records {
		if i+1 < len(records) && records[i+1].Timestamp == r.Timestamp {
			continue
		}
		out = append(out, r)
	}
	return out
}
