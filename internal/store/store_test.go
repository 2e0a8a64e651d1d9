package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodwatch/floodcounts/internal/domain"
	"github.com/floodwatch/floodcounts/internal/observability"
)

// memBackend is an in-memory Backend with injectable failures.
type memBackend struct {
	name string

	mu         sync.Mutex
	partitions map[string][]domain.CountRecord
	readErr    error
	writeErr   error
	pingErr    error
	reads      int
	writes     int
	onWrite    func() // fires once, after the next successful write
}

func newMemBackend(name string) *memBackend {
	return &memBackend{name: name, partitions: make(map[string][]domain.CountRecord)}
}

func (b *memBackend) Name() string { return b.name }

func (b *memBackend) ReadPartition(_ context.Context, key string) ([]domain.CountRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	if b.readErr != nil {
		return nil, b.readErr
	}
	return append([]domain.CountRecord(nil), b.partitions[key]...), nil
}

func (b *memBackend) WritePartition(_ context.Context, key string, records []domain.CountRecord) error {
	b.mu.Lock()
	b.writes++
	if b.writeErr != nil {
		b.mu.Unlock()
		return b.writeErr
	}
	b.partitions[key] = append([]domain.CountRecord(nil), records...)
	hook := b.onWrite
	b.onWrite = nil
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (b *memBackend) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pingErr
}

func (b *memBackend) setErrs(read, write, ping error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErr, b.writeErr, b.pingErr = read, write, ping
}

func (b *memBackend) partition(key string) []domain.CountRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.CountRecord(nil), b.partitions[key]...)
}

func rec(ts string, severes, warnings, alerts int) domain.CountRecord {
	return domain.CountRecord{Timestamp: ts, Severes: severes, Warnings: warnings, Alerts: alerts}
}

func newTestStore(t *testing.T, primary, fallback Backend) *RecordStore {
	t.Helper()
	return New(primary, fallback, Options{
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, slog.Default(), observability.NewMetricsForTesting())
}

func TestStore_UpsertByNormalizedTimestamp(t *testing.T) {
	primary := newMemBackend("primary")
	s := newTestStore(t, primary, newMemBackend("fallback"))

	_, err := s.Store(context.Background(), "2024-01-01T00:07:00", domain.Counts{Severes: 1, Warnings: 2, Alerts: 3})
	require.NoError(t, err)
	stored, err := s.Store(context.Background(), "2024-01-01T00:07:59", domain.Counts{Severes: 4, Warnings: 5, Alerts: 6})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01T00:00:00", stored.Timestamp)

	got := primary.partition("2024-01")
	require.Len(t, got, 1)
	assert.Equal(t, rec("2024-01-01T00:00:00", 4, 5, 6), got[0])
}

func TestStore_PartitionStaysSorted(t *testing.T) {
	primary := newMemBackend("primary")
	s := newTestStore(t, primary, newMemBackend("fallback"))

	for _, ts := range []string{"2024-01-02T10:00:00", "2024-01-01T08:15:00", "2024-01-01T23:45:00"} {
		_, err := s.Store(context.Background(), ts, domain.Counts{})
		require.NoError(t, err)
	}

	want := []domain.CountRecord{
		rec("2024-01-01T08:15:00", 0, 0, 0),
		rec("2024-01-01T23:45:00", 0, 0, 0),
		rec("2024-01-02T10:00:00", 0, 0, 0),
	}
	if diff := cmp.Diff(want, primary.partition("2024-01")); diff != "" {
		t.Errorf("partition mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_MalformedTimestamp(t *testing.T) {
	s := newTestStore(t, newMemBackend("primary"), newMemBackend("fallback"))
	_, err := s.Store(context.Background(), "garbage", domain.Counts{})
	require.ErrorIs(t, err, domain.ErrParse)
}

func TestStore_RefusesWriteWhenPartitionUnreadable(t *testing.T) {
	primary := newMemBackend("primary")
	fallback := newMemBackend("fallback")
	primary.setErrs(errors.New("primary down"), nil, nil)
	fallback.setErrs(errors.New("fallback down"), nil, nil)
	s := newTestStore(t, primary, fallback)

	_, err := s.Store(context.Background(), "2024-01-01T00:07:00", domain.Counts{})
	require.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Zero(t, primary.writes)
	assert.Zero(t, fallback.writes)
}

func TestStore_WriteFailureDemotesToFallback(t *testing.T) {
	primary := newMemBackend("primary")
	fallback := newMemBackend("fallback")
	primary.setErrs(nil, errors.New("write refused"), nil)
	s := newTestStore(t, primary, fallback)

	_, err := s.Store(context.Background(), "2024-01-01T00:07:00", domain.Counts{Severes: 1})
	require.NoError(t, err)

	assert.True(t, s.Demoted())
	require.Len(t, fallback.partition("2024-01"), 1)
	assert.Equal(t, []string{"2024-01"}, s.sel.dirtyKeys())
}

func TestStore_ReadFailureFallsBack(t *testing.T) {
	primary := newMemBackend("primary")
	fallback := newMemBackend("fallback")
	fallback.partitions["2024-01"] = []domain.CountRecord{rec("2024-01-01T00:00:00", 7, 8, 9)}
	primary.setErrs(errors.New("unreachable"), nil, nil)
	s := newTestStore(t, primary, fallback)

	got, err := s.ReadRange(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec("2024-01-01T00:00:00", 7, 8, 9), got[0])
	assert.True(t, s.Demoted())
}

func TestStore_RetriesBeforeDemotion(t *testing.T) {
	primary := newMemBackend("primary")
	primary.setErrs(errors.New("flaky"), nil, nil)
	s := newTestStore(t, primary, newMemBackend("fallback"))

	_, err := s.Latest(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, primary.reads) // RetryAttempts, then demotion
}

func TestLatest_CurrentMonthOnly(t *testing.T) {
	primary := newMemBackend("primary")
	primary.partitions["2024-01"] = []domain.CountRecord{rec("2024-01-31T23:45:00", 1, 1, 1)}
	s := New(primary, newMemBackend("fallback"), Options{
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		Clock:         clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 0, 5, 0, 0, time.UTC)),
	}, slog.Default(), observability.NewMetricsForTesting())

	// January data exists but February's partition is empty.
	_, err := s.Latest(context.Background())
	require.ErrorIs(t, err, domain.ErrNoData)
}

func TestLatest_ReturnsNewestRecord(t *testing.T) {
	primary := newMemBackend("primary")
	primary.partitions["2024-01"] = []domain.CountRecord{
		rec("2024-01-01T00:00:00", 1, 0, 0),
		rec("2024-01-01T00:15:00", 2, 0, 0),
	}
	s := New(primary, newMemBackend("fallback"), Options{
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		Clock:         clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)),
	}, slog.Default(), observability.NewMetricsForTesting())

	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec("2024-01-01T00:15:00", 2, 0, 0), got)
}

func TestLatest_DefaultsToDomainClock(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	primary := newMemBackend("primary")
	primary.partitions["2024-01"] = []domain.CountRecord{rec("2024-01-15T11:45:00", 3, 0, 0)}
	s := newTestStore(t, primary, newMemBackend("fallback"))

	// No Options.Clock: the store follows the shared domain clock.
	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec("2024-01-15T11:45:00", 3, 0, 0), got)
}

func TestReadRange_FiltersSortsAndSpansMonths(t *testing.T) {
	primary := newMemBackend("primary")
	primary.partitions["2024-01"] = []domain.CountRecord{
		rec("2024-01-30T00:00:00", 1, 0, 0),
		rec("2024-01-31T12:00:00", 2, 0, 0),
	}
	primary.partitions["2024-02"] = []domain.CountRecord{
		rec("2024-02-01T00:00:00", 3, 0, 0),
		rec("2024-02-20T00:00:00", 4, 0, 0), // past end, filtered out
	}
	s := newTestStore(t, primary, newMemBackend("fallback"))

	got, err := s.ReadRange(context.Background(),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	want := []domain.CountRecord{
		rec("2024-01-31T12:00:00", 2, 0, 0),
		rec("2024-02-01T00:00:00", 3, 0, 0),
	}
	assert.Equal(t, want, got)
}

func TestReadRange_InclusiveBounds(t *testing.T) {
	primary := newMemBackend("primary")
	primary.partitions["2024-01"] = []domain.CountRecord{rec("2024-01-15T00:00:00", 1, 0, 0)}
	s := newTestStore(t, primary, newMemBackend("fallback"))

	exact := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	got, err := s.ReadRange(context.Background(), exact, exact)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReadRange_StartAfterEnd(t *testing.T) {
	s := newTestStore(t, newMemBackend("primary"), newMemBackend("fallback"))
	_, err := s.ReadRange(context.Background(),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestReadRange_EmptyIsEmptySlice(t *testing.T) {
	s := newTestStore(t, newMemBackend("primary"), newMemBackend("fallback"))
	got, err := s.ReadRange(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadRange_RejectsStructurallyInvalidPartition(t *testing.T) {
	primary := newMemBackend("primary")
	primary.partitions["2024-01"] = []domain.CountRecord{rec("not-a-timestamp", 1, 0, 0)}
	s := newTestStore(t, primary, newMemBackend("fallback"))

	// A corrupt primary copy is never served: the read falls back and the
	// primary is demoted, same as an unreachable backend.
	got, err := s.ReadRange(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, s.Demoted())
}

func TestTryPromote_ReplaysDirtyPartitions(t *testing.T) {
	primary := newMemBackend("primary")
	fallback := newMemBackend("fallback")
	primary.partitions["2024-01"] = []domain.CountRecord{
		rec("2024-01-01T00:00:00", 1, 0, 0),
		rec("2024-01-01T00:15:00", 2, 0, 0),
	}
	s := newTestStore(t, primary, fallback)

	// Outage: primary goes dark, writes land on the fallback with an
	// overlapping and a new timestamp.
	primary.setErrs(errors.New("down"), errors.New("down"), errors.New("down"))
	_, err := s.Store(context.Background(), "2024-01-01T00:15:00", domain.Counts{Severes: 9})
	require.NoError(t, err)
	_, err = s.Store(context.Background(), "2024-01-01T00:30:00", domain.Counts{Severes: 5})
	require.NoError(t, err)
	require.True(t, s.Demoted())
	require.Equal(t, []string{"2024-01"}, s.sel.dirtyKeys())

	// Recovery.
	primary.setErrs(nil, nil, nil)
	s.tryPromote(context.Background())

	assert.False(t, s.Demoted())
	assert.Empty(t, s.sel.dirtyKeys())

	want := []domain.CountRecord{
		rec("2024-01-01T00:00:00", 1, 0, 0),
		rec("2024-01-01T00:15:00", 9, 0, 0), // fallback copy wins the tie
		rec("2024-01-01T00:30:00", 5, 0, 0),
	}
	if diff := cmp.Diff(want, primary.partition("2024-01")); diff != "" {
		t.Errorf("replayed partition mismatch (-want +got):\n%s", diff)
	}
}

func TestTryPromote_WriteDuringReplayDefersPromotion(t *testing.T) {
	primary := newMemBackend("primary")
	fallback := newMemBackend("fallback")
	s := New(primary, fallback, Options{
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		Clock:         clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)),
	}, slog.Default(), observability.NewMetricsForTesting())
	ctx := context.Background()

	// Outage: a January write lands on the fallback.
	primary.setErrs(errors.New("down"), errors.New("down"), errors.New("down"))
	_, err := s.Store(ctx, "2024-01-31T23:45:00", domain.Counts{Severes: 1})
	require.NoError(t, err)
	require.True(t, s.Demoted())

	// Recovery: while the replay writes January back to the primary, another
	// write completes and dirties February.
	primary.setErrs(nil, nil, nil)
	primary.onWrite = func() {
		_, err := s.Store(ctx, "2024-02-01T11:45:00", domain.Counts{Severes: 9})
		require.NoError(t, err)
	}
	s.tryPromote(ctx)

	// The racing write defers promotion instead of being stranded on the
	// fallback.
	assert.True(t, s.Demoted())
	require.Equal(t, []string{"2024-02"}, s.sel.dirtyKeys())

	// The next probe replays the straggler and promotes.
	s.tryPromote(ctx)
	assert.False(t, s.Demoted())
	assert.Empty(t, s.sel.dirtyKeys())

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec("2024-02-01T11:45:00", 9, 0, 0), got)
}

func TestTryPromote_StaysDemotedWhilePrimaryUnreachable(t *testing.T) {
	primary := newMemBackend("primary")
	fallback := newMemBackend("fallback")
	s := newTestStore(t, primary, fallback)

	primary.setErrs(nil, errors.New("down"), errors.New("down"))
	_, err := s.Store(context.Background(), "2024-01-01T00:00:00", domain.Counts{})
	require.NoError(t, err)
	require.True(t, s.Demoted())

	s.tryPromote(context.Background())
	assert.True(t, s.Demoted())
}

func TestWritesWhileDemotedAreMarkedDirty(t *testing.T) {
	primary := newMemBackend("primary")
	fallback := newMemBackend("fallback")
	s := newTestStore(t, primary, fallback)

	primary.setErrs(nil, errors.New("down"), nil)
	_, err := s.Store(context.Background(), "2024-01-01T00:00:00", domain.Counts{})
	require.NoError(t, err)

	// Second write goes straight to the fallback and stays tracked.
	_, err = s.Store(context.Background(), "2024-02-01T00:00:00", domain.Counts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01", "2024-02"}, s.sel.dirtyKeys())
}

func TestMergeRecords(t *testing.T) {
	primary := []domain.CountRecord{
		rec("2024-01-01T00:00:00", 1, 0, 0),
		rec("2024-01-01T00:15:00", 2, 0, 0),
	}
	fallback := []domain.CountRecord{
		rec("2024-01-01T00:15:00", 8, 0, 0),
		rec("2024-01-01T00:45:00", 3, 0, 0),
	}

	got := mergeRecords(primary, fallback)
	want := []domain.CountRecord{
		rec("2024-01-01T00:00:00", 1, 0, 0),
		rec("2024-01-01T00:15:00", 8, 0, 0),
		rec("2024-01-01T00:45:00", 3, 0, 0),
	}
	assert.Equal(t, want, got)
}
