// Package localcsv is the fallback partition backend: one CSV file per month
// under a local cache directory, carrying the same four-column schema as the
// primary store so a partition can be replayed between backends verbatim.
package localcsv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/floodwatch/floodcounts/internal/domain"
)

// header is the fixed column order shared with the primary schema.
var header = []string{"timestamp", "severes", "warnings", "alerts"}

// Backend stores month partitions as flood_data_YYYY-MM.csv files.
type Backend struct {
	dir string
}

// New ensures the cache directory exists and returns the backend.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Backend{dir: dir}, nil
}

func (b *Backend) Name() string { return "localcsv" }

// ReadPartition loads one month's CSV file. A missing file is an empty
// partition, not an error.
func (b *Backend) ReadPartition(_ context.Context, key string) ([]domain.CountRecord, error) {
	f, err := os.Open(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open partition %s: %w", key, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]domain.CountRecord, 0, len(rows)-1)
	for _, row := range rows[1:] { // skip header
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", key, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WritePartition replaces one month's CSV file via a temp file and rename, so
// readers never see a partially written partition.
func (b *Backend) WritePartition(_ context.Context, key string, records []domain.CountRecord) error {
	tmp, err := os.CreateTemp(b.dir, "flood_data_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for partition %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	w := csv.NewWriter(tmp)
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, header)
	for _, r := range records {
		rows = append(rows, []string{
			r.Timestamp,
			strconv.Itoa(r.Severes),
			strconv.Itoa(r.Warnings),
			strconv.Itoa(r.Alerts),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write partition %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close partition %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), b.path(key)); err != nil {
		return fmt.Errorf("replace partition %s: %w", key, err)
	}
	return nil
}

// Ping verifies the cache directory is still writable.
func (b *Backend) Ping(_ context.Context) error {
	f, err := os.CreateTemp(b.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("%w: cache dir not writable: %v", domain.ErrBackendUnavailable, err)
	}
	f.Close()
	return os.Remove(f.Name())
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.dir, "flood_data_"+key+".csv")
}

func parseRow(row []string) (domain.CountRecord, error) {
	if len(row) != len(header) {
		return domain.CountRecord{}, fmt.Errorf("%w: row has %d columns, want %d",
			domain.ErrValidation, len(row), len(header))
	}
	severes, err := strconv.Atoi(row[1])
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("%w: severes %q", domain.ErrValidation, row[1])
	}
	warnings, err := strconv.Atoi(row[2])
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("%w: warnings %q", domain.ErrValidation, row[2])
	}
	alerts, err := strconv.Atoi(row[3])
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("%w: alerts %q", domain.ErrValidation, row[3])
	}
	return domain.CountRecord{
		Timestamp: row[0],
		Severes:   severes,
		Warnings:  warnings,
		Alerts:    alerts,
	}, nil
}
