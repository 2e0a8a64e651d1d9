package domain

import (
	"math"
	"time"
)

// BucketWidth maps a query span to the aggregation bucket width applied by
// the serving layer. Zero means no aggregation (raw records).
func BucketWidth(span time.Duration) time.Duration {
	switch {
	case span > 7*24*time.Hour:
		return 6 * time.Hour
	case span > 2*24*time.Hour:
		return 2 * time.Hour
	case span > 24*time.Hour:
		return time.Hour
	default:
		return 0
	}
}

// Aggregate groups records, already sorted ascending by timestamp, into
// buckets of the given width and emits one record per bucket. The first
// bucket starts at the first record's timestamp and each subsequent bucket
// starts at the first record past the previous bucket's end, so boundaries
// float rather than snapping to clock-aligned intervals. The emitted record
// carries the bucket's start timestamp and the rounded mean (half away from
// zero) of each count over the bucket's members. Empty input yields nil.
func Aggregate(records []CountRecord, width time.Duration) []CountRecord {
	if len(records) == 0 || width <= 0 {
		return nil
	}

	var out []CountRecord

	bucketStart, err := ParseTimestamp(records[0].Timestamp)
	if err != nil {
		return nil
	}
	group := records[:0:0]

	for _, rec := range records {
		ts, err := ParseTimestamp(rec.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(bucketStart.Add(width)) {
			group = append(group, rec)
			continue
		}
		out = append(out, bucketMean(bucketStart, group))
		bucketStart = ts
		group = append(group[:0:0], rec)
	}
	if len(group) > 0 {
		out = append(out, bucketMean(bucketStart, group))
	}
	return out
}

// bucketMean collapses one bucket's members into a single averaged record
// stamped with the bucket start.
func bucketMean(start time.Time, group []CountRecord) CountRecord {
	var severes, warnings, alerts int
	for _, r := range group {
		severes += r.Severes
		warnings += r.Warnings
		alerts += r.Alerts
	}
	n := float64(len(group))
	return CountRecord{
		Timestamp: start.Format(TimeLayout),
		Severes:   int(math.Round(float64(severes) / n)),
		Warnings:  int(math.Round(float64(warnings) / n)),
		Alerts:    int(math.Round(float64(alerts) / n)),
	}
}
