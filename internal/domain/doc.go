// Package domain models flood-warning count snapshots from the Environment
// Agency flood-monitoring feed.
//
// # Data Source
//
// The upstream feed (http://environment.data.gov.uk/flood-monitoring/id/floods)
// lists every flood warning currently in force in England, each carrying a
// numeric severity level. The poller tallies active warnings per level every
// 15 minutes and stores one CountRecord per tick.
//
// # Severity Conventions
//
// The Environment Agency severity scale runs opposite to its numeric order:
//
//	level 1  "Severe Flood Warning"  → counted in Severes
//	level 2  "Flood Warning"         → counted in Warnings
//	level 3  "Flood Alert"           → counted in Alerts
//	level 4  "Warning no longer in force" → not counted
//
// # Timestamps
//
// All timestamps are timezone-naive ISO-8601 strings in the fixed-width layout
// "2006-01-02T15:04:05". Fixed width matters: range filtering compares
// timestamps lexicographically, which agrees with chronological order only
// when every stored string shares the same layout. Stored timestamps are
// always snapped down to a 15-minute boundary (minute ∈ {0,15,30,45},
// second 0) by [NormalizeTimestamp], so one slot exists per quarter hour and
// re-storing within a slot overwrites rather than duplicates.
//
// # Partitioning
//
// Records are persisted in calendar-month partitions keyed "YYYY-MM" (the
// first seven characters of a normalized timestamp). A partition is sorted
// ascending by timestamp and holds at most one record per timestamp.
//
// # Aggregation
//
// Range queries over long spans are thinned by [Aggregate]: records are
// grouped into buckets of a fixed width seeded at the first record's
// timestamp (buckets float; they do not snap to a clock grid), and each
// bucket emits one record whose counts are the rounded means of its members
// and whose timestamp is the bucket start. [BucketWidth] maps a query span to
// the width used by the serving layer: over 7 days → 6h, over 2 days → 2h,
// over 1 day → 1h, otherwise raw records.
package domain
