package sensor

import (
	"context"
	"fmt"

	"github.com/sportsense/impactcore/internal/storage"
)

// DayCount is a per-calendar-day sample count.
type DayCount struct {
	Day   string // YYYY-MM-DD, UTC
	Count int64
}

// BucketAverage is an averaged value keyed by an hour-of-day (00..23) or
// day-of-week (0=Sunday..6) bucket.
type BucketAverage struct {
	Bucket  string
	Average float64
}

// tableForKind maps a packet kind to its fact table. Aggregates
// interpolate the table name, never caller input, so the statements stay
// parameterized where values are concerned.
func tableForKind(kind Kind) (string, error) {
	switch kind {
	case KindMotion:
		return "motion_samples", nil
	case KindForce:
		return "force_samples", nil
	case KindHeartRate:
		return "heart_rate_samples", nil
	case KindTemperature:
		return "temperature_samples", nil
	default:
		return "", fmt.Errorf("unknown sample kind %q", kind)
	}
}

// CountPerDay returns the device's per-day sample counts for the given
// kind over [start, end], computed by SQLite's own grouping.
func (r *Repository) CountPerDay(ctx context.Context, kind Kind, deviceID string, start, end int64) ([]DayCount, error) {
	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.store.Query(ctx, fmt.Sprintf(
		`SELECT strftime('%%Y-%%m-%%d', device_ts / 1000, 'unixepoch') AS day, COUNT(*)
		 FROM %s
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 GROUP BY day
		 ORDER BY day ASC`, table),
		deviceID, start, end,
	)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "count per day", Err: err}
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Day, &c.Count); err != nil {
			return nil, &storage.PersistenceError{Op: "scan day count", Err: err}
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate day counts", Err: err}
	}
	return counts, nil
}

// HeartRateAvgPerHourOfDay returns the device's average bpm grouped by
// hour of day (00..23) over [start, end].
func (r *Repository) HeartRateAvgPerHourOfDay(ctx context.Context, deviceID string, start, end int64) ([]BucketAverage, error) {
	return r.bucketAvg(ctx,
		`SELECT strftime('%H', device_ts / 1000, 'unixepoch') AS bucket, AVG(bpm)
		 FROM heart_rate_samples
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 GROUP BY bucket
		 ORDER BY bucket ASC`,
		deviceID, start, end,
	)
}

// HeartRateAvgPerDayOfWeek returns the device's average bpm grouped by
// day of week (0=Sunday..6) over [start, end].
func (r *Repository) HeartRateAvgPerDayOfWeek(ctx context.Context, deviceID string, start, end int64) ([]BucketAverage, error) {
	return r.bucketAvg(ctx,
		`SELECT strftime('%w', device_ts / 1000, 'unixepoch') AS bucket, AVG(bpm)
		 FROM heart_rate_samples
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 GROUP BY bucket
		 ORDER BY bucket ASC`,
		deviceID, start, end,
	)
}

// TemperatureAvgPerHourOfDay returns the device's average temperature
// grouped by hour of day over [start, end].
func (r *Repository) TemperatureAvgPerHourOfDay(ctx context.Context, deviceID string, start, end int64) ([]BucketAverage, error) {
	return r.bucketAvg(ctx,
		`SELECT strftime('%H', device_ts / 1000, 'unixepoch') AS bucket, AVG(celsius)
		 FROM temperature_samples
		 WHERE device_id = ? AND device_ts BETWEEN ? AND ?
		 GROUP BY bucket
		 ORDER BY bucket ASC`,
		deviceID, start, end,
	)
}

func (r *Repository) bucketAvg(ctx context.Context, query string, args ...any) ([]BucketAverage, error) {
	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "bucket average", Err: err}
	}
	defer rows.Close()

	var averages []BucketAverage
	for rows.Next() {
		var a BucketAverage
		if err := rows.Scan(&a.Bucket, &a.Average); err != nil {
			return nil, &storage.PersistenceError{Op: "scan bucket average", Err: err}
		}
		averages = append(averages, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate bucket averages", Err: err}
	}
	return averages, nil
}
