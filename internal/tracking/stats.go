package tracking

import (
	"database/sql"
	"fmt"
	"time"
)

// SourceStats summarizes journal activity for one source file.
type SourceStats struct {
	SourcePath string
	Plays      int // completed tracks (ended events)
	Errors     int
	LastPlayed time.Time
}

// ErrorRecord is one persisted error event.
type ErrorRecord struct {
	Timestamp  time.Time
	SourcePath string
	Severity   string
	Message    string
}

// TopSources returns per-source playback summaries ordered by play count.
func TopSources(db *sql.DB, limit int) ([]SourceStats, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT source_path,
		       SUM(CASE WHEN event_type = 'ended' THEN 1 ELSE 0 END) AS plays,
		       SUM(CASE WHEN event_type = 'error' THEN 1 ELSE 0 END) AS errors,
		       MAX(timestamp) AS last_ts
		FROM playback_events
		WHERE source_path != ''
		GROUP BY source_path
		ORDER BY plays DESC, last_ts DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query source stats: %w", err)
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var s SourceStats
		var lastTs int64
		if err := rows.Scan(&s.SourcePath, &s.Plays, &s.Errors, &lastTs); err != nil {
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		s.LastPlayed = time.Unix(lastTs, 0)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// RecentErrors returns the newest error events, most recent first.
func RecentErrors(db *sql.DB, limit int) ([]ErrorRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT timestamp, source_path, severity, message
		FROM playback_events
		WHERE event_type = 'error'
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		var r ErrorRecord
		var ts int64
		var severity, message sql.NullString
		if err := rows.Scan(&ts, &r.SourcePath, &severity, &message); err != nil {
			return nil, fmt.Errorf("failed to scan error record: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0)
		r.Severity = severity.String
		r.Message = message.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// EventCount returns the total number of journaled events.
func EventCount(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM playback_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
