package tracking

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waveline.click/internal/engine"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDatabase(":memory:")
	require.NoError(t, err, "NewDatabase failed")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabaseCreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "playback.db")

	db, err := NewDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestDatabaseSchemaExists(t *testing.T) {
	db := setupTestDB(t)

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM playback_events").Scan(&count)
	assert.NoError(t, err, "playback_events table is not queryable")

	expectedIndexes := []string{
		"idx_playback_timestamp",
		"idx_playback_type",
		"idx_playback_source",
	}
	for _, indexName := range expectedIndexes {
		var n int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
			indexName).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "index %s missing", indexName)
	}
}

func drainSink(t *testing.T, s *JournalSink) {
	t.Helper()
	require.NoError(t, s.Close())
}

func TestJournalSinkPersistsEvents(t *testing.T) {
	db := setupTestDB(t)
	sink := NewJournalSink(db, "/music/test.flac")

	sink.Emit(engine.StateChange{
		Previous:   engine.StateIdle,
		Current:    engine.StatePlaying,
		Generation: 3,
	})
	sink.Emit(engine.PositionUpdate{Position: 1.5, Duration: 60, Generation: 3})
	sink.Emit(engine.EndOfTrack{Generation: 3})
	sink.Emit(engine.ErrorEvent{
		Severity: engine.SeverityRecoverable,
		Message:  "device hiccup",
	})
	drainSink(t, sink)

	var total int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM playback_events").Scan(&total))
	assert.Equal(t, 4, total)

	var source, prev, curr string
	var gen int64
	err := db.QueryRow(`
		SELECT source_path, generation, state_prev, state_curr
		FROM playback_events WHERE event_type = 'state'`).
		Scan(&source, &gen, &prev, &curr)
	require.NoError(t, err)
	assert.Equal(t, "/music/test.flac", source)
	assert.Equal(t, int64(3), gen)
	assert.Equal(t, "idle", prev)
	assert.Equal(t, "playing", curr)

	var pos, dur float64
	err = db.QueryRow(`
		SELECT position, duration FROM playback_events WHERE event_type = 'position'`).
		Scan(&pos, &dur)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, pos, 1e-9)
	assert.InDelta(t, 60.0, dur, 1e-9)

	var severity, message string
	err = db.QueryRow(`
		SELECT severity, message FROM playback_events WHERE event_type = 'error'`).
		Scan(&severity, &message)
	require.NoError(t, err)
	assert.Equal(t, "recoverable", severity)
	assert.Equal(t, "device hiccup", message)
}

func TestJournalSinkSetSource(t *testing.T) {
	db := setupTestDB(t)
	sink := NewJournalSink(db, "/a.wav")

	sink.Emit(engine.EndOfTrack{Generation: 1})
	sink.SetSource("/b.wav")
	sink.Emit(engine.EndOfTrack{Generation: 2})
	drainSink(t, sink)

	rows, err := db.Query("SELECT source_path FROM playback_events ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		sources = append(sources, s)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"/a.wav", "/b.wav"}, sources)
}

func TestJournalSinkEmitAfterCloseIsIgnored(t *testing.T) {
	db := setupTestDB(t)
	sink := NewJournalSink(db, "/a.wav")
	require.NoError(t, sink.Close())

	sink.Emit(engine.EndOfTrack{Generation: 1})

	var total int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM playback_events").Scan(&total))
	assert.Equal(t, 0, total)
}

func TestTopSources(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().Unix()

	insert := func(ts int64, source, eventType string) {
		_, err := db.Exec(`
			INSERT INTO playback_events (timestamp, source_path, generation, event_type)
			VALUES (?, ?, 0, ?)`, ts, source, eventType)
		require.NoError(t, err)
	}

	insert(now-10, "/a.wav", "ended")
	insert(now-5, "/a.wav", "ended")
	insert(now-3, "/a.wav", "error")
	insert(now-1, "/b.mp3", "ended")

	stats, err := TopSources(db, 10)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "/a.wav", stats[0].SourcePath)
	assert.Equal(t, 2, stats[0].Plays)
	assert.Equal(t, 1, stats[0].Errors)
	assert.Equal(t, "/b.mp3", stats[1].SourcePath)
	assert.Equal(t, 1, stats[1].Plays)
}

func TestRecentErrors(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().Unix()

	_, err := db.Exec(`
		INSERT INTO playback_events (timestamp, source_path, generation, event_type, severity, message)
		VALUES (?, '/a.wav', 0, 'error', 'critical', 'decode failed'),
		       (?, '/b.wav', 0, 'error', 'recoverable', 'device busy')`,
		now-10, now-1)
	require.NoError(t, err)

	records, err := RecentErrors(db, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Most recent first.
	assert.Equal(t, "/b.wav", records[0].SourcePath)
	assert.Equal(t, "recoverable", records[0].Severity)
	assert.Equal(t, "device busy", records[0].Message)
	assert.Equal(t, "/a.wav", records[1].SourcePath)
}

func TestEventCountEmpty(t *testing.T) {
	db := setupTestDB(t)
	count, err := EventCount(db)
	require.NoError(t, err)
	assert.Zero(t, count)
}
