package tracking

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"waveline.click/internal/engine"
)

// Event type names as stored in the journal.
const (
	typePosition = "position"
	typeState    = "state"
	typeEnded    = "ended"
	typeError    = "error"
)

const journalQueueDepth = 256

// JournalSink records engine events in the SQLite journal. Emit never
// blocks: events are queued to a writer goroutine and dropped (with a
// counter) when the queue is full, so a slow disk can never stall the
// decode worker.
// journalRecord pairs an event with the source label current at Emit time,
// so events queued before a SetSource keep their original attribution.
type journalRecord struct {
	ev     engine.Event
	source string
}

type JournalSink struct {
	db     *sql.DB
	source string

	queue   chan journalRecord
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped int
	mu      sync.Mutex
}

// NewJournalSink creates a sink writing to db. source labels the rows with
// the file being played; SetSource updates it on stream changes.
func NewJournalSink(db *sql.DB, source string) *JournalSink {
	s := &JournalSink{
		db:     db,
		source: source,
		queue:  make(chan journalRecord, journalQueueDepth),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// SetSource updates the source path recorded with subsequent events.
func (s *JournalSink) SetSource(path string) {
	s.mu.Lock()
	s.source = path
	s.mu.Unlock()
}

// Emit queues an event for persistence, labeled with the current source.
func (s *JournalSink) Emit(ev engine.Event) {
	select {
	case <-s.done:
		return
	default:
	}

	s.mu.Lock()
	rec := journalRecord{ev: ev, source: s.source}
	s.mu.Unlock()

	select {
	case s.queue <- rec:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

func (s *JournalSink) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.persist(rec)
		case <-s.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case rec := <-s.queue:
					s.persist(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *JournalSink) persist(rec journalRecord) {
	source := rec.source
	now := time.Now().Unix()
	var err error

	switch e := rec.ev.(type) {
	case engine.PositionUpdate:
		_, err = s.db.Exec(`
			INSERT INTO playback_events (timestamp, source_path, generation, event_type, position, duration)
			VALUES (?, ?, ?, ?, ?, ?)`,
			now, source, e.Generation, typePosition, e.Position, e.Duration)
	case engine.StateChange:
		_, err = s.db.Exec(`
			INSERT INTO playback_events (timestamp, source_path, generation, event_type, state_prev, state_curr)
			VALUES (?, ?, ?, ?, ?, ?)`,
			now, source, e.Generation, typeState, e.Previous.String(), e.Current.String())
	case engine.EndOfTrack:
		_, err = s.db.Exec(`
			INSERT INTO playback_events (timestamp, source_path, generation, event_type)
			VALUES (?, ?, ?, ?)`,
			now, source, e.Generation, typeEnded)
	case engine.ErrorEvent:
		_, err = s.db.Exec(`
			INSERT INTO playback_events (timestamp, source_path, generation, event_type, severity, message)
			VALUES (?, ?, 0, ?, ?, ?)`,
			now, source, typeError, e.Severity.String(), e.Message)
	}

	if err != nil {
		slog.Warn("playback journal write failed", "error", err)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (s *JournalSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close flushes queued events and stops the writer. The database handle is
// not closed; the caller owns it.
func (s *JournalSink) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}
