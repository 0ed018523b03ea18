package engine

// Severity classifies error events so the host can decide between logging
// and surfacing a user-visible notification.
type Severity int

const (
	SeverityRecoverable Severity = iota
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityRecoverable:
		return "recoverable"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Event is the closed set of notifications the engine emits to its host.
type Event interface {
	event()
}

// PositionUpdate is emitted periodically while a session is active.
// Position and Duration are in seconds; Generation identifies the session
// epoch the timestamp belongs to.
type PositionUpdate struct {
	Position   float64
	Duration   float64
	Generation uint64
}

// StateChange is emitted immediately on every state machine transition.
type StateChange struct {
	Previous   State
	Current    State
	Generation uint64
}

// EndOfTrack is emitted once when the decoder exhausts its input and the
// buffered audio has drained.
type EndOfTrack struct {
	Generation uint64
}

// ErrorEvent carries a classified failure. Raw decoder or device errors
// never reach the host unconverted; the decode worker translates them here.
type ErrorEvent struct {
	Severity Severity
	Message  string
}

func (PositionUpdate) event() {}
func (StateChange) event()    {}
func (EndOfTrack) event()     {}
func (ErrorEvent) event()     {}

// Sink receives engine events. Implementations must not block: the worker
// emits state changes synchronously from its loop.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

// Emit calls the wrapped function.
func (f SinkFunc) Emit(ev Event) {
	f(ev)
}

// NullSink discards all events.
type NullSink struct{}

// Emit discards the event.
func (NullSink) Emit(Event) {}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

// Emit forwards the event to every sink.
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}
