package engine

// State represents the playback state of the engine.
// It is owned exclusively by the decode worker; other goroutines only ever
// see read-only snapshots published through events.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsActive returns true if a session exists and audio can flow (playing or
// paused). Loading counts as active: a session is being prepared.
func (s State) IsActive() bool {
	return s == StateLoading || s == StatePlaying || s == StatePaused
}
