package engine

// commandKind tags the control channel variants.
type commandKind int

const (
	cmdStream commandKind = iota
	cmdSeek
	cmdSetPaused
	cmdSetVolume
	cmdSetLoop
	cmdClearLoop
	cmdChangeDevice
	cmdStop
	cmdShutdown
)

// String returns the command name for logging.
func (k commandKind) String() string {
	switch k {
	case cmdStream:
		return "stream"
	case cmdSeek:
		return "seek"
	case cmdSetPaused:
		return "set_paused"
	case cmdSetVolume:
		return "set_volume"
	case cmdSetLoop:
		return "set_loop"
	case cmdClearLoop:
		return "clear_loop"
	case cmdChangeDevice:
		return "change_device"
	case cmdStop:
		return "stop"
	case cmdShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// command is one control channel message. Only the fields relevant to the
// kind are populated; commands are applied strictly in submission order by
// the decode worker and are never silently dropped.
type command struct {
	kind      commandKind
	path      string
	position  float64
	paused    bool
	volume    float32
	loopStart float64
	loopEnd   float64
	deviceID  string
}
