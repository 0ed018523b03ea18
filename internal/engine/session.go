package engine

import (
	"waveline.click/internal/decode"
)

// session represents one active stream: the lifetime of a single decoded
// source, bounded by a StreamFile command and its termination (stop, error,
// replacement or end-of-data). Owned exclusively by the decode worker.
type session struct {
	path       string
	stream     decode.PCMStream
	sampleRate int
	channels   int

	// generation is the engine-wide epoch this session currently plays in.
	// It is bumped on every seek and stop so that buffered samples and
	// in-flight events from before the bump are discarded downstream.
	generation uint64

	// framesWritten counts every PCM frame handed to the ring buffer since
	// the session started. Monotonic; survives seeks.
	framesWritten int64

	// sourceFrame is the write head's position in the source, in frames.
	// Jumps on seek and loop wrap; elapsed position derives from it.
	sourceFrame int64

	// durationFrames is the total length of the source, or -1 when the
	// decoder cannot tell.
	durationFrames int64

	eof bool
}

func (s *session) frameBytes() int {
	return s.channels * 2
}

// positionSeconds converts the write head to seconds.
func (s *session) positionSeconds() float64 {
	return float64(s.sourceFrame) / float64(s.sampleRate)
}

// durationSeconds converts the source length to seconds, 0 when unknown.
func (s *session) durationSeconds() float64 {
	if s.durationFrames < 0 {
		return 0
	}
	return float64(s.durationFrames) / float64(s.sampleRate)
}

// clampFrame bounds a target frame to the decodable range.
func (s *session) clampFrame(frame int64) int64 {
	if frame < 0 {
		return 0
	}
	if s.durationFrames >= 0 && frame > s.durationFrames {
		return s.durationFrames
	}
	return frame
}

func (s *session) close() {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}
