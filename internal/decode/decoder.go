package decode

import (
	"errors"
	"io"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrSeekOutOfRange    = errors.New("seek target outside decodable range")
)

// LengthUnknown is returned by PCMStream.Length when the decoder cannot
// determine the total frame count up front.
const LengthUnknown int64 = -1

// PCMStream delivers interleaved signed 16-bit little-endian PCM and
// supports decoder-native repositioning. One frame is Channels() samples.
// Streams are not safe for concurrent use; the decode worker is the sole
// caller.
type PCMStream interface {
	io.Reader

	// Seek repositions the stream to the nearest decodable point at or
	// before the given frame. It never re-decodes from the start.
	Seek(frame int64) error

	// Length returns the total number of frames, or LengthUnknown.
	Length() int64

	SampleRate() int
	Channels() int

	Close() error
}

// Decoder turns a raw audio resource into a seekable PCM stream.
type Decoder interface {
	// Open probes the data and returns a PCM stream positioned at frame 0.
	Open(r io.ReadSeeker) (PCMStream, error)

	// CanDecode checks if this decoder can handle the given filename.
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles.
	FormatName() string
}
