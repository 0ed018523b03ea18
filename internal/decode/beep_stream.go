package decode

import (
	"fmt"
	"io"

	"github.com/gopxl/beep"
)

// beepStream adapts a beep.StreamSeekCloser (WAV, FLAC, OGG) to the
// interleaved S16 PCMStream contract. beep streamers produce stereo
// [2]float64 samples regardless of the source channel count; mono sources
// are emitted as a single interleaved channel here so the output device can
// open with the source's true layout.
type beepStream struct {
	src      beep.StreamSeekCloser
	format   beep.Format
	channels int

	// scratch holds float samples between Read calls so no allocation
	// happens after construction.
	scratch [][2]float64

	// pending carries converted bytes that did not fit the caller's buffer.
	pending []byte
	carry   []byte
}

const beepChunkFrames = 2048

func newBeepStream(src beep.StreamSeekCloser, format beep.Format) *beepStream {
	channels := format.NumChannels
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		channels = 1
	}
	return &beepStream{
		src:      src,
		format:   format,
		channels: channels,
		scratch:  make([][2]float64, beepChunkFrames),
		carry:    make([]byte, 0, beepChunkFrames*channels*2),
	}
}

func (s *beepStream) Read(p []byte) (int, error) {
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}

	frames := len(p) / (s.channels * 2)
	if frames == 0 {
		return 0, nil
	}
	if frames > len(s.scratch) {
		frames = len(s.scratch)
	}

	n, ok := s.src.Stream(s.scratch[:frames])
	if n == 0 && !ok {
		if err := s.src.Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrReadFailure, err)
		}
		return 0, io.EOF
	}

	out := s.carry[:0]
	for i := 0; i < n; i++ {
		out = appendSampleS16(out, s.scratch[i][0])
		if s.channels == 2 {
			out = appendSampleS16(out, s.scratch[i][1])
		}
	}
	s.carry = out[:0]

	copied := copy(p, out)
	if copied < len(out) {
		s.pending = out[copied:]
	}
	return copied, nil
}

func (s *beepStream) Seek(frame int64) error {
	if frame < 0 {
		return ErrSeekOutOfRange
	}
	if n := s.src.Len(); n > 0 && frame > int64(n) {
		return fmt.Errorf("%w: frame %d of %d", ErrSeekOutOfRange, frame, n)
	}
	s.pending = nil
	if err := s.src.Seek(int(frame)); err != nil {
		return fmt.Errorf("seek to frame %d: %w", frame, err)
	}
	return nil
}

func (s *beepStream) Length() int64 {
	n := s.src.Len()
	if n <= 0 {
		return LengthUnknown
	}
	return int64(n)
}

func (s *beepStream) SampleRate() int {
	return int(s.format.SampleRate)
}

func (s *beepStream) Channels() int {
	return s.channels
}

func (s *beepStream) Close() error {
	return s.src.Close()
}

// appendSampleS16 converts one float64 sample in [-1, 1] to little-endian
// signed 16-bit, clamping out-of-range values.
func appendSampleS16(dst []byte, v float64) []byte {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	s := int16(v * 32767)
	return append(dst, byte(s), byte(s>>8))
}
