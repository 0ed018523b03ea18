package decode

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// mp3FrameBytes is the size of one decoded frame: go-mp3 always outputs
// 16-bit stereo.
const mp3FrameBytes = 4

// Mp3Decoder handles MP3 audio via hajimehoshi/go-mp3, whose decoder is an
// io.ReadSeeker over the decoded PCM, giving sample-accurate native seek.
type Mp3Decoder struct{}

// NewMp3Decoder creates a new MP3 decoder instance.
func NewMp3Decoder() *Mp3Decoder {
	return &Mp3Decoder{}
}

// Open probes the MP3 header and returns a seekable PCM stream.
func (d *Mp3Decoder) Open(r io.ReadSeeker) (PCMStream, error) {
	slog.Debug("opening MP3 stream")

	dec, err := mp3.NewDecoder(r)
	if err != nil {
		slog.Error("failed to create MP3 decoder", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	if dec.SampleRate() <= 0 {
		slog.Error("invalid MP3 sample rate", "sample_rate", dec.SampleRate())
		return nil, ErrInvalidData
	}

	length := LengthUnknown
	if n := dec.Length(); n > 0 {
		length = n / mp3FrameBytes
	}

	slog.Debug("MP3 stream opened",
		"sample_rate", dec.SampleRate(),
		"channels", 2,
		"length_frames", length)

	return &mp3Stream{dec: dec, length: length}, nil
}

// CanDecode checks if this decoder can handle the given filename.
func (d *Mp3Decoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".mpeg")
}

// FormatName returns the name of the format this decoder handles.
func (d *Mp3Decoder) FormatName() string {
	return "MP3"
}

type mp3Stream struct {
	dec    *mp3.Decoder
	length int64
}

func (s *mp3Stream) Read(p []byte) (int, error) {
	return s.dec.Read(p)
}

func (s *mp3Stream) Seek(frame int64) error {
	if frame < 0 {
		return ErrSeekOutOfRange
	}
	_, err := s.dec.Seek(frame*mp3FrameBytes, io.SeekStart)
	if err != nil {
		return fmt.Errorf("mp3 seek to frame %d: %w", frame, err)
	}
	return nil
}

func (s *mp3Stream) Length() int64 {
	return s.length
}

func (s *mp3Stream) SampleRate() int {
	return s.dec.SampleRate()
}

// Channels is always 2: go-mp3 upmixes mono sources.
func (s *mp3Stream) Channels() int {
	return 2
}

func (s *mp3Stream) Close() error {
	return nil
}
