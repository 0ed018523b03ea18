package decode

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gopxl/beep/vorbis"
)

// VorbisDecoder handles Ogg Vorbis audio via gopxl/beep's vorbis streamer.
type VorbisDecoder struct{}

// NewVorbisDecoder creates a new Ogg Vorbis decoder instance.
func NewVorbisDecoder() *VorbisDecoder {
	return &VorbisDecoder{}
}

// readSeekNopCloser satisfies the io.ReadCloser the beep vorbis decoder
// asks for while keeping the Seeker visible, so the underlying ogg reader
// still seeks natively instead of falling back to forward-only decoding.
type readSeekNopCloser struct {
	io.ReadSeeker
}

func (readSeekNopCloser) Close() error { return nil }

// Open probes the Ogg container and returns a seekable PCM stream.
func (d *VorbisDecoder) Open(r io.ReadSeeker) (PCMStream, error) {
	slog.Debug("opening Ogg Vorbis stream")

	src, format, err := vorbis.Decode(readSeekNopCloser{r})
	if err != nil {
		slog.Error("failed to decode Ogg Vorbis header", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	slog.Debug("Ogg Vorbis stream opened",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"length_frames", src.Len())

	return newBeepStream(src, format), nil
}

// CanDecode checks if this decoder can handle the given filename.
func (d *VorbisDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".ogg") || strings.HasSuffix(lower, ".oga")
}

// FormatName returns the name of the format this decoder handles.
func (d *VorbisDecoder) FormatName() string {
	return "OGG"
}
