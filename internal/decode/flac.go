package decode

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gopxl/beep/flac"
)

// FlacDecoder handles FLAC audio via gopxl/beep's flac streamer, which seeks
// natively through the FLAC seek table.
type FlacDecoder struct{}

// NewFlacDecoder creates a new FLAC decoder instance.
func NewFlacDecoder() *FlacDecoder {
	return &FlacDecoder{}
}

// Open probes the FLAC header and returns a seekable PCM stream.
func (d *FlacDecoder) Open(r io.ReadSeeker) (PCMStream, error) {
	slog.Debug("opening FLAC stream")

	src, format, err := flac.Decode(r)
	if err != nil {
		slog.Error("failed to decode FLAC header", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	slog.Debug("FLAC stream opened",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"length_frames", src.Len())

	return newBeepStream(src, format), nil
}

// CanDecode checks if this decoder can handle the given filename.
func (d *FlacDecoder) CanDecode(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".flac")
}

// FormatName returns the name of the format this decoder handles.
func (d *FlacDecoder) FormatName() string {
	return "FLAC"
}
