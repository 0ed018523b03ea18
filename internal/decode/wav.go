package decode

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gopxl/beep/wav"
)

// WavDecoder handles WAV audio. Decoding goes through gopxl/beep's wav
// streamer because PCM WAV supports exact frame addressing, which Seek maps
// onto directly.
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance.
func NewWavDecoder() *WavDecoder {
	return &WavDecoder{}
}

// Open probes the RIFF header and returns a seekable PCM stream.
func (d *WavDecoder) Open(r io.ReadSeeker) (PCMStream, error) {
	slog.Debug("opening WAV stream")

	src, format, err := wav.Decode(r)
	if err != nil {
		slog.Error("failed to decode WAV header", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	if format.SampleRate <= 0 || format.NumChannels <= 0 {
		slog.Error("invalid WAV format parameters",
			"sample_rate", format.SampleRate,
			"channels", format.NumChannels)
		src.Close()
		return nil, ErrInvalidData
	}

	slog.Debug("WAV stream opened",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"precision", format.Precision,
		"length_frames", src.Len())

	return newBeepStream(src, format), nil
}

// CanDecode checks if this decoder can handle the given filename.
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// FormatName returns the name of the format this decoder handles.
func (d *WavDecoder) FormatName() string {
	return "WAV"
}
