package decode

import (
	"io"
	"log/slog"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
)

// AiffDecoder handles AIFF audio. go-audio/aiff exposes no streaming seek,
// so the whole file is decoded once at open into a seekable memory stream;
// seeking afterwards is an index jump, never a re-decode.
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF decoder instance.
func NewAiffDecoder() *AiffDecoder {
	return &AiffDecoder{}
}

// Open decodes the full AIFF payload and returns a seekable PCM stream.
func (d *AiffDecoder) Open(r io.ReadSeeker) (PCMStream, error) {
	slog.Debug("opening AIFF stream")

	dec := aiff.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		slog.Error("invalid AIFF file format")
		return nil, ErrInvalidData
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		slog.Error("failed to decode AIFF samples", "error", err)
		return nil, ErrReadFailure
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		slog.Error("no audio data found in AIFF file")
		return nil, ErrInvalidData
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	if channels <= 0 || sampleRate <= 0 {
		slog.Error("invalid AIFF format parameters",
			"channels", channels,
			"sample_rate", sampleRate)
		return nil, ErrInvalidData
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	pcm := pcmFromIntBuffer(buf, bitDepth)

	slog.Debug("AIFF stream opened",
		"sample_rate", sampleRate,
		"channels", channels,
		"bit_depth", bitDepth,
		"length_frames", len(buf.Data)/channels)

	return &memoryStream{
		data:       pcm,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// CanDecode checks if this decoder can handle the given filename.
func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")
}

// FormatName returns the name of the format this decoder handles.
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// pcmFromIntBuffer converts a go-audio integer buffer to interleaved
// little-endian S16.
func pcmFromIntBuffer(buf *audio.IntBuffer, bitDepth int) []byte {
	pcm := make([]byte, 0, len(buf.Data)*2)
	for _, v := range buf.Data {
		s := scaleToS16(v, bitDepth)
		pcm = append(pcm, byte(s), byte(s>>8))
	}
	return pcm
}

// scaleToS16 rescales an integer sample of the given bit depth to 16 bits.
func scaleToS16(v, bitDepth int) int16 {
	switch {
	case bitDepth > 16:
		return int16(v >> (bitDepth - 16))
	case bitDepth < 16:
		return int16(v << (16 - bitDepth))
	default:
		return int16(v)
	}
}

// memoryStream serves fully decoded PCM from memory with index seeking.
type memoryStream struct {
	data       []byte
	pos        int64
	sampleRate int
	channels   int
}

func (s *memoryStream) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *memoryStream) Seek(frame int64) error {
	if frame < 0 {
		return ErrSeekOutOfRange
	}
	off := frame * int64(s.channels) * 2
	if off > int64(len(s.data)) {
		off = int64(len(s.data))
	}
	s.pos = off
	return nil
}

func (s *memoryStream) Length() int64 {
	return int64(len(s.data)) / int64(s.channels*2)
}

func (s *memoryStream) SampleRate() int {
	return s.sampleRate
}

func (s *memoryStream) Channels() int {
	return s.channels
}

func (s *memoryStream) Close() error {
	return nil
}
