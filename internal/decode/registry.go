package decode

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Registry manages audio format decoders and provides format detection.
type Registry struct {
	decoders []Decoder
}

// NewRegistry creates a new empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make([]Decoder, 0),
	}
}

// NewDefaultRegistry creates a registry with WAV, MP3, FLAC, OGG and AIFF
// decoders registered.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()

	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewFlacDecoder())
	registry.Register(NewVorbisDecoder())
	registry.Register(NewAiffDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", registry.SupportedFormats())

	return registry
}

// Register adds a decoder to the registry.
func (r *Registry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	r.decoders = append(r.decoders, decoder)

	slog.Debug("decoder registered",
		"format", decoder.FormatName(),
		"total_decoders", len(r.decoders))
}

// SupportedFormats returns a list of all supported format names.
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// DetectFormat detects the appropriate decoder from the filename extension.
// Decoders are tried in registration order.
func (r *Registry) DetectFormat(filename string) Decoder {
	if filename == "" {
		return nil
	}

	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", decoder.FormatName())
			return decoder
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent detects the format from magic bytes first, falling
// back to the extension. The reader is rewound to its starting position.
func (r *Registry) DetectFormatWithContent(filename string, reader io.ReadSeeker) Decoder {
	start, err := reader.Seek(0, io.SeekCurrent)
	if err != nil {
		slog.Error("failed to record reader position for magic detection", "error", err)
		return r.DetectFormat(filename)
	}

	header := make([]byte, 512)
	n, err := io.ReadFull(reader, header)
	if _, seekErr := reader.Seek(start, io.SeekStart); seekErr != nil {
		slog.Error("failed to rewind reader after magic detection", "error", seekErr)
		return nil
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		slog.Error("failed to read header for magic detection", "error", err)
		return r.DetectFormat(filename)
	}
	if n == 0 {
		slog.Debug("empty content, using extension fallback", "filename", filename)
		return r.DetectFormat(filename)
	}

	mtype := mimetype.Detect(header[:n])
	mimeStr := strings.ToLower(mtype.String())

	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", mimeStr,
		"bytes_analyzed", n)

	var decoder Decoder
	switch {
	case strings.Contains(mimeStr, "wav") || mimeStr == "audio/vnd.wave":
		decoder = r.findDecoderByFormat("WAV")
	case strings.Contains(mimeStr, "mpeg") || strings.Contains(mimeStr, "mp3"):
		decoder = r.findDecoderByFormat("MP3")
	case strings.Contains(mimeStr, "flac"):
		decoder = r.findDecoderByFormat("FLAC")
	case strings.Contains(mimeStr, "ogg"):
		decoder = r.findDecoderByFormat("OGG")
	case strings.Contains(mimeStr, "aiff"):
		decoder = r.findDecoderByFormat("AIFF")
	}

	if decoder != nil {
		slog.Debug("format detected by magic bytes",
			"filename", filename,
			"format", decoder.FormatName(),
			"mime_type", mimeStr)
		return decoder
	}

	return r.DetectFormat(filename)
}

// findDecoderByFormat finds a decoder by its format name.
func (r *Registry) findDecoderByFormat(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}

// Open detects the format of the given resource and returns a seekable PCM
// stream positioned at frame 0.
func (r *Registry) Open(filename string, reader io.ReadSeeker) (PCMStream, error) {
	decoder := r.DetectFormatWithContent(filename, reader)
	if decoder == nil {
		slog.Error("no suitable decoder found", "filename", filename)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	slog.Debug("decoder selected",
		"filename", filename,
		"format", decoder.FormatName())

	stream, err := decoder.Open(reader)
	if err != nil {
		slog.Error("decoder failed to open stream",
			"filename", filename,
			"format", decoder.FormatName(),
			"error", err)
		return nil, err
	}

	slog.Info("audio stream opened",
		"filename", filename,
		"format", decoder.FormatName(),
		"sample_rate", stream.SampleRate(),
		"channels", stream.Channels(),
		"length_frames", stream.Length())

	return stream, nil
}
