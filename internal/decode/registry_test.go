package decode

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/youpy/go-wav"
)

const fixtureRate = 8000

// wavFixture renders a 16-bit sine tone as an in-memory WAV file.
func wavFixture(t *testing.T, frames int, channels uint16) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(frames), channels, fixtureRate, 16)

	samples := make([]wav.Sample, frames)
	for i := range samples {
		v := int(5000 * math.Sin(2*math.Pi*440*float64(i)/float64(fixtureRate)))
		samples[i].Values[0] = v
		samples[i].Values[1] = v
	}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("failed to render WAV fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDefaultRegistryFormats(t *testing.T) {
	registry := NewDefaultRegistry()

	formats := registry.SupportedFormats()
	expected := []string{"WAV", "MP3", "FLAC", "OGG", "AIFF"}
	if len(formats) != len(expected) {
		t.Fatalf("expected %d formats, got %d: %v", len(expected), len(formats), formats)
	}
	for i, f := range expected {
		if formats[i] != f {
			t.Errorf("expected format %s at index %d, got %s", f, i, formats[i])
		}
	}
}

func TestDetectFormatByExtension(t *testing.T) {
	registry := NewDefaultRegistry()

	cases := []struct {
		filename string
		format   string
	}{
		{"song.wav", "WAV"},
		{"SONG.WAV", "WAV"},
		{"song.wave", "WAV"},
		{"song.mp3", "MP3"},
		{"song.flac", "FLAC"},
		{"song.ogg", "OGG"},
		{"song.oga", "OGG"},
		{"song.aiff", "AIFF"},
		{"song.aif", "AIFF"},
	}
	for _, tc := range cases {
		decoder := registry.DetectFormat(tc.filename)
		if decoder == nil {
			t.Errorf("no decoder for %s", tc.filename)
			continue
		}
		if decoder.FormatName() != tc.format {
			t.Errorf("%s: expected %s, got %s", tc.filename, tc.format, decoder.FormatName())
		}
	}

	if decoder := registry.DetectFormat("song.xyz"); decoder != nil {
		t.Errorf("expected no decoder for unknown extension, got %s", decoder.FormatName())
	}
	if decoder := registry.DetectFormat(""); decoder != nil {
		t.Error("expected no decoder for empty filename")
	}
}

func TestDetectFormatWithContentIgnoresWrongExtension(t *testing.T) {
	registry := NewDefaultRegistry()
	data := wavFixture(t, 256, 2)
	reader := bytes.NewReader(data)

	decoder := registry.DetectFormatWithContent("mystery.bin", reader)
	if decoder == nil {
		t.Fatal("expected magic byte detection to find a decoder")
	}
	if decoder.FormatName() != "WAV" {
		t.Errorf("expected WAV from magic bytes, got %s", decoder.FormatName())
	}

	// The reader must be rewound for the decoder to use.
	pos, err := reader.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if pos != 0 {
		t.Errorf("expected reader rewound to 0, got %d", pos)
	}
}

func TestOpenWavStream(t *testing.T) {
	registry := NewDefaultRegistry()
	const frames = 1000
	data := wavFixture(t, frames, 2)

	stream, err := registry.Open("tone.wav", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	if stream.SampleRate() != fixtureRate {
		t.Errorf("expected sample rate %d, got %d", fixtureRate, stream.SampleRate())
	}
	if stream.Channels() != 2 {
		t.Errorf("expected 2 channels, got %d", stream.Channels())
	}
	if stream.Length() != frames {
		t.Errorf("expected length %d frames, got %d", frames, stream.Length())
	}

	pcm, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if len(pcm) != frames*4 {
		t.Errorf("expected %d PCM bytes, got %d", frames*4, len(pcm))
	}
}

func TestWavSeekIsSampleAccurate(t *testing.T) {
	registry := NewDefaultRegistry()
	const frames = 1000
	data := wavFixture(t, frames, 2)

	stream, err := registry.Open("tone.wav", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	reference, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("reading reference failed: %v", err)
	}

	const target = 250
	if err := stream.Seek(target); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	chunk := make([]byte, 64)
	if _, err := io.ReadFull(stream, chunk); err != nil {
		t.Fatalf("read after seek failed: %v", err)
	}
	if !bytes.Equal(chunk, reference[target*4:target*4+64]) {
		t.Error("audio after seek does not match the reference at the target frame")
	}
}

func TestWavSeekOutOfRange(t *testing.T) {
	registry := NewDefaultRegistry()
	data := wavFixture(t, 100, 2)

	stream, err := registry.Open("tone.wav", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	if err := stream.Seek(-1); !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("expected ErrSeekOutOfRange for negative frame, got %v", err)
	}
	if err := stream.Seek(10_000); !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("expected ErrSeekOutOfRange past the end, got %v", err)
	}
}

func TestOpenMonoWav(t *testing.T) {
	registry := NewDefaultRegistry()
	const frames = 200
	data := wavFixture(t, frames, 1)

	stream, err := registry.Open("mono.wav", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	if stream.Channels() != 1 {
		t.Errorf("expected 1 channel, got %d", stream.Channels())
	}
	pcm, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if len(pcm) != frames*2 {
		t.Errorf("expected %d PCM bytes, got %d", frames*2, len(pcm))
	}
}

func TestOpenGarbageData(t *testing.T) {
	registry := NewDefaultRegistry()
	garbage := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 256)

	_, err := registry.Open("broken.wav", bytes.NewReader(garbage))
	if err == nil {
		t.Fatal("expected error for garbage input")
	}
	if !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}

func TestOpenUnsupportedFormat(t *testing.T) {
	registry := NewDefaultRegistry()
	garbage := bytes.Repeat([]byte{0x00, 0x01}, 64)

	_, err := registry.Open("file.xyz", bytes.NewReader(garbage))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRegisterNilDecoderIgnored(t *testing.T) {
	registry := NewRegistry()
	registry.Register(nil)
	if n := len(registry.SupportedFormats()); n != 0 {
		t.Errorf("expected empty registry after nil registration, got %d", n)
	}
}

func TestVorbisReaderAdapterKeepsSeeker(t *testing.T) {
	// The ogg reader downgrades to forward-only decoding when its input
	// hides the Seeker, so the Close adapter must expose both.
	var rc io.ReadCloser = readSeekNopCloser{bytes.NewReader([]byte{1, 2, 3, 4})}

	seeker, ok := rc.(io.Seeker)
	if !ok {
		t.Fatal("adapter does not expose the underlying Seeker")
	}
	if _, err := seeker.Seek(2, io.SeekStart); err != nil {
		t.Fatalf("seek through adapter failed: %v", err)
	}

	buf := make([]byte, 4)
	n, _ := rc.Read(buf)
	if n != 2 || buf[0] != 3 {
		t.Errorf("expected read to continue from seek target, got n=%d buf=%v", n, buf[:n])
	}
	if err := rc.Close(); err != nil {
		t.Errorf("adapter close failed: %v", err)
	}
}
