package encoder_test

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/danielrosehill/voicenote/internal/config"
	"github.com/danielrosehill/voicenote/internal/encoder"
	"github.com/danielrosehill/voicenote/internal/encoder/lame"
	"github.com/danielrosehill/voicenote/internal/observe"
	"github.com/danielrosehill/voicenote/pkg/audio"
)

func newTestEncoder(t *testing.T) *encoder.Encoder {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return encoder.New(encoder.WithMetrics(metrics))
}

// monoFrames produces n frames of 160 constant-amplitude samples at the
// given rate, 10 ms apart at 16 kHz.
func monoFrames(n int, rate int, value int16) []audio.Frame {
	frames := make([]audio.Frame, 0, n)
	for i := range n {
		data := make([]byte, 160*2)
		for s := range 160 {
			binary.LittleEndian.PutUint16(data[2*s:], uint16(value))
		}
		frames = append(frames, audio.Frame{
			Data:       data,
			SampleRate: rate,
			Channels:   1,
			Timestamp:  time.Duration(i) * 10 * time.Millisecond,
		})
	}
	return frames
}

func wavPreset(t *testing.T) config.Preset {
	t.Helper()
	p, ok := config.PresetByName("wav")
	if !ok {
		t.Fatal("wav preset not registered")
	}
	return p
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	enc := newTestEncoder(t)
	preset := wavPreset(t)
	path := filepath.Join(t.TempDir(), "note"+preset.Extension())

	// Source already at the preset rate, so samples pass through intact.
	frames := monoFrames(10, preset.SampleRate, 1000)
	res, err := enc.Encode(context.Background(), frames, preset, path)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if res.Path != path {
		t.Errorf("Result.Path = %q, want %q", res.Path, path)
	}
	if want := 100 * time.Millisecond; res.Duration != want {
		t.Errorf("Result.Duration = %v, want %v", res.Duration, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got := buf.Format.SampleRate; got != preset.SampleRate {
		t.Errorf("output sample rate = %d, want %d", got, preset.SampleRate)
	}
	if got := buf.Format.NumChannels; got != 1 {
		t.Errorf("output channels = %d, want 1", got)
	}
	if got := len(buf.Data); got != 1600 {
		t.Fatalf("output has %d samples, want 1600", got)
	}
	for i, s := range buf.Data {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestEncodeResamplesToPresetRate(t *testing.T) {
	enc := newTestEncoder(t)
	preset := wavPreset(t)
	path := filepath.Join(t.TempDir(), "note.wav")

	// 100 ms of 44.1 kHz input must come out as 100 ms at 16 kHz.
	frames := []audio.Frame{{
		Data:       make([]byte, 4410*2),
		SampleRate: 44100,
		Channels:   1,
	}}
	res, err := enc.Encode(context.Background(), frames, preset, path)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := 100 * time.Millisecond; res.Duration != want {
		t.Errorf("Result.Duration = %v, want %v", res.Duration, want)
	}
}

func TestEncodeDownmixesStereo(t *testing.T) {
	enc := newTestEncoder(t)
	preset := wavPreset(t)
	path := filepath.Join(t.TempDir(), "note.wav")

	// Interleaved stereo: left 2000, right 0 — mono average is 1000.
	data := make([]byte, 320*2*2)
	for i := range 320 {
		binary.LittleEndian.PutUint16(data[4*i:], 2000)
		binary.LittleEndian.PutUint16(data[4*i+2:], 0)
	}
	frames := []audio.Frame{{Data: data, SampleRate: preset.SampleRate, Channels: 2}}

	if _, err := enc.Encode(context.Background(), frames, preset, path); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got := buf.Format.NumChannels; got != 1 {
		t.Fatalf("output channels = %d, want 1", got)
	}
	if got := len(buf.Data); got != 320 {
		t.Fatalf("output has %d samples, want 320", got)
	}
	for i, s := range buf.Data {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestEncodeEmptySnapshot(t *testing.T) {
	enc := newTestEncoder(t)
	preset := wavPreset(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "note.wav")

	for _, frames := range [][]audio.Frame{nil, {}, {{SampleRate: 16000, Channels: 1}}} {
		if _, err := enc.Encode(context.Background(), frames, preset, path); !errors.Is(err, encoder.ErrNoAudio) {
			t.Errorf("Encode(%d frames) err = %v, want ErrNoAudio", len(frames), err)
		}
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("empty encode left a file behind")
	}
}

func TestEncodeFailureLeavesNoFile(t *testing.T) {
	enc := newTestEncoder(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "note.ogg")

	bad := config.Preset{Name: "bad", SampleRate: 16000, Container: "ogg"}
	_, err := enc.Encode(context.Background(), monoFrames(1, 16000, 100), bad, path)

	var eerr *encoder.EncodeError
	if !errors.As(err, &eerr) {
		t.Fatalf("Encode err = %v, want *EncodeError", err)
	}
	if _, serr := os.Stat(path); !errors.Is(serr, os.ErrNotExist) {
		t.Error("failed encode left the output file behind")
	}
	entries, derr := os.ReadDir(dir)
	if derr != nil {
		t.Fatalf("ReadDir: %v", derr)
	}
	if len(entries) != 0 {
		t.Errorf("failed encode left %d temp files behind", len(entries))
	}
}

func TestEncodeCreatesMissingDirectory(t *testing.T) {
	enc := newTestEncoder(t)
	preset := wavPreset(t)
	path := filepath.Join(t.TempDir(), "Voice Notes", "nested", "note.wav")

	if _, err := enc.Encode(context.Background(), monoFrames(1, preset.SampleRate, 100), preset, path); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestEncodeMP3(t *testing.T) {
	if err := lame.Available(); err != nil {
		t.Skipf("lame not installed: %v", err)
	}

	enc := newTestEncoder(t)
	preset, ok := config.PresetByName("extended")
	if !ok {
		t.Fatal("extended preset not registered")
	}
	path := filepath.Join(t.TempDir(), "note"+preset.Extension())

	// One second of tone, long enough for lame to emit real frames.
	res, err := enc.Encode(context.Background(), monoFrames(100, 16000, 4000), preset, path)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := time.Second; res.Duration != want {
		t.Errorf("Result.Duration = %v, want %v", res.Duration, want)
	}
	if res.Bytes == 0 {
		t.Error("MP3 output is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Size() != res.Bytes {
		t.Errorf("Result.Bytes = %d, file is %d", res.Bytes, info.Size())
	}
}

func TestProbe(t *testing.T) {
	enc := newTestEncoder(t)
	if err := enc.Probe(wavPreset(t)); err != nil {
		t.Errorf("Probe(wav) = %v, want nil", err)
	}

	mp3, _ := config.PresetByName("standard")
	err := enc.Probe(mp3)
	if lame.Available() == nil {
		if err != nil {
			t.Errorf("Probe(mp3) = %v with lame installed", err)
		}
	} else if !errors.Is(err, lame.ErrNotInstalled) {
		t.Errorf("Probe(mp3) = %v, want ErrNotInstalled", err)
	}
}
