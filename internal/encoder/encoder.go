// Package encoder turns a captured frame snapshot into a finished audio
// file: downmix to mono, resample to the preset rate, then write either a
// 16-bit PCM WAV or an MP3 via the external lame binary. Output is written
// to a temporary file in the destination directory and renamed into place,
// so a crash or encode failure never leaves a truncated note behind.
package encoder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielrosehill/voicenote/internal/config"
	"github.com/danielrosehill/voicenote/internal/encoder/lame"
	"github.com/danielrosehill/voicenote/internal/observe"
	"github.com/danielrosehill/voicenote/pkg/audio"
)

// ErrNoAudio is returned when the snapshot holds no samples. Saving an
// empty session is always an error rather than producing a zero-length
// file.
var ErrNoAudio = errors.New("encoder: no audio captured")

// EncodeError wraps a failure in the encode pipeline with enough context to
// present to the user: which step failed, the output path involved, and —
// for subprocess failures — the tool's stderr.
type EncodeError struct {
	Op         string
	Path       string
	Stderr     string
	Underlying error
}

func (e *EncodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("encode %s %s: %v: %s", e.Op, e.Path, e.Underlying, e.Stderr)
	}
	return fmt.Sprintf("encode %s %s: %v", e.Op, e.Path, e.Underlying)
}

func (e *EncodeError) Unwrap() error { return e.Underlying }

// Result describes a completed save.
type Result struct {
	// Path is the final output location.
	Path string

	// Bytes is the size of the written file.
	Bytes int64

	// Duration is the audio length after resampling.
	Duration time.Duration
}

// Option configures an [Encoder].
type Option func(*Encoder)

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Encoder) { e.metrics = m }
}

// Encoder runs the save pipeline. The zero value is not usable; construct
// with [New]. Safe for concurrent use — every Encode call works on its own
// snapshot and temp file.
type Encoder struct {
	metrics *observe.Metrics
}

// New creates an encoder.
func New(opts ...Option) *Encoder {
	e := &Encoder{}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Probe checks ahead of time that the preset's container can actually be
// produced on this machine. MP3 presets need the lame binary on PATH; WAV
// always works.
func (e *Encoder) Probe(preset config.Preset) error {
	if preset.Container == config.ContainerMP3 {
		return lame.Available()
	}
	return nil
}

// Encode writes the snapshot to path using the preset's format. The frames
// must be in capture order; their channel count and sample rate come from
// the frames themselves, so the capture format can differ freely from the
// preset's output rate.
func (e *Encoder) Encode(ctx context.Context, frames []audio.Frame, preset config.Preset, path string) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "encoder.Encode",
		trace.WithAttributes(
			attribute.String("container", string(preset.Container)),
			attribute.String("preset", preset.Name),
		))
	defer span.End()

	start := time.Now()
	res, err := e.encode(ctx, frames, preset, path)
	if err != nil {
		span.RecordError(err)
		e.metrics.EncodeErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("container", string(preset.Container)),
			attribute.String("reason", errReason(err)),
		))
		return nil, err
	}

	elapsed := time.Since(start)
	e.metrics.EncodeDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("container", string(preset.Container)),
	))
	slog.Info("note saved",
		"path", res.Path,
		"bytes", res.Bytes,
		"duration", res.Duration.Round(time.Millisecond),
		"preset", preset.Name,
		"encode_time", elapsed.Round(time.Millisecond),
	)
	return res, nil
}

func (e *Encoder) encode(ctx context.Context, frames []audio.Frame, preset config.Preset, path string) (*Result, error) {
	pcm, srcRate := flatten(frames)
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}
	pcm = audio.ResampleMono16(pcm, srcRate, preset.SampleRate)
	duration := time.Duration(len(pcm)/2) * time.Second / time.Duration(preset.SampleRate)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, &EncodeError{Op: "mkdir", Path: dir, Underlying: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, &EncodeError{Op: "create", Path: path, Underlying: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	switch preset.Container {
	case config.ContainerWAV:
		err = writeWAV(tmp, pcm, preset)
	case config.ContainerMP3:
		err = writeMP3(ctx, tmp, pcm, preset)
	default:
		err = fmt.Errorf("unknown container %q", preset.Container)
	}
	if err != nil {
		tmp.Close()
		var xerr *lame.ExitError
		if errors.As(err, &xerr) {
			return nil, &EncodeError{Op: string(preset.Container), Path: path, Stderr: xerr.Stderr, Underlying: err}
		}
		return nil, &EncodeError{Op: string(preset.Container), Path: path, Underlying: err}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, &EncodeError{Op: "sync", Path: path, Underlying: err}
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return nil, &EncodeError{Op: "stat", Path: path, Underlying: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &EncodeError{Op: "close", Path: path, Underlying: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, &EncodeError{Op: "rename", Path: path, Underlying: err}
	}

	return &Result{Path: path, Bytes: info.Size(), Duration: duration}, nil
}

// flatten concatenates the frames into a single mono 16-bit PCM stream at
// the capture rate. The rate is taken from the first non-empty frame; the
// capture layer delivers a uniform format within a session.
func flatten(frames []audio.Frame) (pcm []byte, sampleRate int) {
	var total int
	for _, f := range frames {
		total += len(f.Data) / max(f.Channels, 1)
	}
	pcm = make([]byte, 0, total)
	for _, f := range frames {
		if len(f.Data) == 0 {
			continue
		}
		if sampleRate == 0 {
			sampleRate = f.SampleRate
		}
		pcm = append(pcm, audio.DownmixMono(f.Data, f.Channels)...)
	}
	return pcm, sampleRate
}

// writeWAV encodes mono 16-bit PCM as a standard PCM WAV file.
func writeWAV(f *os.File, pcm []byte, preset config.Preset) error {
	enc := wav.NewEncoder(f, preset.SampleRate, preset.BitDepth, 1, 1)

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: preset.SampleRate},
		Data:           samples,
		SourceBitDepth: preset.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// writeMP3 pipes the PCM through the lame subprocess.
func writeMP3(ctx context.Context, f *os.File, pcm []byte, preset config.Preset) error {
	return lame.Encode(ctx, f, pcm, preset.SampleRate, preset.Bitrate)
}

// errReason maps pipeline errors onto a low-cardinality metric label.
func errReason(err error) string {
	switch {
	case errors.Is(err, ErrNoAudio):
		return "no_audio"
	case errors.Is(err, lame.ErrNotInstalled):
		return "encoder_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "io"
	}
}
