// Package recorder implements the recording session: the state machine that
// gates frame capture, the append-only session buffer, and the hand-off to
// the encoder via immutable snapshots.
//
// A [Session] owns the capture stream for the duration of Recording/Paused
// and releases it deterministically on Stop, Clear, or device loss. Frames
// flow from the capture stream through a single loop goroutine — the only
// buffer writer — so snapshots never observe a half-appended frame.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielrosehill/voicenote/internal/config"
	"github.com/danielrosehill/voicenote/internal/meter"
	"github.com/danielrosehill/voicenote/internal/observe"
	"github.com/danielrosehill/voicenote/pkg/audio"
	"github.com/danielrosehill/voicenote/pkg/audio/capture"
)

// State is the recording session state.
type State int

const (
	// Idle: no session in progress; the device is closed.
	Idle State = iota

	// Recording: the stream is open and frames are being appended.
	Recording

	// Paused: the stream stays open for a fast resume, but frames are
	// discarded and the meter is frozen at its last active reading.
	Paused

	// Stopped: capture has ended; the buffer is ready to encode.
	Stopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidTransition is returned when a lifecycle method is called
	// outside its valid source state. It is benign: the session state is
	// unchanged and callers may ignore it.
	ErrInvalidTransition = errors.New("recorder: invalid state transition")

	// ErrDeviceUnavailable wraps the platform error when the capture
	// device cannot be opened at session start.
	ErrDeviceUnavailable = errors.New("recorder: capture device unavailable")
)

// EventKind classifies session notifications.
type EventKind int

const (
	// EventStateChanged is emitted on every state transition.
	EventStateChanged EventKind = iota

	// EventCaptureInterrupted is emitted when the device is lost
	// mid-session. The session is forced to Stopped with the partial
	// buffer preserved; Err carries the cause.
	EventCaptureInterrupted
)

// Event describes a session notification delivered to the callback
// registered via [Session.OnEvent].
type Event struct {
	Kind  EventKind
	State State
	Err   error
}

// defaultFormat is the capture format requested from the device: mono at
// 44.1 kHz, a rate every backend supports natively. The encoder resamples
// down to the preset rate at save time.
var defaultFormat = audio.Format{SampleRate: 44100, Channels: 1}

// Option configures a [Session] during construction.
type Option func(*Session)

// WithDevice selects the capture device ID. Defaults to the system default
// input ([capture.DefaultDeviceID]).
func WithDevice(id string) Option {
	return func(s *Session) { s.deviceID = id }
}

// WithFormat sets the capture format requested from the device.
func WithFormat(f audio.Format) Option {
	return func(s *Session) {
		if f.SampleRate > 0 && f.Channels > 0 {
			s.format = f
		}
	}
}

// WithMeterWindow sets the level meter's averaging window.
func WithMeterWindow(d time.Duration) Option {
	return func(s *Session) { s.meterWindow = d }
}

// WithPreset sets the initial quality preset.
func WithPreset(p config.Preset) Option {
	return func(s *Session) { s.preset = p }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is the recording session state machine. All exported methods are
// safe for concurrent use.
type Session struct {
	platform    capture.Platform
	deviceID    string
	format      audio.Format
	meterWindow time.Duration
	metrics     *observe.Metrics

	buf   *Buffer
	meter *meter.Meter

	mu          sync.Mutex
	state       State
	preset      config.Preset
	stream      capture.Stream
	loopDone    chan struct{}
	interrupted error
	eventCb     func(Event)
}

// New creates an idle session backed by the given capture platform.
func New(platform capture.Platform, opts ...Option) *Session {
	s := &Session{
		platform:    platform,
		deviceID:    capture.DefaultDeviceID,
		format:      defaultFormat,
		meterWindow: meter.DefaultWindow,
		preset:      config.DefaultPreset(),
		buf:         NewBuffer(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.meter = meter.New(s.meterWindow)
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Level returns the smoothed input level in dBFS. While Paused it reflects
// the last active reading, not silence.
func (s *Session) Level() float64 {
	return s.meter.Level()
}

// Duration returns the captured audio length so far.
func (s *Session) Duration() time.Duration {
	return s.buf.Duration()
}

// Snapshot returns an immutable copy of the captured frames in capture
// order. Safe to encode concurrently with a later Clear or Start.
func (s *Session) Snapshot() []audio.Frame {
	return s.buf.Snapshot()
}

// Interrupted returns the device-loss cause when the session was forced to
// Stopped, or nil.
func (s *Session) Interrupted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// Preset returns the session's quality preset.
func (s *Session) Preset() config.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

// SetPreset changes the quality preset for the next recording. Changing the
// preset mid-session is rejected with [ErrInvalidTransition]: presets do not
// mutate between Start and the final save.
func (s *Session) SetPreset(p config.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("%w: cannot change preset in state %s", ErrInvalidTransition, s.state)
	}
	s.preset = p
	return nil
}

// OnEvent registers cb as the callback for session notifications. Only one
// callback may be registered at a time; subsequent calls replace the
// previous registration. The callback is invoked on an internal goroutine —
// callers must not block.
func (s *Session) OnEvent(cb func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventCb = cb
}

// Start opens the capture stream and transitions Idle → Recording. The
// buffer and meter are reset, so a new session never contains frames from a
// previous one. On failure the session stays Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, st)
	}
	deviceID := s.deviceID
	format := s.format

	stream, err := s.platform.Open(ctx, deviceID, format)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	s.buf.Clear()
	s.meter.Reset()

	s.state = Recording
	s.stream = stream
	s.interrupted = nil
	s.loopDone = make(chan struct{})
	done := s.loopDone
	s.mu.Unlock()

	s.metrics.SessionsStarted.Add(ctx, 1)
	s.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("recording started", "device", deviceID, "sample_rate", format.SampleRate, "channels", format.Channels)

	go s.captureLoop(stream, done)
	s.emit(Event{Kind: EventStateChanged, State: Recording})
	return nil
}

// Pause transitions Recording → Paused. The stream stays open; incoming
// frames are discarded and the meter freezes at its last active reading.
func (s *Session) Pause() error {
	return s.transition(Paused, Recording)
}

// Resume transitions Paused → Recording. Nothing captured before the pause
// is lost: the buffer is append-only and was never touched.
func (s *Session) Resume() error {
	return s.transition(Recording, Paused)
}

// transition moves to next if the current state is one of from.
func (s *Session) transition(next State, from ...State) error {
	s.mu.Lock()
	valid := false
	for _, f := range from {
		if s.state == f {
			valid = true
			break
		}
	}
	if !valid {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, next, st)
	}
	s.state = next
	s.mu.Unlock()

	s.emit(Event{Kind: EventStateChanged, State: next})
	return nil
}

// Stop closes the capture stream and transitions Recording/Paused →
// Stopped. The buffer becomes the immutable source for encoding.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != Recording && s.state != Paused {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, st)
	}
	s.state = Stopped
	stream := s.stream
	s.stream = nil
	done := s.loopDone
	s.mu.Unlock()

	s.releaseStream(stream, done)
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	s.metrics.RecordingDuration.Record(context.Background(), s.buf.Duration().Seconds())
	slog.Info("recording stopped", "duration", s.buf.Duration())

	s.emit(Event{Kind: EventStateChanged, State: Stopped})
	return nil
}

// Clear discards the session from any state and returns to Idle: the stream
// is closed if open, the buffer is emptied, and the meter is reset. It is
// the hard "retake" reset and never fails.
func (s *Session) Clear() {
	s.mu.Lock()
	wasLive := s.state == Recording || s.state == Paused
	stream := s.stream
	s.stream = nil
	done := s.loopDone
	s.state = Stopped // stops the capture loop's append gate
	s.mu.Unlock()

	if stream != nil {
		s.releaseStream(stream, done)
	}
	if wasLive {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	s.buf.Clear()
	s.meter.Reset()

	s.mu.Lock()
	s.state = Idle
	s.interrupted = nil
	s.mu.Unlock()

	s.emit(Event{Kind: EventStateChanged, State: Idle})
}

// releaseStream closes the stream and waits for the capture loop to drain.
func (s *Session) releaseStream(stream capture.Stream, done chan struct{}) {
	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		slog.Warn("capture stream close", "err", err)
	}
	if done != nil {
		<-done
	}
	if d, ok := stream.(interface{ Dropped() int64 }); ok {
		if n := d.Dropped(); n > 0 {
			s.metrics.FramesDropped.Add(context.Background(), n)
			slog.Warn("frames dropped during capture", "count", n)
		}
	}
}

// captureLoop is the single buffer writer. It drains the stream's frame
// channel, appending and metering only while the session is Recording, and
// handles device loss when the channel closes underneath a live session.
func (s *Session) captureLoop(stream capture.Stream, done chan struct{}) {
	defer close(done)

	for frame := range stream.Frames() {
		s.mu.Lock()
		rec := s.state == Recording
		s.mu.Unlock()
		if rec {
			s.buf.Append(frame)
			s.meter.Process(frame)
		}
	}

	// The channel closed. If the session still thinks it is live, the
	// device died underneath it: force Stopped, keep the partial buffer.
	s.mu.Lock()
	if s.state != Recording && s.state != Paused {
		s.mu.Unlock()
		return
	}
	cause := stream.Err()
	if cause == nil {
		cause = errors.New("capture stream ended unexpectedly")
	}
	s.state = Stopped
	s.stream = nil
	s.interrupted = cause
	s.mu.Unlock()

	s.metrics.CaptureInterruptions.Add(context.Background(), 1)
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	slog.Error("capture interrupted", "err", cause, "captured", s.buf.Duration())

	s.emit(Event{Kind: EventCaptureInterrupted, State: Stopped, Err: cause})
}

// emit invokes the registered event callback, if any. Never called with the
// session mutex held.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	cb := s.eventCb
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}
