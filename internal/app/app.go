// Package app wires the recorder subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// capture session and encoder, Run executes the interactive command loop
// (plus the optional /metrics listener), and Shutdown tears everything down.
//
// For testing, inject doubles via functional options (WithSession,
// WithEncoder, WithInput/WithOutput). When an option is not provided, New
// creates real implementations from the settings.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/danielrosehill/voicenote/internal/config"
	"github.com/danielrosehill/voicenote/internal/encoder"
	"github.com/danielrosehill/voicenote/internal/health"
	"github.com/danielrosehill/voicenote/internal/meter"
	"github.com/danielrosehill/voicenote/internal/recorder"
	"github.com/danielrosehill/voicenote/pkg/audio/capture"
)

// errQuit ends the command loop without reporting an error.
var errQuit = errors.New("quit")

// App owns the session, encoder, and command loop lifetimes.
type App struct {
	cfg      *config.Settings
	platform capture.Platform

	session *recorder.Session
	enc     *encoder.Encoder

	metricsAddr string
	in          io.Reader
	out         io.Writer

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSession injects a session instead of creating one from settings.
func WithSession(s *recorder.Session) Option {
	return func(a *App) { a.session = s }
}

// WithEncoder injects an encoder.
func WithEncoder(e *encoder.Encoder) Option {
	return func(a *App) { a.enc = e }
}

// WithInput sets the command input stream. Default: os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets the user-facing output stream. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithMetricsAddr enables the Prometheus /metrics listener on addr.
func WithMetricsAddr(addr string) Option {
	return func(a *App) { a.metricsAddr = addr }
}

// WithCloser registers a function to run during Shutdown, after the session
// is cleared. Closers run in registration order.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New wires the application from settings. The capture platform comes from
// main so that tests can hand in a mock.
func New(cfg *config.Settings, platform capture.Platform, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil settings")
	}
	a := &App{
		cfg:      cfg,
		platform: platform,
		in:       os.Stdin,
		out:      os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}

	preset := cfg.Preset()
	if a.session == nil {
		a.session = recorder.New(platform,
			recorder.WithDevice(cfg.PreferredDevice),
			recorder.WithPreset(preset),
		)
	}
	if a.enc == nil {
		a.enc = encoder.New()
	}

	// An MP3 preset without the encoder binary is not fatal here — the user
	// can still record and switch to wav — but they should know up front.
	if err := a.enc.Probe(preset); err != nil {
		slog.Warn("preset encoder unavailable", "preset", preset.Name, "err", err)
		fmt.Fprintf(a.out, "warning: preset %q needs the lame binary (%v); use `preset wav` or install lame\n", preset.Name, err)
	}

	a.session.OnEvent(func(ev recorder.Event) {
		if ev.Kind == recorder.EventCaptureInterrupted {
			fmt.Fprintf(a.out, "\ncapture interrupted (%v) — partial recording kept, `save` or `retake`\n", ev.Err)
		}
	})

	return a, nil
}

// Session exposes the recording session, mainly for tests.
func (a *App) Session() *recorder.Session { return a.session }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the command loop and the optional metrics listener, blocking
// until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.metricsAddr != "" {
		srv := &http.Server{Addr: a.metricsAddr, Handler: a.telemetryMux()}
		g.Go(func() error {
			slog.Info("metrics listener started", "addr", a.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		err := a.commandLoop(ctx)
		if errors.Is(err, errQuit) {
			// Propagate cancellation so the metrics listener stops too.
			return context.Canceled
		}
		return err
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// telemetryMux serves the Prometheus scrape endpoint backed by the OTel
// Prometheus exporter bridge, plus liveness and readiness probes.
func (a *App) telemetryMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(
		health.CheckCapture(a.platform),
		health.CheckEncoder(func() error { return a.enc.Probe(a.session.Preset()) }),
	).Register(mux)
	return mux
}

// commandLoop reads commands line by line until quit, EOF, or cancellation.
func (a *App) commandLoop(ctx context.Context) error {
	fmt.Fprintln(a.out, "voicenote ready — type `help` for commands")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		a.prompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read commands: %w", err)
				}
				return errQuit // EOF ends the session like quit
			}
			if err := a.execute(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return errQuit
				}
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
		}
	}
}

func (a *App) prompt() {
	fmt.Fprintf(a.out, "[%s] ", a.session.State())
}

// execute dispatches one command line.
func (a *App) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "record", "r":
		if err := a.session.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "recording")
		return nil

	case "pause", "p":
		if err := a.session.Pause(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "paused")
		return nil

	case "resume":
		if err := a.session.Resume(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "recording")
		return nil

	case "stop", "s":
		if err := a.session.Stop(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "stopped — %s captured; `save` or `retake`\n", a.session.Duration().Round(time.Second))
		return nil

	case "save":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		res, err := a.Save(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "saved %s (%s, %d bytes)\n", res.Path, res.Duration.Round(time.Second), res.Bytes)
		return nil

	case "retake":
		a.session.Clear()
		fmt.Fprintln(a.out, "discarded")
		return nil

	case "devices":
		return a.listDevices(ctx)

	case "preset":
		if len(args) == 0 {
			fmt.Fprintf(a.out, "preset: %s\n", describePreset(a.session.Preset()))
			return nil
		}
		return a.setPreset(args[0])

	case "status":
		a.printStatus()
		return nil

	case "help", "?":
		a.printHelp()
		return nil

	case "quit", "q", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q (try `help`)", cmd)
	}
}

// ─── Save ────────────────────────────────────────────────────────────────────

// Save finalises the current recording: a live session is stopped first, the
// snapshot is encoded to the settings' save directory, and on success the
// session returns to Idle. An empty name uses the timestamp default.
func (a *App) Save(ctx context.Context, name string) (*encoder.Result, error) {
	switch a.session.State() {
	case recorder.Recording, recorder.Paused:
		if err := a.session.Stop(); err != nil {
			return nil, err
		}
	}

	preset := a.session.Preset()
	if name == "" {
		name = config.DefaultFilename(time.Now())
	}
	path := filepath.Join(a.cfg.DefaultSavePath, name+preset.Extension())

	if captured := a.session.Duration(); captured > preset.MaxDuration() {
		fmt.Fprintf(a.out, "warning: %s captured exceeds the %s ceiling for preset %q — file may be too large to upload\n",
			captured.Round(time.Second), preset.MaxDuration().Round(time.Minute), preset.Name)
	}

	res, err := a.enc.Encode(ctx, a.session.Snapshot(), preset, path)
	if err != nil {
		return nil, err
	}
	a.session.Clear()
	return res, nil
}

// ─── Command helpers ─────────────────────────────────────────────────────────

func (a *App) listDevices(ctx context.Context) error {
	devices, err := a.platform.Devices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(a.out, "no capture devices found")
		return nil
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %s\n", marker, d.Name)
	}
	return nil
}

func (a *App) setPreset(name string) error {
	p, ok := config.PresetByName(name)
	if !ok {
		return fmt.Errorf("unknown preset %q (available: %s)", name, presetNames())
	}
	if err := a.session.SetPreset(p); err != nil {
		return err
	}
	if err := a.enc.Probe(p); err != nil {
		fmt.Fprintf(a.out, "warning: %v\n", err)
	}
	fmt.Fprintf(a.out, "preset: %s\n", describePreset(p))
	return nil
}

func (a *App) printStatus() {
	st := a.session.State()
	fmt.Fprintf(a.out, "state    : %s\n", st)
	fmt.Fprintf(a.out, "captured : %s\n", a.session.Duration().Round(time.Second))
	fmt.Fprintf(a.out, "preset   : %s\n", describePreset(a.session.Preset()))
	if st == recorder.Recording || st == recorder.Paused {
		fmt.Fprintf(a.out, "level    : %s\n", formatLevel(a.session.Level()))
	}
	if err := a.session.Interrupted(); err != nil {
		fmt.Fprintf(a.out, "note     : capture was interrupted (%v)\n", err)
	}
}

func (a *App) printHelp() {
	fmt.Fprint(a.out, `commands:
  record  (r)     start a new recording
  pause   (p)     pause capture, keeping everything recorded so far
  resume          continue after pause
  stop    (s)     finish capturing
  save [name]     stop if needed and write the note to disk
  retake          discard the recording and start over
  preset [name]   show or switch the quality preset (idle only)
  devices         list capture devices
  status          show state, captured length, and input level
  quit    (q)     exit
`)
}

func describePreset(p config.Preset) string {
	return fmt.Sprintf("%s — %s", p.Name, p.Description)
}

func presetNames() string {
	var names []string
	for _, p := range config.Presets() {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

// formatLevel renders the smoothed level with a bar and a speaking-volume
// verdict against the target range.
func formatLevel(db float64) string {
	const width = 20
	span := meter.MaxDB - meter.MinDB
	filled := int((db - meter.MinDB) / span * width)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)

	verdict := "good"
	switch {
	case db < meter.TargetMinDB:
		verdict = "low — speak up or move closer"
	case db > meter.TargetMaxDB:
		verdict = "hot — back off the mic"
	}
	return fmt.Sprintf("[%s] %.1f dBFS (%s)", bar, db, verdict)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears the application down: any live capture is discarded and
// registered closers run in order. Respects the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.session.Clear()
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}
