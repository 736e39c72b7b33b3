// Command voicenote is the main entry point for the voice note recorder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielrosehill/voicenote/internal/app"
	"github.com/danielrosehill/voicenote/internal/config"
	"github.com/danielrosehill/voicenote/internal/observe"
	"github.com/danielrosehill/voicenote/pkg/audio/capture/miniaudio"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML settings file (default: ~/.config/voicenote/settings.yaml)")
	presetName := flag.String("preset", "", "quality preset override: standard, extended, maximum, or wav")
	deviceID := flag.String("device", "", "capture device override")
	saveDir := flag.String("save-dir", "", "save directory override")
	metricsAddr := flag.String("metrics-addr", "", "optional Prometheus /metrics listen address, e.g. 127.0.0.1:9464")
	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("voicenote", version)
		return 0
	}

	// ── Load settings ──────────────────────────────────────────────────────────
	path := *configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicenote: %v\n", err)
			return 1
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		// A broken settings file should not keep the user from recording.
		fmt.Fprintf(os.Stderr, "voicenote: %v — continuing with defaults\n", err)
	}

	// Flag overrides beat the settings file.
	if *presetName != "" {
		if _, ok := config.PresetByName(*presetName); !ok {
			fmt.Fprintf(os.Stderr, "voicenote: unknown preset %q\n", *presetName)
			return 1
		}
		cfg.QualityPreset = *presetName
	}
	if *deviceID != "" {
		cfg.PreferredDevice = *deviceID
	}
	if *saveDir != "" {
		cfg.DefaultSavePath = *saveDir
	}

	// ── Logger ─────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicenote starting",
		"version", version,
		"config", path,
		"preset", cfg.Preset().Name,
		"save_path", cfg.DefaultSavePath,
	)

	// ── Signal context ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ──────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Capture platform ───────────────────────────────────────────────────────
	platform, err := miniaudio.New()
	if err != nil {
		slog.Error("failed to initialise audio backend", "err", err)
		return 1
	}

	if *listDevices {
		defer platform.Close()
		devices, err := platform.Devices(ctx)
		if err != nil {
			slog.Error("failed to list devices", "err", err)
			return 1
		}
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, d.Name)
		}
		return 0
	}

	// ── Application ────────────────────────────────────────────────────────────
	application, err := app.New(&cfg, platform,
		app.WithMetricsAddr(*metricsAddr),
		app.WithCloser(platform.Close),
	)
	if err != nil {
		platform.Close()
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
