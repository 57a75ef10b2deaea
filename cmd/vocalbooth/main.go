// Command vocalbooth is the real-time karaoke vocal engine.
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

	"github.com/MrWong99/vocalbooth/internal/app"
	"github.com/MrWong99/vocalbooth/internal/config"
	"github.com/MrWong99/vocalbooth/internal/observe"
	"github.com/MrWong99/vocalbooth/pkg/audio"
	"github.com/MrWong99/vocalbooth/pkg/audio/malgo"
	audiomock "github.com/MrWong99/vocalbooth/pkg/audio/mock"
	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
	"github.com/MrWong99/vocalbooth/pkg/provider/pitch/yin"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	song := flag.String("song", "", "song to load on startup (overrides song.name)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalbooth: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalbooth: %v\n", err)
		}
		return 1
	}
	if *song != "" {
		cfg.Song.Name = *song
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(logLevel))

	slog.Info("vocalbooth starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = providers.Audio.Close()
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.Reload)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in device and detector factories
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterAudio("malgo", func(a config.AudioConfig) (audio.Duplex, error) {
		return malgo.Open(malgo.Config{
			SampleRate: a.SampleRate,
			FrameSize:  a.FrameSize,
			Periods:    a.Periods,
		})
	})

	// mock is a silent device nothing drives; it runs the control server
	// without audio hardware.
	reg.RegisterAudio("mock", func(a config.AudioConfig) (audio.Duplex, error) {
		return &audiomock.Duplex{Rate: a.SampleRate, Size: a.FrameSize}, nil
	})

	reg.RegisterDetector("yin", func(p config.PitchConfig, a config.AudioConfig) (pitch.Detector, error) {
		return yin.New(pitch.Config{
			SampleRate:   a.SampleRate,
			HopSize:      a.FrameSize,
			WindowSize:   p.WindowSize,
			MinFrequency: p.MinFrequency,
			MaxFrequency: p.MaxFrequency,
			Threshold:    p.Threshold,
		})
	})

	for kind, names := range config.ValidBackendNames {
		for _, name := range names {
			slog.Debug("registered backend", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the detector and the device named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	det, err := reg.CreateDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create pitch detector %q: %w", cfg.Pitch.Detector, err)
	}
	slog.Info("provider created", "kind", "pitch", "name", cfg.Pitch.Detector)

	dev, err := reg.CreateAudio(cfg)
	if err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", cfg.Audio.Backend, err)
	}
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Backend, "format", dev.Format().String())

	return &app.Providers{Detector: det, Audio: dev}, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       VocalBooth — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", fmt.Sprintf("%s / %d Hz", cfg.Audio.Backend, cfg.Audio.SampleRate))
	printRow("Frame", fmt.Sprintf("%d samples (%s)", cfg.Audio.FrameSize, cfg.Audio.FrameDuration()))
	printRow("Pitch", cfg.Pitch.Detector)
	printRow("Song", songLabel(cfg.Song))
	printRow("Param file", orDisabled(cfg.Params.File))
	printRow("NATS", orDisabled(cfg.Params.NATS.URL))
	if cfg.Recording.Enabled {
		printRow("Recordings", cfg.Recording.Dir)
	} else {
		printRow("Recordings", "(disabled)")
	}
	printRow("Listen addr", orDisabled(cfg.Server.ListenAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func songLabel(s config.SongConfig) string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Melody != "":
		return s.Melody
	default:
		return "(chosen by client)"
	}
}

func orDisabled(v string) string {
	if v == "" {
		return "(disabled)"
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
