// Package app wires all vocalbooth subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the control surfaces and the UI poll loop, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithNATSConn, etc.) and pass mock devices and detectors in [Providers].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocalbooth/internal/config"
	"github.com/MrWong99/vocalbooth/internal/engine"
	"github.com/MrWong99/vocalbooth/internal/health"
	"github.com/MrWong99/vocalbooth/internal/live"
	"github.com/MrWong99/vocalbooth/internal/observe"
	"github.com/MrWong99/vocalbooth/internal/params"
	"github.com/MrWong99/vocalbooth/internal/resilience"
	"github.com/MrWong99/vocalbooth/internal/songs"
	"github.com/MrWong99/vocalbooth/pkg/audio"
	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
)

const (
	// pollInterval is the UI loop cadence (10 Hz).
	pollInterval = 100 * time.Millisecond

	// statsLogEvery is the number of polls between debug counter lines.
	statsLogEvery = 50

	httpShutdownTimeout = 5 * time.Second
)

// Providers holds the device and detector. Populated by main.go via the
// config registry.
type Providers struct {
	Detector pitch.Detector
	Audio    audio.Duplex
}

// App owns all subsystem lifetimes and orchestrates the vocalbooth pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics    *observe.Metrics
	store      *params.Store
	sessions   *SessionManager
	health     *health.Handler
	live       *live.Server
	httpServer *http.Server
	listener   net.Listener
	fileSource *params.FileSource
	natsConn   *nats.Conn
	natsSource *params.NATSSource
	logLevel   *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics instance instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNATSConn injects a NATS connection instead of dialing params.nats.url.
// The caller keeps ownership of the connection.
func WithNATSConn(nc *nats.Conn) Option {
	return func(a *App) { a.natsConn = nc }
}

// WithLogLevel lets [App.Reload] adjust the log level at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles.
//
// New does not start streaming. The configured song, if any, is loaded by
// [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Detector == nil || providers.Audio == nil {
		return nil, errors.New("app: a pitch detector and an audio device are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Audio.Close)

	// ── 1. Parameter store ───────────────────────────────────────────────
	a.store = params.NewStore(cfg.Effects, params.WithRecorder(a.metrics))

	// ── 2. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:    cfg,
		Providers: providers,
		Store:     a.store,
		Finder:    songs.NewFinder(cfg.Song.Dir),
	})

	// ── 3. Parameter channels ────────────────────────────────────────────
	if err := a.initParams(ctx); err != nil {
		return nil, fmt.Errorf("app: init params: %w", err)
	}

	// ── 4. Health + live server ──────────────────────────────────────────
	a.initHealth()
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initParams sets up the parameter file mirror and the NATS subscriber.
func (a *App) initParams(_ context.Context) error {
	pc := a.cfg.Params
	if pc.File != "" {
		a.fileSource = params.NewFileSource(pc.File, pc.PollInterval, a.store)
		// Mirror every accepted change back into the file so external
		// tools see the effective values.
		unsubscribe := a.store.Subscribe(func(e params.Effects) {
			if err := a.fileSource.Write(e); err != nil {
				slog.Warn("params: mirror to file failed", "path", pc.File, "err", err)
			}
		})
		a.closers = append(a.closers, func() error {
			unsubscribe()
			return nil
		})
	}

	if a.natsConn == nil && pc.NATS.URL != "" {
		nc, err := nats.Connect(pc.NATS.URL, nats.Name("vocalbooth"))
		if err != nil {
			return fmt.Errorf("connect nats %q: %w", pc.NATS.URL, err)
		}
		a.natsConn = nc
		a.closers = append(a.closers, func() error {
			nc.Close()
			return nil
		})
	}
	if a.natsConn != nil {
		a.natsSource = params.NewNATSSource(a.natsConn, pc.NATS.Subject, a.store)
	}
	return nil
}

// initHealth registers the readiness checks.
func (a *App) initHealth() {
	a.health = health.New(
		health.Flag("pitch_detector", func() bool {
			eng := a.sessions.Engine()
			return eng == nil || eng.Breaker().State() != resilience.StateOpen
		}, "circuit breaker open"),
	)
	if a.natsConn != nil {
		nc := a.natsConn
		a.health.Add(health.Flag("nats", nc.IsConnected, "not connected"))
	}
}

// initServer builds the live server and, when a listen address is
// configured, binds its listener.
func (a *App) initServer() error {
	a.live = live.New(a.store, a.sessions,
		live.WithMetrics(a.metrics),
		live.WithHealth(a.health),
		live.WithSessions(a.sessions),
		live.WithOriginPatterns(live.ParseOrigins(a.cfg.Server.AllowedOrigins)...),
	)
	if a.cfg.Server.ListenAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.listener = ln
	a.httpServer = &http.Server{
		Handler:           a.live.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Store returns the live parameter store.
func (a *App) Store() *params.Store { return a.store }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Live returns the live control server.
func (a *App) Live() *live.Server { return a.live }

// Addr returns the bound HTTP address, or nil when the server is disabled.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP server, the parameter channels and the UI poll loop,
// starts the configured song and blocks until ctx is cancelled. When ctx is
// done, Run returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if a.httpServer != nil {
		// Websocket handlers end with the run context.
		a.httpServer.BaseContext = func(net.Listener) context.Context { return gctx }
		g.Go(func() error {
			slog.Info("http server listening", "addr", a.listener.Addr().String())
			if err := a.httpServer.Serve(a.listener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), httpShutdownTimeout)
			defer cancel()
			return a.httpServer.Shutdown(shutdownCtx)
		})
	}
	if a.fileSource != nil {
		g.Go(func() error { return a.fileSource.Run(gctx) })
	}
	if a.natsSource != nil {
		g.Go(func() error { return a.natsSource.Run(gctx) })
	}
	g.Go(func() error { return a.pollLoop(gctx) })

	if req := a.initialSong(); req != (SongRequest{}) {
		if _, err := a.sessions.Start(gctx, req); err != nil {
			slog.Error("failed to start session", "err", err)
			cancel()
			_ = g.Wait()
			return fmt.Errorf("app: %w", err)
		}
	} else {
		slog.Info("no song configured; waiting for a client to load one")
	}

	slog.Info("app running", "streaming", a.sessions.IsActive())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// initialSong returns the song selected by the configuration.
func (a *App) initialSong() SongRequest {
	s := a.cfg.Song
	return SongRequest{Name: s.Name, Melody: s.Melody, Instrumental: s.Instrumental}
}

// pollState is the UI loop's view of the active engine.
type pollState struct {
	engine   *engine.Engine
	prev     engine.Stats
	snap     engine.Snapshot
	detector resilience.State
	polls    int
}

// pollLoop runs at the UI cadence: it moves the engine's counters into the
// metrics, logs breaker transitions and pushes state to live clients.
func (a *App) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	st := &pollState{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.poll(ctx, st)
		}
	}
}

func (a *App) poll(ctx context.Context, st *pollState) {
	eng := a.sessions.Engine()
	if eng != st.engine {
		*st = pollState{engine: eng, snap: st.snap}
	}
	if eng != nil {
		a.collect(ctx, eng, st)
	}
	a.live.Broadcast()
}

// collect records one poll's worth of engine activity.
func (a *App) collect(ctx context.Context, eng *engine.Engine, st *pollState) {
	stats := eng.Stats()
	d := stats.Sub(st.prev)
	st.prev = stats

	a.metrics.RecordFrames(ctx, observe.FrameStats{
		Frames:         int64(d.Frames),
		DeadlineMisses: int64(d.DeadlineMisses),
		Corrections:    int64(d.Corrections),
		ClampedSamples: int64(d.ClampedSamples),
		VoiceActive:    int64(d.VoiceActive),
		DetectorErrors: int64(d.DetectorErrors),
	})
	eng.DrainFrameDurations(func(dur time.Duration) {
		a.metrics.RecordFrameDuration(ctx, dur.Seconds())
	})
	if d.BreakerTrips > 0 {
		a.metrics.RecordBreakerTrips(ctx, eng.Breaker().Name(), int64(d.BreakerTrips))
	}

	eng.ReadSnapshot(&st.snap)
	a.metrics.RecordNoiseLevel(ctx, st.snap.NoiseLevel)

	if st.snap.Detector != st.detector {
		level := slog.LevelInfo
		if st.snap.Detector == resilience.StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "pitch detector breaker changed state",
			"from", st.detector.String(),
			"to", st.snap.Detector.String(),
			"detector_errors", stats.DetectorErrors,
		)
		st.detector = st.snap.Detector
	}

	st.polls++
	if st.polls%statsLogEvery == 0 {
		slog.Debug("engine stats",
			"frames", stats.Frames,
			"clock", st.snap.Clock,
			"pitch", st.snap.Pitch,
			"target", st.snap.Target,
			"noise", st.snap.NoiseLevel,
			"voice_active", st.snap.VoiceActive,
			"deadline_misses", stats.DeadlineMisses,
			"clamped", stats.ClampedSamples,
		)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between two configs. It is
// meant to be passed to [config.NewWatcher].
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EffectsChanged {
		a.store.Set(d.NewEffects)
		slog.Info("effects reloaded from config")
	}
	for _, block := range d.RestartRequired {
		slog.Warn("config change requires restart", "block", block)
	}
}

// SlogLevel converts a config log level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. The active
// session is stopped first so its recording is written. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop streaming and save the recording first.
		if _, err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session stop error", "err", err)
		}

		if a.httpServer != nil {
			if err := a.httpServer.Close(); err != nil {
				slog.Warn("http server close error", "err", err)
			}
			// http.Server.Close only closes listeners it served.
			_ = a.listener.Close()
		}

		// Run closers in reverse order.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
