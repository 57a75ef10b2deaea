package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vocalbooth/internal/config"
	"github.com/MrWong99/vocalbooth/internal/denoise"
	"github.com/MrWong99/vocalbooth/internal/engine"
	"github.com/MrWong99/vocalbooth/internal/melody"
	"github.com/MrWong99/vocalbooth/internal/params"
	"github.com/MrWong99/vocalbooth/internal/recording"
	"github.com/MrWong99/vocalbooth/internal/resilience"
	"github.com/MrWong99/vocalbooth/internal/songs"
	"github.com/MrWong99/vocalbooth/internal/track"
)

// ErrNoSession is returned by [SessionManager.Stop] when nothing is playing.
var ErrNoSession = errors.New("session: no active session")

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Song is the display name of the loaded song.
	Song string

	// MelodyPath and InstrumentalPath are the files the session was built
	// from. InstrumentalPath is empty when the session plays no backing
	// track.
	MelodyPath       string
	InstrumentalPath string

	// MelodyPoints is the number of melody rows loaded.
	MelodyPoints int

	// InstrumentalLength is the backing track duration.
	InstrumentalLength time.Duration

	// StartedAt is when streaming began.
	StartedAt time.Time
}

// SongRequest selects the song for a session. Melody and Instrumental, when
// set, override the files resolved from Name.
type SongRequest struct {
	Name         string
	Melody       string
	Instrumental string
}

// StopResult describes a finished session.
type StopResult struct {
	Info SessionInfo

	// Recording is the written WAV file, empty when recording is disabled
	// or nothing was captured.
	Recording string

	Stats engine.Stats
}

// SessionManager manages the lifecycle of karaoke sessions on the duplex
// device. Only one session streams at a time; starting a new one stops the
// previous one first. All exported methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	active bool
	info   SessionInfo
	eng    *engine.Engine

	// Dependencies injected at construction.
	cfg       *config.Config
	providers *Providers
	store     *params.Store
	finder    *songs.Finder
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Config    *config.Config
	Providers *Providers
	Store     *params.Store
	Finder    *songs.Finder
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		cfg:       cfg.Config,
		providers: cfg.Providers,
		store:     cfg.Store,
		finder:    cfg.Finder,
	}
}

// Start loads the requested song, builds a fresh engine and starts the
// device. A running session is stopped (and its recording saved) first.
func (sm *SessionManager) Start(ctx context.Context, req SongRequest) (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		if _, err := sm.stopLocked(ctx); err != nil {
			slog.Warn("session: stopping previous session", "err", err)
		}
	}

	name, melodyPath, instPath, err := sm.resolve(req)
	if err != nil {
		return SessionInfo{}, err
	}

	mel, err := melody.Load(melodyPath)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("session: %w", err)
	}

	rate := sm.cfg.Audio.SampleRate
	var inst []float64
	if instPath != "" {
		inst, err = track.Load(instPath, rate)
		if err != nil {
			return SessionInfo{}, fmt.Errorf("session: %w", err)
		}
	} else {
		slog.Warn("session: no instrumental found, voice only", "song", name)
	}

	sm.providers.Detector.Reset()
	eng, err := engine.New(sm.engineConfig(mel, inst))
	if err != nil {
		return SessionInfo{}, fmt.Errorf("session: %w", err)
	}
	if err := sm.providers.Audio.Start(eng.Process); err != nil {
		return SessionInfo{}, fmt.Errorf("session: start audio: %w", err)
	}

	sm.active = true
	sm.eng = eng
	sm.info = SessionInfo{
		SessionID:          uuid.NewString(),
		Song:               name,
		MelodyPath:         melodyPath,
		InstrumentalPath:   instPath,
		MelodyPoints:       mel.Len(),
		InstrumentalLength: recording.Duration(len(inst), rate),
		StartedAt:          time.Now(),
	}

	slog.Info("session started",
		"session_id", sm.info.SessionID,
		"song", name,
		"melody_points", sm.info.MelodyPoints,
		"instrumental", sm.info.InstrumentalLength.Round(time.Second),
	)
	return sm.info, nil
}

// Stop halts the device, saves the recording and clears the session.
// Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) (StopResult, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return StopResult{}, ErrNoSession
	}
	return sm.stopLocked(ctx)
}

func (sm *SessionManager) stopLocked(ctx context.Context) (StopResult, error) {
	res := StopResult{Info: sm.info, Stats: sm.eng.Stats()}

	var errs []error
	if err := sm.providers.Audio.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("session: stop audio: %w", err))
	}

	if sm.cfg.Recording.Enabled {
		samples := sm.eng.Recording()
		path, err := recording.Save(sm.cfg.Recording.Dir, sm.info.Song, samples, sm.cfg.Audio.SampleRate)
		switch {
		case errors.Is(err, recording.ErrEmpty):
			slog.Info("session: nothing recorded", "session_id", sm.info.SessionID)
		case err != nil:
			errs = append(errs, fmt.Errorf("session: save recording: %w", err))
		default:
			res.Recording = path
			slog.Info("session: recording saved",
				"path", path,
				"duration", recording.Duration(len(samples), sm.cfg.Audio.SampleRate).Round(time.Millisecond),
			)
		}
	}

	select {
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	default:
	}

	slog.Info("session stopped",
		"session_id", sm.info.SessionID,
		"song", sm.info.Song,
		"frames", res.Stats.Frames,
		"deadline_misses", res.Stats.DeadlineMisses,
		"detector_errors", res.Stats.DetectorErrors,
	)

	sm.active = false
	sm.eng = nil
	sm.info = SessionInfo{}
	return res, errors.Join(errs...)
}

// IsActive reports whether a session is currently streaming.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Engine returns the active session's engine, or nil.
func (sm *SessionManager) Engine() *engine.Engine {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.eng
}

// ReadSnapshot copies the active engine's state into dst. Without a session
// dst is reset to the zero state, keeping its history buffers.
func (sm *SessionManager) ReadSnapshot(dst *engine.Snapshot) {
	if eng := sm.Engine(); eng != nil {
		eng.ReadSnapshot(dst)
		return
	}
	p, t, c := dst.PitchHistory[:0], dst.TargetHistory[:0], dst.TimeHistory[:0]
	*dst = engine.Snapshot{PitchHistory: p, TargetHistory: t, TimeHistory: c}
}

// ListSongs returns the display names of all complete songs.
func (sm *SessionManager) ListSongs() ([]string, error) {
	all, err := sm.finder.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name
	}
	return names, nil
}

// LoadSong finds the song matching query and starts a session with it.
func (sm *SessionManager) LoadSong(ctx context.Context, query string) (string, error) {
	info, err := sm.Start(ctx, SongRequest{Name: query})
	if err != nil {
		return "", err
	}
	return info.Song, nil
}

// StopSession stops the active session and returns the recording path.
func (sm *SessionManager) StopSession(ctx context.Context) (string, error) {
	res, err := sm.Stop(ctx)
	return res.Recording, err
}

// resolve maps req onto a display name and the melody and instrumental
// files.
func (sm *SessionManager) resolve(req SongRequest) (name, melodyPath, instPath string, err error) {
	name = req.Name
	melodyPath, instPath = req.Melody, req.Instrumental
	if melodyPath != "" && instPath != "" {
		if name == "" {
			base := strings.TrimSuffix(filepath.Base(melodyPath), filepath.Ext(melodyPath))
			name = songs.CleanName(strings.TrimSuffix(base, "_melody"))
		}
		return name, melodyPath, instPath, nil
	}
	if req.Name == "" {
		return "", "", "", errors.New("session: no song selected")
	}

	song, err := sm.finder.Find(req.Name)
	if err != nil {
		return "", "", "", fmt.Errorf("session: %w", err)
	}
	if melodyPath == "" {
		melodyPath = song.Melody
	}
	if instPath == "" {
		instPath = song.Instrumental
	}
	return song.Name, melodyPath, instPath, nil
}

// engineConfig translates the configuration into an engine config for one
// session.
func (sm *SessionManager) engineConfig(mel *melody.Track, inst []float64) engine.Config {
	c := sm.cfg
	return engine.Config{
		SampleRate:   c.Audio.SampleRate,
		FrameSize:    c.Audio.FrameSize,
		Detector:     sm.providers.Detector,
		Effects:      sm.store,
		Melody:       mel,
		Instrumental: inst,
		Noise: denoise.Config{
			HistorySize:       c.Noise.HistorySize,
			VADThreshold:      c.Noise.VADThreshold,
			GracePeriodMs:     c.Noise.GracePeriodMs,
			GateThreshold:     c.Noise.GateThreshold,
			ReductionStrength: c.Noise.ReductionStrength,
			HighPassHz:        c.Noise.HighPassHz,
		},
		Breaker: resilience.CircuitBreakerConfig{
			Name:         "pitch",
			MaxFailures:  c.Pitch.Breaker.MaxFailures,
			ResetTimeout: c.Pitch.Breaker.ResetTimeout,
		},
		Record:            c.Recording.Enabled,
		RecordingCapacity: c.Recording.MaxSeconds * c.Audio.SampleRate,
	}
}
