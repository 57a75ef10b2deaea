package app_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/vocalbooth/internal/app"
	"github.com/MrWong99/vocalbooth/internal/config"
	"github.com/MrWong99/vocalbooth/internal/engine"
	"github.com/MrWong99/vocalbooth/internal/params"
	"github.com/MrWong99/vocalbooth/internal/songs"
	"github.com/MrWong99/vocalbooth/internal/wav"
	audiomock "github.com/MrWong99/vocalbooth/pkg/audio/mock"
	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
	pitchmock "github.com/MrWong99/vocalbooth/pkg/provider/pitch/mock"
)

const testRate = 8000

// sine returns n samples of a sine at freq.
func sine(freq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.3 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

// writeSong creates a prepared song directory under songsDir.
func writeSong(t *testing.T, songsDir, dir string) {
	t.Helper()
	songDir := filepath.Join(songsDir, dir)
	sepDir := filepath.Join(songDir, songs.CleanName(dir)+"_separated")
	if err := os.MkdirAll(sepDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	melody := "# time,frequency\n0.0,220\n0.5,247\n1.0,262\n"
	if err := os.WriteFile(filepath.Join(songDir, dir+"_melody.txt"), []byte(melody), 0o644); err != nil {
		t.Fatalf("write melody: %v", err)
	}
	if err := wav.WriteFile(filepath.Join(sepDir, dir+"_(Instrumental).wav"), sine(110, testRate), testRate); err != nil {
		t.Fatalf("write instrumental: %v", err)
	}
}

// testConfig returns a config streaming at testRate with recordings and
// songs under a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Server.ListenAddr = ""
	cfg.Audio.Backend = "mock"
	cfg.Audio.SampleRate = testRate
	cfg.Audio.FrameSize = 256
	cfg.Song.Dir = filepath.Join(root, "songs")
	cfg.Recording.Dir = filepath.Join(root, "recordings")
	cfg.Recording.MaxSeconds = 5
	if err := os.MkdirAll(cfg.Song.Dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return &cfg
}

func testProviders() (*app.Providers, *audiomock.Duplex, *pitchmock.Detector) {
	dev := &audiomock.Duplex{Rate: testRate, Size: 256}
	det := &pitchmock.Detector{Result: pitch.Estimate{Frequency: 210, Confidence: 0.9}}
	return &app.Providers{Detector: det, Audio: dev}, dev, det
}

func newTestSessionManager(t *testing.T) (*app.SessionManager, *config.Config, *audiomock.Duplex, *pitchmock.Detector) {
	t.Helper()
	cfg := testConfig(t)
	providers, dev, det := testProviders()
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Config:    cfg,
		Providers: providers,
		Store:     params.NewStore(cfg.Effects),
		Finder:    songs.NewFinder(cfg.Song.Dir),
	})
	return sm, cfg, dev, det
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()

	sm, cfg, dev, det := newTestSessionManager(t)
	writeSong(t, cfg.Song.Dir, "Hello_Official_Video_f66263_20250811_202548")

	ctx := context.Background()
	info, err := sm.Start(ctx, app.SongRequest{Name: "hello"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !sm.IsActive() {
		t.Fatal("expected session to be active after Start")
	}
	if info.Song != "Hello" {
		t.Errorf("Song = %q, want %q", info.Song, "Hello")
	}
	if info.SessionID == "" {
		t.Error("SessionID should not be empty")
	}
	if info.MelodyPoints != 3 {
		t.Errorf("MelodyPoints = %d, want 3", info.MelodyPoints)
	}
	if info.InstrumentalLength.Seconds() != 1 {
		t.Errorf("InstrumentalLength = %v, want 1s", info.InstrumentalLength)
	}
	if dev.CallCountStart != 1 {
		t.Errorf("Start call count = %d, want 1", dev.CallCountStart)
	}
	if det.ResetCalls != 1 {
		t.Errorf("detector Reset call count = %d, want 1", det.ResetCalls)
	}
	if sm.Engine() == nil {
		t.Fatal("Engine() = nil during a session")
	}

	out := dev.Run(sine(210, testRate/2))
	if len(out) != testRate/2 {
		t.Fatalf("output length = %d, want %d", len(out), testRate/2)
	}

	res, err := sm.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if sm.IsActive() {
		t.Fatal("expected session to be inactive after Stop")
	}
	if sm.Engine() != nil {
		t.Error("Engine() should be nil after Stop")
	}
	if dev.CallCountStop != 1 {
		t.Errorf("Stop call count = %d, want 1", dev.CallCountStop)
	}
	if res.Info.SessionID != info.SessionID {
		t.Errorf("StopResult SessionID = %q, want %q", res.Info.SessionID, info.SessionID)
	}
	if res.Stats.Frames == 0 {
		t.Error("StopResult Stats.Frames = 0, want frames")
	}

	if res.Recording == "" {
		t.Fatal("Recording path is empty")
	}
	if !strings.HasPrefix(filepath.Base(res.Recording), "Hello_") {
		t.Errorf("Recording = %q, want a Hello_ prefix", res.Recording)
	}
	rec, err := wav.Read(res.Recording)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if rec.Frames() != testRate/2 {
		t.Errorf("recording frames = %d, want %d", rec.Frames(), testRate/2)
	}
}

func TestSessionManager_StopWithoutStart(t *testing.T) {
	t.Parallel()

	sm, _, _, _ := newTestSessionManager(t)
	if _, err := sm.Stop(context.Background()); !errors.Is(err, app.ErrNoSession) {
		t.Fatalf("Stop() error = %v, want ErrNoSession", err)
	}
	if _, err := sm.StopSession(context.Background()); !errors.Is(err, app.ErrNoSession) {
		t.Fatalf("StopSession() error = %v, want ErrNoSession", err)
	}
}

func TestSessionManager_StopNothingRecorded(t *testing.T) {
	t.Parallel()

	sm, cfg, _, _ := newTestSessionManager(t)
	writeSong(t, cfg.Song.Dir, "Quiet_Song")

	ctx := context.Background()
	if _, err := sm.Start(ctx, app.SongRequest{Name: "Quiet_Song"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	res, err := sm.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if res.Recording != "" {
		t.Errorf("Recording = %q, want empty when no frame was processed", res.Recording)
	}
}

func TestSessionManager_RecordingDisabled(t *testing.T) {
	t.Parallel()

	sm, cfg, dev, _ := newTestSessionManager(t)
	cfg.Recording.Enabled = false
	writeSong(t, cfg.Song.Dir, "Quiet_Song")

	ctx := context.Background()
	if _, err := sm.Start(ctx, app.SongRequest{Name: "quiet song"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	dev.Run(sine(210, 1024))
	res, err := sm.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if res.Recording != "" {
		t.Errorf("Recording = %q, want empty", res.Recording)
	}
	if _, err := os.Stat(cfg.Recording.Dir); !os.IsNotExist(err) {
		t.Errorf("recordings dir exists (err=%v), want none", err)
	}
}

func TestSessionManager_StartReplacesSession(t *testing.T) {
	t.Parallel()

	sm, cfg, dev, _ := newTestSessionManager(t)
	writeSong(t, cfg.Song.Dir, "First_Song")
	writeSong(t, cfg.Song.Dir, "Second_Song")

	ctx := context.Background()
	first, err := sm.Start(ctx, app.SongRequest{Name: "First_Song"})
	if err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	firstEngine := sm.Engine()

	second, err := sm.Start(ctx, app.SongRequest{Name: "Second_Song"})
	if err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Error("expected a new SessionID")
	}
	if sm.Engine() == firstEngine {
		t.Error("expected a fresh engine for the new session")
	}
	if dev.CallCountStop != 1 {
		t.Errorf("Stop call count = %d, want 1", dev.CallCountStop)
	}
	if dev.CallCountStart != 2 {
		t.Errorf("Start call count = %d, want 2", dev.CallCountStart)
	}
	if got := sm.Info().Song; got != "Second_Song" {
		t.Errorf("Info().Song = %q, want %q", got, "Second_Song")
	}
}

func TestSessionManager_StartErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     app.SongRequest
		prepare func(t *testing.T, cfg *config.Config, dev *audiomock.Duplex)
		wantErr string
	}{
		{
			name:    "no song selected",
			req:     app.SongRequest{},
			wantErr: "no song selected",
		},
		{
			name:    "unknown song",
			req:     app.SongRequest{Name: "does not exist"},
			wantErr: "not found",
		},
		{
			name:    "missing melody file",
			req:     app.SongRequest{Melody: "missing_melody.txt", Instrumental: "missing.wav"},
			wantErr: "melody",
		},
		{
			name: "device start failure",
			req:  app.SongRequest{Name: "Song"},
			prepare: func(t *testing.T, cfg *config.Config, dev *audiomock.Duplex) {
				t.Helper()
				writeSong(t, cfg.Song.Dir, "Song")
				dev.StartError = errors.New("device busy")
			},
			wantErr: "device busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sm, cfg, dev, _ := newTestSessionManager(t)
			if tt.prepare != nil {
				tt.prepare(t, cfg, dev)
			}
			_, err := sm.Start(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Start() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Start() error = %q, want it to contain %q", err, tt.wantErr)
			}
			if sm.IsActive() {
				t.Error("session should not be active after a failed Start")
			}
		})
	}
}

func TestSessionManager_ExplicitPaths(t *testing.T) {
	t.Parallel()

	sm, cfg, _, _ := newTestSessionManager(t)
	writeSong(t, cfg.Song.Dir, "Direct")
	song, err := songs.Resolve(filepath.Join(cfg.Song.Dir, "Direct"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	info, err := sm.Start(context.Background(), app.SongRequest{
		Melody:       song.Melody,
		Instrumental: song.Instrumental,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if info.Song != "Direct" {
		t.Errorf("Song = %q, want %q", info.Song, "Direct")
	}
	if info.MelodyPath != song.Melody || info.InstrumentalPath != song.Instrumental {
		t.Errorf("paths = %q, %q, want %q, %q", info.MelodyPath, info.InstrumentalPath, song.Melody, song.Instrumental)
	}
}

func TestSessionManager_ReadSnapshot(t *testing.T) {
	t.Parallel()

	sm, cfg, dev, _ := newTestSessionManager(t)
	writeSong(t, cfg.Song.Dir, "Song")

	snap := engine.Snapshot{Pitch: 123, PitchHistory: make([]float64, 0, 16)}
	sm.ReadSnapshot(&snap)
	if snap.Pitch != 0 || len(snap.PitchHistory) != 0 {
		t.Errorf("idle snapshot = %+v, want zero state", snap)
	}
	if cap(snap.PitchHistory) != 16 {
		t.Errorf("history capacity = %d, want the buffer kept", cap(snap.PitchHistory))
	}

	ctx := context.Background()
	if _, err := sm.Start(ctx, app.SongRequest{Name: "Song"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	dev.Run(sine(210, 2048))
	sm.ReadSnapshot(&snap)
	if snap.Frame != 8 {
		t.Errorf("Frame = %d, want 8", snap.Frame)
	}
	if snap.Pitch != 210 {
		t.Errorf("Pitch = %v, want 210", snap.Pitch)
	}
	if _, err := sm.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestSessionManager_LiveSessions(t *testing.T) {
	t.Parallel()

	sm, cfg, _, _ := newTestSessionManager(t)
	writeSong(t, cfg.Song.Dir, "Beta_Song")
	writeSong(t, cfg.Song.Dir, "Alpha_Song")
	if err := os.MkdirAll(filepath.Join(cfg.Song.Dir, "Incomplete"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names, err := sm.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs() error: %v", err)
	}
	if len(names) != 2 || names[0] != "Alpha_Song" || names[1] != "Beta_Song" {
		t.Errorf("ListSongs() = %v, want [Alpha_Song Beta_Song]", names)
	}

	ctx := context.Background()
	name, err := sm.LoadSong(ctx, "beta song")
	if err != nil {
		t.Fatalf("LoadSong() error: %v", err)
	}
	if name != "Beta_Song" {
		t.Errorf("LoadSong() = %q, want %q", name, "Beta_Song")
	}
	if _, err := sm.StopSession(ctx); err != nil {
		t.Fatalf("StopSession() error: %v", err)
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	sm, cfg, _, _ := newTestSessionManager(t)
	writeSong(t, cfg.Song.Dir, "Song")

	ctx := context.Background()
	if _, err := sm.Start(ctx, app.SongRequest{Name: "Song"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var snap engine.Snapshot
			_ = sm.IsActive()
			_ = sm.Info()
			sm.ReadSnapshot(&snap)
		}()
	}
	wg.Wait()

	if _, err := sm.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}
