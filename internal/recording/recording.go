// Package recording persists a finished session's mixed output as a 16-bit
// PCM mono WAVE file.
package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vocalbooth/internal/wav"
)

// ErrEmpty is returned by [Save] when there is nothing to write.
var ErrEmpty = errors.New("recording: no samples")

// timestampLayout formats the session time in file names.
const timestampLayout = "20060102_150405"

// FileName returns "<song>_<timestamp>_<id8>.wav". song is reduced to its
// base name without extension; an empty song becomes "session".
func FileName(song string, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s_%s_%s.wav", cleanSong(song), at.Format(timestampLayout), id.String()[:8])
}

func cleanSong(song string) string {
	song = filepath.Base(strings.TrimSpace(song))
	if i := strings.IndexByte(song, '.'); i >= 0 {
		song = song[:i]
	}
	song = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, song)
	if song == "" {
		return "session"
	}
	return song
}

// Save writes samples to a new file in dir (created if missing) and returns
// its path.
func Save(dir, song string, samples []float64, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", ErrEmpty
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("recording: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(song, time.Now(), uuid.New()))
	if err := wav.WriteFile(path, samples, sampleRate); err != nil {
		return "", fmt.Errorf("recording: save %s: %w", path, err)
	}
	return path, nil
}

// Duration returns the playback length of n samples at sampleRate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(sampleRate) * float64(time.Second))
}
