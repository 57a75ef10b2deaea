package params

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/vocalbooth/internal/config/watch"
)

// DefaultPollInterval keeps file polling at or below 10 Hz.
const DefaultPollInterval = 100 * time.Millisecond

// FileSource applies a key=value parameter file to a [Store] whenever the
// file changes. Only entries whose value changed since the previous read are
// applied, so settings changed through other sources are not reverted by an
// unrelated edit.
type FileSource struct {
	path     string
	interval time.Duration
	store    *Store
}

// NewFileSource returns a source for path. A non-positive interval selects
// [DefaultPollInterval].
func NewFileSource(path string, interval time.Duration, store *Store) *FileSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &FileSource{path: path, interval: interval, store: store}
}

// Run seeds the file from the store if it does not exist, applies its
// current content, and then follows changes until ctx is cancelled.
func (f *FileSource) Run(ctx context.Context) error {
	if err := f.ensureFile(); err != nil {
		return err
	}

	w, err := watch.New(f.path, loadKV, func(old, new map[string]string) {
		changed := make(map[string]string)
		for k, v := range new {
			if ov, ok := old[k]; !ok || ov != v {
				changed[k] = v
			}
		}
		if len(changed) > 0 {
			f.store.Apply(ctx, "file", changed)
		}
	}, watch.WithInterval(f.interval))
	if err != nil {
		return fmt.Errorf("params: watch %q: %w", f.path, err)
	}
	defer w.Stop()

	f.store.Apply(ctx, "file", w.Current())
	slog.Info("params: following parameter file", "path", f.path, "interval", f.interval)

	<-ctx.Done()
	return nil
}

// Write replaces the file content with e.
func (f *FileSource) Write(e Effects) error {
	var buf bytes.Buffer
	if err := Format(&buf, e); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("params: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("params: rename %q: %w", f.path, err)
	}
	return nil
}

func (f *FileSource) ensureFile() error {
	_, err := os.Stat(f.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("params: stat %q: %w", f.path, err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("params: create %q: %w", dir, err)
		}
	}
	return f.Write(f.store.Load())
}

func loadKV(data []byte) (map[string]string, error) {
	return Parse(bytes.NewReader(data))
}
