// Package watch polls a file for changes and reloads it through a typed
// loader. It backs both the main configuration file and the live effect
// parameter file.
//
// Change detection compares the modification time first and then the SHA-256
// of the content, so touching a file without editing it does not trigger a
// reload. A file that fails to load keeps the previous value.
package watch

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 5 * time.Second

// Loader parses raw file content into a value. It should return an error
// for content that fails validation.
type Loader[T any] func(data []byte) (T, error)

// Option configures a [Watcher].
type Option func(*options)

type options struct {
	interval time.Duration
}

// WithInterval sets the polling interval. The default is [DefaultInterval].
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// Watcher monitors a file and calls a callback when its content changes.
// It uses polling (not fsnotify) to keep dependencies minimal.
type Watcher[T any] struct {
	path     string
	interval time.Duration
	load     Loader[T]
	onChange func(old, new T)

	mu       sync.Mutex
	current  T
	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// New creates a file watcher. It loads the initial value immediately and
// starts polling in a background goroutine.
func New[T any](path string, load Loader[T], onChange func(old, new T), opts ...Option) (*Watcher[T], error) {
	o := options{interval: DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}
	w := &Watcher[T]{
		path:     path,
		interval: o.interval,
		load:     load,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	v, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("watch: initial load %q: %w", path, err)
	}
	w.current = v
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Path returns the watched file path.
func (w *Watcher[T]) Path() string { return w.path }

// Current returns the most recently loaded valid value.
func (w *Watcher[T]) Current() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops polling and waits for an in-flight check to finish. It is safe
// to call more than once.
func (w *Watcher[T]) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	<-w.stopped
}

// poll runs in a background goroutine, checking the file periodically.
func (w *Watcher[T]) poll() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the file and, if it has changed and is valid, updates the
// current value and calls onChange.
func (w *Watcher[T]) check() {
	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("watch: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	v, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("watch: failed to load file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		// Touched but content is identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = v
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Debug("watch: file reloaded", "path", w.path)

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, v)
	}
}

// loadAndHash reads the file, parses it, and returns the value alongside the
// content's SHA-256 hash and modification time.
func (w *Watcher[T]) loadAndHash() (T, [sha256.Size]byte, time.Time, error) {
	var (
		zero     T
		zeroHash [sha256.Size]byte
	)

	f, err := os.Open(w.path)
	if err != nil {
		return zero, zeroHash, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return zero, zeroHash, time.Time{}, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return zero, zeroHash, time.Time{}, err
	}

	v, err := w.load(data)
	if err != nil {
		return zero, zeroHash, time.Time{}, err
	}
	return v, sha256.Sum256(data), info.ModTime(), nil
}
