package config

import (
	"time"

	"github.com/MrWong99/vocalbooth/internal/config/watch"
)

// Watcher monitors a config file for changes and calls a callback when the
// file is modified. Invalid edits are logged and ignored.
type Watcher struct {
	w *watch.Watcher[*Config]
}

// WatcherOption configures a [Watcher].
type WatcherOption = watch.Option

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return watch.WithInterval(d)
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w, err := watch.New(path, loadBytes, onChange, opts...)
	if err != nil {
		return nil, err
	}
	return &Watcher{w: w}, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config { return w.w.Current() }

// Stop stops the file watcher.
func (w *Watcher) Stop() { w.w.Stop() }
