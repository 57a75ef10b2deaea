package params

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Recorder receives parameter update outcomes for metrics.
type Recorder interface {
	RecordParamUpdate(ctx context.Context, source string, applied, rejected int)
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithRecorder reports every update through r.
func WithRecorder(r Recorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// Store publishes the current [Effects] to the real-time thread.
//
// Load is wait-free. Writers replace the whole value; concurrent writers
// resolve last-writer-wins. Listeners run on the writer's goroutine after the
// new value is visible.
type Store struct {
	cur      atomic.Pointer[Effects]
	version  atomic.Uint64
	recorder Recorder

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func(Effects)
}

// NewStore returns a store holding initial.
func NewStore(initial Effects, opts ...StoreOption) *Store {
	s := &Store{listeners: make(map[uint64]func(Effects))}
	for _, o := range opts {
		o(s)
	}
	s.cur.Store(&initial)
	return s
}

// Load returns the current settings.
func (s *Store) Load() Effects { return *s.cur.Load() }

// Version increments on every published change.
func (s *Store) Version() uint64 { return s.version.Load() }

// Set replaces the current settings.
func (s *Store) Set(e Effects) {
	s.Update(func(Effects) Effects { return e })
}

// Update applies fn to the current settings and publishes the result. fn
// may run more than once under contention and must not have side effects.
func (s *Store) Update(fn func(Effects) Effects) Effects {
	for {
		old := s.cur.Load()
		next := fn(*old)
		if next == *old {
			return next
		}
		if s.cur.CompareAndSwap(old, &next) {
			s.version.Add(1)
			s.notify(next)
			return next
		}
	}
}

// Apply validates kv against the current settings, publishes the accepted
// entries and returns the rejected ones. source labels log lines and metrics.
func (s *Store) Apply(ctx context.Context, source string, kv map[string]string) []error {
	return s.apply(ctx, source, len(kv), func(cur Effects) (Effects, []error) {
		return Apply(cur, kv)
	})
}

// ApplyValues is [Store.Apply] for decoded JSON values.
func (s *Store) ApplyValues(ctx context.Context, source string, kv map[string]any) []error {
	return s.apply(ctx, source, len(kv), func(cur Effects) (Effects, []error) {
		return ApplyValues(cur, kv)
	})
}

// ApplyPreset publishes the named preset over the current settings.
func (s *Store) ApplyPreset(ctx context.Context, source, name string) (Effects, error) {
	var err error
	next := s.Update(func(cur Effects) Effects {
		var next Effects
		next, err = ApplyPreset(cur, name)
		return next
	})
	if err != nil {
		slog.Warn("params: rejected preset", "source", source, "preset", name, "err", err)
	}
	if s.recorder != nil {
		if err != nil {
			s.recorder.RecordParamUpdate(ctx, source, 0, 1)
		} else {
			s.recorder.RecordParamUpdate(ctx, source, 1, 0)
		}
	}
	return next, err
}

func (s *Store) apply(ctx context.Context, source string, n int, fn func(Effects) (Effects, []error)) []error {
	var errs []error
	s.Update(func(cur Effects) Effects {
		next, rejected := fn(cur)
		errs = rejected
		return next
	})
	for _, err := range errs {
		slog.Warn("params: rejected update", "source", source, "err", err)
	}
	if s.recorder != nil {
		s.recorder.RecordParamUpdate(ctx, source, n-len(errs), len(errs))
	}
	return errs
}

// Subscribe registers fn to be called with every published value. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Effects)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(e Effects) {
	s.mu.Lock()
	fns := make([]func(Effects), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
