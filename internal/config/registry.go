package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/vocalbooth/pkg/audio"
	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// DetectorFactory builds a pitch detector from the pitch and audio blocks.
type DetectorFactory func(p PitchConfig, a AudioConfig) (pitch.Detector, error)

// AudioFactory opens a duplex device for the audio block.
type AudioFactory func(a AudioConfig) (audio.Duplex, error)

// Registry maps implementation names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]DetectorFactory
	audio     map[string]AudioFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]DetectorFactory),
		audio:     make(map[string]AudioFactory),
	}
}

// RegisterDetector registers a pitch detector factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDetector(name string, factory DetectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[name] = factory
}

// RegisterAudio registers an audio backend factory under name.
func (r *Registry) RegisterAudio(name string, factory AudioFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateDetector instantiates the detector named by cfg.Pitch.Detector.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateDetector(cfg *Config) (pitch.Detector, error) {
	r.mu.RLock()
	factory, ok := r.detectors[cfg.Pitch.Detector]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: pitch/%q", ErrProviderNotRegistered, cfg.Pitch.Detector)
	}
	return factory(cfg.Pitch, cfg.Audio)
}

// CreateAudio opens the audio backend named by cfg.Audio.Backend.
func (r *Registry) CreateAudio(cfg *Config) (audio.Duplex, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Audio.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, cfg.Audio.Backend)
	}
	return factory(cfg.Audio)
}
