// Package engine runs the per-frame vocal pipeline on the audio device's
// real-time thread.
//
// For every captured frame the [Engine]:
//
//  1. feeds the pitch detector (guarded by a circuit breaker) and updates the
//     sticky pitch tracker,
//  2. looks up the melody target for the playback clock,
//  3. pulls the voice toward the target with the pitch correction engine,
//  4. runs the noise suppressor / VAD over the corrected voice,
//  5. mixes the gated voice with the instrumental slice at the cursor,
//  6. appends the mixed frame to the session recording, and
//  7. advances the session clock and publishes a [Snapshot].
//
// [Engine.Process] never blocks, never logs, performs no I/O and allocates
// nothing per frame beyond recording growth. Effect parameters are read
// through an atomic [EffectsSource]. Observers on other goroutines read the
// published state with [Engine.ReadSnapshot], [Engine.Stats] and
// [Engine.DrainFrameDurations].
//
// This package lives under internal/ because it encapsulates application-private
// processing logic and is not intended to be imported by external code.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/vocalbooth/internal/autotune"
	"github.com/MrWong99/vocalbooth/internal/denoise"
	"github.com/MrWong99/vocalbooth/internal/melody"
	"github.com/MrWong99/vocalbooth/internal/params"
	"github.com/MrWong99/vocalbooth/internal/resilience"
	"github.com/MrWong99/vocalbooth/internal/session"
	"github.com/MrWong99/vocalbooth/pkg/audio/mixer"
	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
)

// EffectsSource supplies the current effect parameters. Load must not block;
// [params.Store] satisfies it.
type EffectsSource interface {
	Load() params.Effects
}

// Config wires the engine's collaborators. SampleRate, FrameSize, Detector
// and Effects are required.
type Config struct {
	SampleRate int
	FrameSize  int

	// Detector estimates the pitch of each captured frame.
	Detector pitch.Detector

	// Effects is read once per frame.
	Effects EffectsSource

	// Melody supplies target pitches. A nil track never corrects.
	Melody *melody.Track

	// Instrumental is the backing track at SampleRate. Empty means silence.
	Instrumental []float64

	// Noise configures the suppressor. SampleRate is filled in. The zero
	// value selects [denoise.DefaultConfig].
	Noise denoise.Config

	// MixerOptions are passed to [mixer.New].
	MixerOptions []mixer.Option

	// Breaker configures the detector circuit breaker. Name defaults to
	// "pitch". OnStateChange runs on the real-time thread and must not block.
	Breaker resilience.CircuitBreakerConfig

	// Record enables the session recording buffer, pre-sized to
	// RecordingCapacity samples.
	Record            bool
	RecordingCapacity int

	// HistorySize overrides the visualisation ring capacity when positive.
	HistorySize int
}

// Engine is the per-frame vocal pipeline. Process must be called from a
// single goroutine (the device callback). All other methods are safe for
// concurrent use.
type Engine struct {
	frameSize int
	deadline  time.Duration

	det      pitch.Detector
	breaker  *resilience.CircuitBreaker
	tracker  autotune.Tracker
	melody   *melody.Track
	noise    *denoise.Suppressor
	mix      *mixer.Mixer
	sess     *session.State
	effects  EffectsSource
	snapshot *tripleBuffer

	// pre-allocated scratch, one frame each
	corrected []float64
	inst      []float64

	stats     counters
	durations durationQueue
}

// New validates cfg and allocates every buffer the pipeline needs.
func New(cfg Config) (*Engine, error) {
	var errs []error
	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate))
	}
	if cfg.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize))
	}
	if cfg.Detector == nil {
		errs = append(errs, errors.New("detector is required"))
	}
	if cfg.Effects == nil {
		errs = append(errs, errors.New("effects source is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("engine: invalid config: %w", errors.Join(errs...))
	}

	if cfg.Noise == (denoise.Config{}) {
		cfg.Noise = denoise.DefaultConfig(cfg.SampleRate)
	}
	cfg.Noise.SampleRate = cfg.SampleRate
	noise, err := denoise.New(cfg.Noise)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "pitch"
	}

	history := cfg.HistorySize
	if history <= 0 {
		history = session.HistorySize
	}

	e := &Engine{
		frameSize: cfg.FrameSize,
		deadline:  time.Duration(float64(cfg.FrameSize) / float64(cfg.SampleRate) * float64(time.Second)),
		det:       cfg.Detector,
		breaker:   resilience.NewCircuitBreaker(cfg.Breaker),
		melody:    cfg.Melody,
		noise:     noise,
		mix:       mixer.New(cfg.FrameSize, cfg.MixerOptions...),
		sess: session.New(session.Config{
			SampleRate:        cfg.SampleRate,
			HistorySize:       history,
			RecordingCapacity: cfg.RecordingCapacity,
			Record:            cfg.Record,
		}, cfg.Instrumental),
		effects:   cfg.Effects,
		snapshot:  newTripleBuffer(history),
		corrected: make([]float64, cfg.FrameSize),
		inst:      make([]float64, cfg.FrameSize),
	}
	e.publish(frameResult{noise: noise.State()})
	return e, nil
}

// FrameSize returns the configured frame size.
func (e *Engine) FrameSize() int { return e.frameSize }

// Breaker returns the detector circuit breaker.
func (e *Engine) Breaker() *resilience.CircuitBreaker { return e.breaker }

// Process is the [audio.Callback] for the duplex device. in and out must have
// the same length. Buffers longer than the frame size are processed in
// frame-size chunks.
func (e *Engine) Process(in, out []float64) {
	n := min(len(in), len(out))
	for off := 0; off < n; off += e.frameSize {
		end := min(off+e.frameSize, n)
		e.processFrame(in[off:end], out[off:end])
	}
	clear(out[n:])
}

// frameResult carries the per-frame values that go into a snapshot.
type frameResult struct {
	est       pitch.Estimate
	target    float64
	ratio     float64
	corrected bool
	noise     denoise.State
}

func (e *Engine) processFrame(in, out []float64) {
	start := time.Now()
	n := len(in)
	fx := e.effects.Load()

	// 1. Pitch detection. A failed or skipped detection passes the voice
	// through for this frame.
	var res frameResult
	detected := false
	if e.breaker.Allow() {
		est, err := e.det.Detect(in)
		e.breaker.Record(err)
		if err != nil {
			e.stats.detectorErrors.Add(1)
		} else {
			res.est = e.tracker.Observe(est)
			detected = true
		}
	} else {
		e.stats.detectorSkips.Add(1)
	}
	if !detected {
		res.est = e.tracker.Current()
	}

	// 2. Melody target at the playback clock.
	res.target = e.melody.Target(e.sess.Clock)

	// 3. Pitch correction.
	corrected := e.corrected[:n]
	ap := autotune.Params{Strength: fx.AutotuneStrength, ShiftSemitones: fx.PitchShift}
	if detected {
		res.corrected = autotune.Correct(corrected, in, res.est, res.target, ap)
	} else {
		copy(corrected, in)
	}
	res.ratio = 1
	if res.corrected {
		res.ratio, _ = autotune.Ratio(res.est, res.target, ap)
		e.stats.corrections.Add(1)
	}

	// 4. Noise suppression.
	res.noise = e.noise.Process(corrected)
	if res.noise.VoiceActive() {
		e.stats.voiceActive.Add(1)
	}

	// 5. Mix with the instrumental.
	inst := e.inst[:n]
	e.sess.Instrumental.Slice(inst)
	clamped := e.mix.Mix(out, corrected, inst, e.sess.Clock, mixer.Params{
		VoiceVolume:      fx.VoiceVolume,
		InstrumentVolume: fx.InstrumentVolume,
		Chorus:           fx.EnableChorus,
		ChorusDepth:      fx.ChorusDepth,
		Reverb:           fx.EnableReverb,
		ReverbWetness:    fx.ReverbWetness,
	})
	e.stats.clamped.Add(uint64(clamped))

	// 6-7. Record, observe, advance.
	e.sess.Recording.Append(out)
	e.sess.Observe(res.est.Frequency, res.target)
	e.sess.Advance(n)
	e.publish(res)

	e.stats.frames.Add(1)
	elapsed := time.Since(start)
	if elapsed > e.deadline {
		e.stats.deadlineMisses.Add(1)
	}
	e.durations.push(elapsed)
}

// publish writes the producer's back snapshot slot and swaps it in.
func (e *Engine) publish(res frameResult) {
	s := e.snapshot.back()
	s.Frame = e.sess.Frames
	s.Clock = e.sess.Clock
	s.Pitch = res.est.Frequency
	s.Confidence = res.est.Confidence
	s.Target = res.target
	s.Ratio = res.ratio
	s.Corrected = res.corrected
	s.NoiseLevel = res.noise.NoiseLevel
	s.SignalLevel = res.noise.SignalLevel
	s.VADProbability = res.noise.VADProbability
	s.VoiceActive = res.noise.VoiceActive()
	s.InGrace = res.noise.InGrace
	s.Detector = e.breaker.State()
	s.InstrumentalPos = e.sess.Instrumental.Position()
	s.PitchHistory = e.sess.Pitch.Snapshot(s.PitchHistory[:0])
	s.TargetHistory = e.sess.Target.Snapshot(s.TargetHistory[:0])
	s.TimeHistory = e.sess.Time.Snapshot(s.TimeHistory[:0])
	e.snapshot.publish()
}

// ReadSnapshot copies the most recently published snapshot into dst, reusing
// dst's history slices.
func (e *Engine) ReadSnapshot(dst *Snapshot) {
	e.snapshot.read(dst)
}

// Snapshot returns a copy of the most recently published snapshot.
func (e *Engine) Snapshot() Snapshot {
	var s Snapshot
	e.snapshot.read(&s)
	return s
}

// Recording returns a copy of the recorded output. Call it after the device
// has stopped.
func (e *Engine) Recording() []float64 {
	return e.sess.Recording.Samples()
}
