package session

// Config sizes a session.
type Config struct {
	// SampleRate of the stream in Hz.
	SampleRate int

	// HistorySize overrides [HistorySize] when positive.
	HistorySize int

	// RecordingCapacity pre-sizes the recording buffer in samples.
	RecordingCapacity int

	// Record enables the recording buffer.
	Record bool
}

// State is the mutable session state advanced once per frame.
type State struct {
	sampleRate float64

	// Clock is the playback clock in seconds. It only moves forward.
	Clock float64

	// Frames counts processed frames.
	Frames uint64

	Pitch  *Ring[float64]
	Target *Ring[float64]
	Time   *Ring[float64]

	Instrumental *Cursor
	Recording    *Recording
}

// New returns a session positioned at clock 0 over the given instrumental
// track.
func New(cfg Config, instrumental []float64) *State {
	k := cfg.HistorySize
	if k <= 0 {
		k = HistorySize
	}
	return &State{
		sampleRate:   float64(cfg.SampleRate),
		Pitch:        NewRing[float64](k),
		Target:       NewRing[float64](k),
		Time:         NewRing[float64](k),
		Instrumental: NewCursor(instrumental),
		Recording:    NewRecording(cfg.RecordingCapacity, cfg.Record),
	}
}

// Observe pushes one visualisation sample into the three parallel histories.
func (s *State) Observe(pitchHz, targetHz float64) {
	s.Pitch.Push(pitchHz)
	s.Target.Push(targetHz)
	s.Time.Push(s.Clock)
}

// Advance moves the instrumental cursor by n samples, advances the clock by
// n/sample_rate seconds and increments the frame counter.
func (s *State) Advance(n int) {
	s.Instrumental.Advance(n)
	if s.sampleRate > 0 && n > 0 {
		s.Clock += float64(n) / s.sampleRate
	}
	s.Frames++
}
