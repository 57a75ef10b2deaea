// Package malgo implements [audio.Duplex] on top of miniaudio through
// github.com/gen2brain/malgo.
//
// The device is opened in duplex mode with 32-bit float mono capture and
// playback at the configured sample rate, using the low-latency performance
// profile. miniaudio may deliver callback periods that differ from the
// requested frame size; the adapter splits every period into frame-size
// chunks so the pipeline always sees frames of at most [Config.FrameSize]
// samples.
package malgo

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/vocalbooth/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Duplex = (*Device)(nil)

// Config selects the stream parameters.
type Config struct {
	// SampleRate in Hz. Default: 48000.
	SampleRate int

	// FrameSize is the number of samples per pipeline frame. Default: 256.
	FrameSize int

	// Periods is the miniaudio period count. Zero leaves the backend default.
	Periods int
}

// Device is a miniaudio duplex stream.
type Device struct {
	cfg Config

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	// Scratch buffers owned by the callback thread, one frame each.
	in  []float64
	out []float64

	cb atomic.Pointer[audio.Callback]

	mu       sync.Mutex
	running  bool
	closeOne sync.Once
}

// Open initialises a miniaudio context and a duplex device on the default
// capture and playback endpoints. The device is not started.
func Open(cfg Config) (*Device, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 256
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}

	d := &Device{
		cfg: cfg,
		ctx: ctx,
		in:  make([]float64, cfg.FrameSize),
		out: make([]float64, cfg.FrameSize),
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	devCfg.PerformanceProfile = malgo.LowLatency
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = 1
	devCfg.Playback.Format = malgo.FormatF32
	devCfg.Playback.Channels = 1
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.PeriodSizeInFrames = uint32(cfg.FrameSize)
	if cfg.Periods > 0 {
		devCfg.Periods = uint32(cfg.Periods)
	}
	devCfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: d.onData,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("malgo: init duplex device: %w", err)
	}
	d.device = device

	slog.Info("audio device opened",
		"backend", "malgo",
		"format", d.Format().String(),
		"frame_size", cfg.FrameSize,
	)
	return d, nil
}

// Format implements [audio.Duplex].
func (d *Device) Format() audio.Format {
	return audio.Format{SampleRate: d.cfg.SampleRate, Channels: 1}
}

// FrameSize implements [audio.Duplex].
func (d *Device) FrameSize() int { return d.cfg.FrameSize }

// Start implements [audio.Duplex].
func (d *Device) Start(cb audio.Callback) error {
	if cb == nil {
		return errors.New("malgo: nil callback")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return errors.New("malgo: device closed")
	}
	if d.running {
		return nil
	}
	d.cb.Store(&cb)
	if err := d.device.Start(); err != nil {
		d.cb.Store(nil)
		return fmt.Errorf("malgo: start device: %w", err)
	}
	d.running = true
	return nil
}

// Stop implements [audio.Duplex].
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.device == nil {
		return nil
	}
	d.running = false
	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("malgo: stop device: %w", err)
	}
	return nil
}

// Close implements [audio.Duplex].
func (d *Device) Close() error {
	err := d.Stop()
	d.closeOne.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.device != nil {
			d.device.Uninit()
			d.device = nil
		}
		_ = d.ctx.Uninit()
		d.ctx.Free()
	})
	return err
}

// onData is the miniaudio data callback. output and input are interleaved
// float32 little-endian buffers of frameCount mono samples.
func (d *Device) onData(output, input []byte, frameCount uint32) {
	p := d.cb.Load()
	total := int(frameCount)
	if p == nil || total == 0 {
		clear(output)
		return
	}
	cb := *p
	size := d.cfg.FrameSize
	for off := 0; off < total; off += size {
		n := min(size, total-off)
		in := d.in[:n]
		out := d.out[:n]

		got := 0
		if len(input) > off*4 {
			got = audio.F32LEToFloat(in, input[off*4:])
		}
		clear(in[got:])

		cb(in, out)

		if len(output) > off*4 {
			audio.FloatToF32LE(output[off*4:], out)
		}
	}
}
