// Package miniaudio implements [capture.Platform] on top of the miniaudio
// library via github.com/gen2brain/malgo. It is the production capture
// backend: real microphones, real driver callbacks.
//
// Frames are handed off from the driver callback to the consumer through a
// bounded channel. The callback never blocks: when the consumer falls behind
// and the channel is full, the frame is dropped and counted. This keeps the
// driver glitch-free at the cost of losing audio the consumer was too slow
// to take — which the session-level buffer is sized to make rare.
package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/danielrosehill/voicenote/pkg/audio"
	"github.com/danielrosehill/voicenote/pkg/audio/capture"
)

// frameQueueLen is the capacity of the hand-off channel between the driver
// callback and the consumer. At the 100ms block size used by the recorder
// this is roughly six seconds of headroom.
const frameQueueLen = 64

// ErrDeviceStopped is reported by [capture.Stream.Err] when the device stops
// delivering audio without Close being called (unplugged, revoked access,
// backend failure).
var ErrDeviceStopped = errors.New("capture device stopped unexpectedly")

// Platform is the miniaudio-backed [capture.Platform].
type Platform struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

var _ capture.Platform = (*Platform)(nil)

// New initialises the miniaudio context. Call [Platform.Close] to release it.
func New() (*Platform, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	return &Platform{ctx: ctx}, nil
}

// Close tears down the miniaudio context. Streams opened from this platform
// must be closed first.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
	if err != nil {
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	return nil
}

// Devices implements [capture.Platform].
func (p *Platform) Devices(_ context.Context) ([]capture.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil, errors.New("miniaudio: platform closed")
	}

	infos, err := p.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: enumerate capture devices: %w", err)
	}

	devices := make([]capture.DeviceInfo, 0, len(infos))
	for _, info := range infos {
		d := capture.DeviceInfo{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		}
		if len(info.Formats) > 0 {
			d.Channels = int(info.Formats[0].Channels)
			d.SampleRate = int(info.Formats[0].SampleRate)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Open implements [capture.Platform]. The stream captures 16-bit signed PCM
// in the requested format from the named device, or from the system default
// when deviceID is [capture.DefaultDeviceID].
func (p *Platform) Open(ctx context.Context, deviceID string, format audio.Format) (capture.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil, errors.New("miniaudio: platform closed")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.PeriodSizeInMilliseconds = 100
	cfg.Alsa.NoMMap = 1

	if deviceID != capture.DefaultDeviceID {
		id, err := p.findDeviceLocked(deviceID)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	s := &stream{
		format: format,
		frames: make(chan audio.Frame, frameQueueLen),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	}

	device, err := malgo.InitDevice(p.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("miniaudio: start capture device: %w", err)
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// findDeviceLocked resolves a device ID string back to the malgo identifier.
func (p *Platform) findDeviceLocked(deviceID string) (malgo.DeviceID, error) {
	infos, err := p.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("miniaudio: enumerate capture devices: %w", err)
	}
	for _, info := range infos {
		if info.ID.String() == deviceID {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("miniaudio: capture device %q not found", deviceID)
}

// stream is the live capture stream for one device.
type stream struct {
	format audio.Format
	frames chan audio.Frame

	mu       sync.Mutex
	device   *malgo.Device
	closed   bool // Close was called; a stop callback is then expected
	err      error
	dropped  int64
	captured int64 // per-channel sample points delivered so far

	closeFrames sync.Once
	dropWarn    sync.Once
}

var _ capture.Stream = (*stream)(nil)

func (s *stream) Frames() <-chan audio.Frame { return s.frames }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped reports how many frames were discarded because the consumer fell
// behind the driver callback.
func (s *stream) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	device := s.device
	s.device = nil
	s.mu.Unlock()

	if device != nil {
		// Uninit stops capture; the stop callback fires on the way down.
		device.Uninit()
	}
	s.closeFrames.Do(func() { close(s.frames) })
	return nil
}

// onData runs on the driver thread. It must copy the device-owned bytes and
// must never block.
func (s *stream) onData(_, input []byte, frameCount uint32) {
	data := make([]byte, len(input))
	copy(data, input)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ts := time.Duration(s.captured) * time.Second / time.Duration(s.format.SampleRate)
	s.captured += int64(frameCount)
	s.mu.Unlock()

	frame := audio.Frame{
		Data:       data,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Timestamp:  ts,
	}

	select {
	case s.frames <- frame:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.dropWarn.Do(func() {
			slog.Warn("capture consumer falling behind, dropping frames")
		})
	}
}

// onStop runs when the device stops for any reason. A stop without a prior
// Close means the device was lost.
func (s *stream) onStop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.err = ErrDeviceStopped
		if s.device != nil {
			// Release the device object off the driver thread; capture
			// has already ended.
			device := s.device
			s.device = nil
			go device.Uninit()
		}
	}
	s.mu.Unlock()
	s.closeFrames.Do(func() { close(s.frames) })
}
