// Package mock provides in-memory mock implementations of the
// [capture.Platform] and [capture.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream(16)
//	platform := &mock.Platform{OpenResult: stream}
//	sess := recorder.New(platform, ...)
//	// feed frames:
//	stream.Push(audio.Frame{...})
//	// simulate device loss:
//	stream.Fail(errors.New("unplugged"))
package mock

import (
	"context"
	"sync"

	"github.com/danielrosehill/voicenote/pkg/audio"
	"github.com/danielrosehill/voicenote/pkg/audio/capture"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a scripted implementation of [capture.Stream]. Tests feed frames
// with [Stream.Push] and terminate the stream with [Stream.Fail] (device
// loss) or by letting the consumer call Close.
type Stream struct {
	mu     sync.Mutex
	frames chan audio.Frame
	err    error
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// CloseError is returned by the first Close call.
	CloseError error
}

var _ capture.Stream = (*Stream)(nil)

// NewStream creates a mock stream whose frame channel has the given capacity.
func NewStream(buffer int) *Stream {
	return &Stream{frames: make(chan audio.Frame, buffer)}
}

// Push delivers a frame to the consumer. It blocks if the channel is full,
// and panics if the stream has already terminated (a test bug).
func (s *Stream) Push(frame audio.Frame) {
	s.frames <- frame
}

// Fail simulates device loss: the frame channel closes and Err reports the
// given cause.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.frames)
}

// Frames implements [capture.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Err implements [capture.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [capture.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.frames)
	return s.CloseError
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Platform.Open] invocation.
type OpenCall struct {
	// DeviceID is the deviceID argument passed to Open.
	DeviceID string

	// Format is the requested capture format.
	Format audio.Format
}

// Platform is a mock implementation of [capture.Platform].
// Set the exported Result fields before use; inspect the Call fields after.
type Platform struct {
	mu sync.Mutex

	// DevicesResult is returned by [Platform.Devices].
	DevicesResult []capture.DeviceInfo

	// DevicesError is returned by [Platform.Devices].
	DevicesError error

	// OpenResult is returned by [Platform.Open]. When nil and OpenError is
	// also nil, Open creates and returns a fresh [Stream] with capacity 16;
	// it is recorded in OpenedStreams.
	OpenResult *Stream

	// OpenError is returned by [Platform.Open].
	OpenError error

	// OpenCalls holds the arguments of every Open invocation, in order.
	OpenCalls []OpenCall

	// OpenedStreams holds every stream handed out by Open, in order.
	OpenedStreams []*Stream

	// CallCountDevices records how many times Devices was called.
	CallCountDevices int
}

var _ capture.Platform = (*Platform)(nil)

// Devices implements [capture.Platform].
func (p *Platform) Devices(_ context.Context) ([]capture.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountDevices++
	return p.DevicesResult, p.DevicesError
}

// Open implements [capture.Platform].
func (p *Platform) Open(_ context.Context, deviceID string, format audio.Format) (capture.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls = append(p.OpenCalls, OpenCall{DeviceID: deviceID, Format: format})
	if p.OpenError != nil {
		return nil, p.OpenError
	}
	s := p.OpenResult
	if s == nil {
		s = NewStream(16)
	}
	p.OpenedStreams = append(p.OpenedStreams, s)
	return s, nil
}

// LastStream returns the most recently opened stream, or nil when Open has
// not been called successfully.
func (p *Platform) LastStream() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.OpenedStreams) == 0 {
		return nil
	}
	return p.OpenedStreams[len(p.OpenedStreams)-1]
}
