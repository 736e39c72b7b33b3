// Package capture defines the interfaces for microphone input within the
// voice note recorder.
//
// The two primary abstractions are:
//
//   - [Platform] — enumerates input devices and opens a [Stream] on one.
//   - [Stream] — an active capture stream on a device, delivering
//     [audio.Frame] values over a bounded channel until closed.
//
// Implementations are provided by backend-specific adapter packages (e.g.
// capture/miniaudio for real hardware, capture/mock for tests). The interfaces
// are intentionally narrow so the recording session stays decoupled from
// driver details.
package capture

import (
	"context"

	"github.com/danielrosehill/voicenote/pkg/audio"
)

// DefaultDeviceID selects the system default input device when passed to
// [Platform.Open].
const DefaultDeviceID = ""

// DeviceInfo describes an available audio input device.
type DeviceInfo struct {
	// ID is the backend-specific stable identifier for the device.
	ID string

	// Name is the human-readable device name shown in device pickers.
	Name string

	// Channels is the maximum input channel count the device supports.
	Channels int

	// SampleRate is the device's preferred sample rate in Hz.
	SampleRate int

	// IsDefault reports whether this is the system default input device.
	IsDefault bool
}

// Stream is an active capture stream on a single input device.
//
// A Stream is obtained from [Platform.Open] and owns the underlying device
// handle until [Stream.Close] is called or the device fails. Exactly one
// consumer should read Frames; the channel is bounded, and the driver-side
// producer drops frames rather than block when the consumer falls behind.
type Stream interface {
	// Frames returns the channel delivering captured frames in arrival
	// order. The channel is closed when the stream is closed or the device
	// is lost; after it closes, consult [Stream.Err] for the cause.
	Frames() <-chan audio.Frame

	// Err returns the error that terminated the stream, or nil if the
	// stream was closed normally via [Stream.Close]. Only meaningful after
	// the Frames channel has closed.
	Err() error

	// Close stops capture and releases the device handle. It is safe to
	// call more than once; subsequent calls are no-ops and return nil.
	Close() error
}

// Platform is the entry point for an audio input backend.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Devices lists the available input devices. The default device, if
	// one exists, has IsDefault set.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// Open starts capturing from the device identified by deviceID in the
	// requested format, returning the live [Stream]. Pass [DefaultDeviceID]
	// to use the system default input. The supplied ctx governs the open
	// attempt only; once open, the Stream remains alive until Close is
	// called or the device fails.
	//
	// Returns an error if the device is missing, busy, or denies access.
	Open(ctx context.Context, deviceID string, format audio.Format) (Stream, error)
}
