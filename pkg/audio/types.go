// Package audio defines the PCM frame type that flows through the recording
// pipeline, plus the deterministic sample-format conversions (channel downmix
// and resampling) the encoder applies before writing a file.
//
// All PCM data in this package is little-endian signed 16-bit, interleaved
// when multi-channel. Frames are treated as immutable once captured: the
// capture adapter copies device memory into a fresh slice, and nothing
// downstream mutates it.
package audio

import "time"

// Frame is a short contiguous block of samples captured from an input device.
// It is the atomic unit of audio transport: the capture stream produces
// frames, the session buffer accumulates them, and the encoder consumes them.
type Frame struct {
	// Data is interleaved little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz at which Data was captured (device native rate).
	SampleRate int

	// Channels is the channel count of Data (device native count).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of per-channel sample points in the frame.
func (f Frame) Samples() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / 2 / f.Channels
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}
