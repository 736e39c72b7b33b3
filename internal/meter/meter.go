// Package meter maintains the smoothed input-level reading shown next to the
// record button. It folds the RMS level of every incoming frame into a
// rolling time window and reports the window average, which damps the
// meter's visual jitter compared to an instantaneous peak.
//
// The meter has no opinion on whether a level is "good": the exported
// threshold constants exist so a UI can draw target-range notches, but
// [Meter.Level] only reports the number.
package meter

import (
	"math"
	"sync"
	"time"

	"github.com/danielrosehill/voicenote/pkg/audio"
)

// Level scale and target range, in dBFS. A reading of MaxDB means a
// full-scale input signal.
const (
	// MinDB is the floor of the reported scale and the defined "silent"
	// reading returned before any frame has been seen or after Reset.
	MinDB = -60.0

	// MaxDB is the ceiling of the reported scale (full scale).
	MaxDB = 0.0

	// TargetMinDB is the lower bound of the recommended speech level range.
	TargetMinDB = -30.0

	// TargetMaxDB is the upper bound of the recommended speech level range.
	TargetMaxDB = -10.0
)

// DefaultWindow is the rolling-average span used when no explicit window is
// given. Ten seconds keeps the reading stable across natural speech pauses.
const DefaultWindow = 10 * time.Second

// fullScale is the reference amplitude for dBFS conversion of int16 PCM.
const fullScale = 32768.0

type sample struct {
	at time.Duration // frame end position on the stream timeline
	db float64
}

// Meter is the rolling-window level meter. Frame timestamps drive aging, so
// readings are deterministic for a given frame sequence regardless of how
// fast the frames are processed.
//
// Safe for concurrent use: the session's capture loop calls Process while
// the UI polls Level.
type Meter struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
}

// New creates a meter averaging over the given window. A non-positive window
// falls back to [DefaultWindow].
func New(window time.Duration) *Meter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Meter{window: window}
}

// Process folds one frame into the rolling window.
func (m *Meter) Process(frame audio.Frame) {
	db := frameDB(frame)

	m.mu.Lock()
	defer m.mu.Unlock()

	at := frame.Timestamp + frame.Duration()
	m.samples = append(m.samples, sample{at: at, db: db})

	// Age out everything older than the window, relative to the newest frame.
	cutoff := at - m.window
	i := 0
	for i < len(m.samples) && m.samples[i].at < cutoff {
		i++
	}
	if i > 0 {
		m.samples = append(m.samples[:0], m.samples[i:]...)
	}
}

// Level returns the average dBFS reading over the window, or [MinDB] when no
// frames have been seen since construction or the last Reset.
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.samples) == 0 {
		return MinDB
	}
	var sum float64
	for _, s := range m.samples {
		sum += s.db
	}
	return sum / float64(len(m.samples))
}

// Reset discards the window so the next Level call reports [MinDB].
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = m.samples[:0]
}

// frameDB computes the clamped RMS level of a frame in dBFS. All channels
// contribute equally.
func frameDB(frame audio.Frame) float64 {
	n := len(frame.Data) / 2
	if n == 0 {
		return MinDB
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		s := float64(int16(frame.Data[i*2]) | int16(frame.Data[i*2+1])<<8)
		sumSq += s * s
	}
	rms := math.Sqrt(sumSq / float64(n))
	if rms <= 0 {
		return MinDB
	}
	db := 20 * math.Log10(rms/fullScale)
	if db < MinDB {
		return MinDB
	}
	if db > MaxDB {
		return MaxDB
	}
	return db
}
