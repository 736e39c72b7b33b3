package recorder

import (
	"sync"
	"time"

	"github.com/danielrosehill/voicenote/pkg/audio"
)

// Buffer is the append-only frame store for one recording session. Insertion
// order is the temporal order of capture and IS the audio timeline: frames
// are never reordered, rewritten, or partially truncated — only appended, or
// emptied wholesale by Clear.
//
// The session's capture loop is the only writer. Readers (Snapshot, Len,
// Duration) may be called from any goroutine.
type Buffer struct {
	mu     sync.Mutex
	frames []audio.Frame
	length time.Duration
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a frame to the end of the timeline. The caller (the session)
// is responsible for only appending while the session is Recording.
func (b *Buffer) Append(frame audio.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	b.length += frame.Duration()
}

// Snapshot returns a copy of the accumulated frame sequence in capture
// order. The returned slice is independent of the buffer: a later Append or
// Clear does not affect it, so an encode over a snapshot is isolated from
// the next session.
func (b *Buffer) Snapshot() []audio.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]audio.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// Len returns the number of frames accumulated so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Duration returns the total captured audio length.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Clear unconditionally empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
	b.length = 0
}
