package recorder_test

import (
	"testing"
	"time"

	"github.com/danielrosehill/voicenote/internal/recorder"
	"github.com/danielrosehill/voicenote/pkg/audio"
)

// pcmFrame builds a mono 16 kHz frame holding n samples of the given value.
func pcmFrame(n int, value int16, at time.Duration) audio.Frame {
	data := make([]byte, n*2)
	for i := range n {
		data[2*i] = byte(value)
		data[2*i+1] = byte(value >> 8)
	}
	return audio.Frame{Data: data, SampleRate: 16000, Channels: 1, Timestamp: at}
}

func TestBufferAppendOrder(t *testing.T) {
	buf := recorder.NewBuffer()
	for i := range 5 {
		buf.Append(pcmFrame(160, int16(i+1), time.Duration(i)*10*time.Millisecond))
	}

	if got := buf.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	snap := buf.Snapshot()
	for i, frame := range snap {
		if want := int16(i + 1); int16(frame.Data[0]) != want {
			t.Errorf("frame %d: first sample = %d, want %d", i, int16(frame.Data[0]), want)
		}
	}
}

func TestBufferDuration(t *testing.T) {
	buf := recorder.NewBuffer()
	if buf.Duration() != 0 {
		t.Fatalf("empty buffer Duration() = %v, want 0", buf.Duration())
	}

	// 10 frames of 160 samples at 16 kHz = 100 ms.
	for i := range 10 {
		buf.Append(pcmFrame(160, 0, time.Duration(i)*10*time.Millisecond))
	}
	if got, want := buf.Duration(), 100*time.Millisecond; got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}
}

func TestBufferClear(t *testing.T) {
	buf := recorder.NewBuffer()
	buf.Append(pcmFrame(160, 1, 0))
	buf.Clear()

	if buf.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", buf.Len())
	}
	if buf.Duration() != 0 {
		t.Errorf("Duration() after Clear = %v, want 0", buf.Duration())
	}
	if snap := buf.Snapshot(); len(snap) != 0 {
		t.Errorf("Snapshot() after Clear has %d frames, want 0", len(snap))
	}
}

func TestBufferSnapshotIsolation(t *testing.T) {
	buf := recorder.NewBuffer()
	buf.Append(pcmFrame(160, 7, 0))
	buf.Append(pcmFrame(160, 8, 10*time.Millisecond))

	snap := buf.Snapshot()
	buf.Clear()
	buf.Append(pcmFrame(160, 99, 0))

	if len(snap) != 2 {
		t.Fatalf("snapshot has %d frames after Clear, want 2", len(snap))
	}
	if got := int16(snap[0].Data[0]); got != 7 {
		t.Errorf("snapshot frame 0 first sample = %d, want 7", got)
	}
	if got := int16(snap[1].Data[0]); got != 8 {
		t.Errorf("snapshot frame 1 first sample = %d, want 8", got)
	}
}
