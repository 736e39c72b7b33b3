// Package lame wraps the external `lame` command-line encoder for MP3
// output. Raw 16-bit little-endian mono PCM is piped to lame over stdin and
// the MP3 stream is read back from stdout, so no intermediate file is
// needed.
package lame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// Binary is the command name looked up on PATH.
const Binary = "lame"

// ErrNotInstalled indicates the lame binary is not present on PATH. MP3
// presets cannot be used until it is installed; WAV output does not require
// it.
var ErrNotInstalled = errors.New("lame: binary not installed")

var (
	lookupOnce sync.Once
	lookupErr  error
)

// Available reports whether the lame binary can be found on PATH. The
// lookup runs once per process; install/uninstall races are not worth
// re-probing for.
func Available() error {
	lookupOnce.Do(func() {
		if _, err := exec.LookPath(Binary); err != nil {
			lookupErr = fmt.Errorf("%w: %w", ErrNotInstalled, err)
		}
	})
	return lookupErr
}

// ExitError describes a lame run that terminated with a non-zero status.
// Stderr carries lame's own diagnostics, which are usually the only useful
// signal (bad rate, unwritable output, corrupt input).
type ExitError struct {
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("lame: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("lame: %v", e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Encode compresses mono 16-bit little-endian PCM at the given sample rate
// into MP3 at the given constant bitrate (kbps), writing the MP3 stream to
// w. The subprocess is killed if ctx is cancelled.
func Encode(ctx context.Context, w io.Writer, pcm []byte, sampleRate, bitrateKbps int) error {
	if err := Available(); err != nil {
		return err
	}

	// -r: raw PCM input, -s: input rate in kHz, -m m: mono.
	// Input from stdin, output to stdout.
	args := []string{
		"-r",
		"--signed", "--little-endian", "--bitwidth", "16",
		"-s", sfreq(sampleRate),
		"-m", "m",
		"-b", strconv.Itoa(bitrateKbps),
		"--quiet",
		"-", "-",
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, Binary, args...)
	cmd.Stdin = bytes.NewReader(pcm)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExitError{Stderr: stderr.String(), Err: err}
	}
	return nil
}

// sfreq renders a sample rate in Hz the way lame's -s flag expects it: in
// kHz, with the fraction kept only when it is not whole (16000 → "16",
// 44100 → "44.1").
func sfreq(rate int) string {
	return strconv.FormatFloat(float64(rate)/1000, 'f', -1, 64)
}
