package lame

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestSfreq(t *testing.T) {
	cases := []struct {
		rate int
		want string
	}{
		{8000, "8"},
		{16000, "16"},
		{22050, "22.05"},
		{44100, "44.1"},
		{48000, "48"},
	}
	for _, tc := range cases {
		if got := sfreq(tc.rate); got != tc.want {
			t.Errorf("sfreq(%d) = %q, want %q", tc.rate, got, tc.want)
		}
	}
}

func TestExitErrorFormatting(t *testing.T) {
	underlying := &exec.ExitError{}
	err := &ExitError{Stderr: "unsupported bitrate", Err: underlying}
	if !strings.Contains(err.Error(), "unsupported bitrate") {
		t.Errorf("Error() = %q, want stderr included", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("ExitError does not unwrap to the underlying error")
	}

	bare := &ExitError{Err: underlying}
	if strings.Contains(bare.Error(), ": \n") || strings.HasSuffix(bare.Error(), ": ") {
		t.Errorf("Error() with empty stderr = %q, trailing separator", bare.Error())
	}
}
