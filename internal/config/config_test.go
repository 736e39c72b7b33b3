package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielrosehill/voicenote/internal/config"
)

func TestPresetRegistry(t *testing.T) {
	names := []string{"standard", "extended", "maximum", "wav"}
	for _, name := range names {
		p, ok := config.PresetByName(name)
		if !ok {
			t.Fatalf("preset %q missing from registry", name)
		}
		if p.Name != name {
			t.Errorf("preset %q reports name %q", name, p.Name)
		}
		if !p.Container.IsValid() {
			t.Errorf("preset %q has invalid container %q", name, p.Container)
		}
		if p.SampleRate <= 0 {
			t.Errorf("preset %q has non-positive sample rate", name)
		}
	}

	if _, ok := config.PresetByName("ultra"); ok {
		t.Error("unknown preset name should not resolve")
	}
}

func TestDefaultPreset(t *testing.T) {
	p := config.DefaultPreset()
	if p.Name != config.DefaultPresetName {
		t.Errorf("default preset: got %q, want %q", p.Name, config.DefaultPresetName)
	}
}

func TestPresetExtension(t *testing.T) {
	wav, _ := config.PresetByName("wav")
	if got := wav.Extension(); got != ".wav" {
		t.Errorf("wav extension: got %q", got)
	}
	std, _ := config.PresetByName("standard")
	if got := std.Extension(); got != ".mp3" {
		t.Errorf("standard extension: got %q", got)
	}
}

func TestPresetMaxDuration(t *testing.T) {
	// extended: 32 kbps → 4000 bytes/s → 20MB lasts ~87 minutes.
	ext, _ := config.PresetByName("extended")
	got := ext.MaxDuration()
	if got < 80*time.Minute || got > 95*time.Minute {
		t.Errorf("extended max duration: got %v, want ~87m", got)
	}

	// maximum must fit longer recordings than standard.
	std, _ := config.PresetByName("standard")
	max, _ := config.PresetByName("maximum")
	if max.MaxDuration() <= std.MaxDuration() {
		t.Error("maximum preset should outlast standard preset")
	}
}

func TestLoadFromReader(t *testing.T) {
	doc := `
default_save_path: /tmp/notes
preferred_device: "mic-2"
quality_preset: standard
log_level: debug
`
	s, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if s.DefaultSavePath != "/tmp/notes" {
		t.Errorf("save path: got %q", s.DefaultSavePath)
	}
	if s.PreferredDevice != "mic-2" {
		t.Errorf("device: got %q", s.PreferredDevice)
	}
	if s.Preset().Name != "standard" {
		t.Errorf("preset: got %q", s.Preset().Name)
	}
	if s.LogLevel != config.LogDebug {
		t.Errorf("log level: got %q", s.LogLevel)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("no_such_field: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReaderInvalidPreset(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("quality_preset: ultra\n"))
	if err == nil {
		t.Fatal("expected validation error for unknown preset")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if s.QualityPreset != config.DefaultPresetName {
		t.Errorf("preset: got %q, want default", s.QualityPreset)
	}
}

func TestLoadMalformedFileReturnsDefaultsAndError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := config.Load(path)
	if err == nil {
		t.Error("expected parse error")
	}
	if s.QualityPreset != config.DefaultPresetName {
		t.Error("malformed file should still yield usable defaults")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	want := config.DefaultSettings()
	want.DefaultSavePath = "/tmp/voice"
	want.PreferredDevice = "usb-mic"
	want.QualityPreset = "maximum"

	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	s := config.DefaultSettings()
	s.LogLevel = "loud"
	s.QualityPreset = "ultra"
	s.DefaultSavePath = ""

	err := s.Validate()
	if err == nil {
		t.Fatal("expected joined validation errors")
	}
	for _, want := range []string{"log_level", "quality_preset", "default_save_path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error should mention %s: %v", want, err)
		}
	}
}

func TestDefaultFilename(t *testing.T) {
	ts := time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)
	if got := config.DefaultFilename(ts); got != "voice_note_20260829_153000" {
		t.Errorf("filename: got %q", got)
	}
}
