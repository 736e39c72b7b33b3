package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Settings is the persisted user state. The core reads the preset and device
// preference at session start and the save path at save time; the file is
// plain YAML so the GUI layer can edit it too.
type Settings struct {
	// DefaultSavePath is the directory recordings are saved into when the
	// caller gives no explicit path.
	DefaultSavePath string `yaml:"default_save_path"`

	// PreferredDevice is the capture device ID to use, or empty for the
	// system default input.
	PreferredDevice string `yaml:"preferred_device"`

	// QualityPreset names the preset from the built-in registry. Unknown
	// names fall back to the default preset at use time.
	QualityPreset string `yaml:"quality_preset"`

	// LogLevel controls verbosity. Defaults to info.
	LogLevel LogLevel `yaml:"log_level"`
}

// DefaultSettings returns the settings used on first run or when the
// settings file is unreadable.
func DefaultSettings() Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Settings{
		DefaultSavePath: filepath.Join(home, "Voice Notes"),
		QualityPreset:   DefaultPresetName,
		LogLevel:        LogInfo,
	}
}

// DefaultPath returns the canonical settings file location,
// ~/.config/voicenote/settings.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "voicenote", "settings.yaml"), nil
}

// Load reads settings from path. A missing file yields the defaults with no
// error (first run). A malformed or invalid file also yields the defaults,
// but with the error so callers can log it; the recorder must still start.
func Load(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return DefaultSettings(), fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := LoadFromReader(f)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("config: parse %q: %w", path, err)
	}
	return s, nil
}

// LoadFromReader decodes YAML settings from r and validates the result.
// Useful in tests where settings are constructed from string literals.
// Fields absent from the document keep their default values.
func LoadFromReader(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return DefaultSettings(), fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}

// Validate checks that s contains a coherent set of values. It returns a
// joined error listing all failures found.
func (s Settings) Validate() error {
	var errs []error

	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	if s.QualityPreset != "" {
		if _, ok := PresetByName(s.QualityPreset); !ok {
			errs = append(errs, fmt.Errorf("quality_preset %q is unknown", s.QualityPreset))
		}
	}
	if s.DefaultSavePath == "" {
		errs = append(errs, errors.New("default_save_path must not be empty"))
	}

	return errors.Join(errs...)
}

// Save writes s to path as YAML, creating parent directories as needed.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("config: create settings dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

// Preset resolves the configured quality preset, falling back to the default
// when the name is empty or unknown.
func (s Settings) Preset() Preset {
	if p, ok := PresetByName(s.QualityPreset); ok {
		return p
	}
	return DefaultPreset()
}

// DefaultFilename returns the timestamped base name (without extension) used
// when the caller does not supply one, e.g. "voice_note_20260829_153000".
func DefaultFilename(t time.Time) string {
	return t.Format("voice_note_20060102_150405")
}
