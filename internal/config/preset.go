// Package config provides the quality preset registry and the persisted
// user settings for the voice note recorder.
package config

import "time"

// Container identifies the output file format of a preset.
type Container string

const (
	// ContainerWAV is uncompressed 16-bit PCM in a WAV container.
	ContainerWAV Container = "wav"

	// ContainerMP3 is MP3 at the preset bitrate, encoded by the external
	// lame utility.
	ContainerMP3 Container = "mp3"
)

// IsValid reports whether c is a recognised container.
func (c Container) IsValid() bool {
	return c == ContainerWAV || c == ContainerMP3
}

// MaxUploadBytes is the file-size ceiling the presets are tuned against:
// speech-to-text services commonly cap uploads at 20 MB, so each preset's
// estimated maximum duration is computed from this limit.
const MaxUploadBytes = 20 * 1024 * 1024

// Preset is an immutable quality configuration. Output is always mono; the
// sample rate and bitrate trade clarity against maximum duration within the
// upload ceiling. A preset is selected before recording or at save time and
// never changes mid-session.
type Preset struct {
	// Name is the stable identifier stored in settings.
	Name string

	// Description is a one-line summary for preset pickers.
	Description string

	// SampleRate is the output sample rate in Hz.
	SampleRate int

	// Container selects WAV or MP3 output.
	Container Container

	// Bitrate is the MP3 bitrate in kbps. Zero for WAV presets.
	Bitrate int

	// BitDepth is the PCM bit depth for WAV presets. Zero for MP3 presets.
	BitDepth int
}

// Extension returns the output filename extension including the dot.
func (p Preset) Extension() string {
	return "." + string(p.Container)
}

// bytesPerSecond estimates the output data rate.
func (p Preset) bytesPerSecond() int {
	if p.Container == ContainerMP3 {
		return p.Bitrate * 1000 / 8
	}
	return p.SampleRate * p.BitDepth / 8
}

// MaxDuration estimates the longest recording that fits within
// [MaxUploadBytes] at this preset's data rate.
func (p Preset) MaxDuration() time.Duration {
	bps := p.bytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(MaxUploadBytes/bps) * time.Second
}

// DefaultPresetName is the preset used when settings name none or an
// unknown one.
const DefaultPresetName = "extended"

// presets is the built-in registry, ordered from best quality to longest
// duration. Sixteen kilohertz is the native rate for common STT models, so
// only the maximum-duration preset drops below it.
var presets = []Preset{
	{
		Name:        "standard",
		Description: "Best clarity for voice. Native format for STT models.",
		SampleRate:  16000,
		Container:   ContainerMP3,
		Bitrate:     64,
	},
	{
		Name:        "extended",
		Description: "Good quality for longer recordings. Still very clear.",
		SampleRate:  16000,
		Container:   ContainerMP3,
		Bitrate:     32,
	},
	{
		Name:        "maximum",
		Description: "Telephone quality. Use for very long voice notes.",
		SampleRate:  8000,
		Container:   ContainerMP3,
		Bitrate:     24,
	},
	{
		Name:        "wav",
		Description: "Uncompressed PCM. No external encoder required.",
		SampleRate:  16000,
		Container:   ContainerWAV,
		BitDepth:    16,
	},
}

// Presets returns all built-in presets in display order. The returned slice
// is a copy; callers may not mutate the registry.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetByName looks up a preset by its stable name.
func PresetByName(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// DefaultPreset returns the preset used when no valid choice is configured.
func DefaultPreset() Preset {
	p, _ := PresetByName(DefaultPresetName)
	return p
}
