// Package encoders selects and drives the external H.264 encoder and
// provides JPEG encoding for snapshots and MJPEG streaming.
package encoders

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownPreset is returned when a client requests a quality preset
// that is not defined. Checked before any encoder process is spawned.
var ErrUnknownPreset = errors.New("unknown quality preset")

// Preset is a named output quality profile.
type Preset struct {
	Name    string `json:"name" example:"medium" doc:"Preset name"`
	Width   int    `json:"width" example:"1280" doc:"Output width"`
	Height  int    `json:"height" example:"720" doc:"Output height"`
	FPS     int    `json:"fps" example:"30" doc:"Output frame rate"`
	Bitrate string `json:"bitrate" example:"1M" doc:"Target bitrate"`
}

// H264Config holds encoder tuning shared by all presets.
type H264Config struct {
	SWPreset    string `json:"sw_preset" toml:"sw_preset"`
	Tune        string `json:"tune" toml:"tune"`
	GOPSize     int    `json:"gop_size" toml:"gop_size"`
	UseHardware bool   `json:"use_hardware" toml:"use_hardware"`
}

// DefaultH264Config returns the low-latency defaults.
func DefaultH264Config() H264Config {
	return H264Config{
		SWPreset:    "ultrafast",
		Tune:        "zerolatency",
		GOPSize:     30,
		UseHardware: true,
	}
}

var presets = map[string]Preset{
	"low":    {Name: "low", Width: 640, Height: 480, FPS: 15, Bitrate: "500k"},
	"medium": {Name: "medium", Width: 1280, Height: 720, FPS: 30, Bitrate: "1M"},
	"high":   {Name: "high", Width: 1920, Height: 1080, FPS: 30, Bitrate: "2M"},
}

// LookupPreset resolves a preset by name. Returns ErrUnknownPreset for
// names outside the fixed set.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Presets returns all defined presets sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
