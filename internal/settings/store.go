// Package settings persists rover identity, camera slot assignments,
// and hardware facts in a JSON file.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cattern/rovercam/internal/logging"
)

// CameraSlot is one of the fixed camera mount positions on the rover.
type CameraSlot struct {
	Slot    int    `json:"slot" example:"1" doc:"Mount position, 1-based"`
	Device  string `json:"device" example:"/dev/video0" doc:"Assigned video device, empty when unassigned"`
	Type    string `json:"type" example:"N" doc:"Camera type code"`
	Enabled bool   `json:"enabled" doc:"Whether the slot may be activated"`
}

// Hardware describes the board the server runs on. Collected once at
// startup; see CollectHardware.
type Hardware struct {
	CPUModel  string `json:"cpu_model" example:"Cortex-A72" doc:"CPU model name"`
	CPUCores  int    `json:"cpu_cores" example:"4" doc:"Logical CPU count"`
	MemoryMB  uint64 `json:"memory_mb" example:"4096" doc:"Total memory in MiB"`
	OSName    string `json:"os_name" example:"linux" doc:"Operating system"`
	OSVersion string `json:"os_version" example:"12" doc:"OS release version"`
	Platform  string `json:"platform" example:"debian" doc:"Distribution"`
}

// Values is the persisted settings document.
type Values struct {
	RoverName        string       `json:"rover_name" doc:"Human-readable rover name"`
	CloudLocation    string       `json:"cloud_location" doc:"Cloud service base URL"`
	RoverIP          string       `json:"this_rover_ip,omitempty" doc:"Public IP as seen by the cloud"`
	LANIP            string       `json:"lan_ip,omitempty" doc:"Local network IP"`
	Hardware         Hardware     `json:"hardware" doc:"Host hardware facts"`
	ActiveCameraSlot *int         `json:"active_camera_slot" doc:"Active slot number, null when no camera is active"`
	Cameras          []CameraSlot `json:"cameras" doc:"Camera slot assignments"`
}

// Defaults returns the settings used for a fresh install.
func Defaults() Values {
	return Values{
		RoverName:     "Cattern Rover LAN",
		CloudLocation: "https://cattern.com",
		Hardware: Hardware{
			CPUModel:  "Unknown",
			OSName:    "Unknown",
			OSVersion: "Unknown",
			Platform:  "Unknown",
		},
		Cameras: []CameraSlot{
			{Slot: 1, Type: "N"},
			{Slot: 2, Type: "N"},
			{Slot: 3, Type: "N"},
		},
	}
}

// Store is a thread-safe settings file manager. Every mutation is
// written through to disk.
type Store struct {
	path   string
	logger logging.Logger

	mu     sync.Mutex
	values Values
}

// NewStore loads (or creates) the settings file at path. A corrupt file
// is replaced with defaults rather than aborting startup.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logging.GetLogger("settings"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.values = Defaults()
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	values := Defaults()
	if err := json.Unmarshal(data, &values); err != nil {
		s.logger.Error("Settings file corrupt, resetting to defaults",
			"path", s.path, "error", err)
		s.values = Defaults()
		return s.saveLocked()
	}

	// Unmarshaling over Defaults() fills keys absent from older files, so
	// an upgrade picks up new fields. No write-back here; a save on load
	// would retrigger the file watcher.
	s.values = values
	return nil
}

// saveLocked writes the document atomically: a temp file in the same
// directory renamed over the target, so readers never see a torn file.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current settings.
func (s *Store) Get() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() Values {
	v := s.values
	v.Cameras = append([]CameraSlot(nil), s.values.Cameras...)
	if s.values.ActiveCameraSlot != nil {
		slot := *s.values.ActiveCameraSlot
		v.ActiveCameraSlot = &slot
	}
	return v
}

// Update applies a mutation to the settings and persists the result.
func (s *Store) Update(fn func(*Values)) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.values)
	if err := s.saveLocked(); err != nil {
		return Values{}, err
	}
	return s.copyLocked(), nil
}

// SetActiveSlot records which camera slot is live, or none when slot is
// nil.
func (s *Store) SetActiveSlot(slot *int) error {
	_, err := s.Update(func(v *Values) {
		v.ActiveCameraSlot = slot
	})
	return err
}

// Slot returns the camera assignment for a slot number.
func (s *Store) Slot(n int) (CameraSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.values.Cameras {
		if c.Slot == n {
			return c, true
		}
	}
	return CameraSlot{}, false
}

// Reset restores defaults and persists them.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = Defaults()
	return s.saveLocked()
}

// Reload re-reads the file, for use after an external edit.
func (s *Store) Reload() error {
	return s.load()
}
