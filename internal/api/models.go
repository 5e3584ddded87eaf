package api

import (
	"github.com/cattern/rovercam/internal/devices"
	"github.com/cattern/rovercam/internal/encoders"
	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/settings"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Body struct {
		Status  string `json:"status" example:"ok" doc:"Health status"`
		Version string `json:"version" example:"1.2.0" doc:"Server version"`
	}
}

// SessionInfo describes one live transcode session.
type SessionInfo struct {
	ClientID string `json:"client_id" doc:"Streaming client identifier"`
	Preset   string `json:"preset" example:"medium" doc:"Quality preset"`
	State    string `json:"state" example:"running" doc:"Session lifecycle state"`
	Drops    uint64 `json:"drops" doc:"Frames dropped by the session queue"`
}

// StatusData is the live system state.
type StatusData struct {
	CameraRunning  bool          `json:"camera_running" doc:"Whether a capture source is active"`
	Device         string        `json:"device,omitempty" example:"/dev/video0" doc:"Active device path"`
	Width          int           `json:"width,omitempty" doc:"Negotiated capture width"`
	Height         int           `json:"height,omitempty" doc:"Negotiated capture height"`
	FPS            float64       `json:"fps,omitempty" doc:"Negotiated capture rate"`
	FramesCaptured uint64        `json:"frames_captured" doc:"Frames captured since startup"`
	Sessions       []SessionInfo `json:"sessions" doc:"Live transcode sessions"`
}

// StatusResponse wraps StatusData.
type StatusResponse struct {
	Body StatusData
}

// PresetsResponse lists the quality presets.
type PresetsResponse struct {
	Body struct {
		Presets []encoders.Preset `json:"presets" doc:"Available quality presets"`
	}
}

// SettingsResponse returns the full settings document.
type SettingsResponse struct {
	Body settings.Values
}

// SettingsUpdateInput carries a partial settings update. Only non-nil
// fields are applied.
type SettingsUpdateInput struct {
	Body struct {
		RoverName     *string               `json:"rover_name,omitempty" doc:"New rover name"`
		CloudLocation *string               `json:"cloud_location,omitempty" doc:"New cloud base URL"`
		Cameras       []settings.CameraSlot `json:"cameras,omitempty" doc:"Replacement slot assignments"`
	}
}

// SwitchCameraInput selects the camera to make active. Either a
// configured slot number or an explicit device path.
type SwitchCameraInput struct {
	Body struct {
		Slot   *int   `json:"slot,omitempty" example:"1" doc:"Configured camera slot to activate"`
		Device string `json:"device,omitempty" example:"/dev/video0" doc:"Explicit device path"`
		Width  int    `json:"width,omitempty" example:"1280" doc:"Requested width, defaults to 1280"`
		Height int    `json:"height,omitempty" example:"720" doc:"Requested height, defaults to 720"`
		FPS    int    `json:"fps,omitempty" example:"30" doc:"Requested rate, defaults to 30"`
	}
}

// SwitchCameraResponse reports the negotiated capture properties.
type SwitchCameraResponse struct {
	Body struct {
		Device string  `json:"device" doc:"Active device path"`
		Width  int     `json:"width" doc:"Negotiated width"`
		Height int     `json:"height" doc:"Negotiated height"`
		FPS    float64 `json:"fps" doc:"Negotiated rate"`
	}
}

// StopCameraResponse acknowledges a camera stop.
type StopCameraResponse struct {
	Body struct {
		Stopped bool `json:"stopped" doc:"Whether a camera was running"`
	}
}

// DevicesResponse lists enumerated capture devices.
type DevicesResponse struct {
	Body struct {
		Devices []devices.Device `json:"devices" doc:"Detected video devices"`
	}
}

// RobotCommandInput is a drive command for the robot controller.
type RobotCommandInput struct {
	Body struct {
		Command      []any `json:"command" doc:"Command array forwarded to the controller"`
		ReadResponse bool  `json:"read_response,omitempty" doc:"Whether to wait for a response line"`
	}
}

// RobotCommandResponse reports the outcome of a robot command.
type RobotCommandResponse struct {
	Body struct {
		Success  bool   `json:"success" doc:"Whether the command was sent"`
		Response string `json:"response,omitempty" doc:"Controller response, when requested"`
	}
}

// LogsResponse returns recent log entries from the ring buffer.
type LogsResponse struct {
	Body struct {
		Logs []logging.LogEntry `json:"logs" doc:"Recent log entries, oldest first"`
	}
}
