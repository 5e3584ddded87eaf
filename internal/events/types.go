package events

// Event type constants for kelindar/event.
const (
	TypeCameraStarted uint32 = iota + 1
	TypeCameraStopped
	TypeCameraSwitchFailed
	TypeSessionStarted
	TypeSessionStopped
	TypeSessionError
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraStartedEvent is published when a capture source starts delivering.
type CameraStartedEvent struct {
	Device    string  `json:"device" example:"/dev/video0" doc:"Video device path"`
	Width     int     `json:"width" example:"1280" doc:"Negotiated frame width"`
	Height    int     `json:"height" example:"720" doc:"Negotiated frame height"`
	FPS       float64 `json:"fps" example:"30" doc:"Negotiated frame rate"`
	Timestamp string  `json:"timestamp" example:"2026-08-23T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStartedEvent.
func (e CameraStartedEvent) Type() uint32 { return TypeCameraStarted }

// CameraStoppedEvent is published when the active capture source stops.
type CameraStoppedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Video device path"`
	Timestamp string `json:"timestamp" example:"2026-08-23T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStoppedEvent.
func (e CameraStoppedEvent) Type() uint32 { return TypeCameraStopped }

// CameraSwitchFailedEvent is published when a hot-swap fails to start the
// new device. The switchboard is left with no current source.
type CameraSwitchFailedEvent struct {
	Device    string `json:"device" example:"/dev/video1" doc:"Device that failed to start"`
	Error     string `json:"error" example:"device busy" doc:"Failure reason"`
	Timestamp string `json:"timestamp" example:"2026-08-23T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraSwitchFailedEvent.
func (e CameraSwitchFailedEvent) Type() uint32 { return TypeCameraSwitchFailed }

// SessionStartedEvent is published when a transcode session reaches the
// running state.
type SessionStartedEvent struct {
	ClientID  string `json:"client_id" doc:"Streaming client identifier"`
	Preset    string `json:"preset" example:"medium" doc:"Quality preset name"`
	Width     int    `json:"width" example:"1280" doc:"Stream width"`
	Height    int    `json:"height" example:"720" doc:"Stream height"`
	FPS       int    `json:"fps" example:"30" doc:"Stream frame rate"`
	Timestamp string `json:"timestamp" example:"2026-08-23T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStartedEvent.
func (e SessionStartedEvent) Type() uint32 { return TypeSessionStarted }

// SessionStoppedEvent is published after a transcode session terminates.
type SessionStoppedEvent struct {
	ClientID  string `json:"client_id" doc:"Streaming client identifier"`
	Timestamp string `json:"timestamp" example:"2026-08-23T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStoppedEvent.
func (e SessionStoppedEvent) Type() uint32 { return TypeSessionStopped }

// SessionErrorEvent is published when a session dies unexpectedly, for
// example when the encoder process exits mid-stream.
type SessionErrorEvent struct {
	ClientID  string `json:"client_id" doc:"Streaming client identifier"`
	Error     string `json:"error" example:"encoder process exited" doc:"Failure reason"`
	Timestamp string `json:"timestamp" example:"2026-08-23T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionErrorEvent.
func (e SessionErrorEvent) Type() uint32 { return TypeSessionError }

// LogEntryEvent carries one log line to SSE subscribers.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"camera" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
