package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cattern/rovercam/internal/camera"
	"github.com/cattern/rovercam/internal/devices"
	"github.com/cattern/rovercam/internal/encoders"
	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/settings"
	"github.com/cattern/rovercam/internal/version"
)

// Default capture request when the client specifies nothing.
const (
	defaultCaptureWidth  = 1280
	defaultCaptureHeight = 720
	defaultCaptureFPS    = 30
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "ok"
		resp.Body.Version = version.Version
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "System status",
		Description: "Live capture and session state",
		Tags:        []string{"status"},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*StatusResponse, error) {
		resp := &StatusResponse{}
		resp.Body.FramesCaptured = s.opts.Buffer.FrameCount()
		resp.Body.Sessions = []SessionInfo{}

		if props, ok := s.opts.Switchboard.Properties(); ok {
			resp.Body.CameraRunning = true
			resp.Body.Width = props.Width
			resp.Body.Height = props.Height
			resp.Body.FPS = props.FPS
			if src := s.opts.Switchboard.Current(); src != nil {
				resp.Body.Device = src.Config().Device
			}
		}

		for _, sess := range s.opts.Registry.Sessions() {
			resp.Body.Sessions = append(resp.Body.Sessions, SessionInfo{
				ClientID: sess.ClientID(),
				Preset:   sess.Preset().Name,
				State:    sess.State().String(),
				Drops:    sess.Drops(),
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-presets",
		Method:      http.MethodGet,
		Path:        "/api/presets",
		Summary:     "Quality presets",
		Tags:        []string{"streaming"},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*PresetsResponse, error) {
		resp := &PresetsResponse{}
		resp.Body.Presets = encoders.Presets()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Get settings",
		Tags:        []string{"settings"},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*SettingsResponse, error) {
		return &SettingsResponse{Body: s.opts.Settings.Get()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPut,
		Path:        "/api/settings",
		Summary:     "Update settings",
		Description: "Applies the provided fields and persists the result",
		Tags:        []string{"settings"},
		Security:    withAuth(),
	}, func(ctx context.Context, input *SettingsUpdateInput) (*SettingsResponse, error) {
		updated, err := s.opts.Settings.Update(func(v *settings.Values) {
			if input.Body.RoverName != nil {
				v.RoverName = *input.Body.RoverName
			}
			if input.Body.CloudLocation != nil {
				v.CloudLocation = *input.Body.CloudLocation
			}
			if input.Body.Cameras != nil {
				v.Cameras = input.Body.Cameras
			}
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to save settings", err)
		}
		return &SettingsResponse{Body: updated}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "switch-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/switch",
		Summary:     "Switch camera",
		Description: "Activates a camera by slot or device path, replacing the current one",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{422, 503},
	}, func(ctx context.Context, input *SwitchCameraInput) (*SwitchCameraResponse, error) {
		cfg, err := s.resolveSwitchTarget(input)
		if err != nil {
			return nil, err
		}

		props, err := s.opts.Switchboard.SwitchTo(cfg)
		if err != nil {
			// Leave no active slot recorded; the previous camera is gone
			// and the new one never started.
			_ = s.opts.Settings.SetActiveSlot(nil)
			return nil, huma.Error503ServiceUnavailable(
				fmt.Sprintf("failed to start camera %s", cfg.Device), err)
		}

		_ = s.opts.Settings.SetActiveSlot(input.Body.Slot)

		resp := &SwitchCameraResponse{}
		resp.Body.Device = cfg.Device
		resp.Body.Width = props.Width
		resp.Body.Height = props.Height
		resp.Body.FPS = props.FPS
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/stop",
		Summary:     "Stop camera",
		Tags:        []string{"camera"},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*StopCameraResponse, error) {
		resp := &StopCameraResponse{}
		resp.Body.Stopped = s.opts.Switchboard.Running()
		s.opts.Switchboard.Stop()
		_ = s.opts.Settings.SetActiveSlot(nil)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List video devices",
		Tags:        []string{"camera"},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*DevicesResponse, error) {
		resp := &DevicesResponse{}
		resp.Body.Devices = devices.List()
		if resp.Body.Devices == nil {
			resp.Body.Devices = []devices.Device{}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "robot-command",
		Method:      http.MethodPost,
		Path:        "/api/robot/command",
		Summary:     "Send robot command",
		Description: "Forwards a JSON array command to the motor controller",
		Tags:        []string{"robot"},
		Security:    withAuth(),
		Errors:      []int{503},
	}, func(ctx context.Context, input *RobotCommandInput) (*RobotCommandResponse, error) {
		if s.opts.Robot == nil {
			return nil, huma.Error503ServiceUnavailable("no robot controller configured")
		}
		if err := s.opts.Robot.Connect(); err != nil {
			return nil, huma.Error503ServiceUnavailable("robot controller unavailable", err)
		}

		resp := &RobotCommandResponse{}
		if input.Body.ReadResponse {
			reply, err := s.opts.Robot.SendWithResponse(input.Body.Command, 1)
			if err != nil {
				return nil, huma.Error503ServiceUnavailable("failed to send command", err)
			}
			resp.Body.Response = reply
		} else if err := s.opts.Robot.Send(input.Body.Command); err != nil {
			return nil, huma.Error503ServiceUnavailable("failed to send command", err)
		}
		resp.Body.Success = true
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Returns the in-memory log history",
		Tags:        []string{"logs"},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*LogsResponse, error) {
		resp := &LogsResponse{}
		resp.Body.Logs = []logging.LogEntry{}
		if buf := logging.GetBuffer(); buf != nil {
			if entries := buf.ReadAll(); entries != nil {
				resp.Body.Logs = entries
			}
		}
		return resp, nil
	})
}

// resolveSwitchTarget turns a switch request into a capture config,
// resolving slot references through the settings store.
func (s *Server) resolveSwitchTarget(input *SwitchCameraInput) (camera.Config, error) {
	cfg := camera.Config{
		Device: input.Body.Device,
		Width:  input.Body.Width,
		Height: input.Body.Height,
		FPS:    input.Body.FPS,
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultCaptureWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultCaptureHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = defaultCaptureFPS
	}

	if input.Body.Slot != nil {
		slot, ok := s.opts.Settings.Slot(*input.Body.Slot)
		if !ok {
			return camera.Config{}, huma.Error422UnprocessableEntity(
				fmt.Sprintf("no camera slot %d", *input.Body.Slot))
		}
		if !slot.Enabled || slot.Device == "" {
			return camera.Config{}, huma.Error422UnprocessableEntity(
				fmt.Sprintf("camera slot %d has no enabled device", *input.Body.Slot))
		}
		cfg.Device = slot.Device
	}

	if cfg.Device == "" {
		return camera.Config{}, huma.Error422UnprocessableEntity("either slot or device is required")
	}
	return cfg, nil
}
