package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/cattern/rovercam/cmd"
	"github.com/cattern/rovercam/internal/api"
	"github.com/cattern/rovercam/internal/camera"
	"github.com/cattern/rovercam/internal/config"
	"github.com/cattern/rovercam/internal/encoders"
	"github.com/cattern/rovercam/internal/events"
	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/metrics"
	"github.com/cattern/rovercam/internal/netinfo"
	"github.com/cattern/rovercam/internal/robot"
	"github.com/cattern/rovercam/internal/session"
	"github.com/cattern/rovercam/internal/settings"
)

// Options for the CLI, flat structure with toml and env mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"rovercam.toml"`

	// Server settings
	Host string `help:"Host to bind" default:"0.0.0.0" toml:"server.host" env:"HOST"`
	Port int    `help:"Port to listen on" short:"p" default:"5000" toml:"server.port" env:"PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Settings storage
	SettingsFile string `help:"Settings file path" default:"settings.json" toml:"server.settings_file" env:"SETTINGS_FILE"`

	// Camera settings
	CameraDevice      string `help:"Camera device to start at boot (empty to rely on settings)" default:"" toml:"camera.device" env:"CAMERA_DEVICE"`
	CameraWidth       int    `help:"Requested capture width" default:"1280" toml:"camera.width" env:"CAMERA_WIDTH"`
	CameraHeight      int    `help:"Requested capture height" default:"720" toml:"camera.height" env:"CAMERA_HEIGHT"`
	CameraFps         int    `help:"Requested capture rate" default:"30" toml:"camera.fps" env:"CAMERA_FPS"`
	CameraPixelFormat string `help:"Requested pixel format" default:"MJPG" toml:"camera.pixel_format" env:"CAMERA_PIXEL_FORMAT"`

	// Snapshot archival
	SnapshotDir string `help:"Directory for camera switch snapshots (empty disables)" default:"" toml:"camera.snapshot_dir" env:"SNAPSHOT_DIR"`

	// Encoder settings
	EncoderHardware bool `help:"Use the hardware H.264 encoder when available" default:"true" toml:"encoder.use_hardware" env:"ENCODER_USE_HARDWARE"`

	// Robot controller
	RobotPort string `help:"Robot controller serial port (empty disables)" default:"" toml:"robot.port" env:"ROBOT_PORT"`
	RobotBaud int    `help:"Robot controller baud rate" default:"115200" toml:"robot.baud" env:"ROBOT_BAUD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera   string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingSession  string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingEncoders string `help:"Encoders logging level" default:"info" toml:"logging.encoders" env:"LOGGING_ENCODERS"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingSettings string `help:"Settings logging level" default:"info" toml:"logging.settings" env:"LOGGING_SETTINGS"`
	LoggingRobot    string `help:"Robot logging level" default:"info" toml:"logging.robot" env:"LOGGING_ROBOT"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if err := config.Load(opts, cli.Root()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		}

		// The [logging] table may name modules beyond the flagged ones;
		// start from it, then overlay the flag/env-resolved values.
		logCfg := config.LoadLogging(opts.Config)
		logCfg.Level = opts.LoggingLevel
		logCfg.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			"camera":   opts.LoggingCamera,
			"session":  opts.LoggingSession,
			"encoders": opts.LoggingEncoders,
			"api":      opts.LoggingAPI,
			"settings": opts.LoggingSettings,
			"robot":    opts.LoggingRobot,
		} {
			logCfg.Modules[module] = level
		}
		logging.Initialize(logCfg)
		logger := logging.GetLogger("main")

		bus := events.New()

		// Forward every log line onto the bus so SSE clients see it.
		logging.SetLogCallback(func(entry logging.LogEntry) {
			bus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		store, err := settings.NewStore(opts.SettingsFile)
		if err != nil {
			logger.Error("Failed to open settings store", "error", err)
			os.Exit(1)
		}
		watcher, err := settings.NewWatcher(store, nil)
		if err != nil {
			logger.Warn("Settings file watching disabled", "error", err)
		}

		buffer := camera.NewFrameBuffer()
		switchboard := camera.NewSwitchboard(buffer, func(cfg camera.Config, b *camera.FrameBuffer) *camera.CaptureSource {
			return camera.NewCaptureSource(cfg, b, camera.NewFFmpegDevice(nil))
		}, bus)

		if opts.SnapshotDir != "" {
			switchboard.SetSnapshotFunc(snapshotArchiver(opts.SnapshotDir))
		}

		h264 := encoders.DefaultH264Config()
		h264.UseHardware = opts.EncoderHardware
		registry := session.NewRegistry(switchboard, bus, session.DefaultCommandFunc(h264))

		var controller *robot.Controller
		if opts.RobotPort != "" {
			controller = robot.NewController(opts.RobotPort, opts.RobotBaud)
			if err := controller.Connect(); err != nil {
				logger.Warn("Robot controller not connected, will retry on demand", "error", err)
			}
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Switchboard:       switchboard,
			Buffer:            buffer,
			Registry:          registry,
			Settings:          store,
			Bus:               bus,
			Robot:             controller,
			PrometheusHandler: metrics.Handler(),
		})

		hooks.OnStart(func() {
			go netinfo.RunStartupTasks(context.Background(), store)
			go startBootCamera(opts, store, switchboard)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			logger.Info("Starting HTTP server", "addr", addr)
			if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(ctx); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}

			registry.StopAll()
			switchboard.Stop()

			if watcher != nil {
				watcher.Close()
			}
			if controller != nil {
				controller.Disconnect()
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateProbeCmd())

	cli.Run()
}

// startBootCamera activates the configured camera at startup: an
// explicit device from the config wins, otherwise the settings file's
// active slot. Failure leaves the server running without video.
func startBootCamera(opts *Options, store *settings.Store, sb *camera.Switchboard) {
	logger := logging.GetLogger("main")

	cfg := camera.Config{
		Width:       opts.CameraWidth,
		Height:      opts.CameraHeight,
		FPS:         opts.CameraFps,
		PixelFormat: opts.CameraPixelFormat,
	}

	switch {
	case opts.CameraDevice != "":
		cfg.Device = opts.CameraDevice
	default:
		values := store.Get()
		if values.ActiveCameraSlot == nil {
			logger.Info("No camera configured, starting without video")
			return
		}
		slot, ok := store.Slot(*values.ActiveCameraSlot)
		if !ok || !slot.Enabled || slot.Device == "" {
			logger.Warn("Active camera slot has no usable device", "slot", *values.ActiveCameraSlot)
			return
		}
		cfg.Device = slot.Device
	}

	if _, err := sb.SwitchTo(cfg); err != nil {
		logger.Warn("Boot camera failed to start, continuing without video",
			"device", cfg.Device, "error", err)
	}
}

// snapshotArchiver writes the outgoing camera's last frame to disk when
// the camera is switched.
func snapshotArchiver(dir string) camera.SnapshotFunc {
	logger := logging.GetLogger("camera")

	return func(frame *camera.Frame) {
		data, err := encoders.EncodeJPEG(frame, encoders.DefaultJPEGQuality)
		if err != nil {
			logger.Warn("Switch snapshot encode failed", "error", err)
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("Switch snapshot dir unavailable", "dir", dir, "error", err)
			return
		}
		name := filepath.Join(dir, "switch-"+time.Now().Format("20060102-150405")+".jpg")
		if err := os.WriteFile(name, data, 0o644); err != nil {
			logger.Warn("Switch snapshot write failed", "path", name, "error", err)
		}
	}
}
