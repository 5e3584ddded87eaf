// Package logging provides structured logging with per-module log level
// configuration.
//
// The logging system uses Go's slog package with automatic output routing:
// stdout (text or json), systemd journal when available, and an in-memory
// ring buffer that backs the log history API and the SSE log stream.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"camera":  "debug",
//			"session": "info",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("camera")
//	logger.Info("Camera opened", "device", "/dev/video0")
//
// Module-specific levels override the global level for that module only.
// When running under systemd, logs can be filtered with
//
//	journalctl -t rovercam MODULE=camera
package logging
