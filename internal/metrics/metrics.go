// Package metrics exposes Prometheus instrumentation for the capture
// pipeline and transcode sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesCaptured counts frames successfully read from the active
	// capture device over the process lifetime.
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rovercam_frames_captured_total",
		Help: "Total frames read from the active capture device.",
	})

	// FramesDropped counts frames dropped by a session's bounded input
	// queue. Drops mean the encoder is the bottleneck; they are policy,
	// not errors, but must stay observable.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rovercam_session_frames_dropped_total",
		Help: "Frames dropped by per-session input queues (drop-oldest policy).",
	}, []string{"client_id"})

	// EncodedBytes counts encoder output bytes forwarded to each client.
	EncodedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rovercam_session_encoded_bytes_total",
		Help: "Encoded bytes forwarded to streaming clients.",
	}, []string{"client_id"})

	// ActiveSessions tracks currently running transcode sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rovercam_active_sessions",
		Help: "Number of running transcode sessions.",
	})

	// CameraSwitches counts completed hot-swap operations.
	CameraSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rovercam_camera_switches_total",
		Help: "Total successful camera hot-swap operations.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
