// Package api exposes the rover's HTTP surface: REST control endpoints,
// MJPEG preview, snapshot, SSE events, and metrics.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/cattern/rovercam/internal/camera"
	"github.com/cattern/rovercam/internal/events"
	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/robot"
	"github.com/cattern/rovercam/internal/session"
	"github.com/cattern/rovercam/internal/settings"
	"github.com/cattern/rovercam/internal/videows"
)

// Options wires the server to the rest of the system.
type Options struct {
	AuthUsername string
	AuthPassword string

	Switchboard *camera.Switchboard
	Buffer      *camera.FrameBuffer
	Registry    *session.Registry
	Settings    *settings.Store
	Bus         *events.Bus

	// Robot is nil when no controller is configured.
	Robot *robot.Controller

	// PrometheusHandler serves /metrics when set.
	PrometheusHandler http.Handler
}

// Server is the huma v2 API server on a stdlib mux.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	opts       *Options
	logger     *slog.Logger
}

// NewServer builds the server and registers all routes.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Rovercam API", "1.0.0")
	config.Info.Description = "Camera streaming and rover control API"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	s := &Server{
		api:    api,
		mux:    mux,
		opts:   opts,
		logger: logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	// Raw streaming endpoints bypass huma; they write multipart and
	// binary bodies directly.
	mux.HandleFunc("GET /video", s.handleMJPEG)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.Handle("GET /ws/video", videows.NewHandler(opts.Registry, opts.Switchboard.Running, opts.Bus))

	s.registerRoutes()
	s.registerSSERoutes()
	return s
}

// withAuth marks an operation as requiring basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}

// basicAuthMiddleware enforces basic auth on operations that declare a
// security requirement. SSE clients may pass credentials in an auth
// query parameter since EventSource cannot set headers.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	unauthorized := func(ctx huma.Context, msg string) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="Rovercam API"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || len(op.Security) == 0 {
			next(ctx)
			return
		}

		var credentials string
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				unauthorized(ctx, "Invalid authentication type")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
			if err != nil {
				unauthorized(ctx, "Invalid credentials format")
				return
			}
			credentials = string(decoded)
		} else if query := ctx.Query("auth"); query != "" {
			decoded, err := base64.StdEncoding.DecodeString(query)
			if err != nil {
				unauthorized(ctx, "Invalid credentials format")
				return
			}
			credentials = string(decoded)
		}

		if credentials == "" {
			unauthorized(ctx, "Authentication required")
			return
		}

		user, pass, ok := strings.Cut(credentials, ":")
		if !ok || user != username || pass != password {
			unauthorized(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

// Mux returns the underlying mux, for tests.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// Start serves HTTP on addr until Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
