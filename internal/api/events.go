package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/cattern/rovercam/internal/events"
)

// registerSSERoutes registers the real-time event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events stream",
		Description: "Real-time camera, session, and log events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"camera-started":       events.CameraStartedEvent{},
		"camera-stopped":       events.CameraStoppedEvent{},
		"camera-switch-failed": events.CameraSwitchFailedEvent{},
		"session-started":      events.SessionStartedEvent{},
		"session-stopped":      events.SessionStoppedEvent{},
		"session-error":        events.SessionErrorEvent{},
		"log-entry":            events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraStartedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.CameraStoppedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.CameraSwitchFailedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.SessionStartedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.SessionStoppedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.SessionErrorEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.LogEntryEvent](s.opts.Bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial message confirms the subscription is live.
		if err := send.Data(events.LogEntryEvent{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     "info",
			Module:    "api",
			Message:   "SSE connection established",
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
