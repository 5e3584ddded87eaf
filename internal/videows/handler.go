// Package videows streams H.264 to browsers over a websocket: JSON
// control messages in both directions, binary frames for the encoded
// stream.
package videows

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cattern/rovercam/internal/encoders"
	"github.com/cattern/rovercam/internal/events"
	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/session"
)

// writeTimeout bounds each websocket write so one stalled client cannot
// wedge its session's reader loop.
const writeTimeout = 5 * time.Second

// defaultQuality is used when a start request names no preset.
const defaultQuality = "medium"

// request is an inbound control message.
type request struct {
	Action  string `json:"action"`
	Quality string `json:"quality,omitempty"`
}

// response is an outbound control message.
type response struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	FPS     int    `json:"fps,omitempty"`
}

// Handler upgrades /ws/video connections and bridges them to transcode
// sessions. Each connection is one client with at most one session;
// disconnecting tears the session down.
type Handler struct {
	registry      *session.Registry
	cameraRunning func() bool
	bus           *events.Bus
	upgrader      websocket.Upgrader
	logger        logging.Logger
}

// NewHandler creates a websocket video handler. cameraRunning gates
// stream starts on capture availability; session error events from the
// bus are forwarded to the owning client.
func NewHandler(registry *session.Registry, cameraRunning func() bool, bus *events.Bus) *Handler {
	return &Handler{
		registry:      registry,
		cameraRunning: cameraRunning,
		bus:           bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logging.GetLogger("videows"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:      uuid.NewString(),
		conn:    conn,
		handler: h,
	}
	h.logger.Info("Video client connected", "client_id", client.id, "remote", r.RemoteAddr)
	client.run()
}

// wsClient serializes writes to one connection; encoded data arrives
// from the session's reader loop while control replies come from the
// read loop.
type wsClient struct {
	id      string
	conn    *websocket.Conn
	handler *Handler

	writeMu sync.Mutex
}

func (c *wsClient) run() {
	// Tell the client when its encoder dies mid-stream; without this the
	// stream just falls silent.
	var unsubscribe func()
	if c.handler.bus != nil {
		unsubscribe = c.handler.bus.Subscribe(func(e events.SessionErrorEvent) {
			if e.ClientID == c.id {
				c.sendControl(response{Event: "error", Message: e.Error})
			}
		})
	}

	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
		c.handler.registry.StopSession(c.id)
		c.conn.Close()
		c.handler.logger.Info("Video client disconnected", "client_id", c.id)
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.Warn("Websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendControl(response{Event: "error", Message: "invalid message"})
			continue
		}
		c.handleRequest(req)
	}
}

func (c *wsClient) handleRequest(req request) {
	switch req.Action {
	case "start_stream":
		c.startStream(req.Quality)
	case "stop_stream":
		c.handler.registry.StopSession(c.id)
		c.sendControl(response{Event: "stream_stopped"})
	default:
		c.sendControl(response{Event: "error", Message: "unknown action: " + req.Action})
	}
}

func (c *wsClient) startStream(quality string) {
	if quality == "" {
		quality = defaultQuality
	}

	if !c.handler.cameraRunning() {
		c.sendControl(response{Event: "error", Message: "camera not available"})
		return
	}

	sess, err := c.handler.registry.StartSession(c.id, quality, c.sendVideo)
	if err != nil {
		msg := "failed to start encoder"
		if errors.Is(err, encoders.ErrUnknownPreset) {
			msg = "invalid quality: " + quality
		}
		c.sendControl(response{Event: "error", Message: msg})
		return
	}

	preset := sess.Preset()
	c.sendControl(response{
		Event:  "stream_started",
		Width:  preset.Width,
		Height: preset.Height,
		FPS:    preset.FPS,
	})
}

// sendVideo forwards one encoded chunk as a binary frame. Write errors
// are left for the read loop to notice via the broken connection.
func (c *wsClient) sendVideo(data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.handler.logger.Debug("Video write failed", "client_id", c.id, "error", err)
	}
}

func (c *wsClient) sendControl(resp response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(resp); err != nil {
		c.handler.logger.Debug("Control write failed", "client_id", c.id, "error", err)
	}
}
