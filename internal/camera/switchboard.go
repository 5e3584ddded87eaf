package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cattern/rovercam/internal/events"
	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/metrics"
)

// SourceFactory builds a CaptureSource for a device configuration. The
// switchboard constructs a fresh source per switch because a stopped
// source cannot be restarted.
type SourceFactory func(cfg Config, buffer *FrameBuffer) *CaptureSource

// SnapshotFunc receives the last frame of the outgoing device during a
// switch, for archival. Best effort: failures must not block the switch.
type SnapshotFunc func(*Frame)

type subscription struct {
	token    string
	fn       FrameCallback
	srcToken string
}

// Switchboard holds the currently active CaptureSource and makes
// replacing the active device atomic from the consumers' perspective.
// Subscribers register here rather than on a source directly, so they
// keep receiving frames across a hot-swap.
type Switchboard struct {
	mu       sync.Mutex
	buffer   *FrameBuffer
	factory  SourceFactory
	snapshot SnapshotFunc
	current  *CaptureSource
	previous *Config
	subs     []*subscription
	bus      *events.Bus
	logger   logging.Logger
}

// NewSwitchboard creates a switchboard with no current source.
func NewSwitchboard(buffer *FrameBuffer, factory SourceFactory, bus *events.Bus) *Switchboard {
	return &Switchboard{
		buffer:  buffer,
		factory: factory,
		bus:     bus,
		logger:  logging.GetLogger("camera"),
	}
}

// SetSnapshotFunc installs the archival hook invoked with the outgoing
// device's last frame during a switch.
func (sb *Switchboard) SetSnapshotFunc(fn SnapshotFunc) {
	sb.mu.Lock()
	sb.snapshot = fn
	sb.mu.Unlock()
}

// SwitchTo atomically replaces the active device: stop the old source,
// clear the frame buffer so stale frames are never served under the new
// device's identity, then start the new source. On start failure the
// switchboard is left with no current source; PreviousConfig lets the
// caller re-arm the old device, but there is no automatic retry.
func (sb *Switchboard) SwitchTo(cfg Config) (Properties, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.stopCurrentLocked()
	sb.buffer.Clear()

	src := sb.factory(cfg, sb.buffer)
	props, err := src.Start()
	if err != nil {
		sb.logger.Error("Failed to start camera", "device", cfg.Device, "error", err)
		sb.publish(events.CameraSwitchFailedEvent{
			Device:    cfg.Device,
			Error:     err.Error(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return Properties{}, fmt.Errorf("switch to %s failed: %w", cfg.Device, err)
	}

	sb.current = src
	for _, sub := range sb.subs {
		sub.srcToken = src.AddFrameCallback(sub.fn)
	}
	sb.previous = &cfg

	metrics.CameraSwitches.Inc()
	sb.publish(events.CameraStartedEvent{
		Device:    cfg.Device,
		Width:     props.Width,
		Height:    props.Height,
		FPS:       props.FPS,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	sb.logger.Info("Camera switched", "device", cfg.Device,
		"width", props.Width, "height", props.Height, "fps", props.FPS)
	return props, nil
}

// stopCurrentLocked snapshots and stops the active source. Callers must
// hold sb.mu.
func (sb *Switchboard) stopCurrentLocked() {
	if sb.current == nil {
		return
	}

	if sb.snapshot != nil {
		if frame, ok := sb.buffer.GetNoWait(); ok {
			sb.archive(frame)
		}
	}

	device := sb.current.Config().Device
	sb.current.Stop()
	sb.current = nil
	for _, sub := range sb.subs {
		sub.srcToken = ""
	}

	sb.publish(events.CameraStoppedEvent{
		Device:    device,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// archive invokes the snapshot hook, isolating the switch from hook
// failures.
func (sb *Switchboard) archive(frame *Frame) {
	defer func() {
		if r := recover(); r != nil {
			sb.logger.Warn("Snapshot hook panicked", "panic", r)
		}
	}()
	sb.snapshot(frame)
}

// Stop stops the active source, if any. Used at shutdown.
func (sb *Switchboard) Stop() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.stopCurrentLocked()
}

// Current returns the active source, or nil. The returned source is
// never half-constructed or already stopped at the time of the call.
func (sb *Switchboard) Current() *CaptureSource {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.current
}

// Running reports whether a capture source is currently delivering.
func (sb *Switchboard) Running() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.current != nil && sb.current.Running()
}

// Properties returns the negotiated properties of the active source.
func (sb *Switchboard) Properties() (Properties, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.current == nil {
		return Properties{}, false
	}
	return sb.current.Properties()
}

// PreviousConfig returns the configuration of the last successfully
// started device, for callers that want to re-arm it after a failed
// switch.
func (sb *Switchboard) PreviousConfig() (Config, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.previous == nil {
		return Config{}, false
	}
	return *sb.previous, true
}

// AddFrameCallback registers a subscriber that receives every captured
// frame from whichever source is active, surviving hot-swaps. Returns a
// token for removal.
func (sb *Switchboard) AddFrameCallback(fn FrameCallback) string {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sub := &subscription{token: uuid.NewString(), fn: fn}
	if sb.current != nil {
		sub.srcToken = sb.current.AddFrameCallback(fn)
	}
	sb.subs = append(sb.subs, sub)
	return sub.token
}

// RemoveFrameCallback unregisters a subscriber. When it returns, the
// callback will not be invoked again.
func (sb *Switchboard) RemoveFrameCallback(token string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for i, sub := range sb.subs {
		if sub.token == token {
			if sb.current != nil && sub.srcToken != "" {
				sb.current.RemoveFrameCallback(sub.srcToken)
			}
			sb.subs = append(sb.subs[:i], sb.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of registered frame callbacks.
func (sb *Switchboard) SubscriberCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.subs)
}

func (sb *Switchboard) publish(ev events.Event) {
	if sb.bus != nil {
		sb.bus.Publish(ev)
	}
}
