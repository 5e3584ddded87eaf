package camera

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/metrics"
)

// joinTimeout bounds how long Stop waits for the capture loop to exit.
const joinTimeout = 2 * time.Second

// ErrAlreadyStopped is returned when starting a source that was stopped.
// A stopped source cannot be restarted; construct a new one instead.
var ErrAlreadyStopped = errors.New("capture source already stopped")

// Config describes the requested capture parameters for one device.
type Config struct {
	Device      string `json:"device"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	PixelFormat string `json:"pixel_format"`
}

// Properties holds the negotiated (not requested) capture parameters.
// The device may not honor the request exactly; these are what it
// actually delivers.
type Properties struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	PixelFormat string  `json:"pixel_format"`
}

// DeviceReader abstracts one open camera device. The production
// implementation wraps an ffmpeg rawvideo pipe (see device.go); tests
// inject synthetic readers.
type DeviceReader interface {
	// Open opens the device with the requested configuration and returns
	// the negotiated properties.
	Open(cfg Config) (Properties, error)

	// ReadFrame blocks until one frame is available. It must return an
	// error promptly after Close is called so the capture loop can exit.
	ReadFrame() (*Frame, error)

	// Close releases the device and unblocks any pending ReadFrame.
	Close() error
}

// FrameCallback receives one copy of every captured frame, invoked
// synchronously from the capture loop.
type FrameCallback func(*Frame)

type callbackEntry struct {
	token string
	fn    FrameCallback
}

// CaptureSource owns one open camera device, runs the capture loop, and
// fans every frame out to the FrameBuffer and all registered callbacks.
// A source is single-use: once stopped it cannot be restarted.
type CaptureSource struct {
	cfg    Config
	buffer *FrameBuffer
	reader DeviceReader
	logger logging.Logger

	mu      sync.Mutex
	props   Properties
	running bool
	stopped bool
	done    chan struct{}

	// cbMu is held for reading while the loop iterates and invokes
	// callbacks, so RemoveFrameCallback blocks until any in-flight
	// invocation completes and guarantees no further invocations after
	// it returns.
	cbMu      sync.RWMutex
	callbacks []callbackEntry

	seq uint64
}

// NewCaptureSource creates a source bound to one device. The reader is
// the device backend; pass NewFFmpegDevice(logger) in production.
func NewCaptureSource(cfg Config, buffer *FrameBuffer, reader DeviceReader) *CaptureSource {
	return &CaptureSource{
		cfg:    cfg,
		buffer: buffer,
		reader: reader,
		logger: logging.GetLogger("camera"),
		done:   make(chan struct{}),
	}
}

// Start opens the device and spawns the capture loop. A failure to open
// is not fatal to the caller; the server keeps running without video.
func (s *CaptureSource) Start() (Properties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Properties{}, ErrAlreadyStopped
	}
	if s.running {
		return s.props, nil
	}

	props, err := s.reader.Open(s.cfg)
	if err != nil {
		return Properties{}, err
	}

	s.props = props
	s.running = true
	s.logger.Info("Camera opened",
		"device", s.cfg.Device,
		"width", props.Width, "height", props.Height, "fps", props.FPS)

	go s.captureLoop()
	return props, nil
}

// Stop signals the capture loop to exit, joins it with a bounded wait,
// and releases the device. Idempotent. A loop that fails to join within
// the bound is logged as a resource leak, not retried.
func (s *CaptureSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	// Closing the reader unblocks a pending ReadFrame; device reads have
	// no native timeout.
	if err := s.reader.Close(); err != nil {
		s.logger.Warn("Error closing device", "device", s.cfg.Device, "error", err)
	}

	if !wasRunning {
		return
	}

	select {
	case <-s.done:
	case <-time.After(joinTimeout):
		s.logger.Error("Capture loop failed to join, leaking goroutine",
			"device", s.cfg.Device, "timeout", joinTimeout)
		return
	}
	s.logger.Info("Camera stopped", "device", s.cfg.Device)
}

// Running reports whether the capture loop is active.
func (s *CaptureSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Config returns the requested configuration the source was built with.
func (s *CaptureSource) Config() Config {
	return s.cfg
}

// Properties returns the negotiated capture properties, or (zero, false)
// if the source is not running.
func (s *CaptureSource) Properties() (Properties, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return Properties{}, false
	}
	return s.props, true
}

// AddFrameCallback registers a subscriber invoked once per captured
// frame, in registration order, from the capture loop. Returns a token
// for removal.
func (s *CaptureSource) AddFrameCallback(fn FrameCallback) string {
	token := uuid.NewString()
	s.cbMu.Lock()
	s.callbacks = append(s.callbacks, callbackEntry{token: token, fn: fn})
	s.cbMu.Unlock()
	return token
}

// RemoveFrameCallback unregisters a subscriber. When it returns, the
// callback will not be invoked again.
func (s *CaptureSource) RemoveFrameCallback(token string) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	for i, e := range s.callbacks {
		if e.token == token {
			s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
			return
		}
	}
}

// CallbackCount returns the number of registered frame callbacks.
func (s *CaptureSource) CallbackCount() int {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	return len(s.callbacks)
}

// captureLoop reads frames until Stop. A single failed read is logged
// and skipped; only Stop ends the loop.
func (s *CaptureSource) captureLoop() {
	defer close(s.done)

	for {
		frame, err := s.reader.ReadFrame()

		s.mu.Lock()
		active := s.running
		s.mu.Unlock()
		if !active {
			return
		}

		if err != nil {
			s.logger.Warn("Failed to read frame", "device", s.cfg.Device, "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.seq++
		frame.Seq = s.seq
		s.buffer.Put(frame)
		metrics.FramesCaptured.Inc()

		s.dispatch(frame)
	}
}

// dispatch invokes every registered callback with its own copy of the
// frame. A panicking callback is logged and never affects the loop or
// the remaining callbacks.
func (s *CaptureSource) dispatch(frame *Frame) {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()

	for _, e := range s.callbacks {
		s.invoke(e, frame.Clone())
	}
}

func (s *CaptureSource) invoke(e callbackEntry, frame *Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Frame callback panicked", "token", e.token, "panic", r)
		}
	}()
	e.fn(frame)
}
