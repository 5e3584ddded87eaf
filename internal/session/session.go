package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cattern/rovercam/internal/camera"
	"github.com/cattern/rovercam/internal/encoders"
	"github.com/cattern/rovercam/internal/events"
	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/metrics"
)

const (
	// popTimeout bounds how long the feeder waits for a frame before
	// re-checking whether the session is still live.
	popTimeout = 100 * time.Millisecond

	// exitTimeout bounds the graceful SIGTERM window before SIGKILL.
	exitTimeout = 2 * time.Second

	// loopJoinTimeout bounds how long Stop waits for each loop to exit.
	loopJoinTimeout = time.Second

	// readChunkSize is the encoder stdout read granularity.
	readChunkSize = 4096
)

// State is a session's lifecycle phase. Transitions are monotonic;
// a terminated session is never restarted.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DataCallback receives chunks of the encoded stream in production
// order. Invoked from the session's reader loop.
type DataCallback func([]byte)

// FrameTap is where a session subscribes for capture frames. Satisfied
// by camera.Switchboard.
type FrameTap interface {
	AddFrameCallback(camera.FrameCallback) string
	RemoveFrameCallback(string)
}

// Session drives one external encoder process for one client: frames in
// through a bounded queue and the process stdin, encoded bytes out from
// the process stdout to the client's DataCallback.
type Session struct {
	clientID string
	preset   encoders.Preset
	command  []string
	onData   DataCallback
	tap      FrameTap
	bus      *events.Bus
	logger   logging.Logger

	state atomic.Int32

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	tapToken string

	queue      *frameQueue
	feederDone chan struct{}
	readerDone chan struct{}

	// onExit runs once when the session leaves the running state for any
	// reason, including encoder death. Set by the registry.
	onExit   func(*Session)
	exitOnce sync.Once
}

// NewSession creates a session in the created state. The command is the
// full encoder argv; nothing is spawned until Start.
func NewSession(clientID string, preset encoders.Preset, command []string, tap FrameTap, bus *events.Bus, onData DataCallback) *Session {
	return &Session{
		clientID: clientID,
		preset:   preset,
		command:  command,
		onData:   onData,
		tap:      tap,
		bus:      bus,
		logger:   logging.GetLogger("session"),
		queue:    newFrameQueue(clientID),
	}
}

// ClientID returns the owning client's identifier.
func (s *Session) ClientID() string { return s.clientID }

// Preset returns the quality preset the session encodes at.
func (s *Session) Preset() encoders.Preset { return s.preset }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Drops returns frames discarded by the session's input queue.
func (s *Session) Drops() uint64 { return s.queue.Drops() }

// Start spawns the encoder process, the feeder and reader loops, and
// subscribes to the frame tap. On any failure the session is terminated
// and nothing is left running.
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("session %s cannot start from state %s", s.clientID, s.State())
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.state.Store(int32(StateTerminated))
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.state.Store(int32(StateTerminated))
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.state.Store(int32(StateTerminated))
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.state.Store(int32(StateTerminated))
		return fmt.Errorf("failed to start encoder: %w", err)
	}
	metrics.ActiveSessions.Inc()

	feederDone := make(chan struct{})
	readerDone := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.feederDone = feederDone
	s.readerDone = readerDone
	s.mu.Unlock()

	go s.logStderr(stderr)
	go s.feederLoop(stdin, feederDone)
	go s.readerLoop(stdout, readerDone)

	s.mu.Lock()
	s.tapToken = s.tap.AddFrameCallback(s.handleFrame)
	s.mu.Unlock()

	// CAS so a concurrent teardown (explicit Stop, or the encoder dying
	// during startup) is not clobbered back to running. When it fails,
	// that teardown's shutdown may have run before the handles above were
	// recorded and found nothing to clean; run shutdown here to reap
	// whatever it missed. Each handle is consumed at most once.
	if !s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		s.shutdown()
		return fmt.Errorf("session %s stopped during startup", s.clientID)
	}
	s.publish(events.SessionStartedEvent{
		ClientID:  s.clientID,
		Preset:    s.preset.Name,
		Width:     s.preset.Width,
		Height:    s.preset.Height,
		FPS:       s.preset.FPS,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.logger.Info("Session started", "client_id", s.clientID, "preset", s.preset.Name)
	return nil
}

// handleFrame enqueues a captured frame for encoding. Never blocks the
// capture loop.
func (s *Session) handleFrame(f *camera.Frame) {
	if s.State() != StateRunning {
		return
	}
	s.queue.Push(f)
}

// Stop shuts the session down: unsubscribe from the tap first so no new
// frames arrive, close the encoder's stdin to let it flush, then
// escalate SIGTERM to SIGKILL. Idempotent.
func (s *Session) Stop() {
	if !s.transitionToStopping() {
		return
	}
	s.shutdown()
}

// transitionToStopping moves running or starting into stopping. Returns
// false when the session is already stopping or terminated.
func (s *Session) transitionToStopping() bool {
	for {
		cur := s.state.Load()
		if cur == int32(StateStopping) || cur == int32(StateTerminated) {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(StateStopping)) {
			return true
		}
	}
}

// shutdown releases whatever startup has recorded so far. Every handle
// is taken out of the session under the lock, so overlapping shutdown
// calls (a Stop racing a failed Start) each release a disjoint set.
func (s *Session) shutdown() {
	s.mu.Lock()
	token := s.tapToken
	s.tapToken = ""
	stdin := s.stdin
	s.stdin = nil
	cmd := s.cmd
	s.cmd = nil
	feederDone := s.feederDone
	s.feederDone = nil
	readerDone := s.readerDone
	s.readerDone = nil
	s.mu.Unlock()

	if token != "" {
		s.tap.RemoveFrameCallback(token)
	}
	if stdin != nil {
		_ = stdin.Close()
	}

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)

		waited := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(exitTimeout):
			s.logger.Warn("Encoder ignored SIGTERM, killing", "client_id", s.clientID)
			_ = cmd.Process.Kill()
			<-waited
		}
	}

	s.joinLoop(feederDone, "feeder")
	s.joinLoop(readerDone, "reader")

	s.state.Store(int32(StateTerminated))

	// Only the shutdown that reaped the process settles the accounting;
	// a session stopped before its process spawned was never counted.
	if cmd != nil {
		metrics.ActiveSessions.Dec()
		s.publish(events.SessionStoppedEvent{
			ClientID:  s.clientID,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		s.logger.Info("Session stopped", "client_id", s.clientID, "drops", s.queue.Drops())
	}
	s.fireExit()
}

func (s *Session) joinLoop(done chan struct{}, name string) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(loopJoinTimeout):
		s.logger.Error("Session loop failed to join, leaking goroutine",
			"client_id", s.clientID, "loop", name)
	}
}

func (s *Session) fireExit() {
	s.exitOnce.Do(func() {
		if s.onExit != nil {
			s.onExit(s)
		}
	})
}

// feederLoop moves frames from the queue into the encoder's stdin,
// resizing to the preset geometry when the capture size differs.
func (s *Session) feederLoop(stdin io.Writer, done chan struct{}) {
	defer close(done)

	for s.State() == StateRunning || s.State() == StateStarting {
		frame, ok := s.queue.Pop(popTimeout)
		if !ok {
			continue
		}

		frame = resizeFrame(frame, s.preset.Width, s.preset.Height)
		if _, err := stdin.Write(frame.Data); err != nil {
			if s.State() == StateRunning {
				s.logger.Warn("Encoder stdin closed", "client_id", s.clientID, "error", err)
			}
			return
		}
	}
}

// readerLoop forwards encoder output to the client until the stream
// ends. EOF while the session is still running means the encoder died;
// that tears the whole session down.
func (s *Session) readerLoop(stdout io.Reader, done chan struct{}) {
	defer close(done)

	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			metrics.EncodedBytes.WithLabelValues(s.clientID).Add(float64(n))
			s.onData(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && s.State() == StateRunning {
				s.logger.Error("Encoder stdout read failed", "client_id", s.clientID, "error", err)
			}
			break
		}
	}

	if st := s.State(); st == StateRunning || st == StateStarting {
		s.logger.Error("Encoder exited unexpectedly", "client_id", s.clientID)
		s.publish(events.SessionErrorEvent{
			ClientID:  s.clientID,
			Error:     "encoder process exited",
			Timestamp: time.Now().Format(time.RFC3339),
		})
		go s.Stop()
	}
}

func (s *Session) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("encoder", "client_id", s.clientID, "line", scanner.Text())
	}
}

func (s *Session) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
