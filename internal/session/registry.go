package session

import (
	"fmt"
	"sync"

	"github.com/cattern/rovercam/internal/encoders"
	"github.com/cattern/rovercam/internal/events"
	"github.com/cattern/rovercam/internal/logging"
)

// CommandFunc builds the encoder argv for a preset. The default wires
// encoders.SelectBackend and encoders.BuildCommand; tests substitute a
// harmless process.
type CommandFunc func(preset encoders.Preset) ([]string, error)

// DefaultCommandFunc probes for the best backend and builds the
// production ffmpeg argv.
func DefaultCommandFunc(cfg encoders.H264Config) CommandFunc {
	return func(preset encoders.Preset) ([]string, error) {
		backend, err := encoders.SelectBackend(cfg)
		if err != nil {
			return nil, err
		}
		return encoders.BuildCommand(backend, cfg, preset), nil
	}
}

// Registry tracks at most one live session per client and owns their
// lifecycle.
type Registry struct {
	tap     FrameTap
	bus     *events.Bus
	command CommandFunc
	logger  logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(tap FrameTap, bus *events.Bus, command CommandFunc) *Registry {
	return &Registry{
		tap:      tap,
		bus:      bus,
		command:  command,
		logger:   logging.GetLogger("session"),
		sessions: make(map[string]*Session),
	}
}

// StartSession starts a session for the client at the named preset. The
// preset is validated before any process is spawned. An existing session
// for the same client is stopped and replaced.
func (r *Registry) StartSession(clientID, presetName string, onData DataCallback) (*Session, error) {
	preset, err := encoders.LookupPreset(presetName)
	if err != nil {
		return nil, err
	}

	command, err := r.command(preset)
	if err != nil {
		return nil, fmt.Errorf("no encoder available: %w", err)
	}

	sess := NewSession(clientID, preset, command, r.tap, r.bus, onData)
	sess.onExit = func(s *Session) {
		r.mu.Lock()
		if r.sessions[s.clientID] == s {
			delete(r.sessions, s.clientID)
		}
		r.mu.Unlock()
	}

	// Swap the map entry in one critical section, then stop whatever it
	// displaced. Each displaced session has exactly one owner, so two
	// concurrent starts for the same client cannot leave an untracked
	// session running: the loser's entry is displaced and stopped here,
	// and its own Start then refuses to run.
	r.mu.Lock()
	old := r.sessions[clientID]
	r.sessions[clientID] = sess
	r.mu.Unlock()

	if old != nil {
		r.logger.Info("Replacing existing session", "client_id", clientID)
		old.Stop()
	}

	if err := sess.Start(); err != nil {
		r.mu.Lock()
		if r.sessions[clientID] == sess {
			delete(r.sessions, clientID)
		}
		r.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

// StopSession stops the client's session, if any. Stopping an unknown
// client is not an error.
func (r *Registry) StopSession(clientID string) {
	r.mu.Lock()
	sess, ok := r.sessions[clientID]
	if ok {
		delete(r.sessions, clientID)
	}
	r.mu.Unlock()

	if ok {
		sess.Stop()
	}
}

// Get returns the client's session, or nil.
func (r *Registry) Get(clientID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[clientID]
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of the tracked sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// StopAll stops every tracked session. Used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
}
