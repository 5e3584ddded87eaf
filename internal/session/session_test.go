package session

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cattern/rovercam/internal/camera"
	"github.com/cattern/rovercam/internal/encoders"
)

// fakeTap records subscriptions and lets tests inject frames.
type fakeTap struct {
	mu        sync.Mutex
	callbacks map[string]camera.FrameCallback
	next      int
}

func newFakeTap() *fakeTap {
	return &fakeTap{callbacks: make(map[string]camera.FrameCallback)}
}

func (t *fakeTap) AddFrameCallback(fn camera.FrameCallback) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	token := string(rune('a' + t.next))
	t.callbacks[token] = fn
	return token
}

func (t *fakeTap) RemoveFrameCallback(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.callbacks, token)
}

func (t *fakeTap) inject(f *camera.Frame) {
	t.mu.Lock()
	fns := make([]camera.FrameCallback, 0, len(t.callbacks))
	for _, fn := range t.callbacks {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(f)
	}
}

func (t *fakeTap) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callbacks)
}

// catCommand substitutes `cat` for ffmpeg: stdin is echoed to stdout,
// so the "encoded" stream is the raw frames themselves.
func catCommand(preset encoders.Preset) ([]string, error) {
	return []string{"cat"}, nil
}

func smallPreset() encoders.Preset {
	return encoders.Preset{Name: "tiny", Width: 4, Height: 4, FPS: 30, Bitrate: "100k"}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("session state = %s, want %s", s.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionPassesFramesThroughEncoder(t *testing.T) {
	tap := newFakeTap()
	var mu sync.Mutex
	var received bytes.Buffer
	sess := NewSession("client-1", smallPreset(), []string{"cat"}, tap, nil, func(b []byte) {
		mu.Lock()
		received.Write(b)
		mu.Unlock()
	})
	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	if sess.State() != StateRunning {
		t.Fatalf("state = %s, want running", sess.State())
	}
	if tap.count() != 1 {
		t.Fatalf("session did not subscribe to the tap")
	}

	frame := camera.NewFrame(4, 4)
	for i := range frame.Data {
		frame.Data[i] = byte(i)
	}
	tap.inject(frame)

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := received.Len()
		mu.Unlock()
		if n >= len(frame.Data) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("received %d bytes, want %d", n, len(frame.Data))
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	got := received.Bytes()[:len(frame.Data)]
	mu.Unlock()
	if !bytes.Equal(got, frame.Data) {
		t.Error("encoded output does not match the fed frame")
	}
}

func TestSessionResizesMismatchedFrames(t *testing.T) {
	tap := newFakeTap()
	var total atomic.Int64
	sess := NewSession("client-1", smallPreset(), []string{"cat"}, tap, nil, func(b []byte) {
		total.Add(int64(len(b)))
	})
	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	// 16x16 capture into a 4x4 preset: the encoder must still receive
	// exactly one 4x4 frame's worth of bytes.
	tap.inject(camera.NewFrame(16, 16))

	want := int64(4 * 4 * camera.BytesPerPixel)
	deadline := time.Now().Add(3 * time.Second)
	for total.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("received %d bytes, want %d", total.Load(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := total.Load(); got != want {
		t.Errorf("received %d bytes, want exactly %d", got, want)
	}
}

func TestSessionStop(t *testing.T) {
	tap := newFakeTap()
	sess := NewSession("client-1", smallPreset(), []string{"cat"}, tap, nil, func([]byte) {})
	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.Stop()
	sess.Stop()

	if got := sess.State(); got != StateTerminated {
		t.Errorf("state = %s after Stop, want terminated", got)
	}
	if tap.count() != 0 {
		t.Error("session still subscribed after Stop")
	}
	if err := sess.Start(); err == nil {
		t.Error("restart after Stop succeeded")
	}
}

func TestSessionEncoderDeathTerminates(t *testing.T) {
	tap := newFakeTap()
	sess := NewSession("client-1", smallPreset(), []string{"true"}, tap, nil, func([]byte) {})
	// `true` can exit before startup finishes, in which case Start
	// reports the stop; either way the session must end terminated.
	if err := sess.Start(); err != nil {
		t.Logf("Start: %v", err)
	}

	// The reader sees EOF while the session is live and must tear the
	// whole session down.
	waitState(t, sess, StateTerminated)
	deadline := time.Now().Add(time.Second)
	for tap.count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session still subscribed after encoder death")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionStartFailure(t *testing.T) {
	tap := newFakeTap()
	sess := NewSession("client-1", smallPreset(), []string{"/nonexistent/encoder"}, tap, nil, func([]byte) {})
	if err := sess.Start(); err == nil {
		t.Fatal("Start succeeded with a missing binary")
	}
	if sess.State() != StateTerminated {
		t.Errorf("state = %s after failed start, want terminated", sess.State())
	}
	if tap.count() != 0 {
		t.Error("failed session left a tap subscription behind")
	}
}

func TestRegistryUnknownPreset(t *testing.T) {
	tap := newFakeTap()
	var commands atomic.Int64
	reg := NewRegistry(tap, nil, func(p encoders.Preset) ([]string, error) {
		commands.Add(1)
		return []string{"cat"}, nil
	})

	_, err := reg.StartSession("client-1", "ultra", func([]byte) {})
	if !errors.Is(err, encoders.ErrUnknownPreset) {
		t.Fatalf("err = %v, want ErrUnknownPreset", err)
	}
	if commands.Load() != 0 {
		t.Error("encoder command built for an invalid preset")
	}
	if reg.Count() != 0 {
		t.Error("failed start left a registry entry")
	}
}

func TestRegistryOneSessionPerClient(t *testing.T) {
	tap := newFakeTap()
	reg := NewRegistry(tap, nil, catCommand)
	defer reg.StopAll()

	first, err := reg.StartSession("client-1", "low", func([]byte) {})
	if err != nil {
		t.Fatalf("first StartSession: %v", err)
	}
	second, err := reg.StartSession("client-1", "medium", func([]byte) {})
	if err != nil {
		t.Fatalf("second StartSession: %v", err)
	}

	waitState(t, first, StateTerminated)
	if second.State() != StateRunning {
		t.Errorf("replacement session state = %s", second.State())
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}
	if got := reg.Get("client-1"); got != second {
		t.Error("registry does not track the replacement session")
	}
}

func TestSessionStopRacesStart(t *testing.T) {
	for i := 0; i < 50; i++ {
		tap := newFakeTap()
		sess := NewSession("client-1", smallPreset(), []string{"cat"}, tap, nil, func([]byte) {})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sess.Start()
		}()
		go func() {
			defer wg.Done()
			sess.Stop()
		}()
		wg.Wait()

		// Whichever side lost the race, nothing may survive: no process,
		// no loops, no tap subscription.
		waitState(t, sess, StateTerminated)
		deadline := time.Now().Add(time.Second)
		for tap.count() != 0 {
			if time.Now().After(deadline) {
				t.Fatalf("iteration %d: tap subscription leaked across stop", i)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestRegistryConcurrentStartsSameClient(t *testing.T) {
	tap := newFakeTap()
	reg := NewRegistry(tap, nil, catCommand)
	defer reg.StopAll()

	for i := 0; i < 20; i++ {
		if _, err := reg.StartSession("client-1", "low", func([]byte) {}); err != nil {
			t.Fatalf("iteration %d: seed StartSession: %v", i, err)
		}

		// Both racers target the same client. Exactly one session may be
		// tracked afterwards and every other one must be stopped, not
		// orphaned with a live process.
		started := make([]*Session, 2)
		var wg sync.WaitGroup
		for j := range started {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				if s, err := reg.StartSession("client-1", "low", func([]byte) {}); err == nil {
					started[j] = s
				}
			}(j)
		}
		wg.Wait()

		if got := reg.Count(); got != 1 {
			t.Fatalf("iteration %d: Count = %d, want 1", i, got)
		}
		tracked := reg.Get("client-1")
		if tracked == nil {
			t.Fatalf("iteration %d: no session tracked after concurrent starts", i)
		}
		for _, s := range started {
			if s == nil || s == tracked {
				continue
			}
			waitState(t, s, StateTerminated)
		}
	}
}

func TestRegistryStopAll(t *testing.T) {
	tap := newFakeTap()
	reg := NewRegistry(tap, nil, catCommand)

	var sessions []*Session
	for _, id := range []string{"a", "b", "c"} {
		s, err := reg.StartSession(id, "low", func([]byte) {})
		if err != nil {
			t.Fatalf("StartSession(%s): %v", id, err)
		}
		sessions = append(sessions, s)
	}

	reg.StopAll()
	if reg.Count() != 0 {
		t.Errorf("Count = %d after StopAll", reg.Count())
	}
	for _, s := range sessions {
		if s.State() != StateTerminated {
			t.Errorf("session %s state = %s after StopAll", s.ClientID(), s.State())
		}
	}
}

func TestRegistryStopUnknownClient(t *testing.T) {
	reg := NewRegistry(newFakeTap(), nil, catCommand)
	reg.StopSession("ghost")
}
