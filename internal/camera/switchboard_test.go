package camera

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeFactory builds CaptureSources backed by fakeDevices and records
// every device it handed out.
type fakeFactory struct {
	devices []*fakeDevice
	failAt  map[int]error
	builds  int
}

func (f *fakeFactory) build(cfg Config, buffer *FrameBuffer) *CaptureSource {
	dev := newFakeDevice(cfg.Width, cfg.Height)
	if err := f.failAt[f.builds]; err != nil {
		dev.openErr = err
	}
	f.builds++
	f.devices = append(f.devices, dev)
	return NewCaptureSource(cfg, buffer, dev)
}

func testSwitchboard(t *testing.T) (*Switchboard, *fakeFactory, *FrameBuffer) {
	t.Helper()
	buf := NewFrameBuffer()
	factory := &fakeFactory{failAt: map[int]error{}}
	sb := NewSwitchboard(buf, factory.build, nil)
	t.Cleanup(sb.Stop)
	return sb, factory, buf
}

func TestSwitchboardFirstStart(t *testing.T) {
	sb, _, buf := testSwitchboard(t)

	props, err := sb.SwitchTo(Config{Device: "/dev/video0", Width: 4, Height: 4, FPS: 30})
	if err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	if props.Width != 4 {
		t.Errorf("props = %+v", props)
	}
	if !sb.Running() {
		t.Error("not running after successful switch")
	}
	if _, ok := buf.Get(2 * time.Second); !ok {
		t.Fatal("no frames from the new source")
	}
}

func TestSwitchboardHotSwap(t *testing.T) {
	sb, factory, buf := testSwitchboard(t)

	if _, err := sb.SwitchTo(Config{Device: "/dev/video0", Width: 4, Height: 4, FPS: 30}); err != nil {
		t.Fatalf("first SwitchTo: %v", err)
	}
	if _, ok := buf.Get(2 * time.Second); !ok {
		t.Fatal("no frames before swap")
	}

	if _, err := sb.SwitchTo(Config{Device: "/dev/video1", Width: 8, Height: 8, FPS: 30}); err != nil {
		t.Fatalf("second SwitchTo: %v", err)
	}

	// The old device must be released.
	select {
	case <-factory.devices[0].closed:
	default:
		t.Error("previous device still open after swap")
	}

	// Post-swap frames must carry the new geometry; the buffer was
	// cleared so a stale 4x4 frame can never appear here.
	f, ok := buf.Get(2 * time.Second)
	if !ok {
		t.Fatal("no frames after swap")
	}
	if f.Width != 8 || f.Height != 8 {
		t.Errorf("post-swap frame is %dx%d, want 8x8", f.Width, f.Height)
	}
}

func TestSwitchboardFailedSwapLeavesNoSource(t *testing.T) {
	sb, factory, buf := testSwitchboard(t)

	first := Config{Device: "/dev/video0", Width: 4, Height: 4, FPS: 30}
	if _, err := sb.SwitchTo(first); err != nil {
		t.Fatalf("first SwitchTo: %v", err)
	}
	factory.failAt[1] = errors.New("device busy")

	if _, err := sb.SwitchTo(Config{Device: "/dev/video1", Width: 8, Height: 8, FPS: 30}); err == nil {
		t.Fatal("SwitchTo succeeded with a failing device")
	}

	// No automatic fallback: the switchboard is sourceless, the old
	// device closed, and the previous config available for re-arm.
	if sb.Running() {
		t.Error("running after failed swap")
	}
	if sb.Current() != nil {
		t.Error("current source present after failed swap")
	}
	if _, ok := buf.GetNoWait(); ok {
		t.Error("stale frame served after failed swap")
	}
	prev, ok := sb.PreviousConfig()
	if !ok || prev.Device != first.Device {
		t.Errorf("PreviousConfig = (%+v, %v), want last good config", prev, ok)
	}

	// Re-arming the previous device must work.
	if _, err := sb.SwitchTo(prev); err != nil {
		t.Fatalf("re-arm failed: %v", err)
	}
	if !sb.Running() {
		t.Error("not running after re-arm")
	}
}

func TestSwitchboardSubscribersSurviveSwap(t *testing.T) {
	sb, _, _ := testSwitchboard(t)

	var frames atomic.Int64
	var lastWidth atomic.Int64
	token := sb.AddFrameCallback(func(f *Frame) {
		frames.Add(1)
		lastWidth.Store(int64(f.Width))
	})
	if got := sb.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	if _, err := sb.SwitchTo(Config{Device: "/dev/video0", Width: 4, Height: 4, FPS: 30}); err != nil {
		t.Fatalf("first SwitchTo: %v", err)
	}
	waitFor(t, func() bool { return frames.Load() > 0 }, "no frames on first source")

	if _, err := sb.SwitchTo(Config{Device: "/dev/video1", Width: 8, Height: 8, FPS: 30}); err != nil {
		t.Fatalf("second SwitchTo: %v", err)
	}
	waitFor(t, func() bool { return lastWidth.Load() == 8 }, "subscriber never saw frames from the new source")

	sb.RemoveFrameCallback(token)
	after := frames.Load()
	time.Sleep(50 * time.Millisecond)
	if got := frames.Load(); got != after {
		t.Errorf("callback invoked %d more times after removal", got-after)
	}
}

func TestSwitchboardSnapshotHook(t *testing.T) {
	sb, _, buf := testSwitchboard(t)

	var snapped atomic.Int64
	sb.SetSnapshotFunc(func(f *Frame) {
		snapped.Add(1)
	})

	if _, err := sb.SwitchTo(Config{Device: "/dev/video0", Width: 4, Height: 4, FPS: 30}); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	if _, ok := buf.Get(2 * time.Second); !ok {
		t.Fatal("no frames before swap")
	}

	if _, err := sb.SwitchTo(Config{Device: "/dev/video1", Width: 4, Height: 4, FPS: 30}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if got := snapped.Load(); got != 1 {
		t.Errorf("snapshot hook called %d times, want 1", got)
	}
}

func TestSwitchboardSnapshotPanicDoesNotBlockSwap(t *testing.T) {
	sb, _, buf := testSwitchboard(t)
	sb.SetSnapshotFunc(func(f *Frame) {
		panic("archive disk full")
	})

	if _, err := sb.SwitchTo(Config{Device: "/dev/video0", Width: 4, Height: 4, FPS: 30}); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	if _, ok := buf.Get(2 * time.Second); !ok {
		t.Fatal("no frames before swap")
	}

	if _, err := sb.SwitchTo(Config{Device: "/dev/video1", Width: 4, Height: 4, FPS: 30}); err != nil {
		t.Fatalf("swap failed because of snapshot hook: %v", err)
	}
	if !sb.Running() {
		t.Error("not running after swap with panicking hook")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
