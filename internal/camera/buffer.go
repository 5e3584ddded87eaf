package camera

import (
	"sync"
	"sync/atomic"
	"time"
)

// FrameBuffer is a single-slot, overwrite-on-write hand-off between one
// capture loop and any number of readers. Readers always see the newest
// available frame or none; there is no history. All methods are safe for
// concurrent use, and readers only serialize against the writer for the
// duration of a copy.
type FrameBuffer struct {
	mu       sync.RWMutex
	latest   *Frame
	signaled bool
	ready    chan struct{}
	puts     atomic.Uint64
}

// NewFrameBuffer creates an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{ready: make(chan struct{})}
}

// Put stores a copy of the frame as the new latest and signals
// availability. It never blocks and never fails.
func (b *FrameBuffer) Put(f *Frame) {
	c := f.Clone()

	b.mu.Lock()
	b.latest = c
	if !b.signaled {
		b.signaled = true
		close(b.ready)
	}
	b.mu.Unlock()

	b.puts.Add(1)
}

// Get blocks up to timeout for the first frame to arrive, then returns a
// copy of the current slot. The returned frame may be newer than the one
// that triggered the signal; latest wins. Returns (nil, false) if the
// timeout elapses before any frame has ever arrived, or if the buffer was
// cleared and nothing has arrived since.
func (b *FrameBuffer) Get(timeout time.Duration) (*Frame, bool) {
	b.mu.RLock()
	ready := b.ready
	b.mu.RUnlock()

	select {
	case <-ready:
	case <-time.After(timeout):
		return nil, false
	}
	return b.GetNoWait()
}

// GetNoWait returns a copy of the current slot immediately, or
// (nil, false) if the buffer is empty.
func (b *FrameBuffer) GetNoWait() (*Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.latest == nil {
		return nil, false
	}
	return b.latest.Clone(), true
}

// FrameCount returns the total number of Put calls over the buffer's
// lifetime. The counter is not reset by Clear.
func (b *FrameBuffer) FrameCount() uint64 {
	return b.puts.Load()
}

// Clear empties the slot and re-arms the availability signal. Used when
// the capture device changes so stale frames from the previous device are
// never served under the new device's identity.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = nil
	if b.signaled {
		b.signaled = false
		b.ready = make(chan struct{})
	}
}
