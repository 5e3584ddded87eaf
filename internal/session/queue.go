// Package session runs one external encoder process per streaming
// client, feeding it frames from the shared capture pipeline and
// forwarding encoded output to the client's transport.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cattern/rovercam/internal/camera"
	"github.com/cattern/rovercam/internal/metrics"
)

// queueCapacity bounds the per-session input queue. When the encoder
// falls behind, the oldest queued frame is discarded so the client sees
// current video at a lower effective rate rather than growing latency.
const queueCapacity = 5

// frameQueue is a bounded drop-oldest hand-off between the capture
// callback and the session's feeder loop.
type frameQueue struct {
	clientID string

	mu    sync.Mutex
	ch    chan *camera.Frame
	drops atomic.Uint64
}

func newFrameQueue(clientID string) *frameQueue {
	return &frameQueue{
		clientID: clientID,
		ch:       make(chan *camera.Frame, queueCapacity),
	}
}

// Push enqueues a frame without blocking. When full, the oldest frame
// is dropped to make room.
func (q *frameQueue) Push(f *camera.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- f:
		return
	default:
	}

	select {
	case <-q.ch:
		q.drops.Add(1)
		metrics.FramesDropped.WithLabelValues(q.clientID).Inc()
	default:
	}
	select {
	case q.ch <- f:
	default:
	}
}

// Pop dequeues the oldest frame, waiting up to timeout. Returns
// (nil, false) on timeout so the feeder loop can re-check liveness.
func (q *frameQueue) Pop(timeout time.Duration) (*camera.Frame, bool) {
	select {
	case f := <-q.ch:
		return f, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Len returns the number of queued frames.
func (q *frameQueue) Len() int {
	return len(q.ch)
}

// Drops returns the number of frames discarded by the drop-oldest
// policy over the queue's lifetime.
func (q *frameQueue) Drops() uint64 {
	return q.drops.Load()
}
