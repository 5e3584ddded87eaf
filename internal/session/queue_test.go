package session

import (
	"testing"
	"time"

	"github.com/cattern/rovercam/internal/camera"
)

func seqFrame(seq uint64) *camera.Frame {
	f := camera.NewFrame(2, 2)
	f.Seq = seq
	return f
}

func TestFrameQueueFIFO(t *testing.T) {
	q := newFrameQueue("client-1")
	q.Push(seqFrame(1))
	q.Push(seqFrame(2))

	f, ok := q.Pop(time.Second)
	if !ok || f.Seq != 1 {
		t.Fatalf("first Pop = (%v, %v), want seq 1", f, ok)
	}
	f, ok = q.Pop(time.Second)
	if !ok || f.Seq != 2 {
		t.Fatalf("second Pop = (%v, %v), want seq 2", f, ok)
	}
}

func TestFrameQueueDropOldest(t *testing.T) {
	q := newFrameQueue("client-1")
	for i := uint64(1); i <= 7; i++ {
		q.Push(seqFrame(i))
	}

	if got := q.Drops(); got != 2 {
		t.Errorf("Drops = %d, want 2", got)
	}
	if got := q.Len(); got != queueCapacity {
		t.Errorf("Len = %d, want %d", got, queueCapacity)
	}

	// Frames 1 and 2 were sacrificed; 3..7 survive in order.
	for want := uint64(3); want <= 7; want++ {
		f, ok := q.Pop(time.Second)
		if !ok || f.Seq != want {
			t.Fatalf("Pop = (%v, %v), want seq %d", f, ok, want)
		}
	}
}

func TestFrameQueuePopTimeout(t *testing.T) {
	q := newFrameQueue("client-1")

	start := time.Now()
	if _, ok := q.Pop(50 * time.Millisecond); ok {
		t.Fatal("Pop on empty queue returned a frame")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Pop returned after %v, expected it to wait for the timeout", elapsed)
	}
}
