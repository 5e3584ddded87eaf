package camera

import (
	"sync"
	"testing"
	"time"
)

func testFrame(w, h int, fill byte) *Frame {
	f := NewFrame(w, h)
	for i := range f.Data {
		f.Data[i] = fill
	}
	return f
}

func TestFrameBufferEmptyGet(t *testing.T) {
	b := NewFrameBuffer()

	if f, ok := b.GetNoWait(); ok || f != nil {
		t.Fatalf("GetNoWait on empty buffer = (%v, %v), want (nil, false)", f, ok)
	}

	start := time.Now()
	if _, ok := b.Get(50 * time.Millisecond); ok {
		t.Fatal("Get on empty buffer returned a frame")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Get returned after %v, expected it to wait for the timeout", elapsed)
	}
}

func TestFrameBufferLatestWins(t *testing.T) {
	b := NewFrameBuffer()

	b.Put(testFrame(2, 2, 1))
	b.Put(testFrame(2, 2, 2))
	b.Put(testFrame(2, 2, 3))

	f, ok := b.GetNoWait()
	if !ok {
		t.Fatal("expected a frame after three puts")
	}
	if f.Data[0] != 3 {
		t.Errorf("got frame fill %d, want 3 (latest)", f.Data[0])
	}
	if got := b.FrameCount(); got != 3 {
		t.Errorf("FrameCount = %d, want 3", got)
	}
}

func TestFrameBufferCopyOut(t *testing.T) {
	b := NewFrameBuffer()
	src := testFrame(2, 2, 9)
	b.Put(src)

	// Mutating the caller's frame after Put must not affect the slot.
	src.Data[0] = 0

	f1, _ := b.GetNoWait()
	f2, _ := b.GetNoWait()
	if f1.Data[0] != 9 || f2.Data[0] != 9 {
		t.Fatalf("slot shares memory with the caller's frame")
	}

	// Mutating one reader's copy must not affect another's.
	f1.Data[0] = 42
	if f2.Data[0] != 9 {
		t.Error("readers received aliased frame data")
	}
	f3, _ := b.GetNoWait()
	if f3.Data[0] != 9 {
		t.Error("reader mutation leaked back into the slot")
	}
}

func TestFrameBufferGetUnblocksOnPut(t *testing.T) {
	b := NewFrameBuffer()

	done := make(chan *Frame, 1)
	go func() {
		f, _ := b.Get(2 * time.Second)
		done <- f
	}()

	time.Sleep(20 * time.Millisecond)
	b.Put(testFrame(2, 2, 7))

	select {
	case f := <-done:
		if f == nil || f.Data[0] != 7 {
			t.Fatalf("blocked Get returned %v, want frame with fill 7", f)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Put")
	}
}

func TestFrameBufferClear(t *testing.T) {
	b := NewFrameBuffer()
	b.Put(testFrame(2, 2, 5))
	b.Clear()

	if _, ok := b.GetNoWait(); ok {
		t.Fatal("GetNoWait returned a frame after Clear")
	}
	if _, ok := b.Get(50 * time.Millisecond); ok {
		t.Fatal("Get returned a stale frame after Clear")
	}
	if got := b.FrameCount(); got != 1 {
		t.Errorf("FrameCount = %d after Clear, want 1 (lifetime counter)", got)
	}

	// The buffer must re-arm for the next device.
	b.Put(testFrame(2, 2, 6))
	f, ok := b.Get(time.Second)
	if !ok || f.Data[0] != 6 {
		t.Fatalf("Get after Clear+Put = (%v, %v), want new frame", f, ok)
	}
}

func TestFrameBufferSequenceNeverRegresses(t *testing.T) {
	b := NewFrameBuffer()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var seq uint64
		for {
			select {
			case <-stop:
				return
			default:
			}
			seq++
			f := testFrame(2, 2, byte(seq))
			f.Seq = seq
			b.Put(f)
		}
	}()

	// The first blocking read lands once frames start flowing.
	if _, ok := b.Get(time.Second); !ok {
		t.Fatal("Get did not observe the first frame")
	}

	// Consecutive reads may skip frames but can never go backwards.
	var last uint64
	for i := 0; i < 50; i++ {
		f, ok := b.GetNoWait()
		if !ok {
			t.Fatalf("read %d: buffer empty while the writer is running", i)
		}
		if f.Seq < last {
			t.Fatalf("read %d: sequence went from %d to %d", i, last, f.Seq)
		}
		last = f.Seq
	}

	close(stop)
	wg.Wait()
}

func TestFrameBufferConcurrentAccess(t *testing.T) {
	b := NewFrameBuffer()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			b.Put(testFrame(4, 4, byte(i)))
		}
	}()

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if f, ok := b.GetNoWait(); ok {
					// Every byte of a frame must match; a torn read
					// would mix fills from different puts.
					first := f.Data[0]
					for _, v := range f.Data {
						if v != first {
							t.Error("observed a torn frame")
							return
						}
					}
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()
}
