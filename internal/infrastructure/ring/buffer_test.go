// ABOUTME: Tests for the bounded stream queue
// ABOUTME: Verifies priming, wrap-around, blocking, probes, EOS and flush
package ring

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	buf := New(1024, 512)
	if buf == nil {
		t.Fatal("New should return non-nil buffer")
	}

	if snap := snapshot(buf); len(snap) != 0 {
		t.Errorf("new buffer should be empty, got %d bytes", len(snap))
	}
	if buf.Running() {
		t.Error("new buffer should not be running")
	}
}

func TestNew_ClampsThreshold(t *testing.T) {
	buf := New(100, 500)
	if buf.Threshold() != 100 {
		t.Errorf("expected threshold clamped to 100, got %d", buf.Threshold())
	}
}

func TestWrite_Simple(t *testing.T) {
	buf := New(1024, 4)

	if _, err := buf.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if snap := snapshot(buf); string(snap) != "hello" {
		t.Errorf("expected 'hello', got %q", snap)
	}

	out := make([]byte, 16)
	n, err := buf.Read(out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(out[:n]) != "hello" {
		t.Errorf("expected 'hello', got %q", out[:n])
	}
}

func TestWrite_WrapAround(t *testing.T) {
	buf := New(8, 1)

	buf.Write([]byte("abcdef"))
	out := make([]byte, 4)
	buf.Read(out)

	buf.Write([]byte("ghijk"))

	if snap := snapshot(buf); string(snap) != "efghijk" {
		t.Errorf("expected 'efghijk', got %q", snap)
	}

	all := make([]byte, 8)
	n, _ := buf.Read(all)
	if string(all[:n]) != "efghijk" {
		t.Errorf("expected 'efghijk', got %q", all[:n])
	}
}

func TestRead_WaitsForThreshold(t *testing.T) {
	buf := New(64, 10)
	buf.Write([]byte("12345"))

	got := make(chan string, 1)
	go func() {
		out := make([]byte, 64)
		n, _ := buf.Read(out)
		got <- string(out[:n])
	}()

	select {
	case s := <-got:
		t.Fatalf("read returned %q before threshold", s)
	case <-time.After(50 * time.Millisecond):
	}

	buf.Write([]byte("67890"))

	select {
	case s := <-got:
		if s != "1234567890" {
			t.Errorf("expected full payload, got %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("read did not unblock after threshold")
	}
}

func TestWrite_BlocksWhenFull(t *testing.T) {
	buf := New(4, 1)
	buf.Write([]byte("abcd"))

	done := make(chan struct{})
	go func() {
		buf.Write([]byte("ef"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("write should block while full")
	case <-time.After(50 * time.Millisecond):
	}

	out := make([]byte, 2)
	buf.Read(out)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write did not resume after read")
	}

	if snap := snapshot(buf); string(snap) != "cdef" {
		t.Errorf("expected 'cdef', got %q", snap)
	}
}

func TestProbesAndRunning(t *testing.T) {
	buf := New(100, 20)

	var (
		mu     sync.Mutex
		levels []int
	)
	id := buf.AddProbe(func(level, threshold int) {
		mu.Lock()
		levels = append(levels, level)
		mu.Unlock()
		if threshold != 20 {
			t.Errorf("expected threshold 20, got %d", threshold)
		}
	})

	runningCalls := 0
	buf.OnRunning(func() {
		runningCalls++
		buf.RemoveProbe(id)
	})

	buf.Write(make([]byte, 10))
	buf.Write(make([]byte, 10))
	buf.Write(make([]byte, 10))

	mu.Lock()
	defer mu.Unlock()
	if len(levels) != 2 || levels[0] != 10 || levels[1] != 20 {
		t.Errorf("expected probe levels [10 20], got %v", levels)
	}
	if runningCalls != 1 {
		t.Errorf("expected running once, got %d", runningCalls)
	}
}

func TestCloseWrite_DrainsThenEOF(t *testing.T) {
	buf := New(64, 32)
	buf.Write([]byte("short"))
	buf.CloseWrite()

	data, err := io.ReadAll(buf)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(data, []byte("short")) {
		t.Errorf("expected 'short', got %q", data)
	}

	if _, err := buf.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected ErrClosedPipe after CloseWrite, got %v", err)
	}
}

func TestFlush_WakesReaders(t *testing.T) {
	buf := New(64, 32)

	errc := make(chan error, 1)
	go func() {
		_, err := buf.Read(make([]byte, 8))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	buf.Write([]byte("abc"))
	buf.Flush()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrFlushing) {
			t.Errorf("expected ErrFlushing, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not woken by flush")
	}

	if buf.Level() != 0 || buf.Running() {
		t.Error("flush should reset level and running state")
	}
}

func TestFlushStart_IsSticky(t *testing.T) {
	buf := New(64, 1)
	buf.FlushStart()

	if _, err := buf.Write([]byte("x")); !errors.Is(err, ErrFlushing) {
		t.Errorf("expected ErrFlushing on write, got %v", err)
	}
	if _, err := buf.Read(make([]byte, 1)); !errors.Is(err, ErrFlushing) {
		t.Errorf("expected ErrFlushing on read, got %v", err)
	}

	buf.FlushStop()
	if _, err := buf.Write([]byte("x")); err != nil {
		t.Errorf("expected write to succeed after FlushStop, got %v", err)
	}
}

// snapshot copies the queued bytes without consuming them.
func snapshot(b *Buffer) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, b.n)
	if b.n == 0 {
		return out
	}

	head := b.r
	tail := (b.r + b.n) % len(b.buf)
	if head < tail {
		copy(out, b.buf[head:tail])
	} else {
		copy(out, b.buf[head:])
		copy(out[len(b.buf)-head:], b.buf[:tail])
	}
	return out
}
