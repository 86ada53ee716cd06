// ABOUTME: Tests for the error taxonomy and the pipeline bus
// ABOUTME: Verifies kind matching, wrapping and FIFO delivery
package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := DataError("parse playlist", errors.New("no uris"))

	if !errors.Is(err, ErrData) {
		t.Error("expected data error to match ErrData")
	}
	if errors.Is(err, ErrPlay) {
		t.Error("data error should not match ErrPlay")
	}

	wrapped := fmt.Errorf("import: %w", err)
	if !errors.Is(wrapped, ErrData) {
		t.Error("wrapped data error should still match ErrData")
	}
}

func TestError_Unwrap(t *testing.T) {
	err := IOError("read", io.ErrUnexpectedEOF)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected cause to be reachable")
	}
	if got := err.Error(); got != "read: io error: unexpected EOF" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestBus_Order(t *testing.T) {
	bus := NewBus()

	bus.Post(BufferingMessage{Fill: 0.5})
	bus.Post(EOSMessage{})
	bus.Post(ErrorMessage{Text: "boom"})

	select {
	case <-bus.Ready():
	default:
		t.Fatal("expected ready signal")
	}

	var got []Message
	for {
		m, ok := bus.Pop()
		if !ok {
			break
		}
		got = append(got, m)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if _, ok := got[0].(BufferingMessage); !ok {
		t.Errorf("expected buffering first, got %T", got[0])
	}
	if e, ok := got[2].(ErrorMessage); !ok || e.Text != "boom" {
		t.Errorf("expected error last, got %#v", got[2])
	}
}

func TestBus_Flush(t *testing.T) {
	bus := NewBus()
	bus.Post(EOSMessage{})
	bus.Flush()

	if bus.Len() != 0 {
		t.Errorf("expected empty bus, got %d", bus.Len())
	}
	if _, ok := bus.Pop(); ok {
		t.Error("expected nothing to pop after flush")
	}
}
