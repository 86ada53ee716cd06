// ABOUTME: Pipeline bus messages and the unbounded ordered queue carrying them
// ABOUTME: Producers post from any goroutine; one control loop drains in order
package domain

import (
	"fmt"
	"sync"
)

// PipelineState is the coarse lifecycle state of the media pipeline.
type PipelineState int

const (
	PipelineNull PipelineState = iota
	PipelineReady
	PipelinePaused
	PipelinePlaying
)

func (s PipelineState) String() string {
	switch s {
	case PipelineNull:
		return "null"
	case PipelineReady:
		return "ready"
	case PipelinePaused:
		return "paused"
	case PipelinePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tags is a flat key/value mapping of stream metadata.
type Tags map[string]any

// Clone returns a shallow copy; nil stays nil.
func (t Tags) Clone() Tags {
	if t == nil {
		return nil
	}
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Message is any event posted on the pipeline bus.
type Message interface {
	busMessage()
}

type ErrorMessage struct {
	Text string
}

type TagMessage struct {
	Tags Tags
}

type BufferingMessage struct {
	Fill float64
}

type StateChangedMessage struct {
	Old PipelineState
	New PipelineState
}

type EOSMessage struct{}

func (ErrorMessage) busMessage()        {}
func (TagMessage) busMessage()          {}
func (BufferingMessage) busMessage()    {}
func (StateChangedMessage) busMessage() {}
func (EOSMessage) busMessage()          {}

// Bus is an unbounded FIFO of messages. Post never blocks.
type Bus struct {
	mu    sync.Mutex
	queue []Message
	ready chan struct{}
}

func NewBus() *Bus {
	return &Bus{ready: make(chan struct{}, 1)}
}

// Post appends m and wakes the consumer.
func (b *Bus) Post(m Message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest message.
func (b *Bus) Pop() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	m := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return m, true
}

// Ready fires after one or more posts. Consumers drain with Pop until empty.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Flush drops all pending messages.
func (b *Bus) Flush() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}

// Len reports the number of pending messages.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
