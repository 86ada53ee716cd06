// ABOUTME: Bounded blocking ring buffer used as the pipeline's stream queue
// ABOUTME: Reports fill level to input probes and signals once primed
package ring

import (
	"errors"
	"io"
	"sync"
)

// ErrFlushing is returned to readers and writers blocked across a Flush.
var ErrFlushing = errors.New("ring: flushing")

// Probe observes every write after it is queued.
type Probe func(level, threshold int)

type Buffer struct {
	buf []byte
	r   int // read position
	n   int // bytes stored

	threshold int
	running   bool
	eos       bool
	flushing  bool
	gen       int // bumped by every flush

	probes    map[int]Probe
	nextProbe int
	onRunning func()

	mu   sync.Mutex
	cond *sync.Cond
}

// New returns a queue holding at most size bytes that starts releasing data
// to readers once threshold bytes are queued.
func New(size, threshold int) *Buffer {
	if threshold > size {
		threshold = size
	}
	b := &Buffer{
		buf:       make([]byte, size),
		threshold: threshold,
		probes:    make(map[int]Probe),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// OnRunning sets the callback fired, outside the lock, when the level first
// reaches the threshold after a reset.
func (b *Buffer) OnRunning(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRunning = fn
}

// AddProbe installs p on the input side and returns its id.
func (b *Buffer) AddProbe(p Probe) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextProbe++
	b.probes[b.nextProbe] = p
	return b.nextProbe
}

func (b *Buffer) RemoveProbe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.probes, id)
}

// Write queues p, blocking while the buffer is full.
func (b *Buffer) Write(p []byte) (int, error) {
	written := 0

	for len(p) > 0 {
		b.mu.Lock()
		gen := b.gen
		for b.n == len(b.buf) && b.gen == gen && !b.eos && !b.flushing {
			b.cond.Wait()
		}
		if b.gen != gen || b.flushing {
			b.mu.Unlock()
			return written, ErrFlushing
		}
		if b.eos {
			b.mu.Unlock()
			return written, io.ErrClosedPipe
		}

		chunk := min(len(p), len(b.buf)-b.n)
		end := (b.r + b.n) % len(b.buf)
		right := min(len(b.buf)-end, chunk)

		copy(b.buf[end:end+right], p[:right])
		if right < chunk {
			copy(b.buf[0:chunk-right], p[right:chunk])
		}

		b.n += chunk
		p = p[chunk:]
		written += chunk

		level := b.n
		probes := make([]Probe, 0, len(b.probes))
		for _, pr := range b.probes {
			probes = append(probes, pr)
		}

		var started func()
		if !b.running && b.n >= b.threshold {
			b.running = true
			started = b.onRunning
		}
		b.cond.Broadcast()
		b.mu.Unlock()

		for _, pr := range probes {
			pr(level, b.threshold)
		}
		if started != nil {
			started()
		}
	}

	return written, nil
}

// Read blocks until the buffer is primed or closed, then drains up to len(p).
// After CloseWrite the remaining bytes are returned followed by io.EOF.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.gen
	for (b.n == 0 || !b.running) && !b.eos && b.gen == gen && !b.flushing {
		b.cond.Wait()
	}
	if b.gen != gen || b.flushing {
		return 0, ErrFlushing
	}
	if b.n == 0 {
		return 0, io.EOF
	}

	chunk := min(len(p), b.n)
	right := min(len(b.buf)-b.r, chunk)

	copy(p[:right], b.buf[b.r:b.r+right])
	if right < chunk {
		copy(p[right:chunk], b.buf[0:chunk-right])
	}

	b.r = (b.r + chunk) % len(b.buf)
	b.n -= chunk
	b.cond.Broadcast()

	return chunk, nil
}

// CloseWrite marks end of stream. Readers drain what is left, then see io.EOF.
func (b *Buffer) CloseWrite() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.eos = true
	b.cond.Broadcast()
}

// Flush drops queued data, wakes blocked callers with ErrFlushing and resets
// the buffer to its unprimed state.
func (b *Buffer) Flush() {
	b.FlushStart()
	b.FlushStop()
}

// FlushStart drops queued data and fails every Read and Write with
// ErrFlushing until FlushStop.
func (b *Buffer) FlushStart() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.r, b.n = 0, 0
	b.flushing = true
	b.gen++
	b.cond.Broadcast()
}

// FlushStop leaves the flushing state with an empty, unprimed buffer.
func (b *Buffer) FlushStop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.r, b.n = 0, 0
	b.running = false
	b.eos = false
	b.flushing = false
	b.cond.Broadcast()
}

// Level reports the number of queued bytes.
func (b *Buffer) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *Buffer) Threshold() int {
	return b.threshold
}

// Running reports whether the buffer has been primed since the last reset.
func (b *Buffer) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
