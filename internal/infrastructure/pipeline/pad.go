// ABOUTME: Pads linking the decoder's dynamic output to the converter input
// ABOUTME: Plus the converter, volume and position-counting stages after it
package pipeline

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

var (
	// ErrLinkNoFormat means the pads could not agree on a PCM format.
	ErrLinkNoFormat = errors.New("link: no common format")
	// ErrLinkWasLinked means one of the pads already has a peer.
	ErrLinkWasLinked = errors.New("link: pad already linked")
)

// Pad is one end of a link. Source pads carry a decoded stream and its format.
type Pad struct {
	name   string
	accept func(beep.Format) bool

	mu     sync.Mutex
	peer   *Pad
	format beep.Format
	stream beep.Streamer
}

func newSrcPad(name string, s beep.Streamer, format beep.Format) *Pad {
	return &Pad{name: name, stream: s, format: format}
}

func newSinkPad(name string, accept func(beep.Format) bool) *Pad {
	return &Pad{name: name, accept: accept}
}

func (p *Pad) Name() string {
	return p.name
}

func (p *Pad) IsLinked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer != nil
}

// Link connects src to sink after checking both are free and the format fits.
func (src *Pad) Link(sink *Pad) error {
	src.mu.Lock()
	defer src.mu.Unlock()
	sink.mu.Lock()
	defer sink.mu.Unlock()

	if src.peer != nil || sink.peer != nil {
		return ErrLinkWasLinked
	}
	if sink.accept != nil && !sink.accept(src.format) {
		return ErrLinkNoFormat
	}

	src.peer = sink
	sink.peer = src
	sink.format = src.format
	sink.stream = src.stream
	return nil
}

// Unlink detaches p from its peer, if any.
func (p *Pad) Unlink() {
	p.mu.Lock()
	peer := p.peer
	p.peer = nil
	if p.accept != nil {
		p.stream = nil
	}
	p.mu.Unlock()

	if peer == nil {
		return
	}

	peer.mu.Lock()
	if peer.peer == p {
		peer.peer = nil
		if peer.accept != nil {
			peer.stream = nil
		}
	}
	peer.mu.Unlock()
}

func (p *Pad) upstream() (beep.Streamer, beep.Format) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream, p.format
}

// converter accepts mono or stereo PCM and resamples it to the output rate.
type converter struct {
	rate    beep.SampleRate
	quality int
	sink    *Pad
}

func newConverter(rate beep.SampleRate) *converter {
	return &converter{
		rate:    rate,
		quality: 4,
		sink: newSinkPad("sink", func(f beep.Format) bool {
			return f.SampleRate > 0 && f.NumChannels >= 1 && f.NumChannels <= 2
		}),
	}
}

func (c *converter) output() beep.Streamer {
	in, format := c.sink.upstream()
	if in == nil {
		return nil
	}
	if format.SampleRate == c.rate {
		return in
	}
	return beep.Resample(c.quality, format.SampleRate, c.rate, in)
}

// volume applies a linear gain in [0,1]. The level may change while the
// sink goroutine is streaming.
type volume struct {
	level atomic.Uint64
	gain  effects.Gain
}

func newVolume(level float64) *volume {
	v := &volume{}
	v.set(level)
	return v
}

func (v *volume) set(level float64) {
	level = math.Max(0, math.Min(1, level))
	v.level.Store(math.Float64bits(level))
}

func (v *volume) get() float64 {
	return math.Float64frombits(v.level.Load())
}

func (v *volume) attach(s beep.Streamer) {
	v.gain.Streamer = s
}

func (v *volume) Stream(samples [][2]float64) (int, bool) {
	if v.gain.Streamer == nil {
		return 0, false
	}
	v.gain.Gain = v.get() - 1
	return v.gain.Stream(samples)
}

func (v *volume) Err() error {
	if v.gain.Streamer == nil {
		return nil
	}
	return v.gain.Err()
}

// counter tracks how many samples reached the sink.
type counter struct {
	beep.Streamer
	samples atomic.Int64
}

func (c *counter) Stream(samples [][2]float64) (int, bool) {
	n, ok := c.Streamer.Stream(samples)
	c.samples.Add(int64(n))
	return n, ok
}
