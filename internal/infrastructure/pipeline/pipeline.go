// ABOUTME: Media pipeline driving source, queue, decoder, converter, volume and sink
// ABOUTME: Runs each stream on its own goroutines and reports on an ordered bus
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/domain"
	"github.com/harper/radio-tuner/internal/infrastructure/ring"
)

// Messages posted as ErrorMessage text.
const (
	MsgUnknownFormat = "Unknown stream format"
	MsgDecodeError   = "Unknown error while decoding stream"
	MsgReadError     = "Could not read from stream"
	MsgOutputError   = "Could not open audio output"
)

type Config struct {
	QueueMaxBytes          int
	QueueMinThresholdBytes int
	SampleRate             int
	ReadChunkBytes         int
}

func DefaultConfig() Config {
	return Config{
		QueueMaxBytes:          64 * 1024,
		QueueMinThresholdBytes: 32 * 1024,
		SampleRate:             44100,
		ReadChunkBytes:         4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueMaxBytes <= 0 {
		c.QueueMaxBytes = d.QueueMaxBytes
	}
	if c.QueueMinThresholdBytes < 0 {
		c.QueueMinThresholdBytes = d.QueueMinThresholdBytes
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.ReadChunkBytes <= 0 {
		c.ReadChunkBytes = d.ReadChunkBytes
	}
	return c
}

type Pipeline struct {
	cfg Config
	log *zap.Logger
	bus *domain.Bus

	sources   SourceFactory
	sink      Sink
	sinkName  string
	queue     *ring.Buffer
	decoder   *decoder
	converter *converter
	volume    *volume

	mu     sync.Mutex
	uri    string
	source Source

	state    atomic.Int32
	probe    atomic.Int64
	current  atomic.Pointer[run]
	recorder atomic.Pointer[recorder]
}

// New builds the element graph using the first available source and sink
// backends. It fails with a plugin error when either list has none.
func New(cfg Config, sources []SourceFactory, sinks []SinkFactory, log *zap.Logger) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pipeline{
		cfg:       cfg,
		log:       log,
		bus:       domain.NewBus(),
		queue:     ring.New(cfg.QueueMaxBytes, cfg.QueueMinThresholdBytes),
		decoder:   &decoder{},
		converter: newConverter(beep.SampleRate(cfg.SampleRate)),
		volume:    newVolume(1),
	}

	var tried []string
	for _, f := range sources {
		tried = append(tried, f.Name)
		if f.Available != nil && !f.Available() {
			continue
		}
		src, err := f.New()
		if err != nil {
			log.Warn("source backend failed", zap.String("backend", f.Name), zap.Error(err))
			continue
		}
		p.sources = f
		p.source = src
		break
	}
	if p.source == nil {
		return nil, domain.PluginError("create pipeline", fmt.Errorf("no source backend available (tried %s)", strings.Join(tried, ", ")))
	}

	tried = tried[:0]
	for _, f := range sinks {
		tried = append(tried, f.Name)
		if f.Available != nil && !f.Available() {
			continue
		}
		sink, err := f.New()
		if err != nil {
			log.Warn("sink backend failed", zap.String("backend", f.Name), zap.Error(err))
			continue
		}
		p.sink = sink
		p.sinkName = f.Name
		break
	}
	if p.sink == nil {
		p.source.Close()
		return nil, domain.PluginError("create pipeline", fmt.Errorf("no audio output backend available (tried %s)", strings.Join(tried, ", ")))
	}

	p.queue.OnRunning(p.onQueueRunning)
	p.source.Notify(p.iradioNotifier(p.source))

	log.Info("pipeline ready",
		zap.String("source", p.sources.Name),
		zap.String("sink", p.sinkName),
		zap.Int("queue_bytes", cfg.QueueMaxBytes),
		zap.Int("threshold_bytes", cfg.QueueMinThresholdBytes))

	return p, nil
}

func (p *Pipeline) Bus() *domain.Bus {
	return p.bus
}

// Backends reports the selected source and sink backend names.
func (p *Pipeline) Backends() (source, sink string) {
	return p.sources.Name, p.sinkName
}

func (p *Pipeline) State() domain.PipelineState {
	return domain.PipelineState(p.state.Load())
}

func (p *Pipeline) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uri
}

// Play tears down any current stream, rebuilds the source for uri and starts
// it. Failing to connect returns an error matching domain.ErrPlay.
func (p *Pipeline) Play(uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uri = uri

	if p.probe.Load() == 0 {
		p.probe.Store(int64(p.queue.AddProbe(p.onQueueBuffer)))
	}

	p.decoder.releasePad()
	p.teardown()
	p.state.Store(int32(domain.PipelineNull))
	p.bus.Flush()

	if err := p.rebuildSource(); err != nil {
		return domain.PlayError("play", err)
	}

	err := p.source.SetProperty("location", uri)
	if errors.Is(err, ErrUnknownProperty) {
		err = p.source.SetProperty("uri", uri)
	}
	if err != nil {
		return domain.PlayError("play", err)
	}

	if err := p.start(); err != nil {
		p.log.Debug("stream rejected", zap.String("uri", uri), zap.Error(err))
		return domain.PlayError("play", err)
	}
	return nil
}

// Stop forces the pipeline to null.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.teardown()

	old := domain.PipelineState(p.state.Swap(int32(domain.PipelineNull)))
	if old != domain.PipelineNull {
		p.bus.Post(domain.StateChangedMessage{Old: old, New: domain.PipelineNull})
	}
}

func (p *Pipeline) SetVolume(v float64) {
	p.volume.set(v)
}

func (p *Pipeline) Volume() float64 {
	return p.volume.get()
}

// Position is the elapsed playback time in whole seconds.
func (p *Pipeline) Position() int {
	if r := p.current.Load(); r != nil {
		return r.position()
	}
	return 0
}

// Duration is the stream length in whole seconds, 0 for live streams.
func (p *Pipeline) Duration() int {
	if r := p.current.Load(); r != nil {
		return r.duration()
	}
	return 0
}

// Record copies raw stream bytes into w until StopRecording or Stop.
func (p *Pipeline) Record(w io.WriteCloser) error {
	if p.current.Load() == nil {
		return domain.PlayError("record", errors.New("nothing is playing"))
	}

	if old := p.recorder.Swap(&recorder{w: w}); old != nil {
		old.close()
	}
	return nil
}

func (p *Pipeline) StopRecording() error {
	rec := p.recorder.Swap(nil)
	if rec == nil {
		return nil
	}
	return rec.close()
}

func (p *Pipeline) rebuildSource() error {
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			p.log.Debug("close source", zap.Error(err))
		}
		p.source = nil
	}

	src, err := p.sources.New()
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	src.Notify(p.iradioNotifier(src))
	p.source = src
	return nil
}

func (p *Pipeline) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		ctx:    ctx,
		cancel: cancel,
		rate:   beep.SampleRate(p.cfg.SampleRate),
	}
	p.current.Store(r)

	rc, err := p.source.Open(ctx)
	if err != nil {
		r.kill()
		p.current.CompareAndSwap(r, nil)
		return err
	}

	p.setState(r, domain.PipelineReady)
	p.setState(r, domain.PipelinePaused)

	r.wg.Add(2)
	go p.pump(r, rc)
	go p.decode(r)
	return nil
}

// teardown stops the current run and leaves the graph empty. It does not
// post anything. Callers hold p.mu.
func (p *Pipeline) teardown() {
	if err := p.StopRecording(); err != nil {
		p.log.Warn("close recording", zap.Error(err))
	}

	r := p.current.Swap(nil)
	if r == nil {
		return
	}

	r.kill()
	if p.source != nil {
		p.source.Close()
	}
	p.queue.FlushStart()
	p.sink.Stop()
	r.wg.Wait()
	// A decoder that passed its check before kill may have restarted the sink.
	p.sink.Stop()

	r.closeStream()
	p.decoder.releasePad()
	p.queue.FlushStop()
}

func (p *Pipeline) setState(r *run, next domain.PipelineState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dead {
		return
	}
	old := domain.PipelineState(p.state.Swap(int32(next)))
	if old != next {
		p.bus.Post(domain.StateChangedMessage{Old: old, New: next})
	}
}

// pump moves raw bytes from the source into the queue.
func (p *Pipeline) pump(r *run, rc io.ReadCloser) {
	defer r.wg.Done()
	defer rc.Close()

	buf := make([]byte, p.cfg.ReadChunkBytes)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			p.record(buf[:n])
			if _, werr := p.queue.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err == nil {
			continue
		}
		if r.ctx.Err() != nil {
			return
		}
		if !errors.Is(err, io.EOF) {
			p.log.Warn("stream read failed", zap.Error(err))
			r.fail(p.bus, MsgReadError)
		}
		p.queue.CloseWrite()
		return
	}
}

// decode sniffs the queued stream, starts a decoder and announces its pad.
func (p *Pipeline) decode(r *run) {
	defer r.wg.Done()

	br := bufio.NewReaderSize(p.queue, sniffSize)
	head, err := br.Peek(sniffSize)
	if len(head) == 0 {
		if r.ctx.Err() != nil || errors.Is(err, ring.ErrFlushing) {
			return
		}
		r.finish(p.bus)
		return
	}

	st, ok := sniff(head)
	if !ok {
		r.fail(p.bus, MsgUnknownFormat)
		return
	}
	r.post(p.bus, domain.TagMessage{Tags: st.tags.Clone()})

	stream, format, err := st.decode(io.NopCloser(br))
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		p.log.Warn("decoder rejected stream", zap.String("type", st.name), zap.Error(err))
		r.fail(p.bus, MsgUnknownFormat)
		return
	}
	r.setStream(stream, format)

	p.log.Debug("decoded pad",
		zap.String("type", st.name),
		zap.Int("rate", int(format.SampleRate)),
		zap.Int("channels", format.NumChannels))

	p.onNewPad(r, p.decoder.addPad(stream, format))
}

// onNewPad links decoded output to the converter unless it is already linked.
func (p *Pipeline) onNewPad(r *run, pad *Pad) {
	if p.converter.sink.IsLinked() {
		return
	}

	if err := pad.Link(p.converter.sink); err != nil {
		if errors.Is(err, ErrLinkNoFormat) {
			r.fail(p.bus, MsgUnknownFormat)
		} else {
			r.fail(p.bus, MsgDecodeError)
		}
		return
	}

	p.volume.attach(p.converter.output())
	out := &counter{Streamer: p.volume}
	r.setOutput(out)

	if r.ctx.Err() != nil {
		return
	}
	if err := p.sink.Start(r.rate, out, func() { p.onSinkDone(r) }); err != nil {
		p.log.Error("start audio output", zap.String("sink", p.sinkName), zap.Error(err))
		r.fail(p.bus, MsgOutputError)
		return
	}
	p.setState(r, domain.PipelinePlaying)
}

func (p *Pipeline) onSinkDone(r *run) {
	if err := r.streamErr(); err != nil && !errors.Is(err, ring.ErrFlushing) {
		p.log.Warn("decoding failed", zap.Error(err))
		r.fail(p.bus, MsgDecodeError)
		return
	}
	r.finish(p.bus)
}

func (p *Pipeline) onQueueBuffer(level, threshold int) {
	if r := p.current.Load(); r != nil {
		r.post(p.bus, domain.BufferingMessage{Fill: BufferFill(level, threshold)})
	}
}

// onQueueRunning retires the buffering probe once the queue is primed.
func (p *Pipeline) onQueueRunning() {
	if id := p.probe.Swap(0); id != 0 {
		p.queue.RemoveProbe(int(id))
	}
}

func (p *Pipeline) iradioNotifier(src Source) func(string) {
	return func(string) {
		r := p.current.Load()
		if r == nil {
			return
		}
		r.post(p.bus, domain.TagMessage{Tags: domain.Tags{
			PropName:  src.Property(PropName),
			PropGenre: src.Property(PropGenre),
			PropTitle: src.Property(PropTitle),
			PropURL:   src.Property(PropURL),
		}})
	}
}

func (p *Pipeline) record(b []byte) {
	rec := p.recorder.Load()
	if rec == nil {
		return
	}
	if err := rec.write(b); err != nil {
		p.log.Warn("recording failed", zap.Error(err))
		if p.recorder.CompareAndSwap(rec, nil) {
			rec.close()
		}
	}
}

// BufferFill is level/threshold clamped to [0,1], 0 for a zero threshold.
func BufferFill(level, threshold int) float64 {
	if threshold <= 0 {
		return 0
	}
	return math.Max(0, math.Min(float64(level)/float64(threshold), 1))
}

type decoder struct {
	mu  sync.Mutex
	pad *Pad
	n   int
}

func (d *decoder) addPad(s beep.Streamer, format beep.Format) *Pad {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pad = newSrcPad(fmt.Sprintf("src%d", d.n), s, format)
	d.n++
	return d.pad
}

// releasePad removes the decoder output pad, unlinking the converter.
func (d *decoder) releasePad() {
	d.mu.Lock()
	pad := d.pad
	d.pad = nil
	d.mu.Unlock()

	if pad != nil {
		pad.Unlink()
	}
}

// run is the state of one started stream. Once killed it posts nothing.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	rate   beep.SampleRate

	mu     sync.Mutex
	dead   bool
	failed bool
	stream beep.StreamSeekCloser
	format beep.Format
	length int
	out    *counter
}

func (r *run) kill() {
	r.mu.Lock()
	r.dead = true
	r.mu.Unlock()
	r.cancel()
}

func (r *run) post(bus *domain.Bus, m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dead {
		bus.Post(m)
	}
}

// fail posts the first error of the run; later failures are dropped.
func (r *run) fail(bus *domain.Bus, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dead || r.failed {
		return
	}
	r.failed = true
	bus.Post(domain.ErrorMessage{Text: text})
}

// finish posts end-of-stream unless the run already failed.
func (r *run) finish(bus *domain.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dead || r.failed {
		return
	}
	bus.Post(domain.EOSMessage{})
}

func (r *run) setStream(s beep.StreamSeekCloser, format beep.Format) {
	length := s.Len()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream = s
	r.format = format
	r.length = length
}

func (r *run) setOutput(out *counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = out
}

func (r *run) streamErr() error {
	r.mu.Lock()
	s := r.stream
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Err()
}

func (r *run) closeStream() {
	r.mu.Lock()
	s := r.stream
	r.stream = nil
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

func (r *run) position() int {
	r.mu.Lock()
	out := r.out
	r.mu.Unlock()

	if out == nil {
		return 0
	}
	return int(r.rate.D(int(out.samples.Load())).Seconds())
}

func (r *run) duration() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.length <= 0 || r.format.SampleRate <= 0 {
		return 0
	}
	return int(r.format.SampleRate.D(r.length).Seconds())
}

type recorder struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
}

func (r *recorder) write(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	_, err := r.w.Write(b)
	return err
}

func (r *recorder) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.w.Close()
}
