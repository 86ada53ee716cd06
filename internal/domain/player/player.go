// ABOUTME: Playback state machine over one media pipeline
// ABOUTME: Handles candidate failover, bus dispatch and metadata aggregation
package player

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/domain"
)

const (
	MsgNoStreams    = "No streams found"
	MsgUnableToPlay = "Unable to play stream"
)

// Player is driven from a single control goroutine: Play, Stop and Dispatch
// must not run concurrently. Observers are called synchronously.
type Player struct {
	pipeline domain.Pipeline
	log      *zap.Logger

	mu      sync.RWMutex
	state   State
	payload any
	meta    Meta

	stateObservers     []func(StateChange)
	metaObservers      []func(Meta)
	candidateObservers []func(uri string, err error)
}

func New(pipeline domain.Pipeline, log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	return &Player{pipeline: pipeline, log: log}
}

func (p *Player) OnStateChange(fn func(StateChange)) {
	p.stateObservers = append(p.stateObservers, fn)
}

func (p *Player) OnMetaChange(fn func(Meta)) {
	p.metaObservers = append(p.metaObservers, fn)
}

// OnCandidate is called after each failover attempt; err is nil on success.
func (p *Player) OnCandidate(fn func(uri string, err error)) {
	p.candidateObservers = append(p.candidateObservers, fn)
}

func (p *Player) State() StateChange {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return StateChange{State: p.state, Payload: p.payload}
}

func (p *Player) Meta() Meta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta
}

// Play tries candidates in order and keeps the first one the pipeline
// accepts. It reports whether any candidate started.
func (p *Player) Play(candidates []string) bool {
	p.Stop()
	p.setMeta(Meta{})

	if len(candidates) == 0 {
		p.setError(MsgNoStreams)
		return false
	}

	for _, uri := range candidates {
		p.setState(Connecting, uri)

		err := p.pipeline.Play(uri)
		p.notifyCandidate(uri, err)
		if err == nil {
			return true
		}
		if !errors.Is(err, domain.ErrPlay) {
			p.log.Warn("unexpected pipeline failure", zap.String("uri", uri), zap.Error(err))
		}
		p.log.Debug("candidate failed", zap.String("uri", uri), zap.Error(err))
	}

	p.setError(MsgUnableToPlay)
	return false
}

func (p *Player) Stop() {
	if p.currentState() == Stopped {
		return
	}
	p.pipeline.Stop()
	p.setState(Stopped, nil)
}

// Record tees the playing stream into w.
func (p *Player) Record(w io.WriteCloser) error {
	if s := p.currentState(); s != Playing {
		return domain.PlayError("record", errors.New("player is "+s.String()))
	}
	if err := p.pipeline.Record(w); err != nil {
		return err
	}
	p.setState(Recording, nil)
	return nil
}

func (p *Player) StopRecording() error {
	if p.currentState() != Recording {
		return nil
	}
	err := p.pipeline.StopRecording()
	p.setState(Playing, nil)
	return err
}

func (p *Player) Position() int {
	return p.pipeline.Position()
}

func (p *Player) Duration() int {
	return p.pipeline.Duration()
}

func (p *Player) Volume() float64 {
	return p.pipeline.Volume()
}

func (p *Player) SetVolume(v float64) {
	p.pipeline.SetVolume(v)
}

// Dispatch handles one bus message.
func (p *Player) Dispatch(msg domain.Message) {
	switch m := msg.(type) {
	case domain.StateChangedMessage:
		switch m.New {
		case domain.PipelineNull:
			if s := p.currentState(); s != Stopped && s != Error {
				p.setState(Stopped, nil)
			}
		case domain.PipelinePlaying:
			p.setState(Playing, nil)
		}

	case domain.BufferingMessage:
		if m.Fill >= 1 {
			return
		}
		if s := p.currentState(); s == Connecting || s == Buffering {
			p.setState(Buffering, m.Fill)
		}

	case domain.EOSMessage:
		p.pipeline.Stop()
		p.setState(Stopped, nil)

	case domain.ErrorMessage:
		if p.currentState().active() {
			p.setError(m.Text)
		}

	case domain.TagMessage:
		p.setMeta(p.Meta().Merge(Normalize(m.Tags)))
	}
}

func (p *Player) setError(msg string) {
	p.pipeline.Stop()
	p.setState(Error, msg)
}

func (p *Player) currentState() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Player) setState(state State, payload any) {
	p.mu.Lock()
	if p.state == state && p.payload == payload {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.payload = payload
	p.mu.Unlock()

	p.log.Debug("player state", zap.Stringer("state", state), zap.Any("payload", payload))

	change := StateChange{State: state, Payload: payload}
	for _, fn := range p.stateObservers {
		fn(change)
	}
}

func (p *Player) setMeta(next Meta) {
	p.mu.Lock()
	changed := DiffMeta(p.meta, next)
	if len(changed) == 0 {
		p.mu.Unlock()
		return
	}
	p.meta = next
	p.mu.Unlock()

	for _, fn := range p.metaObservers {
		fn(next)
	}
}

func (p *Player) notifyCandidate(uri string, err error) {
	for _, fn := range p.candidateObservers {
		fn(uri, err)
	}
}
