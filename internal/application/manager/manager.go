// ABOUTME: Radio manager wiring catalog, player and pipeline together
// ABOUTME: Owns the control loop every mutation and bus message runs on
package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/application/config"
	"github.com/harper/radio-tuner/internal/domain"
	"github.com/harper/radio-tuner/internal/domain/player"
	"github.com/harper/radio-tuner/internal/domain/station"
	"github.com/harper/radio-tuner/internal/infrastructure/metrics"
	"github.com/harper/radio-tuner/internal/infrastructure/pipeline"
	"github.com/harper/radio-tuner/internal/infrastructure/sink"
	"github.com/harper/radio-tuner/internal/infrastructure/source"
	"github.com/harper/radio-tuner/internal/infrastructure/storage"
)

var (
	// ErrNotRunning is returned by calls made while the control loop is down.
	ErrNotRunning = errors.New("manager is not running")
	// ErrNotFound is returned for station indices outside the catalog.
	ErrNotFound = errors.New("station not found")
	// ErrNothingToAdd is returned by AddCurrent without a detached station.
	ErrNothingToAdd = errors.New("no unsaved station is playing")
)

type call struct {
	fn   func() error
	done chan error
}

type Manager struct {
	cfg      *config.Config
	log      *zap.Logger
	files    domain.FileStore
	store    *station.Store
	pipeline domain.Pipeline
	player   *player.Player
	resolved *cache.Cache

	calls   chan call
	stopped chan struct{}
	once    sync.Once

	mu        sync.Mutex
	loading   bool
	autosave  bool
	lastSaved []byte

	// Control loop only.
	current      *station.Station
	currentIndex int
}

// New wires a manager around an existing pipeline and file store.
func New(cfg *config.Config, pipe domain.Pipeline, files domain.FileStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	ttl := time.Duration(cfg.Playlists.CacheTTLMs) * time.Millisecond
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	m := &Manager{
		cfg:          cfg,
		log:          log,
		files:        files,
		store:        station.NewStore(),
		pipeline:     pipe,
		player:       player.New(pipe, log.Named("player")),
		resolved:     cache.New(ttl, 10*time.Minute),
		calls:        make(chan call),
		stopped:      make(chan struct{}),
		currentIndex: -1,
	}

	pipe.SetVolume(cfg.Player.Volume)

	m.store.OnChange(m.onCatalogChanged)
	m.player.OnStateChange(m.onStateChange)
	m.player.OnMetaChange(m.onMetaChange)
	m.player.OnCandidate(func(uri string, err error) {
		result := "ok"
		if err != nil {
			result = "failed"
		}
		metrics.FailoverAttempts.WithLabelValues(result).Inc()
	})

	return m
}

// NewFromConfig builds the pipeline from the configured backends.
func NewFromConfig(cfg *config.Config, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pipeCfg := pipeline.Config{
		QueueMaxBytes:          cfg.Pipeline.Queue.MaxBytes,
		QueueMinThresholdBytes: cfg.Pipeline.Queue.MinThresholdBytes,
		SampleRate:             cfg.Pipeline.SampleRate,
	}

	pipe, err := pipeline.New(pipeCfg, SourceFactories(cfg), SinkFactories(cfg, log), log.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	files := storage.New(storage.Config{
		Timeout:      time.Duration(cfg.Playlists.FetchMs) * time.Millisecond,
		MaxBodyBytes: cfg.Playlists.MaxBodyBytes,
		UserAgent:    cfg.Source.UserAgent,
	})

	return New(cfg, pipe, files, log), nil
}

// SourceFactories maps configured source names to backends, in order.
func SourceFactories(cfg *config.Config) []pipeline.SourceFactory {
	httpCfg := source.HTTPConfig{
		ConnectTimeout: time.Duration(cfg.Source.ConnectTimeoutMs) * time.Millisecond,
		ReadTimeout:    time.Duration(cfg.Source.ReadTimeoutMs) * time.Millisecond,
		Headers:        cfg.Source.RequestHeaders,
		UserAgent:      cfg.Source.UserAgent,
	}

	var factories []pipeline.SourceFactory
	for _, name := range cfg.Pipeline.Sources {
		switch name {
		case "vfs":
			factories = append(factories, pipeline.SourceFactory{
				Name:      name,
				Available: func() bool { return true },
				New:       func() (pipeline.Source, error) { return source.NewVFS(httpCfg), nil },
			})
		case "http":
			factories = append(factories, pipeline.SourceFactory{
				Name:      name,
				Available: func() bool { return true },
				New:       func() (pipeline.Source, error) { return source.NewHTTP(httpCfg), nil },
			})
		}
	}
	return factories
}

// SinkFactories maps configured output names to backends, in order.
func SinkFactories(cfg *config.Config, log *zap.Logger) []pipeline.SinkFactory {
	var factories []pipeline.SinkFactory
	for _, name := range cfg.Pipeline.Sinks {
		switch name {
		case "speaker":
			factories = append(factories, pipeline.SinkFactory{
				Name:      name,
				Available: sink.SpeakerAvailable,
				New:       func() (pipeline.Sink, error) { return sink.NewSpeaker(log.Named("speaker")), nil },
			})
		case "ffmpeg":
			ffCfg := sink.FFmpegConfig{Binary: cfg.Output.FFmpegBinary, Device: cfg.Output.Device}
			factories = append(factories, pipeline.SinkFactory{
				Name:      name,
				Available: func() bool { return sink.FFmpegAvailable(ffCfg.Binary) },
				New:       func() (pipeline.Sink, error) { return sink.NewFFmpeg(ffCfg, log), nil },
			})
		case "null":
			realtime := cfg.Output.NullRealtime
			factories = append(factories, pipeline.SinkFactory{
				Name:      name,
				Available: func() bool { return true },
				New:       func() (pipeline.Sink, error) { return sink.NewNull(realtime), nil },
			})
		}
	}
	return factories
}

func (m *Manager) Store() *station.Store {
	return m.store
}

func (m *Manager) Player() *player.Player {
	return m.player
}

// Run is the control loop. It drains the pipeline bus in order and executes
// marshalled calls until ctx is done, then stops playback.
func (m *Manager) Run(ctx context.Context) error {
	defer m.once.Do(func() { close(m.stopped) })

	bus := m.pipeline.Bus()
	for {
		select {
		case <-ctx.Done():
			m.player.Stop()
			return ctx.Err()

		case <-bus.Ready():
			for {
				msg, ok := bus.Pop()
				if !ok {
					break
				}
				m.player.Dispatch(msg)
			}

		case c := <-m.calls:
			c.done <- c.fn()
		}
	}
}

// Do runs fn on the control loop and waits for its result.
func (m *Manager) Do(ctx context.Context, fn func() error) error {
	c := call{fn: fn, done: make(chan error, 1)}

	select {
	case m.calls <- c:
	case <-m.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) onStateChange(sc player.StateChange) {
	metrics.SetPlayerState(sc.State.String())
	if fill, ok := sc.Payload.(float64); ok && sc.State == player.Buffering {
		metrics.BufferFill.Set(fill)
	}

	m.log.Info("player state",
		zap.Stringer("state", sc.State),
		zap.Any("payload", sc.Payload))
}

// onMetaChange copies station details into a detached station while it is
// still waiting for confirmation.
func (m *Manager) onMetaChange(meta player.Meta) {
	metrics.MetaChanges.Inc()

	if meta.Playing != nil {
		m.log.Info("now playing", zap.String("title", *meta.Playing))
	}

	st := m.current
	if st == nil || !st.MetaUpdate {
		return
	}
	if meta.Name != nil && *meta.Name != "" {
		st.Name = *meta.Name
	}
	if meta.Description != nil && *meta.Description != "" {
		st.Description = *meta.Description
	}
	if meta.Website != nil && *meta.Website != "" {
		st.Website = *meta.Website
	}
}
