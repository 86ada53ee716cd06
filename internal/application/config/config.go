// ABOUTME: YAML configuration parsing and defaults
// ABOUTME: Defines structure for the radio tuner daemon configuration
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Player    PlayerConfig    `yaml:"player"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Source    SourceConfig    `yaml:"source"`
	Output    OutputConfig    `yaml:"output"`
	Playlists PlaylistsConfig `yaml:"playlists"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CatalogConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type PlayerConfig struct {
	Volume float64 `yaml:"volume"`
}

type PipelineConfig struct {
	Sources    []string    `yaml:"sources"`
	Sinks      []string    `yaml:"sinks"`
	SampleRate int         `yaml:"sample_rate"`
	Queue      QueueConfig `yaml:"queue"`
}

type QueueConfig struct {
	MaxBytes          int `yaml:"max_bytes"`
	MinThresholdBytes int `yaml:"min_threshold_bytes"`
}

type SourceConfig struct {
	RequestHeaders   map[string]string `yaml:"request_headers"`
	UserAgent        string            `yaml:"user_agent"`
	ConnectTimeoutMs int               `yaml:"connect_timeout_ms"`
	ReadTimeoutMs    int               `yaml:"read_timeout_ms"`
}

type OutputConfig struct {
	FFmpegBinary string `yaml:"ffmpeg_binary"`
	Device       string `yaml:"device"`
	NullRealtime bool   `yaml:"null_realtime"`
}

type PlaylistsConfig struct {
	Resolve      bool  `yaml:"resolve"`
	CacheTTLMs   int   `yaml:"cache_ttl_ms"`
	FetchMs      int   `yaml:"fetch_timeout_ms"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

var (
	knownSources = map[string]bool{"vfs": true, "http": true}
	knownSinks   = map[string]bool{"speaker": true, "ffmpeg": true, "null": true}
)

// Defaults returns the configuration used for keys absent from the file.
func Defaults() *Config {
	return &Config{
		Listen:  ListenConfig{Host: "127.0.0.1", Port: 8700},
		Catalog: CatalogConfig{Path: "~/.config/radio-tuner/stations.xml", Watch: true},
		Player:  PlayerConfig{Volume: 0.8},
		Pipeline: PipelineConfig{
			Sources:    []string{"vfs", "http"},
			Sinks:      []string{"speaker", "ffmpeg"},
			SampleRate: 44100,
			Queue:      QueueConfig{MaxBytes: 65536, MinThresholdBytes: 32768},
		},
		Source: SourceConfig{
			UserAgent:        "radio-tuner/1.0",
			ConnectTimeoutMs: 10000,
			ReadTimeoutMs:    15000,
		},
		Output:    OutputConfig{FFmpegBinary: "ffmpeg", Device: "default", NullRealtime: true},
		Playlists: PlaylistsConfig{Resolve: true, CacheTTLMs: 600000, FetchMs: 10000, MaxBodyBytes: 256 * 1024},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads path over Defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Pipeline.Sources) == 0 {
		return fmt.Errorf("pipeline.sources: at least one backend required")
	}
	for _, name := range c.Pipeline.Sources {
		if !knownSources[name] {
			return fmt.Errorf("pipeline.sources: unknown backend %q", name)
		}
	}
	if len(c.Pipeline.Sinks) == 0 {
		return fmt.Errorf("pipeline.sinks: at least one backend required")
	}
	for _, name := range c.Pipeline.Sinks {
		if !knownSinks[name] {
			return fmt.Errorf("pipeline.sinks: unknown backend %q", name)
		}
	}
	if c.Pipeline.Queue.MaxBytes <= 0 {
		return fmt.Errorf("pipeline.queue.max_bytes: must be positive")
	}
	if c.Pipeline.Queue.MinThresholdBytes < 0 {
		return fmt.Errorf("pipeline.queue.min_threshold_bytes: must not be negative")
	}
	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return fmt.Errorf("player.volume: must be between 0 and 1")
	}
	return nil
}
