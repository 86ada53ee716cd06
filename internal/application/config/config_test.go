// ABOUTME: Tests for YAML configuration parsing
// ABOUTME: Verifies config structure, defaults and validation
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	yamlContent := `
listen:
  host: 0.0.0.0
  port: 8000

catalog:
  path: /var/lib/radio/stations.xml
  watch: false

pipeline:
  sinks: [ffmpeg, "null"]
  queue:
    max_bytes: 131072
    min_threshold_bytes: 16384

source:
  connect_timeout_ms: 5000
  request_headers:
    X-Test: yes

playlists:
  cache_ttl_ms: 1000

logging:
  level: debug
  json: true
`

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Listen.Host)
	}
	if cfg.Listen.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Listen.Port)
	}
	if cfg.Catalog.Path != "/var/lib/radio/stations.xml" || cfg.Catalog.Watch {
		t.Errorf("unexpected catalog config %+v", cfg.Catalog)
	}
	if len(cfg.Pipeline.Sinks) != 2 || cfg.Pipeline.Sinks[1] != "null" {
		t.Errorf("unexpected sinks %v", cfg.Pipeline.Sinks)
	}
	if cfg.Pipeline.Queue.MaxBytes != 131072 || cfg.Pipeline.Queue.MinThresholdBytes != 16384 {
		t.Errorf("unexpected queue config %+v", cfg.Pipeline.Queue)
	}
	if cfg.Source.ConnectTimeoutMs != 5000 {
		t.Errorf("expected connect timeout 5000, got %d", cfg.Source.ConnectTimeoutMs)
	}
	if cfg.Source.RequestHeaders["X-Test"] != "yes" {
		t.Errorf("expected request header, got %v", cfg.Source.RequestHeaders)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("listen:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Listen.Host != "127.0.0.1" {
		t.Errorf("expected default host, got %s", cfg.Listen.Host)
	}
	if cfg.Pipeline.SampleRate != 44100 {
		t.Errorf("expected default sample rate, got %d", cfg.Pipeline.SampleRate)
	}
	if cfg.Pipeline.Queue.MaxBytes != 65536 || cfg.Pipeline.Queue.MinThresholdBytes != 32768 {
		t.Errorf("unexpected default queue %+v", cfg.Pipeline.Queue)
	}
	if len(cfg.Pipeline.Sources) != 2 || cfg.Pipeline.Sources[0] != "vfs" {
		t.Errorf("unexpected default sources %v", cfg.Pipeline.Sources)
	}
	if cfg.Player.Volume != 0.8 {
		t.Errorf("expected default volume 0.8, got %v", cfg.Player.Volume)
	}
	if !cfg.Playlists.Resolve || cfg.Playlists.CacheTTLMs != 600000 {
		t.Errorf("unexpected playlist defaults %+v", cfg.Playlists)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown sink", "pipeline:\n  sinks: [alsa]\n", "unknown backend"},
		{"unknown source", "pipeline:\n  sources: [gopher]\n", "unknown backend"},
		{"no sinks", "pipeline:\n  sinks: []\n", "at least one"},
		{"volume", "player:\n  volume: 2\n", "player.volume"},
		{"queue", "pipeline:\n  queue:\n    max_bytes: 0\n", "max_bytes"},
		{"syntax", "listen: [\n", "parse yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
