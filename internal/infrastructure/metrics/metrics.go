// ABOUTME: Prometheus metrics for playback, catalog and the control API
// ABOUTME: Registered on the default registry and served at /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Player metrics
var (
	PlayerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radio_tuner_player_state",
			Help: "1 for the player's current state, 0 otherwise",
		},
		[]string{"state"},
	)

	PlayerStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_tuner_player_state_transitions_total",
			Help: "Total number of player state changes",
		},
		[]string{"state"},
	)

	FailoverAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_tuner_failover_attempts_total",
			Help: "Stream candidates tried, by outcome",
		},
		[]string{"result"}, // "ok", "failed"
	)

	BufferFill = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_tuner_buffer_fill_ratio",
			Help: "Most recent buffering fraction reported while connecting",
		},
	)

	MetaChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_tuner_meta_changes_total",
			Help: "Total number of stream metadata changes",
		},
	)
)

// Catalog metrics
var (
	CatalogStations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_tuner_catalog_stations",
			Help: "Number of stations in the catalog",
		},
	)

	CatalogSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_tuner_catalog_saves_total",
			Help: "Catalog file writes, by status",
		},
		[]string{"status"},
	)

	CatalogReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_tuner_catalog_reloads_total",
			Help: "Catalog reloads triggered by file changes",
		},
	)

	PlaylistResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_tuner_playlist_resolutions_total",
			Help: "Remote playlist URL expansions, by result",
		},
		[]string{"result"}, // "fetched", "cached", "failed"
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_tuner_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radio_tuner_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

var playerStates = []string{"stopped", "connecting", "buffering", "playing", "recording", "error"}

// SetPlayerState marks state as current in PlayerState.
func SetPlayerState(state string) {
	for _, s := range playerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		PlayerState.WithLabelValues(s).Set(v)
	}
	PlayerStateTransitions.WithLabelValues(state).Inc()
}
