// ABOUTME: Control API route table
// ABOUTME: Station indices are path segments; playback and recording are top level
package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/application/manager"
)

func NewRouter(mgr *manager.Manager, log *zap.Logger) *mux.Router {
	if log == nil {
		log = zap.NewNop()
	}
	h := NewHandlers(mgr, log)

	r := mux.NewRouter()
	r.Use(Logger(log), Metrics)

	r.HandleFunc("/healthz", HealthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/stations", h.ListStations).Methods(http.MethodGet)
	r.HandleFunc("/stations", h.AddStation).Methods(http.MethodPost)
	r.HandleFunc("/stations.xml", h.ExportStations).Methods(http.MethodGet)
	r.HandleFunc("/stations.xml", h.ImportStations).Methods(http.MethodPost)
	r.HandleFunc("/stations/current", h.AddCurrent).Methods(http.MethodPost)
	r.HandleFunc("/stations/{index:[0-9]+}", h.UpdateStation).Methods(http.MethodPut)
	r.HandleFunc("/stations/{index:[0-9]+}", h.RemoveStation).Methods(http.MethodDelete)
	r.HandleFunc("/stations/{index:[0-9]+}/play", h.PlayStation).Methods(http.MethodPost)
	r.HandleFunc("/stations/{index:[0-9]+}/playlist.pls", h.StationPlaylist).Methods(http.MethodGet)

	r.HandleFunc("/play", h.Play).Methods(http.MethodPost)
	r.HandleFunc("/stop", h.Stop).Methods(http.MethodPost)
	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/volume", h.SetVolume).Methods(http.MethodPut)
	r.HandleFunc("/record", h.StartRecording).Methods(http.MethodPost)
	r.HandleFunc("/record", h.StopRecording).Methods(http.MethodDelete)

	return r
}
