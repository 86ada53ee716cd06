// ABOUTME: HTTP handlers for the radio control API
// ABOUTME: Translates JSON requests into manager calls and maps domain errors to status codes
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/application/manager"
	"github.com/harper/radio-tuner/internal/domain"
	"github.com/harper/radio-tuner/internal/domain/station"
)

const maxBodyBytes = 1 << 20

var errNoStreams = errors.New("station needs at least one stream")

type Handlers struct {
	mgr *manager.Manager
	log *zap.Logger
}

func NewHandlers(mgr *manager.Manager, log *zap.Logger) *Handlers {
	return &Handlers{mgr: mgr, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, manager.ErrNotFound), errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrData):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPlay), errors.Is(err, manager.ErrNothingToAdd):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrIO):
		status = http.StatusBadGateway
	case errors.Is(err, manager.ErrNotRunning), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.Warn("request error", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return domain.DataError("decode request", err)
	}
	return nil
}

func indexVar(r *http.Request) int {
	// The route pattern only admits digits.
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return -1
	}
	return i
}

func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	type response struct {
		OK bool `json:"ok"`
	}
	writeJSON(w, http.StatusOK, response{OK: true})
}

type stationRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Website      string   `json:"website"`
	Streams      []string `json:"streams"`
	PlaylistFile string   `json:"playlist_file,omitempty"`
}

func (h *Handlers) stationFromRequest(w http.ResponseWriter, r *http.Request) (station.Station, error) {
	var req stationRequest
	if err := decodeBody(w, r, &req); err != nil {
		return station.Station{}, err
	}

	streams := req.Streams
	if req.PlaylistFile != "" {
		uris, err := h.mgr.ImportPlaylist(r.Context(), req.PlaylistFile)
		if err != nil {
			return station.Station{}, err
		}
		streams = append(streams, uris...)
	}
	if len(streams) == 0 {
		return station.Station{}, domain.DataError("station", errNoStreams)
	}

	return station.Station{
		Name:        req.Name,
		Description: req.Description,
		Website:     req.Website,
		Streams:     streams,
	}, nil
}

func (h *Handlers) ListStations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.Stations())
}

func (h *Handlers) AddStation(w http.ResponseWriter, r *http.Request) {
	st, err := h.stationFromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	index, err := h.mgr.AddStation(r.Context(), st)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"index": index})
}

func (h *Handlers) UpdateStation(w http.ResponseWriter, r *http.Request) {
	st, err := h.stationFromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.mgr.UpdateStation(r.Context(), indexVar(r), st); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RemoveStation(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.RemoveStation(r.Context(), indexVar(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ExportStations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	io.WriteString(w, h.mgr.Store().ExportXML())
}

func (h *Handlers) ImportStations(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, domain.DataError("read request", err))
		return
	}
	if err := h.mgr.ImportStations(r.Context(), string(data)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stations": len(h.mgr.Stations())})
}

func (h *Handlers) AddCurrent(w http.ResponseWriter, r *http.Request) {
	index, err := h.mgr.AddCurrent(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"index": index})
}

// playResponse reports whether a candidate started and the resulting status.
type playResponse struct {
	Playing bool           `json:"playing"`
	Status  manager.Status `json:"status"`
}

func (h *Handlers) respondPlay(w http.ResponseWriter, r *http.Request, ok bool, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	status, err := h.mgr.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playResponse{Playing: ok, Status: status})
}

func (h *Handlers) PlayStation(w http.ResponseWriter, r *http.Request) {
	ok, err := h.mgr.PlayStation(r.Context(), indexVar(r))
	h.respondPlay(w, r, ok, err)
}

type playRequest struct {
	URIs     []string `json:"uris"`
	Playlist string   `json:"playlist"`
}

// Play starts a detached station from explicit URIs or playlist text.
func (h *Handlers) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	var (
		ok  bool
		err error
	)
	switch {
	case req.Playlist != "":
		ok, err = h.mgr.PlayPlaylist(r.Context(), req.Playlist)
	case len(req.URIs) > 0:
		ok, err = h.mgr.PlayURIs(r.Context(), req.URIs)
	default:
		err = domain.DataError("play", errors.New("uris or playlist required"))
	}
	h.respondPlay(w, r, ok, err)
}

func (h *Handlers) StationPlaylist(w http.ResponseWriter, r *http.Request) {
	index := indexVar(r)
	pls, err := h.mgr.StationPLS(index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/x-scpls")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"station-%d.pls\"", index))
	io.WriteString(w, pls)
}

func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Stop(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.mgr.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) SetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Volume == nil {
		h.writeError(w, domain.DataError("volume", errors.New("volume required")))
		return
	}

	got, err := h.mgr.SetVolume(r.Context(), *req.Volume)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"volume": got})
}

func (h *Handlers) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Path == "" {
		h.writeError(w, domain.DataError("record", errors.New("path required")))
		return
	}

	if err := h.mgr.Record(r.Context(), req.Path); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) StopRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.StopRecording(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
