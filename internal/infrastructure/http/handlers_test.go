// ABOUTME: Tests for the control API handlers
// ABOUTME: Verifies routing, status codes and response formats against a live manager
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/harper/radio-tuner/internal/application/config"
	"github.com/harper/radio-tuner/internal/application/manager"
	"github.com/harper/radio-tuner/internal/domain"
	"github.com/harper/radio-tuner/internal/infrastructure/storage"
)

type fakePipeline struct {
	bus *domain.Bus

	mu     sync.Mutex
	volume float64
}

func (f *fakePipeline) Play(uri string) error {
	if strings.Contains(uri, "bad") {
		return domain.PlayError("play", errors.New("refused"))
	}
	return nil
}

func (f *fakePipeline) Stop() {}

func (f *fakePipeline) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakePipeline) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakePipeline) Position() int                 { return 0 }
func (f *fakePipeline) Duration() int                 { return 0 }
func (f *fakePipeline) Record(w io.WriteCloser) error { return nil }
func (f *fakePipeline) StopRecording() error          { return nil }
func (f *fakePipeline) Bus() *domain.Bus              { return f.bus }

func newTestRouter(t *testing.T) (*mux.Router, *manager.Manager) {
	t.Helper()

	cfg := config.Defaults()
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "stations.xml")

	pipe := &fakePipeline{bus: domain.NewBus()}
	mgr := manager.New(cfg, pipe, storage.New(storage.Config{}), nil)
	if err := mgr.LoadCatalog(); err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return NewRouter(mgr, nil), mgr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()

	HealthzHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.OK {
		t.Error("expected ok=true")
	}
}

func TestStations_AddListUpdateRemove(t *testing.T) {
	router, mgr := newTestRouter(t)

	rec := do(t, router, "POST", "/stations", `{"name":"Groove Salad","streams":["http://a.example/1"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var added struct {
		Index int `json:"index"`
	}
	json.NewDecoder(rec.Body).Decode(&added)
	if added.Index != 0 {
		t.Errorf("expected index 0, got %d", added.Index)
	}

	rec = do(t, router, "GET", "/stations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	var list []struct {
		Name    string   `json:"name"`
		Streams []string `json:"streams"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].Name != "Groove Salad" {
		t.Errorf("unexpected list %+v", list)
	}

	rec = do(t, router, "PUT", "/stations/0", `{"name":"Drone Zone","streams":["http://b.example/1"]}`)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d: %s", rec.Code, rec.Body)
	}
	if st := mgr.Stations(); st[0].Name != "Drone Zone" {
		t.Errorf("expected update to apply, got %+v", st[0])
	}

	rec = do(t, router, "PUT", "/stations/4", `{"name":"x","streams":["http://b.example/1"]}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = do(t, router, "DELETE", "/stations/0", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if len(mgr.Stations()) != 0 {
		t.Errorf("expected empty catalog, got %d", len(mgr.Stations()))
	}

	rec = do(t, router, "DELETE", "/stations/abc", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for non-numeric index, got %d", rec.Code)
	}
}

func TestStations_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"name":`, http.StatusBadRequest},
		{"no streams", `{"name":"Empty"}`, http.StatusBadRequest},
		{"missing playlist file", `{"name":"x","playlist_file":"/nonexistent/list.pls"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, "POST", "/stations", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
			var resp map[string]string
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp["error"] == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestStations_FromPlaylistFile(t *testing.T) {
	router, mgr := newTestRouter(t)

	path := filepath.Join(t.TempDir(), "list.pls")
	os.WriteFile(path, []byte("[playlist]\nFile1=http://a.example/1\nFile2=http://a.example/2\n"), 0o644)

	body, _ := json.Marshal(map[string]any{"name": "Imported", "playlist_file": path})
	rec := do(t, router, "POST", "/stations", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	st := mgr.Stations()
	if len(st) != 1 || len(st[0].Streams) != 2 {
		t.Errorf("unexpected catalog %+v", st)
	}
}

func TestStationPlaylist(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, "POST", "/stations", `{"name":"A","streams":["http://a.example/1","http://a.example/2"]}`)

	rec := do(t, router, "GET", "/stations/0/playlist.pls", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/x-scpls" {
		t.Errorf("expected audio/x-scpls, got %s", ct)
	}
	want := "[playlist]\nNumberOfEntries=2\nFile1=http://a.example/1\nFile2=http://a.example/2\n"
	if rec.Body.String() != want {
		t.Errorf("expected %q, got %q", want, rec.Body.String())
	}

	rec = do(t, router, "GET", "/stations/3/playlist.pls", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStationsXML(t *testing.T) {
	router, mgr := newTestRouter(t)

	xml := `<stations><station><name>X</name><stream>http://x.example/</stream></station></stations>`
	rec := do(t, router, "POST", "/stations.xml", xml)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if len(mgr.Stations()) != 1 {
		t.Errorf("expected 1 station, got %d", len(mgr.Stations()))
	}

	rec = do(t, router, "POST", "/stations.xml", `<stations><radio/></stations>`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(mgr.Stations()) != 1 {
		t.Error("failed import should not change the catalog")
	}

	rec = do(t, router, "GET", "/stations.xml", "")
	if !strings.Contains(rec.Body.String(), "<name>X</name>") {
		t.Errorf("unexpected export:\n%s", rec.Body)
	}
}

func TestPlayStation(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, "POST", "/stations", `{"name":"A","streams":["http://bad.example/1","http://good.example/1"]}`)

	rec := do(t, router, "POST", "/stations/0/play", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Playing bool `json:"playing"`
		Status  struct {
			State        string `json:"state"`
			Payload      string `json:"payload"`
			StationIndex int    `json:"station_index"`
		} `json:"status"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Playing {
		t.Error("expected playing=true")
	}
	if resp.Status.State != "connecting" || resp.Status.Payload != "http://good.example/1" {
		t.Errorf("unexpected status %+v", resp.Status)
	}

	rec = do(t, router, "POST", "/stations/9/play", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPlay_AdHocAndAddCurrent(t *testing.T) {
	router, mgr := newTestRouter(t)

	rec := do(t, router, "POST", "/play", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = do(t, router, "POST", "/stations/current", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 with nothing playing, got %d", rec.Code)
	}

	rec = do(t, router, "POST", "/play", `{"playlist":"[playlist]\nFile1=http://live.example/x\n"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, "POST", "/stations/current", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	st := mgr.Stations()
	if len(st) != 1 || st[0].Name != "live.example" {
		t.Errorf("expected station named after host, got %+v", st)
	}

	rec = do(t, router, "POST", "/play", `{"uris":["http://bad.example/1"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Playing bool `json:"playing"`
		Status  struct {
			State   string `json:"state"`
			Payload string `json:"payload"`
		} `json:"status"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Playing || resp.Status.State != "error" {
		t.Errorf("expected failed play, got %+v", resp)
	}
}

func TestStatusStopVolume(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, "GET", "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status struct {
		State   string  `json:"state"`
		Elapsed string  `json:"elapsed"`
		Volume  float64 `json:"volume"`
	}
	json.NewDecoder(rec.Body).Decode(&status)
	if status.State != "stopped" || status.Elapsed != "0:00" || status.Volume != 0.8 {
		t.Errorf("unexpected status %+v", status)
	}

	rec = do(t, router, "PUT", "/volume", `{"volume":0.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var vol map[string]float64
	json.NewDecoder(rec.Body).Decode(&vol)
	if vol["volume"] != 0.5 {
		t.Errorf("expected volume 0.5, got %v", vol["volume"])
	}

	rec = do(t, router, "PUT", "/volume", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = do(t, router, "POST", "/stop", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestRecord(t *testing.T) {
	router, _ := newTestRouter(t)
	path := filepath.Join(t.TempDir(), "rec.mp3")

	rec := do(t, router, "POST", "/record", `{"path":"`+path+`"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while stopped, got %d: %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected recording should not leave a file behind")
	}

	rec = do(t, router, "POST", "/record", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = do(t, router, "DELETE", "/record", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, "GET", "/stop", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, "GET", "/stations", "")

	rec := do(t, router, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `radio_tuner_http_requests_total{method="GET",path="/stations",status="200"}`) {
		t.Error("expected request counter labelled by route template")
	}
}

func TestHandlers_AfterShutdown(t *testing.T) {
	cfg := config.Defaults()
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "stations.xml")
	mgr := manager.New(cfg, &fakePipeline{bus: domain.NewBus()}, storage.New(storage.Config{}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	mgr.Run(ctx)

	rec := do(t, NewRouter(mgr, nil), "POST", "/stop", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
