// ABOUTME: Playback operations marshalled onto the control loop
// ABOUTME: Expands remote playlist URLs and tracks the station being played
package manager

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/domain/player"
	"github.com/harper/radio-tuner/internal/domain/playlist"
	"github.com/harper/radio-tuner/internal/domain/station"
	"github.com/harper/radio-tuner/internal/infrastructure/metrics"
	"github.com/harper/radio-tuner/internal/infrastructure/storage"
)

var playlistSuffixes = []string{".pls", ".m3u", ".asx"}

type Status struct {
	State        player.State     `json:"state"`
	Payload      any              `json:"payload,omitempty"`
	Meta         player.Meta      `json:"meta"`
	Station      *station.Station `json:"station,omitempty"`
	StationIndex int              `json:"station_index"`
	Position     int              `json:"position"`
	Duration     int              `json:"duration"`
	Elapsed      string           `json:"elapsed"`
	Volume       float64          `json:"volume"`
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	err := m.Do(ctx, func() error {
		sc := m.player.State()
		pos := m.player.Position()
		st = Status{
			State:        sc.State,
			Payload:      sc.Payload,
			Meta:         m.player.Meta(),
			StationIndex: m.currentIndex,
			Position:     pos,
			Duration:     m.player.Duration(),
			Elapsed:      player.FormatTime(pos),
			Volume:       m.player.Volume(),
		}
		if m.current != nil {
			cur := m.current.Clone()
			st.Station = &cur
		}
		return nil
	})
	return st, err
}

// PlayStation plays the catalog station at index.
func (m *Manager) PlayStation(ctx context.Context, index int) (bool, error) {
	var ok bool
	err := m.Do(ctx, func() error {
		st, found := m.store.Get(index)
		if !found {
			return ErrNotFound
		}
		m.current = &st
		m.currentIndex = index
		ok = m.player.Play(m.resolveCandidates(ctx, st.Streams))
		return nil
	})
	return ok, err
}

// PlayURIs plays a detached station built from uris. Station details from the
// stream fill it in until AddCurrent saves it.
func (m *Manager) PlayURIs(ctx context.Context, uris []string) (bool, error) {
	var ok bool
	err := m.Do(ctx, func() error {
		m.current = &station.Station{
			Streams:    append([]string(nil), uris...),
			MetaUpdate: true,
		}
		m.currentIndex = -1
		ok = m.player.Play(m.resolveCandidates(ctx, uris))
		return nil
	})
	return ok, err
}

// PlayPlaylist parses playlist text and plays its entries as a detached station.
func (m *Manager) PlayPlaylist(ctx context.Context, text string) (bool, error) {
	uris, err := playlist.Parse(text)
	if err != nil {
		return false, err
	}
	return m.PlayURIs(ctx, uris)
}

// AddCurrent saves the detached station being played and returns its index.
func (m *Manager) AddCurrent(ctx context.Context) (int, error) {
	index := -1
	err := m.Do(ctx, func() error {
		if m.current == nil || !m.current.MetaUpdate {
			return ErrNothingToAdd
		}
		st := m.current.Clone()
		if st.Name == "" {
			st.Name = hostname(st.Streams)
		}
		m.store.Add(st)
		m.current.MetaUpdate = false
		m.currentIndex = m.store.Len() - 1
		index = m.currentIndex
		return nil
	})
	return index, err
}

func (m *Manager) Stop(ctx context.Context) error {
	return m.Do(ctx, func() error {
		m.player.Stop()
		return nil
	})
}

func (m *Manager) SetVolume(ctx context.Context, v float64) (float64, error) {
	var got float64
	err := m.Do(ctx, func() error {
		m.player.SetVolume(v)
		got = m.player.Volume()
		return nil
	})
	return got, err
}

// Record starts copying the raw stream to path.
func (m *Manager) Record(ctx context.Context, path string) error {
	path = m.files.Normalize(path)
	return m.Do(ctx, func() error {
		w, err := createFile(path)
		if err != nil {
			return err
		}
		if err := m.player.Record(w); err != nil {
			w.Close()
			os.Remove(path)
			return err
		}
		m.log.Info("recording", zap.String("path", path))
		return nil
	})
}

func (m *Manager) StopRecording(ctx context.Context) error {
	return m.Do(ctx, m.player.StopRecording)
}

func createFile(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return f, nil
}

// resolveCandidates replaces playlist URLs with the streams they list.
// Unreachable or unparsable playlists stay in place as plain candidates.
func (m *Manager) resolveCandidates(ctx context.Context, uris []string) []string {
	if !m.cfg.Playlists.Resolve {
		return uris
	}

	var out []string
	for _, uri := range uris {
		if !isPlaylistURL(uri) {
			out = append(out, uri)
			continue
		}

		if cached, ok := m.resolved.Get(uri); ok {
			metrics.PlaylistResolutions.WithLabelValues("cached").Inc()
			out = append(out, cached.([]string)...)
			continue
		}

		data, err := m.files.Read(ctx, uri)
		if err != nil {
			metrics.PlaylistResolutions.WithLabelValues("failed").Inc()
			m.log.Debug("playlist fetch failed", zap.String("uri", uri), zap.Error(err))
			out = append(out, uri)
			continue
		}
		entries, err := playlist.Parse(string(data))
		if err != nil {
			metrics.PlaylistResolutions.WithLabelValues("failed").Inc()
			m.log.Debug("playlist parse failed", zap.String("uri", uri), zap.Error(err))
			out = append(out, uri)
			continue
		}

		metrics.PlaylistResolutions.WithLabelValues("fetched").Inc()
		m.resolved.Set(uri, entries, cache.DefaultExpiration)
		out = append(out, entries...)
	}
	return out
}

func isPlaylistURL(uri string) bool {
	if !storage.IsURL(uri) {
		return false
	}
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, suffix := range playlistSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func hostname(uris []string) string {
	for _, uri := range uris {
		if u, err := url.Parse(uri); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return "Unnamed station"
}
