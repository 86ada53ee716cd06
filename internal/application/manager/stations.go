// ABOUTME: Catalog editing and playlist file import/export
// ABOUTME: Mutations run on the control loop so notifications stay ordered
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/harper/radio-tuner/internal/domain"
	"github.com/harper/radio-tuner/internal/domain/playlist"
	"github.com/harper/radio-tuner/internal/domain/station"
	"github.com/harper/radio-tuner/internal/infrastructure/storage"
)

var errNotPlaylist = errors.New("not a playlist file")

func (m *Manager) Stations() []station.Station {
	return m.store.List()
}

// AddStation appends st and returns its index.
func (m *Manager) AddStation(ctx context.Context, st station.Station) (int, error) {
	index := -1
	err := m.Do(ctx, func() error {
		m.store.Add(st)
		index = m.store.Len() - 1
		return nil
	})
	return index, err
}

func (m *Manager) UpdateStation(ctx context.Context, index int, st station.Station) error {
	return m.Do(ctx, func() error {
		if !m.store.Update(index, st) {
			return ErrNotFound
		}
		if index == m.currentIndex && m.current != nil {
			updated, _ := m.store.Get(index)
			m.current = &updated
		}
		return nil
	})
}

func (m *Manager) RemoveStation(ctx context.Context, index int) error {
	return m.Do(ctx, func() error {
		if _, ok := m.store.Remove(index); !ok {
			return ErrNotFound
		}
		switch {
		case index == m.currentIndex:
			m.currentIndex = -1
		case index < m.currentIndex:
			m.currentIndex--
		}
		return nil
	})
}

// ImportStations appends the stations in catalog XML text.
func (m *Manager) ImportStations(ctx context.Context, text string) error {
	return m.Do(ctx, func() error {
		return m.store.ImportXML(text)
	})
}

// ImportPlaylist reads a playlist file and returns its stream URIs.
func (m *Manager) ImportPlaylist(ctx context.Context, path string) ([]string, error) {
	path = m.files.Normalize(path)

	if !storage.IsURL(path) {
		if !m.files.Exists(path) {
			return nil, domain.IOError("import playlist", fmt.Errorf("%s: %w", path, os.ErrNotExist))
		}
		if mt := m.files.MimeType(path); !storage.IsPlaylistType(mt) {
			return nil, domain.DataError("import playlist", fmt.Errorf("%w: %s", errNotPlaylist, mt))
		}
	}

	data, err := m.files.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return playlist.Parse(string(data))
}

// StationPLS renders the streams of the station at index as PLS.
func (m *Manager) StationPLS(index int) (string, error) {
	st, ok := m.store.Get(index)
	if !ok {
		return "", ErrNotFound
	}
	return playlist.ExportPLS(st.Streams), nil
}

// ExportPlaylist writes the streams of the station at index to path as PLS.
func (m *Manager) ExportPlaylist(index int, path string) error {
	pls, err := m.StationPLS(index)
	if err != nil {
		return err
	}
	return m.files.Write(path, []byte(pls))
}
