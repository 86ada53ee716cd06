// ABOUTME: Catalog persistence: load, autosave on change and reload on edit
// ABOUTME: Watches the catalog file with fsnotify and skips our own writes
package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/domain"
	"github.com/harper/radio-tuner/internal/domain/station"
	"github.com/harper/radio-tuner/internal/infrastructure/metrics"
)

func (m *Manager) catalogPath() string {
	return m.files.Normalize(m.cfg.Catalog.Path)
}

// LoadCatalog replaces the catalog with the stored file and enables autosave.
// A missing file leaves an empty catalog. Call before Run.
func (m *Manager) LoadCatalog() error {
	path := m.catalogPath()

	if !m.files.Exists(path) {
		m.log.Info("no catalog file, starting empty", zap.String("path", path))
		m.setAutosave(true)
		metrics.CatalogStations.Set(float64(m.store.Len()))
		return nil
	}

	data, err := m.files.Read(context.Background(), path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := m.replaceCatalog(data); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	m.setAutosave(true)
	m.log.Info("catalog loaded", zap.String("path", path), zap.Int("stations", m.store.Len()))
	return nil
}

// SaveCatalog writes the catalog XML to the configured path. lastSaved is
// updated before the write so the watcher never mistakes it for an edit.
func (m *Manager) SaveCatalog() error {
	data := []byte(m.store.ExportXML())

	m.mu.Lock()
	prev := m.lastSaved
	m.lastSaved = data
	m.mu.Unlock()

	if err := m.files.Write(m.catalogPath(), data); err != nil {
		m.mu.Lock()
		m.lastSaved = prev
		m.mu.Unlock()
		metrics.CatalogSaves.WithLabelValues("error").Inc()
		return fmt.Errorf("save catalog: %w", err)
	}
	metrics.CatalogSaves.WithLabelValues("ok").Inc()
	return nil
}

// replaceCatalog validates data fully before swapping the store contents.
func (m *Manager) replaceCatalog(data []byte) error {
	stations, err := station.DecodeXML(bytes.NewReader(bytes.TrimSpace(data)))
	if err != nil {
		return domain.DataError("import stations", err)
	}

	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()

	m.currentIndex = -1
	m.store.Clear()
	for _, st := range stations {
		m.store.Add(st)
	}

	m.mu.Lock()
	m.loading = false
	m.lastSaved = data
	m.mu.Unlock()

	metrics.CatalogStations.Set(float64(m.store.Len()))
	return nil
}

func (m *Manager) setAutosave(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autosave = on
}

func (m *Manager) onCatalogChanged() {
	metrics.CatalogStations.Set(float64(m.store.Len()))

	m.mu.Lock()
	save := m.autosave && !m.loading
	m.mu.Unlock()

	if !save {
		return
	}
	if err := m.SaveCatalog(); err != nil {
		m.log.Error("autosave failed", zap.Error(err))
	}
}

// WatchCatalog reloads the catalog when the file changes on disk with content
// other than our last save. It returns when ctx is done.
func (m *Manager) WatchCatalog(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	path := m.catalogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	m.log.Info("watching catalog", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.handleCatalogEvent(ctx, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("catalog watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) handleCatalogEvent(ctx context.Context, path string) {
	// The file is read on the control loop, where saves also run, so an
	// event for an earlier save of ours sees the latest content and skips.
	reloaded := false
	err := m.Do(ctx, func() error {
		if !m.files.Exists(path) {
			return nil
		}
		data, err := m.files.Read(ctx, path)
		if err != nil {
			return err
		}

		m.mu.Lock()
		same := bytes.Equal(data, m.lastSaved)
		m.mu.Unlock()
		if same {
			return nil
		}
		reloaded = true
		return m.replaceCatalog(data)
	})
	switch {
	case errors.Is(err, domain.ErrData):
		m.log.Warn("ignoring invalid catalog edit", zap.Error(err))
	case err != nil:
		m.log.Warn("catalog reload failed", zap.Error(err))
	case reloaded:
		metrics.CatalogReloads.Inc()
		m.log.Info("catalog reloaded", zap.Int("stations", m.store.Len()))
	}
}
