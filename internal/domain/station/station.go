// ABOUTME: Station entity and the ordered in-memory station catalog
// ABOUTME: Every mutation notifies listeners synchronously after it is applied
package station

import "sync"

// Station is a named radio entry with candidate stream URIs in preference order.
type Station struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Website     string   `json:"website"`
	Streams     []string `json:"streams"`
	// MetaUpdate is true only for a detached station that has not been
	// confirmed yet; stream metadata may overwrite its descriptive fields.
	// Stations held by a Store always have it false.
	MetaUpdate bool `json:"metaupdate"`
}

// Clone returns a deep copy.
func (s Station) Clone() Station {
	out := s
	if s.Streams != nil {
		out.Streams = append([]string(nil), s.Streams...)
	}
	return out
}

// Store is an ordered station catalog addressed by index.
// Indices are only stable between change notifications.
type Store struct {
	mu        sync.RWMutex
	stations  []Station
	listeners []func()
}

func NewStore() *Store {
	return &Store{}
}

// OnChange registers fn to run after every successful mutation.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Add appends a copy of st with MetaUpdate cleared.
func (s *Store) Add(st Station) {
	st = st.Clone()
	st.MetaUpdate = false

	s.mu.Lock()
	s.stations = append(s.stations, st)
	s.mu.Unlock()

	s.changed()
}

// Remove deletes the station at index. Out of range is a no-op.
func (s *Store) Remove(index int) (Station, bool) {
	s.mu.Lock()
	if index < 0 || index >= len(s.stations) {
		s.mu.Unlock()
		return Station{}, false
	}
	removed := s.stations[index]
	s.stations = append(s.stations[:index], s.stations[index+1:]...)
	s.mu.Unlock()

	s.changed()
	return removed, true
}

// Update replaces the station at index with a copy of st, MetaUpdate cleared.
// Out of range is a no-op.
func (s *Store) Update(index int, st Station) bool {
	st = st.Clone()
	st.MetaUpdate = false

	s.mu.Lock()
	if index < 0 || index >= len(s.stations) {
		s.mu.Unlock()
		return false
	}
	s.stations[index] = st
	s.mu.Unlock()

	s.changed()
	return true
}

// Get returns a copy of the station at index.
func (s *Store) Get(index int) (Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.stations) {
		return Station{}, false
	}
	return s.stations[index].Clone(), true
}

// List returns copies of all stations in order.
func (s *Store) List() []Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Station, len(s.stations))
	for i, st := range s.stations {
		out[i] = st.Clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations)
}

// Clear removes every station, notifying once if anything was removed.
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.stations)
	s.stations = nil
	s.mu.Unlock()

	if n > 0 {
		s.changed()
	}
}

func (s *Store) changed() {
	s.mu.RLock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
