package layers

import (
	"time"
)

// Status is the outcome of the last default load of a dataset.
type Status struct {
	Loaded   bool      `json:"loaded"`
	Records  int       `json:"records"`
	LoadedAt time.Time `json:"loaded_at"`
	Error    string    `json:"error,omitempty"`
}

// setStatus records st unless name was invalidated after generation gen.
func (s *Store) setStatus(name string, gen uint64, st Status) {
	s.mu.Lock()
	if s.gen[name] == gen {
		s.status[name] = st
	}
	s.mu.Unlock()
}

// Statuses reports every catalog dataset; those never loaded have the zero
// Status.
func (s *Store) Statuses() map[string]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Status, len(s.status))
	for _, n := range s.catalog.Names() {
		out[n] = s.status[n]
	}
	return out
}

// Ready reports whether every named dataset has loaded successfully.
func (s *Store) Ready(names []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if !s.status[n].Loaded {
			return false
		}
	}
	return true
}
