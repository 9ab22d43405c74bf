package client

import (
	"mapsketch/internal/feature"
)

// Store is the local feature set, keyed by feature identifier.
// It is only touched from the client event loop, so implementations need no locking.
type Store interface {
	Get(id string) (feature.Feature, bool)
	Put(f feature.Feature)
	Delete(id string) bool
	IDs() []string
	All() []feature.Feature
	Clear()
	Len() int
}

// MemoryStore keeps features in insertion order
type MemoryStore struct {
	byID  map[string]feature.Feature
	order []string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]feature.Feature)}
}

func (s *MemoryStore) Get(id string) (feature.Feature, bool) {
	f, ok := s.byID[id]
	if !ok {
		return feature.Feature{}, false
	}
	return f.Clone(), true
}

// Put inserts or overwrites; an overwrite keeps the original position
func (s *MemoryStore) Put(f feature.Feature) {
	if _, ok := s.byID[f.ID]; !ok {
		s.order = append(s.order, f.ID)
	}
	s.byID[f.ID] = f.Clone()
}

func (s *MemoryStore) Delete(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *MemoryStore) IDs() []string {
	return append([]string(nil), s.order...)
}

func (s *MemoryStore) All() []feature.Feature {
	out := make([]feature.Feature, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *MemoryStore) Clear() {
	s.byID = make(map[string]feature.Feature)
	s.order = nil
}

func (s *MemoryStore) Len() int {
	return len(s.order)
}
