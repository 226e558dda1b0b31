package store

import (
	"sync"
	"time"

	"github.com/psantana5/euclid/pkg/models"
)

// MemoryStore is an in-memory implementation of the computation store
type MemoryStore struct {
	computations map[string]*models.Computation
	order        []string // insertion order, oldest first
	coprime      int64
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		computations: make(map[string]*models.Computation),
		order:        make([]string, 0),
	}
}

// SaveComputation stores a copy of c. Saving an existing ID replaces it.
func (s *MemoryStore) SaveComputation(c *models.Computation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.save(c)
	return nil
}

// SaveComputations stores copies of every computation under one lock
func (s *MemoryStore) SaveComputations(cs []*models.Computation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cs {
		s.save(c)
	}
	return nil
}

func (s *MemoryStore) save(c *models.Computation) {
	cp := *c
	if old, ok := s.computations[c.ID]; ok {
		if old.Coprime() {
			s.coprime--
		}
	} else {
		s.order = append(s.order, c.ID)
	}
	if cp.Coprime() {
		s.coprime++
	}
	s.computations[c.ID] = &cp
}

// GetComputation retrieves a computation by ID
func (s *MemoryStore) GetComputation(id string) (*models.Computation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.computations[id]
	if !ok {
		return nil, ErrComputationNotFound
	}
	cp := *c
	return &cp, nil
}

// ListComputations returns up to limit computations, newest first
func (s *MemoryStore) ListComputations(limit int) ([]*models.Computation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = normalizeLimit(limit)
	result := make([]*models.Computation, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *s.computations[s.order[i]]
		result = append(result, &cp)
	}
	return result, nil
}

// GetStats returns totals over all stored computations
func (s *MemoryStore) GetStats() (*models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &models.Stats{
		Total:   int64(len(s.computations)),
		Coprime: s.coprime,
	}, nil
}

// DeleteBefore removes computations created before cutoff
func (s *MemoryStore) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	kept := s.order[:0]
	for _, id := range s.order {
		c := s.computations[id]
		if !c.CreatedAt.Before(cutoff) {
			kept = append(kept, id)
			continue
		}
		if c.Coprime() {
			s.coprime--
		}
		delete(s.computations, id)
		removed++
	}
	s.order = kept
	return removed, nil
}

// HealthCheck always succeeds for the memory store
func (s *MemoryStore) HealthCheck() error {
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
