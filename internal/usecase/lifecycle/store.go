package lifecycle

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bnema/berth/internal/domain"
)

// Store is the authoritative in-memory record of managed containers.
// Only the Service mutates it; it never talks to the runtime.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.Container
	names   map[string]string   // name -> id, live records only
	used    map[string]struct{} // every id ever stored, purged ones included
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.Container),
		names:   make(map[string]string),
		used:    make(map[string]struct{}),
		now:     time.Now,
	}
}

// Get returns a live container. Tombstones answer ErrNotFound.
func (s *Store) Get(id string) (domain.Container, error) {
	c, err := s.Lookup(id)
	if err != nil {
		return domain.Container{}, err
	}
	if c.Tombstoned() {
		return domain.Container{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return c, nil
}

// Lookup returns a container including tombstones still inside retention.
func (s *Store) Lookup(id string) (domain.Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.records[id]
	if !ok {
		return domain.Container{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return c.Clone(), nil
}

// List returns the containers matching filter, ordered by creation time.
// The snapshot is taken when List is called; ranging the sequence again
// replays the same snapshot, a new List call re-scans.
func (s *Store) List(filter domain.Filter) iter.Seq[domain.Container] {
	s.mu.RLock()
	snapshot := make([]domain.Container, 0, len(s.records))
	for _, c := range s.records {
		if filter.Match(*c) {
			snapshot = append(snapshot, c.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b domain.Container) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Name, b.Name)
	})

	return func(yield func(domain.Container) bool) {
		for _, c := range snapshot {
			if !yield(c.Clone()) {
				return
			}
		}
	}
}

// Upsert inserts or replaces c. It fails with ErrConflict when the name is
// held by a different live container.
func (s *Store) Upsert(c domain.Container) error {
	if c.ID == "" {
		return fmt.Errorf("%w: container id is required", domain.ErrValidation)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, c.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !c.Tombstoned() {
		if holder, taken := s.names[c.Name]; taken && holder != c.ID {
			return fmt.Errorf("%w: name %q is used by container %s", domain.ErrConflict, c.Name, holder)
		}
	}

	if prev, ok := s.records[c.ID]; ok && s.names[prev.Name] == c.ID {
		delete(s.names, prev.Name)
	}

	stored := c.Clone()
	s.records[c.ID] = &stored
	s.used[c.ID] = struct{}{}
	if !c.Tombstoned() {
		s.names[c.Name] = c.ID
	}
	return nil
}

// Remove marks the container as a tombstone and frees its name.
func (s *Store) Remove(id string) (domain.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.records[id]
	if !ok {
		return domain.Container{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if c.Tombstoned() {
		return c.Clone(), nil
	}

	now := s.now()
	c.Status = domain.StatusRemoved
	c.RemovedAt = now
	if now.After(c.LastTransitionAt) {
		c.LastTransitionAt = now
	} else {
		c.LastTransitionAt = c.LastTransitionAt.Add(time.Nanosecond)
	}
	if s.names[c.Name] == id {
		delete(s.names, c.Name)
	}
	return c.Clone(), nil
}

// Purge drops tombstones removed before cutoff and returns them.
// Purged ids stay reserved so they are never handed out again.
func (s *Store) Purge(cutoff time.Time) []domain.Container {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []domain.Container
	for id, c := range s.records {
		if c.Tombstoned() && c.RemovedAt.Before(cutoff) {
			purged = append(purged, c.Clone())
			delete(s.records, id)
		}
	}
	return purged
}

// IDUsed reports whether id was ever stored.
func (s *Store) IDUsed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.used[id]
	return ok
}

// NameOwner returns the id of the live container holding name.
func (s *Store) NameOwner(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.names[name]
	return id, ok
}

// Len returns the number of records, tombstones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// reserve marks id as used without storing a record.
func (s *Store) reserve(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[id] = struct{}{}
}
