package permission

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests.
type MemoryStore struct {
	mu     sync.Mutex
	grants map[string]Grant
	now    func() time.Time
}

// NewMemoryStore creates a MemoryStore seeded with the given grants.
func NewMemoryStore(seed ...Grant) *MemoryStore {
	s := &MemoryStore{
		grants: make(map[string]Grant, len(seed)),
		now:    time.Now,
	}
	for _, g := range seed {
		g.PrincipalID = strings.ToLower(g.PrincipalID)
		s.grants[g.PrincipalID] = cloneGrant(g)
	}
	return s
}

// List returns every grant ordered by principal.
func (s *MemoryStore) List(_ context.Context) ([]Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		grants = append(grants, cloneGrant(g))
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].PrincipalID < grants[j].PrincipalID })
	return grants, nil
}

// Get returns the grant for principalID.
func (s *MemoryStore) Get(_ context.Context, principalID string) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[strings.ToLower(principalID)]
	if !ok {
		return nil, ErrGrantNotFound
	}
	c := cloneGrant(g)
	return &c, nil
}

// Upsert replaces the grant keyed by g.PrincipalID.
func (s *MemoryStore) Upsert(_ context.Context, g *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.PrincipalID = strings.ToLower(g.PrincipalID)
	now := s.now().UTC()
	if existing, ok := s.grants[g.PrincipalID]; ok {
		g.CreatedAt = existing.CreatedAt
	} else {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	s.grants[g.PrincipalID] = cloneGrant(*g)
	return nil
}

// Delete removes the grant for principalID.
func (s *MemoryStore) Delete(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(principalID)
	if _, ok := s.grants[key]; !ok {
		return ErrGrantNotFound
	}
	delete(s.grants, key)
	return nil
}

func cloneGrant(g Grant) Grant {
	g.Datasets = slices.Clone(g.Datasets)
	g.Agents = slices.Clone(g.Agents)
	return g
}
