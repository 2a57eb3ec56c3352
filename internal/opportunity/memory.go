package opportunity

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryGroupStore keeps monitored groups in process memory.
type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[string]Group
}

func NewMemoryGroupStore(groups ...Group) *MemoryGroupStore {
	s := &MemoryGroupStore{groups: make(map[string]Group)}
	for _, g := range groups {
		s.put(g)
	}
	return s
}

var _ GroupStore = (*MemoryGroupStore)(nil)

func (s *MemoryGroupStore) put(g Group) Group {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.groups[g.RemoteID] = g
	s.mu.Unlock()
	return g
}

func (s *MemoryGroupStore) GroupByRemoteID(ctx context.Context, remoteID string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[remoteID]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}

// MemoryStore keeps opportunities in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Opportunity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Opportunity)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateOpportunity(ctx context.Context, o Opportunity) (Opportunity, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.items[o.ID] = o
	s.mu.Unlock()
	return o, nil
}

// All returns the stored opportunities ordered by creation time.
func (s *MemoryStore) All() []Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Opportunity, 0, len(s.items))
	for _, o := range s.items {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
