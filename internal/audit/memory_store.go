package audit

import (
	"sync"

	"github.com/davidahmann/gatelog/pkg/types"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []types.AuditEvent
	byID   map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]int)}
}

func (s *InMemoryStore) Append(event types.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[event.ID] = len(s.events)
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) Get(id string) (types.AuditEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return types.AuditEvent{}, false
	}
	return s.events[idx], true
}

func (s *InMemoryStore) List() ([]types.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.AuditEvent(nil), s.events...), nil
}

func (s *InMemoryStore) Query(filter Filter) ([]types.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.AuditEvent{}
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if !filter.Matches(event) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Last() (types.AuditEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return types.AuditEvent{}, false
	}
	return s.events[len(s.events)-1], true
}

func (s *InMemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}
