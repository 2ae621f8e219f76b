package audit

import (
	"context"
	"sync"
)

// MemoryRepository keeps entries in memory. Used by tests of the packages
// that record audit entries.
type MemoryRepository struct {
	mu      sync.Mutex
	Entries []*Entry
}

func (m *MemoryRepository) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, e)
	return nil
}

func (m *MemoryRepository) List(_ context.Context, filter Filter) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for i := len(m.Entries) - 1; i >= 0; i-- {
		e := m.Entries[i]
		if filter.Action != nil && e.Action != *filter.Action {
			continue
		}
		if filter.TargetType != nil && e.TargetType != *filter.TargetType {
			continue
		}
		if filter.ActorID != nil && e.ActorID.UUID != *filter.ActorID {
			continue
		}
		out = append(out, e)
	}
	total := len(out)
	if filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else {
		out = nil
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

// Actions returns the recorded action names in order.
func (m *MemoryRepository) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Action)
	}
	return out
}
