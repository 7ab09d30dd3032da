package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/klejdi94/quill/core"
)

// MemoryStore is an in-memory flow store (testing and single-process use).
type MemoryStore struct {
	mu    sync.RWMutex
	flows map[string]*core.Flow
}

// NewMemoryStore creates a store holding flows.
func NewMemoryStore(flows ...*core.Flow) *MemoryStore {
	m := &MemoryStore{flows: make(map[string]*core.Flow, len(flows))}
	for _, f := range flows {
		if f != nil {
			m.flows[f.Name] = f.Copy()
		}
	}
	return m
}

// Put saves a flow, replacing any flow with the same name.
func (m *MemoryStore) Put(ctx context.Context, flow *core.Flow) error {
	if flow == nil {
		return fmt.Errorf("memory store: flow is nil")
	}
	if err := flow.Check(); err != nil {
		return fmt.Errorf("memory store: %w: %w", ErrInvalidFlow, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Copy so caller cannot mutate stored flow
	m.flows[flow.Name] = flow.Copy()
	return nil
}

// Delete removes a flow.
func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[name]; !ok {
		return &core.UnknownFlowError{Name: name}
	}
	delete(m.flows, name)
	return nil
}

// Load returns copies of all flows sorted by name.
func (m *MemoryStore) Load(ctx context.Context) ([]*core.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Flow, 0, len(m.flows))
	for _, f := range m.flows {
		out = append(out, f.Copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
