package agents

import (
	"context"
	"errors"
	"sync"
)

var ErrNoAgentsAvailable = errors.New("agents: no agents available")

// Registry is the read contract against the platform's agent management.
// The engine only needs the currently available pool.
type Registry interface {
	ListAvailableAgents(ctx context.Context) ([]string, error)
}

// MemoryRegistry is an in-memory registry for tests and local runs.
type MemoryRegistry struct {
	mu     sync.Mutex
	agents []string
}

func NewMemoryRegistry(agentIDs ...string) *MemoryRegistry {
	return &MemoryRegistry{agents: append([]string(nil), agentIDs...)}
}

func (r *MemoryRegistry) SetAvailable(agentIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append([]string(nil), agentIDs...)
}

func (r *MemoryRegistry) ListAvailableAgents(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.agents...), nil
}
