package agent

import (
	"context"
	"sync"

	"concierge/backend/pkg/errors"
)

// Agent is the single capability every conversational agent implements:
// given a message and history, produce a reply and a confidence score.
type Agent interface {
	Kind() Kind
	Respond(ctx context.Context, message string, history []Message) (*Reply, error)
}

// Registry maps agent kinds to implementations. Orchestration looks agents
// up here instead of switching on kind, so new agents are a Register call.
type Registry struct {
	mu     sync.RWMutex
	agents map[Kind]Agent
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{agents: make(map[Kind]Agent)}
}

// Register adds or replaces the agent for its kind
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Kind()] = a
}

// Get returns the agent for the given kind
func (r *Registry) Get(kind Kind) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[kind]
	if !ok {
		return nil, errors.NewUnknownAgentKind(kind.String())
	}
	return a, nil
}

// Kinds returns all registered kinds
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.agents))
	for k := range r.agents {
		kinds = append(kinds, k)
	}
	return kinds
}
