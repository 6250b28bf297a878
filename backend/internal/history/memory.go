package history

import (
	"context"
	"sync"

	"concierge/backend/internal/agent"
	"github.com/google/uuid"
)

// defaultRetention caps how many turns are kept per user in memory
const defaultRetention = 200

// MemoryRepository is the in-process transcript store used in
// development and tests. Per-user ring of recent turns.
type MemoryRepository struct {
	mu        sync.Mutex
	turns     map[string][]Turn
	retention int
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		turns:     make(map[string][]Turn),
		retention: defaultRetention,
	}
}

// AppendTurn records a turn, trimming the oldest past the retention cap
func (r *MemoryRepository) AppendTurn(_ context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.turns[turn.UserID], turn)
	if len(list) > r.retention {
		list = list[len(list)-r.retention:]
	}
	r.turns[turn.UserID] = list
	return nil
}

// RecentHistory returns the newest turns for the user, oldest first
func (r *MemoryRepository) RecentHistory(_ context.Context, userID string, limit int) ([]agent.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.turns[userID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	messages := make([]agent.Message, 0, len(list))
	for _, t := range list {
		messages = append(messages, agent.Message{
			Role:      t.Role,
			Content:   t.Content,
			AgentKind: agent.Kind(t.AgentKind),
			Timestamp: t.CreatedAt,
		})
	}
	return messages, nil
}

// Close is a no-op for the in-memory store
func (r *MemoryRepository) Close(_ context.Context) error {
	return nil
}
