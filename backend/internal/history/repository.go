package history

import (
	"context"
	"time"

	"concierge/backend/internal/agent"
)

// Turn is one recorded conversation turn
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	AgentKind string    `json:"agent_kind,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores conversation transcripts. Writes are best-effort
// from the orchestrator's point of view: a failed append never blocks
// delivery.
type Repository interface {
	AppendTurn(ctx context.Context, turn Turn) error
	RecentHistory(ctx context.Context, userID string, limit int) ([]agent.Message, error)
	Close(ctx context.Context) error
}
