package history

import (
	"context"
	"fmt"
	"time"

	"concierge/backend/internal/agent"
	"concierge/backend/pkg/errors"
	"concierge/backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jRepository persists transcripts as (:User)-[:HAS_TURN]->(:Turn)
// nodes in Neo4j.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jRepository connects to Neo4j and verifies connectivity
func NewNeo4jRepository(ctx context.Context, uri, user, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, errors.NewHistoryUnavailable(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.NewHistoryUnavailable(uri, err)
	}
	return &Neo4jRepository{
		driver: driver,
		logger: logger.Get(),
	}, nil
}

// AppendTurn writes one turn node linked to its user
func (r *Neo4jRepository) AppendTurn(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (u:User {id: $userID})
		CREATE (t:Turn {
			id: $id,
			role: $role,
			agent_kind: $agentKind,
			content: $content,
			created_at: $createdAt
		})
		CREATE (u)-[:HAS_TURN]->(t)
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"userID":    turn.UserID,
		"id":        turn.ID,
		"role":      turn.Role,
		"agentKind": turn.AgentKind,
		"content":   turn.Content,
		"createdAt": turn.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecentHistory returns the newest turns for the user, oldest first
func (r *Neo4jRepository) RecentHistory(ctx context.Context, userID string, limit int) ([]agent.Message, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $userID})-[:HAS_TURN]->(t:Turn)
		RETURN t.role as role, t.agent_kind as agent_kind, t.content as content, t.created_at as created_at
		ORDER BY t.created_at DESC
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	var messages []agent.Message
	for result.Next(ctx) {
		record := result.Record()
		msg := agent.Message{
			Role:      recordString(record, "role"),
			AgentKind: agent.Kind(recordString(record, "agent_kind")),
			Content:   recordString(record, "content"),
		}
		if ts := recordString(record, "created_at"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				msg.Timestamp = parsed
			}
		}
		messages = append(messages, msg)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history records: %w", err)
	}

	// Query returns newest first; callers want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Close shuts down the driver
func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func recordString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
