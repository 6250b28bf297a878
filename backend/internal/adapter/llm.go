package adapter

import (
	"context"
	"sync"
	"time"

	"concierge/backend/internal/agent"
	"concierge/backend/pkg/errors"
	"concierge/backend/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const maxHistoryTurns = 15

// LLMAdapter handles communication with the LLM via LiteLLM
type LLMAdapter struct {
	client *openai.Client
	model  string
	mu     sync.RWMutex // Protects model field for concurrent access
	logger *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// For LiteLLM, a dummy API key is acceptable if none is configured
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL + "/v1"

	return &LLMAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  modelID,
		logger: logger.Get(),
	}
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Complete sends a chat completion request and returns the reply text.
// Recent history is replayed ahead of the user message so agents keep
// conversational continuity across handoffs.
func (a *LLMAdapter) Complete(ctx context.Context, systemPrompt, message string, history []agent.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	a.mu.RLock()
	currentModel := a.model
	a.mu.RUnlock()

	req := openai.ChatCompletionRequest{
		Model:       currentModel,
		Messages:    messages,
		Temperature: 0.7,
	}

	// Retry with linear backoff; LiteLLM fronts several providers and
	// transient 5xx responses are common
	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return "", errors.NewContextCancelled("llm completion", ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)

		if ctx.Err() != nil {
			return "", errors.NewContextCancelled("llm completion", ctx.Err())
		}
	}
	if err != nil {
		return "", errors.NewInvocationFailed(currentModel, maxRetries, err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.ErrAgentNoResponse
	}

	return resp.Choices[0].Message.Content, nil
}
