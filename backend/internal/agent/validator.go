package agent

import (
	"strings"

	"concierge/backend/pkg/logger"
	"go.uber.org/zap"
)

// Issue is a single response-quality finding
type Issue struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Validator inspects agent responses for quality problems. Findings are
// logged only; validation never blocks delivery.
type Validator interface {
	Validate(kind Kind, userMessage, response, conversationID, userID string, proactive bool) []Issue
}

// HeuristicValidator applies cheap structural checks to responses.
type HeuristicValidator struct {
	maxLength int
	logger    *zap.Logger
}

// NewHeuristicValidator creates a validator with default limits
func NewHeuristicValidator() *HeuristicValidator {
	return &HeuristicValidator{
		maxLength: 2000,
		logger:    logger.Get(),
	}
}

// Validate returns any quality issues found in the response
func (v *HeuristicValidator) Validate(kind Kind, userMessage, response, conversationID, userID string, proactive bool) []Issue {
	var issues []Issue

	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		issues = append(issues, Issue{Code: "empty_response", Detail: "agent returned no content"})
	}
	if len(response) > v.maxLength {
		issues = append(issues, Issue{Code: "runaway_length", Detail: "response exceeds delivery limit"})
	}
	if userMessage != "" && trimmed != "" && strings.EqualFold(trimmed, strings.TrimSpace(userMessage)) {
		issues = append(issues, Issue{Code: "echoed_input", Detail: "response repeats the user's message verbatim"})
	}

	if len(issues) > 0 {
		v.logger.Warn("Response validation issues",
			zap.String("agent_kind", kind.String()),
			zap.String("user_id", userID),
			zap.String("conversation_id", conversationID),
			zap.Bool("proactive", proactive),
			zap.Int("issue_count", len(issues)),
		)
	}

	return issues
}
