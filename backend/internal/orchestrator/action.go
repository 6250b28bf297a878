package orchestrator

import (
	"time"

	"concierge/backend/internal/agent"
)

// ActionType classifies a proactive action
type ActionType string

const (
	// ActionProactiveMessage is an agent-originated message with no
	// triggering user input
	ActionProactiveMessage ActionType = "proactive_message"
	// ActionHoldUpdate is a canned wait-time notice from the hold agent
	ActionHoldUpdate ActionType = "hold_update"
	// ActionHandoff transfers the conversation to another agent and has
	// that agent open the conversation
	ActionHandoff ActionType = "handoff"
)

// Timing says when an action should execute
type Timing string

const (
	TimingImmediate Timing = "immediate"
	TimingDelayed   Timing = "delayed"
)

// GoalAction is an ephemeral unit of proactive work, produced by the
// decision engine or the scheduler and consumed through the guard.
type GoalAction struct {
	Type      ActionType    `json:"type"`
	AgentKind agent.Kind    `json:"agent_kind"`
	Message   string        `json:"message,omitempty"` // canned content; empty means invoke the agent
	Timing    Timing        `json:"timing"`
	Delay     time.Duration `json:"delay,omitempty"` // only meaningful when Timing is delayed
}

// NewImmediateAction builds an immediate action
func NewImmediateAction(t ActionType, kind agent.Kind, message string) *GoalAction {
	return &GoalAction{Type: t, AgentKind: kind, Message: message, Timing: TimingImmediate}
}

// NewDelayedAction builds an action that fires once after delay
func NewDelayedAction(t ActionType, kind agent.Kind, message string, delay time.Duration) *GoalAction {
	return &GoalAction{Type: t, AgentKind: kind, Message: message, Timing: TimingDelayed, Delay: delay}
}
