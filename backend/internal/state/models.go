package state

import (
	"time"

	"concierge/backend/internal/agent"
)

// UserID is the opaque identifier all per-user state is keyed by.
type UserID string

// EngagementState is the coarse phase of a user's session
type EngagementState string

const (
	StateGreeting   EngagementState = "greeting"
	StateOnHold     EngagementState = "on_hold"
	StateEngaged    EngagementState = "engaged"
	StateIdle       EngagementState = "idle"
	StateFrustrated EngagementState = "frustrated"
)

// EntertainmentPreference is advisory metadata derived from time of day.
// It biases content selection but never forces a handoff by itself.
type EntertainmentPreference string

const (
	PreferenceGeneralChat EntertainmentPreference = "general_chat"
	PreferenceMixed       EntertainmentPreference = "mixed"
	PreferenceTrivia      EntertainmentPreference = "trivia"
)

// PreferenceForHour maps a local hour to an entertainment preference:
// business hours get light chat, evenings mixed content, nights trivia.
func PreferenceForHour(hour int) EntertainmentPreference {
	switch {
	case hour >= 9 && hour <= 17:
		return PreferenceGeneralChat
	case hour >= 18 && hour <= 22:
		return PreferenceMixed
	default:
		return PreferenceTrivia
	}
}

// GoalKind is a tracked user-need category
type GoalKind string

const (
	GoalEntertainment GoalKind = "entertainment"
	GoalSupport       GoalKind = "support"
	GoalRetention     GoalKind = "retention"
)

// Goal is one tracked user need. At most one goal per kind exists for a
// user, and progress only moves while the goal is active.
type Goal struct {
	Type        GoalKind  `json:"type"`
	Priority    int       `json:"priority"`
	Progress    float64   `json:"progress"`
	Active      bool      `json:"active"`
	LastUpdated time.Time `json:"last_updated"`
}

// GoalState is the per-user engagement record
type GoalState struct {
	CurrentState            EngagementState         `json:"current_state"`
	EngagementLevel         float64                 `json:"engagement_level"`
	SatisfactionLevel       float64                 `json:"satisfaction_level"`
	EntertainmentPreference EntertainmentPreference `json:"entertainment_preference"`
	Goals                   []Goal                  `json:"goals"`
	LastUpdated             time.Time               `json:"last_updated"`
}

// NewGoalState returns the neutral first-contact state
func NewGoalState(now time.Time) *GoalState {
	return &GoalState{
		CurrentState:            StateGreeting,
		EngagementLevel:         0.5,
		SatisfactionLevel:       0.5,
		EntertainmentPreference: PreferenceForHour(now.Hour()),
		Goals:                   nil,
		LastUpdated:             now,
	}
}

// Goal returns the goal of the given kind, or nil
func (g *GoalState) Goal(kind GoalKind) *Goal {
	for i := range g.Goals {
		if g.Goals[i].Type == kind {
			return &g.Goals[i]
		}
	}
	return nil
}

// ActivateGoal activates the goal of the given kind, creating it if
// absent. The one-goal-per-kind invariant is enforced here: repeat
// activations update the existing entry instead of appending.
func (g *GoalState) ActivateGoal(kind GoalKind, priority int, now time.Time) {
	if existing := g.Goal(kind); existing != nil {
		existing.Active = true
		if priority > existing.Priority {
			existing.Priority = priority
		}
		existing.LastUpdated = now
		g.LastUpdated = now
		return
	}
	g.Goals = append(g.Goals, Goal{
		Type:        kind,
		Priority:    priority,
		Active:      true,
		LastUpdated: now,
	})
	g.LastUpdated = now
}

// DeactivateGoal marks the goal inactive; progress freezes where it is
func (g *GoalState) DeactivateGoal(kind GoalKind, now time.Time) {
	if existing := g.Goal(kind); existing != nil {
		existing.Active = false
		existing.LastUpdated = now
		g.LastUpdated = now
	}
}

// AdvanceGoal moves a goal's progress forward. Progress is monotonic
// while active: negative deltas and inactive goals are no-ops.
func (g *GoalState) AdvanceGoal(kind GoalKind, delta float64, now time.Time) {
	existing := g.Goal(kind)
	if existing == nil || !existing.Active || delta <= 0 {
		return
	}
	existing.Progress = clamp01(existing.Progress + delta)
	existing.LastUpdated = now
	g.LastUpdated = now
}

// RecordPositiveInteraction raises engagement and satisfaction. This is
// the only path that increases engagement; decay only ever lowers it.
func (g *GoalState) RecordPositiveInteraction(step float64, now time.Time) {
	g.EngagementLevel = clamp01(g.EngagementLevel + step)
	g.SatisfactionLevel = clamp01(g.SatisfactionLevel + step)
	g.LastUpdated = now
}

// ConversationContext is the per-user conversation record, one-to-one
// with GoalState.
type ConversationContext struct {
	CurrentAgent      agent.Kind `json:"current_agent"`
	ConversationTopic string     `json:"conversation_topic"`
	ConversationDepth int        `json:"conversation_depth"`
	UserSatisfaction  float64    `json:"user_satisfaction"`
	AgentPerformance  float64    `json:"agent_performance"`
	LastMessageTime   time.Time  `json:"last_message_time"`
	ShouldHandoff     bool       `json:"should_handoff"`
	HandoffTarget     agent.Kind `json:"handoff_target,omitempty"`
	HandoffReason     string     `json:"handoff_reason,omitempty"`
}

// NewConversationContext returns the first-contact context
func NewConversationContext(current agent.Kind, now time.Time) *ConversationContext {
	return &ConversationContext{
		CurrentAgent:     current,
		UserSatisfaction: 0.5,
		AgentPerformance: 0.5,
		LastMessageTime:  now,
	}
}

// SetHandoff records a pending handoff decision. Target and reason must
// both be provided; an empty pair would break the pending-decision
// invariant, so it is ignored.
func (c *ConversationContext) SetHandoff(target agent.Kind, reason string) {
	if target == "" || reason == "" {
		return
	}
	c.ShouldHandoff = true
	c.HandoffTarget = target
	c.HandoffReason = reason
}

// ClearHandoff resets the pending-decision triple after it was acted on
func (c *ConversationContext) ClearHandoff() {
	c.ShouldHandoff = false
	c.HandoffTarget = ""
	c.HandoffReason = ""
}

// HandoffConsistent reports whether the pending-decision triple is
// internally consistent: target and reason set iff ShouldHandoff.
func (c *ConversationContext) HandoffConsistent() bool {
	if c.ShouldHandoff {
		return c.HandoffTarget != "" && c.HandoffReason != ""
	}
	return c.HandoffTarget == "" && c.HandoffReason == ""
}

// SwitchTopic records a topic change and resets depth
func (c *ConversationContext) SwitchTopic(topic string) {
	if topic != c.ConversationTopic {
		c.ConversationTopic = topic
		c.ConversationDepth = 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
