package orchestrator

import (
	"time"

	"concierge/backend/internal/agent"
	"concierge/backend/internal/state"
)

// HandoffReasonExtendedIdle is the reason recorded when a hold-line user
// has gone quiet long enough to warrant entertainment.
const HandoffReasonExtendedIdle = "extended idle time"

// entertainmentGoalPriority is the priority given to the auto-activated
// entertainment goal.
const entertainmentGoalPriority = 5

// DecisionEngine evaluates a user's state pair and produces at most one
// handoff or proactive decision per call. It owns no timers and performs
// no I/O; the only mutations it makes are the documented ones on the
// state pair it was handed (pending-handoff triple, goal activation,
// entertainment preference refresh).
type DecisionEngine struct {
	holdIdleAfter time.Duration
	lowEngagement float64
	selector      agent.Selector
}

// NewDecisionEngine creates an engine with the given thresholds and
// entertainment selection strategy
func NewDecisionEngine(holdIdleAfter time.Duration, lowEngagement float64, selector agent.Selector) *DecisionEngine {
	return &DecisionEngine{
		holdIdleAfter: holdIdleAfter,
		lowEngagement: lowEngagement,
		selector:      selector,
	}
}

// Evaluate runs the decision rules in priority order; the first match
// wins. Absent input means no decision, never an error.
func (e *DecisionEngine) Evaluate(g *state.GoalState, c *state.ConversationContext, now time.Time) *GoalAction {
	if g == nil || c == nil {
		return nil
	}

	// Advisory only: refresh the time-of-day preference so downstream
	// content selection sees the current daypart.
	g.EntertainmentPreference = state.PreferenceForHour(now.Hour())

	// Rule 1: a hold-line user idle past the threshold gets handed to an
	// entertainment agent, unless a handoff is already pending.
	if c.CurrentAgent == agent.KindHold &&
		!c.ShouldHandoff &&
		now.Sub(c.LastMessageTime) > e.holdIdleAfter {
		target := e.selector.Pick()
		c.SetHandoff(target, HandoffReasonExtendedIdle)
		return NewImmediateAction(ActionHandoff, target, "")
	}

	// Rule 2: low engagement activates the entertainment goal. Goal
	// activation precedes agent selection, so no handoff this cycle.
	if g.EngagementLevel < e.lowEngagement {
		goal := g.Goal(state.GoalEntertainment)
		if goal == nil || !goal.Active {
			g.ActivateGoal(state.GoalEntertainment, entertainmentGoalPriority, now)
			return nil
		}
	}

	return nil
}
