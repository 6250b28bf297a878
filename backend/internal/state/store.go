package state

import (
	"sync"
	"time"
)

// DecayConfig carries the idle-decay thresholds and step sizes.
type DecayConfig struct {
	EngagementDecayAfter   time.Duration
	EngagementDecayStep    float64
	EngagementFloor        float64
	SatisfactionDecayAfter time.Duration
	SatisfactionDecayStep  float64
	SatisfactionFloor      float64
}

// DefaultDecay returns the stock decay tuning
func DefaultDecay() DecayConfig {
	return DecayConfig{
		EngagementDecayAfter:   180 * time.Second,
		EngagementDecayStep:    0.05,
		EngagementFloor:        0.1,
		SatisfactionDecayAfter: 120 * time.Second,
		SatisfactionDecayStep:  0.02,
		SatisfactionFloor:      0.3,
	}
}

// ApplyIdleDecay lowers engagement once the state has been idle past the
// threshold. LastUpdated is left alone: decay is observation, not
// interaction, and only interactions count as updates.
func (d DecayConfig) ApplyIdleDecay(g *GoalState, now time.Time) {
	if g == nil {
		return
	}
	if now.Sub(g.LastUpdated) <= d.EngagementDecayAfter {
		return
	}
	g.EngagementLevel -= d.EngagementDecayStep
	if g.EngagementLevel < d.EngagementFloor {
		g.EngagementLevel = d.EngagementFloor
	}
}

// ApplyMessageTimeDecay lowers user satisfaction once the conversation
// has been quiet past the threshold.
func (d DecayConfig) ApplyMessageTimeDecay(c *ConversationContext, now time.Time) {
	if c == nil {
		return
	}
	if now.Sub(c.LastMessageTime) <= d.SatisfactionDecayAfter {
		return
	}
	c.UserSatisfaction -= d.SatisfactionDecayStep
	if c.UserSatisfaction < d.SatisfactionFloor {
		c.UserSatisfaction = d.SatisfactionFloor
	}
}

// Snapshot is a copy of one user's state pair, safe to read after the
// store lock is released.
type Snapshot struct {
	Goal    GoalState           `json:"goal_state"`
	Context ConversationContext `json:"conversation_context"`
}

// Store holds the authoritative per-user state. All mutations go through
// Update so decay, decision, and execution logic see a serialized view
// of any one user's state.
type Store struct {
	mu       sync.Mutex
	decay    DecayConfig
	goals    map[UserID]*GoalState
	contexts map[UserID]*ConversationContext
}

// NewStore creates an empty store with the given decay tuning
func NewStore(decay DecayConfig) *Store {
	return &Store{
		decay:    decay,
		goals:    make(map[UserID]*GoalState),
		contexts: make(map[UserID]*ConversationContext),
	}
}

// Decay returns the store's decay tuning
func (s *Store) Decay() DecayConfig {
	return s.decay
}

// Init creates the state pair for a user if absent. Idempotent: an
// existing in-progress state is never reset.
func (s *Store) Init(userID UserID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(userID, now)
}

// Exists reports whether the user has state
func (s *Store) Exists(userID UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.goals[userID]
	return ok
}

// Update runs fn against the user's state pair under the store lock,
// creating the pair first if the user was never initialized. Missing
// state is first contact, not an error.
func (s *Store) Update(userID UserID, now time.Time, fn func(g *GoalState, c *ConversationContext)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, c := s.ensureLocked(userID, now)
	fn(g, c)
}

// Snapshot returns a copy of the user's state pair and whether it existed
func (s *Store) Snapshot(userID UserID) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[userID]
	if !ok {
		return Snapshot{}, false
	}
	c := s.contexts[userID]

	snap := Snapshot{Goal: *g, Context: *c}
	snap.Goal.Goals = make([]Goal, len(g.Goals))
	copy(snap.Goal.Goals, g.Goals)
	return snap, true
}

// Drop removes the user's state on disconnect
func (s *Store) Drop(userID UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.goals, userID)
	delete(s.contexts, userID)
}

// Users returns the IDs of all users with state
func (s *Store) Users() []UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]UserID, 0, len(s.goals))
	for id := range s.goals {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) ensureLocked(userID UserID, now time.Time) (*GoalState, *ConversationContext) {
	g, ok := s.goals[userID]
	if !ok {
		g = NewGoalState(now)
		s.goals[userID] = g
	}
	c, ok := s.contexts[userID]
	if !ok {
		c = NewConversationContext("", now)
		s.contexts[userID] = c
	}
	return g, c
}
