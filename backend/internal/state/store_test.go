package state

import (
	"testing"
	"time"
)

func TestApplyIdleDecay(t *testing.T) {
	decay := DefaultDecay()
	now := time.Now()

	g := NewGoalState(now)

	// Under the threshold: no change
	decay.ApplyIdleDecay(g, now.Add(100*time.Second))
	if g.EngagementLevel != 0.5 {
		t.Errorf("decay fired too early: %v", g.EngagementLevel)
	}

	// Past the threshold: one step down, LastUpdated untouched
	decay.ApplyIdleDecay(g, now.Add(181*time.Second))
	if g.EngagementLevel != 0.45 {
		t.Errorf("expected 0.45, got %v", g.EngagementLevel)
	}
	if !g.LastUpdated.Equal(now) {
		t.Error("decay must not touch LastUpdated")
	}

	// Decay never increases engagement and never goes below the floor
	for i := 0; i < 50; i++ {
		before := g.EngagementLevel
		decay.ApplyIdleDecay(g, now.Add(200*time.Second))
		if g.EngagementLevel > before {
			t.Fatalf("decay increased engagement: %v -> %v", before, g.EngagementLevel)
		}
	}
	if g.EngagementLevel != decay.EngagementFloor {
		t.Errorf("expected floor %v, got %v", decay.EngagementFloor, g.EngagementLevel)
	}

	// Nil state is a no-op, not a panic
	decay.ApplyIdleDecay(nil, now)
}

func TestApplyMessageTimeDecay(t *testing.T) {
	decay := DefaultDecay()
	now := time.Now()

	c := NewConversationContext("hold", now)

	decay.ApplyMessageTimeDecay(c, now.Add(60*time.Second))
	if c.UserSatisfaction != 0.5 {
		t.Errorf("decay fired too early: %v", c.UserSatisfaction)
	}

	decay.ApplyMessageTimeDecay(c, now.Add(121*time.Second))
	if c.UserSatisfaction != 0.48 {
		t.Errorf("expected 0.48, got %v", c.UserSatisfaction)
	}

	for i := 0; i < 50; i++ {
		decay.ApplyMessageTimeDecay(c, now.Add(200*time.Second))
	}
	if c.UserSatisfaction != decay.SatisfactionFloor {
		t.Errorf("expected floor %v, got %v", decay.SatisfactionFloor, c.UserSatisfaction)
	}

	decay.ApplyMessageTimeDecay(nil, now)
}

func TestStore_InitIdempotent(t *testing.T) {
	s := NewStore(DefaultDecay())
	now := time.Now()

	s.Init("u1", now)
	s.Update("u1", now, func(g *GoalState, c *ConversationContext) {
		g.EngagementLevel = 0.9
		g.CurrentState = StateEngaged
	})

	// A second Init must not reset in-progress state
	s.Init("u1", now.Add(time.Minute))
	snap, ok := s.Snapshot("u1")
	if !ok {
		t.Fatal("expected state for u1")
	}
	if snap.Goal.EngagementLevel != 0.9 || snap.Goal.CurrentState != StateEngaged {
		t.Errorf("Init reset existing state: %+v", snap.Goal)
	}
}

func TestStore_UpdateCreatesOnFirstAccess(t *testing.T) {
	s := NewStore(DefaultDecay())

	// Never initialized: first access creates, never errors
	s.Update("ghost", time.Now(), func(g *GoalState, c *ConversationContext) {
		if g == nil || c == nil {
			t.Fatal("expected lazily created state")
		}
		g.EngagementLevel = 0.2
	})

	snap, ok := s.Snapshot("ghost")
	if !ok || snap.Goal.EngagementLevel != 0.2 {
		t.Errorf("lazy state not persisted: %+v ok=%v", snap.Goal, ok)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore(DefaultDecay())
	now := time.Now()
	s.Update("u1", now, func(g *GoalState, c *ConversationContext) {
		g.ActivateGoal(GoalEntertainment, 5, now)
	})

	snap, _ := s.Snapshot("u1")
	snap.Goal.Goals[0].Progress = 0.99
	snap.Goal.EngagementLevel = 0.01

	fresh, _ := s.Snapshot("u1")
	if fresh.Goal.Goals[0].Progress != 0 || fresh.Goal.EngagementLevel != 0.5 {
		t.Error("snapshot mutation leaked into store")
	}
}

func TestStore_Drop(t *testing.T) {
	s := NewStore(DefaultDecay())
	s.Init("u1", time.Now())
	s.Drop("u1")
	if s.Exists("u1") {
		t.Error("expected state dropped")
	}
	if _, ok := s.Snapshot("u1"); ok {
		t.Error("expected no snapshot after drop")
	}
}
