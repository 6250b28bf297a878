package agent

import "testing"

func TestRoundRobinSelector_CyclesInOrder(t *testing.T) {
	s := NewRoundRobinSelector()
	kinds := EntertainmentKinds()

	for round := 0; round < 2; round++ {
		for i, want := range kinds {
			if got := s.Pick(); got != want {
				t.Fatalf("round %d pick %d: got %q, want %q", round, i, got, want)
			}
		}
	}
}

func TestRandomSelector_PicksOnlyEntertainment(t *testing.T) {
	s := NewRandomSelector(42)

	for i := 0; i < 100; i++ {
		if kind := s.Pick(); !kind.IsEntertainment() {
			t.Fatalf("picked non-entertainment kind %q", kind)
		}
	}
}

func TestRandomSelector_SeedIsDeterministic(t *testing.T) {
	a := NewRandomSelector(7)
	b := NewRandomSelector(7)

	for i := 0; i < 20; i++ {
		if ka, kb := a.Pick(), b.Pick(); ka != kb {
			t.Fatalf("pick %d diverged: %q vs %q", i, ka, kb)
		}
	}
}
