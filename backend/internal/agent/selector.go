package agent

import (
	"math/rand"
	"sync"
)

// Selector picks an entertainment agent for proactive engagement.
// Pluggable so tests can substitute a deterministic strategy for the
// default random pick.
type Selector interface {
	Pick() Kind
}

// RandomSelector picks uniformly from the entertainment set.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector creates a selector seeded with the given source
func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

// Pick returns a random entertainment kind
func (s *RandomSelector) Pick() Kind {
	kinds := EntertainmentKinds()
	s.mu.Lock()
	defer s.mu.Unlock()
	return kinds[s.rng.Intn(len(kinds))]
}

// RoundRobinSelector cycles through the entertainment set in order.
type RoundRobinSelector struct {
	mu   sync.Mutex
	next int
}

// NewRoundRobinSelector creates a selector starting at the first kind
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

// Pick returns the next entertainment kind in rotation
func (s *RoundRobinSelector) Pick() Kind {
	kinds := EntertainmentKinds()
	s.mu.Lock()
	defer s.mu.Unlock()
	k := kinds[s.next%len(kinds)]
	s.next++
	return k
}
