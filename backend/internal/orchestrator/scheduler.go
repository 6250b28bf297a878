package orchestrator

import (
	"sync"
	"time"

	"concierge/backend/internal/state"
	"concierge/backend/pkg/logger"
	"go.uber.org/zap"
)

// Scheduler owns every per-user timer. All creation and cancellation go
// through here so no callback fires after teardown. Every callback
// re-checks liveness before running; cancellation alone is not relied
// on, which closes the race between "cancel issued" and "timer already
// fired".
type Scheduler struct {
	mu     sync.Mutex
	users  map[state.UserID]*userTimers
	logger *zap.Logger
}

type userTimers struct {
	alive  bool
	done   chan struct{}
	timers []*time.Timer
}

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		users:  make(map[state.UserID]*userTimers),
		logger: logger.Get(),
	}
}

// Track registers a user so timers may be scheduled for them. Returns
// false when the user is already tracked, as on reconnect, so callers
// do not set up a second round of timers.
func (s *Scheduler) Track(userID state.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return false
	}
	s.users[userID] = &userTimers{
		alive: true,
		done:  make(chan struct{}),
	}
	return true
}

// Alive reports whether the user is tracked and not torn down
func (s *Scheduler) Alive(userID state.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	return ok && u.alive
}

// ScheduleOnce fires fn once after d, unless the user is torn down
// first. No-op for untracked users.
func (s *Scheduler) ScheduleOnce(userID state.UserID, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || !u.alive {
		return
	}
	t := time.AfterFunc(d, func() {
		if s.Alive(userID) {
			fn()
		}
	})
	u.timers = append(u.timers, t)
}

// ScheduleRecurring runs fn every interval until fn returns false or the
// user is torn down. No-op for untracked users.
func (s *Scheduler) ScheduleRecurring(userID state.UserID, interval time.Duration, fn func() bool) {
	s.mu.Lock()
	u, ok := s.users[userID]
	if !ok || !u.alive {
		s.mu.Unlock()
		return
	}
	done := u.done
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !s.Alive(userID) {
					return
				}
				if !fn() {
					return
				}
			}
		}
	}()
}

// CancelAll atomically tears down every timer for the user. After it
// returns, no callback for the user will run.
func (s *Scheduler) CancelAll(userID state.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return
	}
	u.alive = false
	close(u.done)
	for _, t := range u.timers {
		t.Stop()
	}
	delete(s.users, userID)
	s.logger.Debug("Timers cancelled", zap.String("user_id", string(userID)))
}
