package orchestrator

import (
	"context"
	"sync"
	"time"

	"concierge/backend/internal/state"
	"concierge/backend/pkg/logger"
	"go.uber.org/zap"
)

// acquirePollInterval is how often a blocking acquire re-checks the lock.
const acquirePollInterval = 50 * time.Millisecond

// Runner executes a queued action when the guard drains it.
type Runner func(userID state.UserID, action *GoalAction)

// ExecutionGuard guarantees at most one agent invocation in flight per
// user. Contenders enqueue; the queue drains FIFO, one action at a time,
// each after a settle delay so state written by the previous turn is
// visible to the next.
type ExecutionGuard struct {
	mu          sync.Mutex
	entries     map[state.UserID]*guardEntry
	settleDelay time.Duration
	runner      Runner
	logger      *zap.Logger
}

type guardEntry struct {
	busy  bool
	queue []*GoalAction
}

// NewExecutionGuard creates a guard with the given settle delay
func NewExecutionGuard(settleDelay time.Duration) *ExecutionGuard {
	return &ExecutionGuard{
		entries:     make(map[state.UserID]*guardEntry),
		settleDelay: settleDelay,
		logger:      logger.Get(),
	}
}

// SetRunner wires the callback that executes drained actions. Must be
// set before the first Release; the facade does this at construction.
func (g *ExecutionGuard) SetRunner(r Runner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runner = r
}

// TryAcquire attempts to take the per-user lock. False means an
// invocation is in flight and the caller must enqueue instead.
func (g *ExecutionGuard) TryAcquire(userID state.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.ensureLocked(userID)
	if e.busy {
		return false
	}
	e.busy = true
	return true
}

// Acquire blocks until the lock is taken or ctx expires. Used by the
// reactive path, which must eventually answer the user.
func (g *ExecutionGuard) Acquire(ctx context.Context, userID state.UserID) error {
	for {
		if g.TryAcquire(userID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

// Enqueue appends an action to the user's FIFO queue. The queue is
// unbounded at demo scale; the length is logged so growth is visible.
func (g *ExecutionGuard) Enqueue(userID state.UserID, action *GoalAction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.ensureLocked(userID)
	e.queue = append(e.queue, action)
	g.logger.Debug("Action enqueued",
		zap.String("user_id", string(userID)),
		zap.String("action_type", string(action.Type)),
		zap.Int("queue_length", len(e.queue)),
	)
}

// Requeue puts an action back at the head of the queue after a lost
// acquire race, preserving FIFO order for everything behind it.
func (g *ExecutionGuard) Requeue(userID state.UserID, action *GoalAction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.ensureLocked(userID)
	e.queue = append([]*GoalAction{action}, e.queue...)
}

// Release frees the lock and, if actions are queued, schedules the next
// one after the settle delay. Draining never stops on one action's
// failure: the runner reports errors and the following release
// continues the chain.
func (g *ExecutionGuard) Release(userID state.UserID) {
	g.mu.Lock()
	e, ok := g.entries[userID]
	if !ok {
		g.mu.Unlock()
		return
	}
	e.busy = false

	var next *GoalAction
	if len(e.queue) > 0 {
		next = e.queue[0]
		e.queue = e.queue[1:]
	}
	runner := g.runner
	g.mu.Unlock()

	if next == nil {
		return
	}
	if runner == nil {
		g.logger.Error("Guard has no runner; dropping queued action",
			zap.String("user_id", string(userID)),
			zap.String("action_type", string(next.Type)),
		)
		return
	}

	time.AfterFunc(g.settleDelay, func() {
		runner(userID, next)
	})
}

// Busy reports whether an invocation is in flight for the user
func (g *ExecutionGuard) Busy(userID state.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[userID]
	return ok && e.busy
}

// QueueLength returns the number of queued actions for the user
func (g *ExecutionGuard) QueueLength(userID state.UserID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[userID]
	if !ok {
		return 0
	}
	return len(e.queue)
}

// Drop discards the user's lock entry and any queued actions
func (g *ExecutionGuard) Drop(userID state.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, userID)
}

func (g *ExecutionGuard) ensureLocked(userID state.UserID) *guardEntry {
	e, ok := g.entries[userID]
	if !ok {
		e = &guardEntry{}
		g.entries[userID] = e
	}
	return e
}
