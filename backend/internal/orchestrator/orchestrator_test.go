package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"concierge/backend/internal/agent"
	"concierge/backend/internal/history"
	"concierge/backend/internal/state"
	"concierge/backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

// stubAgent is a controllable agent for facade tests
type stubAgent struct {
	kind        agent.Kind
	reply       string
	confidence  float64
	err         error
	delay       time.Duration
	calls       *int32
	inFlight    *int32
	maxInFlight *int32
}

func (a *stubAgent) Kind() agent.Kind { return a.kind }

func (a *stubAgent) Respond(ctx context.Context, message string, hist []agent.Message) (*agent.Reply, error) {
	if a.inFlight != nil {
		n := atomic.AddInt32(a.inFlight, 1)
		for {
			m := atomic.LoadInt32(a.maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(a.maxInFlight, m, n) {
				break
			}
		}
		defer atomic.AddInt32(a.inFlight, -1)
	}
	if a.calls != nil {
		atomic.AddInt32(a.calls, 1)
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return nil, a.err
	}
	return &agent.Reply{Content: a.reply, Confidence: a.confidence}, nil
}

// fakeTransport records everything pushed through it
type fakeTransport struct {
	mu         sync.Mutex
	deliveries []Delivery
	statuses   int
}

func (f *fakeTransport) Deliver(userID state.UserID, d Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return nil
}

func (f *fakeTransport) PushStatus(userID state.UserID, snap state.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	return nil
}

func (f *fakeTransport) deliveryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deliveries)
}

func (f *fakeTransport) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses
}

// quietConfig pushes all recurring timers far out so tests control timing
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.StatusTickInterval = time.Hour
	cfg.GreetingDelay = time.Hour
	cfg.KickoffDelay = time.Hour
	cfg.HoldUpdateInterval = time.Hour
	cfg.QueueSettleDelay = 5 * time.Millisecond
	cfg.InvocationTimeout = 2 * time.Second
	return cfg
}

func newTestOrchestrator(cfg Config, agents ...agent.Agent) (*Orchestrator, *fakeTransport) {
	registry := agent.NewRegistry()
	for _, a := range agents {
		registry.Register(a)
	}
	transport := &fakeTransport{}
	o := New(Options{
		Config:     cfg,
		Registry:   registry,
		Classifier: agent.NewKeywordClassifier(),
		Validator:  agent.NewHeuristicValidator(),
		Selector:   agent.NewRoundRobinSelector(),
		Transport:  transport,
	})
	return o, transport
}

func TestOnMessage_OverrideWins(t *testing.T) {
	o, _ := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindJoke, reply: "why did the gopher...", confidence: 0.9},
		&stubAgent{kind: agent.KindGeneral, reply: "hello", confidence: 0.5},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	// "joke" would classify to the joke agent anyway; use unrelated text
	result, err := o.OnMessage(context.Background(), u, "tell me about my invoice", nil, agent.KindJoke)
	require.NoError(t, err)
	require.Equal(t, agent.KindJoke, result.AgentUsed)
	require.Equal(t, "why did the gopher...", result.Content)
	require.Equal(t, 0.9, result.Confidence)

	snap, ok := o.Store().Snapshot(u)
	require.True(t, ok)
	require.Equal(t, agent.KindJoke, snap.Context.CurrentAgent)
	require.Equal(t, 1, snap.Context.ConversationDepth)
	require.Equal(t, state.StateEngaged, snap.Goal.CurrentState)
}

func TestOnMessage_ClassifierRouting(t *testing.T) {
	o, _ := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindBillingSupport, reply: "let me check that charge", confidence: 0.9},
		&stubAgent{kind: agent.KindGeneral, reply: "hello", confidence: 0.5},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	result, err := o.OnMessage(context.Background(), u, "I was charged twice on my invoice", nil, "")
	require.NoError(t, err)
	require.Equal(t, agent.KindBillingSupport, result.AgentUsed)
}

func TestOnMessage_PendingHandoffConsumed(t *testing.T) {
	o, _ := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindTrivia, reply: "fun fact!", confidence: 0.8},
		&stubAgent{kind: agent.KindGeneral, reply: "hello", confidence: 0.5},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	o.Store().Update(u, time.Now(), func(g *state.GoalState, c *state.ConversationContext) {
		c.SetHandoff(agent.KindTrivia, "extended idle time")
	})

	result, err := o.OnMessage(context.Background(), u, "zzz qqq", nil, "")
	require.NoError(t, err)
	require.Equal(t, agent.KindTrivia, result.AgentUsed)

	snap, _ := o.Store().Snapshot(u)
	require.False(t, snap.Context.ShouldHandoff, "handoff must be cleared once acted on")
	require.True(t, snap.Context.HandoffConsistent())
}

func TestOnMessage_FallbackOnProviderFailure(t *testing.T) {
	o, _ := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindGeneral, err: fmt.Errorf("upstream 503")},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	// The user always gets some response, never an error
	result, err := o.OnMessage(context.Background(), u, "zzz qqq", nil, "")
	require.NoError(t, err)
	require.Equal(t, agent.FallbackReply(agent.KindGeneral).Content, result.Content)
}

func TestOnMessage_RecordsTranscript(t *testing.T) {
	repo := history.NewMemoryRepository()
	registry := agent.NewRegistry()
	registry.Register(&stubAgent{kind: agent.KindGeneral, reply: "hi there", confidence: 0.5})
	o := New(Options{
		Config:     quietConfig(),
		Registry:   registry,
		Classifier: agent.NewKeywordClassifier(),
		Selector:   agent.NewRoundRobinSelector(),
		History:    repo,
	})
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	_, err := o.OnMessage(context.Background(), u, "zzz qqq", nil, "")
	require.NoError(t, err)

	msgs, err := repo.RecentHistory(context.Background(), string(u), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "assistant", msgs[1].Role)
	require.Equal(t, "hi there", msgs[1].Content)
}

func TestExecuteProactive_BusyRequeue(t *testing.T) {
	o, transport := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindJoke, reply: "ha", confidence: 0.8},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	// Hold the guard so the action cannot run yet
	require.True(t, o.Guard().TryAcquire(u))

	o.DispatchAction(u, NewImmediateAction(ActionProactiveMessage, agent.KindJoke, "canned-x"))

	waitFor(t, time.Second, func() bool { return o.Guard().QueueLength(u) == 1 })
	require.Equal(t, 0, transport.deliveryCount(), "nothing may deliver while busy")

	// Release: the queued action executes exactly once
	o.Guard().Release(u)
	waitFor(t, time.Second, func() bool { return transport.deliveryCount() == 1 })

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, transport.deliveryCount(), "action must execute exactly once")
	transport.mu.Lock()
	delivered := transport.deliveries[0]
	transport.mu.Unlock()
	require.Equal(t, "canned-x", delivered.Content)
	require.True(t, delivered.Proactive)
}

func TestExecuteProactive_DrainKeepsOrderAfterLostRace(t *testing.T) {
	cfg := quietConfig()
	cfg.QueueSettleDelay = 30 * time.Millisecond
	o, transport := newTestOrchestrator(cfg,
		&stubAgent{kind: agent.KindJoke, reply: "ha", confidence: 0.8},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	require.True(t, o.Guard().TryAcquire(u))
	o.DispatchAction(u, NewImmediateAction(ActionProactiveMessage, agent.KindJoke, "first"))
	waitFor(t, time.Second, func() bool { return o.Guard().QueueLength(u) == 1 })
	o.DispatchAction(u, NewImmediateAction(ActionProactiveMessage, agent.KindJoke, "second"))
	waitFor(t, time.Second, func() bool { return o.Guard().QueueLength(u) == 2 })

	// Steal the guard during the settle window so the drained action
	// loses its acquire race.
	o.Guard().Release(u)
	require.True(t, o.Guard().TryAcquire(u))

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 0, transport.deliveryCount(), "nothing may deliver while the guard is held")
	require.Equal(t, 2, o.Guard().QueueLength(u), "lost-race action must return to the queue")

	// Once the guard frees up, delivery order matches dispatch order
	o.Guard().Release(u)
	waitFor(t, 2*time.Second, func() bool { return transport.deliveryCount() == 2 })

	transport.mu.Lock()
	contents := []string{transport.deliveries[0].Content, transport.deliveries[1].Content}
	transport.mu.Unlock()
	require.Equal(t, []string{"first", "second"}, contents)
}

func TestDispatchAction_DelayedFiresOnce(t *testing.T) {
	o, transport := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindJoke, reply: "ha", confidence: 0.8},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	o.DispatchAction(u, NewDelayedAction(ActionProactiveMessage, agent.KindJoke, "later", 40*time.Millisecond))

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, 0, transport.deliveryCount(), "fired before its delay")

	waitFor(t, time.Second, func() bool { return transport.deliveryCount() == 1 })
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, transport.deliveryCount(), "delayed action must fire exactly once")

	transport.mu.Lock()
	delivered := transport.deliveries[0]
	transport.mu.Unlock()
	require.Equal(t, "later", delivered.Content)
	require.True(t, delivered.Proactive)
}

func TestDispatchAction_DelayedSuppressedByDisconnect(t *testing.T) {
	o, transport := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindJoke, reply: "ha", confidence: 0.8},
	)
	const u = state.UserID("u1")
	o.OnConnect(u)

	o.DispatchAction(u, NewDelayedAction(ActionProactiveMessage, agent.KindJoke, "never", 30*time.Millisecond))
	o.OnDisconnect(u)

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 0, transport.deliveryCount(), "delayed action fired after teardown")
}

func TestOnConnect_ReconnectKeepsTimers(t *testing.T) {
	cfg := quietConfig()
	cfg.GreetingDelay = 10 * time.Millisecond
	cfg.KickoffDelay = 5 * time.Millisecond
	cfg.QueueSettleDelay = 2 * time.Millisecond

	agents := []agent.Agent{&stubAgent{kind: agent.KindHold, reply: "please hold", confidence: 0.9}}
	for _, k := range agent.EntertainmentKinds() {
		agents = append(agents, &stubAgent{kind: k, reply: "entertainment!", confidence: 0.8})
	}
	o, transport := newTestOrchestrator(cfg, agents...)
	const u = state.UserID("u1")

	o.OnConnect(u)
	defer o.OnDisconnect(u)
	waitFor(t, 2*time.Second, func() bool { return transport.deliveryCount() >= 2 })
	delivered := transport.deliveryCount()

	// Same user id connects again while the session is live
	o.OnConnect(u)

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, delivered, transport.deliveryCount(), "reconnect must not replay the greeting")

	snap, ok := o.Store().Snapshot(u)
	require.True(t, ok)
	require.True(t, snap.Context.CurrentAgent.IsEntertainment(),
		"reconnect knocked the user back to hold, agent %q", snap.Context.CurrentAgent)
}

func TestExecuteProactive_SessionClosed(t *testing.T) {
	o, _ := newTestOrchestrator(quietConfig(),
		&stubAgent{kind: agent.KindJoke, reply: "ha", confidence: 0.8},
	)
	const u = state.UserID("u1")

	// Never connected
	_, err := o.ExecuteProactiveAction(context.Background(), u, NewImmediateAction(ActionProactiveMessage, agent.KindJoke, "x"))
	require.Error(t, err)

	// Connected then torn down
	o.OnConnect(u)
	o.OnDisconnect(u)
	_, err = o.ExecuteProactiveAction(context.Background(), u, NewImmediateAction(ActionProactiveMessage, agent.KindJoke, "x"))
	require.Error(t, err)
	require.False(t, errors.IsAgentBusy(err))
}

func TestExclusivity_SingleInvocationInFlight(t *testing.T) {
	var calls, inFlight, maxInFlight int32
	mk := func(kind agent.Kind) *stubAgent {
		return &stubAgent{
			kind:        kind,
			reply:       "ok",
			confidence:  0.8,
			delay:       30 * time.Millisecond,
			calls:       &calls,
			inFlight:    &inFlight,
			maxInFlight: &maxInFlight,
		}
	}
	o, _ := newTestOrchestrator(quietConfig(), mk(agent.KindJoke), mk(agent.KindGeneral))
	const u = state.UserID("u1")
	o.OnConnect(u)
	defer o.OnDisconnect(u)

	// N concurrent proactive triggers plus one inbound message
	const proactive = 4
	for i := 0; i < proactive; i++ {
		o.DispatchAction(u, NewImmediateAction(ActionProactiveMessage, agent.KindJoke, ""))
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.OnMessage(context.Background(), u, "zzz qqq", nil, "")
	}()

	waitFor(t, 5*time.Second, func() bool { return atomic.LoadInt32(&calls) == proactive+1 })
	<-done

	require.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight),
		"two invocations were in flight concurrently for one user")
}

func TestOnConnect_GreetingAndTeardown(t *testing.T) {
	cfg := quietConfig()
	cfg.GreetingDelay = 10 * time.Millisecond
	cfg.KickoffDelay = 5 * time.Millisecond
	cfg.StatusTickInterval = 20 * time.Millisecond
	cfg.QueueSettleDelay = 2 * time.Millisecond

	agents := []agent.Agent{&stubAgent{kind: agent.KindHold, reply: "please hold", confidence: 0.9}}
	for _, k := range agent.EntertainmentKinds() {
		agents = append(agents, &stubAgent{kind: k, reply: "entertainment!", confidence: 0.8})
	}
	o, transport := newTestOrchestrator(cfg, agents...)
	const u = state.UserID("u1")

	o.OnConnect(u)

	// Greeting (canned hold message) then the kickoff handoff
	waitFor(t, 2*time.Second, func() bool { return transport.deliveryCount() >= 2 })
	waitFor(t, 2*time.Second, func() bool { return transport.statusCount() >= 1 })

	snap, ok := o.Store().Snapshot(u)
	require.True(t, ok)
	require.True(t, snap.Context.CurrentAgent.IsEntertainment(),
		"kickoff should hand the user to an entertainment agent, got %q", snap.Context.CurrentAgent)
	goal := snap.Goal.Goal(state.GoalEntertainment)
	require.NotNil(t, goal)
	require.True(t, goal.Active)

	transport.mu.Lock()
	first := transport.deliveries[0]
	transport.mu.Unlock()
	require.Equal(t, agent.KindHold, first.AgentUsed)
	require.True(t, first.Proactive)

	// Teardown: nothing for this user fires again
	o.OnDisconnect(u)
	deliveries := transport.deliveryCount()
	statuses := transport.statusCount()

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, deliveries, transport.deliveryCount(), "delivery after disconnect")
	require.Equal(t, statuses, transport.statusCount(), "status push after disconnect")
	require.False(t, o.Store().Exists(u), "state retained after disconnect")
}
