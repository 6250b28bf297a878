package orchestrator

import (
	"context"
	"time"

	"concierge/backend/internal/agent"
	"concierge/backend/internal/history"
	"concierge/backend/internal/state"
	"concierge/backend/pkg/errors"
	"concierge/backend/pkg/logger"
	"go.uber.org/zap"
)

// positiveInteractionStep is how much an inbound message raises
// engagement and satisfaction.
const positiveInteractionStep = 0.05

// classifierConfidenceFloor is the minimum classifier confidence needed
// to switch agents without an explicit override.
const classifierConfidenceFloor = 0.5

const holdGreetingMessage = "Hi! You've reached the support line. All our specialists are busy right now, " +
	"but you're in the queue and we'll be with you as soon as we can."

const holdWaitMessage = "Thanks for holding — you're still in the queue. A specialist will be with you " +
	"as soon as one frees up."

// Config carries the orchestration tunables.
type Config struct {
	Decay                state.DecayConfig
	HoldIdleHandoffAfter time.Duration
	LowEngagement        float64
	StatusTickInterval   time.Duration
	GreetingDelay        time.Duration
	KickoffDelay         time.Duration
	HoldUpdateInterval   time.Duration
	QueueSettleDelay     time.Duration
	InvocationTimeout    time.Duration
}

// DefaultConfig returns the stock tuning
func DefaultConfig() Config {
	return Config{
		Decay:                state.DefaultDecay(),
		HoldIdleHandoffAfter: 300 * time.Second,
		LowEngagement:        0.4,
		StatusTickInterval:   5 * time.Second,
		GreetingDelay:        500 * time.Millisecond,
		KickoffDelay:         250 * time.Millisecond,
		HoldUpdateInterval:   10 * time.Minute,
		QueueSettleDelay:     2 * time.Second,
		InvocationTimeout:    30 * time.Second,
	}
}

// Delivery is the tuple pushed to a connected user
type Delivery struct {
	Content    string     `json:"content"`
	AgentUsed  agent.Kind `json:"agent_used"`
	Confidence float64    `json:"confidence"`
	Proactive  bool       `json:"proactive"`
}

// Transport delivers messages and status snapshots to connected users.
// Implemented by the WebSocket layer; the engine never sees sockets.
type Transport interface {
	Deliver(userID state.UserID, d Delivery) error
	PushStatus(userID state.UserID, snap state.Snapshot) error
}

// MessageResult is what OnMessage returns to the transport layer
type MessageResult struct {
	Content          string        `json:"content"`
	AgentUsed        agent.Kind    `json:"agent_used"`
	Confidence       float64       `json:"confidence"`
	ProactiveActions []*GoalAction `json:"proactive_actions,omitempty"`
}

// InvocationResult is what a completed proactive execution returns
type InvocationResult struct {
	Content    string     `json:"content"`
	AgentUsed  agent.Kind `json:"agent_used"`
	Confidence float64    `json:"confidence"`
}

// Orchestrator is the entry point the transport layer talks to. It owns
// the per-user state store, the decision engine, the single-flight
// guard, and the proactive scheduler.
type Orchestrator struct {
	cfg        Config
	store      *state.Store
	engine     *DecisionEngine
	guard      *ExecutionGuard
	scheduler  *Scheduler
	registry   *agent.Registry
	classifier agent.Classifier
	validator  agent.Validator
	selector   agent.Selector
	transport  Transport
	history    history.Repository
	logger     *zap.Logger
}

// Options bundles the collaborators for New
type Options struct {
	Config     Config
	Registry   *agent.Registry
	Classifier agent.Classifier
	Validator  agent.Validator
	Selector   agent.Selector
	Transport  Transport
	History    history.Repository // optional; nil disables transcripts
}

// New wires up an orchestrator
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:        opts.Config,
		store:      state.NewStore(opts.Config.Decay),
		guard:      NewExecutionGuard(opts.Config.QueueSettleDelay),
		scheduler:  NewScheduler(),
		registry:   opts.Registry,
		classifier: opts.Classifier,
		validator:  opts.Validator,
		selector:   opts.Selector,
		transport:  opts.Transport,
		history:    opts.History,
		logger:     logger.Get(),
	}
	o.engine = NewDecisionEngine(opts.Config.HoldIdleHandoffAfter, opts.Config.LowEngagement, opts.Selector)
	o.guard.SetRunner(o.runDrainedAction)
	return o
}

// SetTransport wires the delivery layer. The hub needs the orchestrator
// to route inbound messages and the orchestrator needs the hub to push,
// so the transport is attached after construction.
func (o *Orchestrator) SetTransport(t Transport) {
	o.transport = t
}

// Store exposes the state store, mainly for status handlers and tests
func (o *Orchestrator) Store() *state.Store {
	return o.store
}

// Guard exposes the execution guard, mainly for tests
func (o *Orchestrator) Guard() *ExecutionGuard {
	return o.guard
}

// OnConnect initializes per-user state and starts the recurring timers.
// A reconnect with a live session keeps the running timers; scheduling
// them again would double every tick and replay the greeting.
func (o *Orchestrator) OnConnect(userID state.UserID) {
	now := time.Now()
	o.store.Init(userID, now)
	if !o.scheduler.Track(userID) {
		o.logger.Info("User reconnected", zap.String("user_id", string(userID)))
		return
	}

	o.logger.Info("User connected", zap.String("user_id", string(userID)))

	// Status tick: decay, decision, snapshot push. Read-only apart from
	// the documented decay/decision mutations.
	o.scheduler.ScheduleRecurring(userID, o.cfg.StatusTickInterval, func() bool {
		o.statusTick(userID)
		return true
	})

	// Initial greeting: put the user on hold with the hold agent and an
	// active entertainment goal, say hello, and line up the entertainment
	// kickoff as a delayed handoff. The kickoff is deterministic
	// onboarding, so it forces the handoff instead of going through the
	// decision rules.
	o.scheduler.ScheduleOnce(userID, o.cfg.GreetingDelay, func() {
		now := time.Now()
		target := o.selector.Pick()
		o.store.Update(userID, now, func(g *state.GoalState, c *state.ConversationContext) {
			c.CurrentAgent = agent.KindHold
			g.CurrentState = state.StateOnHold
			g.ActivateGoal(state.GoalEntertainment, entertainmentGoalPriority, now)
			c.SetHandoff(target, "entertainment kickoff")
		})
		o.DispatchAction(userID, NewImmediateAction(ActionProactiveMessage, agent.KindHold, holdGreetingMessage))
		o.DispatchAction(userID, NewDelayedAction(ActionHandoff, target, "", o.cfg.KickoffDelay))
	})

	// Hold update: canned wait notice while the hold agent is current;
	// self-cancels after the first handoff.
	o.scheduler.ScheduleRecurring(userID, o.cfg.HoldUpdateInterval, func() bool {
		snap, ok := o.store.Snapshot(userID)
		if !ok {
			return false
		}
		if snap.Context.CurrentAgent != agent.KindHold {
			return false
		}
		o.DispatchAction(userID, NewImmediateAction(ActionHoldUpdate, agent.KindHold, holdWaitMessage))
		return true
	})
}

// OnDisconnect tears down timers, the lock entry, and per-user state.
func (o *Orchestrator) OnDisconnect(userID state.UserID) {
	o.scheduler.CancelAll(userID)
	o.guard.Drop(userID)
	o.store.Drop(userID)
	o.logger.Info("User disconnected", zap.String("user_id", string(userID)))
}

// OnMessage handles one inbound user message: context bookkeeping,
// classification, agent invocation under the guard, post-turn scoring,
// and a decision-engine pass. The returned proactive actions are the
// caller's to schedule via DispatchAction.
func (o *Orchestrator) OnMessage(ctx context.Context, userID state.UserID, text string, hist []agent.Message, override agent.Kind) (*MessageResult, error) {
	now := time.Now()

	var kind agent.Kind
	o.store.Update(userID, now, func(g *state.GoalState, c *state.ConversationContext) {
		c.LastMessageTime = now
		c.ConversationDepth++
		g.CurrentState = state.StateEngaged
		g.RecordPositiveInteraction(positiveInteractionStep, now)

		kind = o.resolveAgent(c, text, override)
	})

	if len(hist) == 0 && o.history != nil {
		if recent, err := o.history.RecentHistory(ctx, string(userID), 15); err == nil {
			hist = recent
		}
	}

	// The guard stays held for the whole provider await so nothing else
	// can start an invocation for this user in the meantime.
	if err := o.guard.Acquire(ctx, userID); err != nil {
		o.logger.Warn("Reactive acquire timed out", zap.String("user_id", string(userID)), zap.Error(err))
		reply := agent.FallbackReply(kind)
		return &MessageResult{Content: reply.Content, AgentUsed: kind, Confidence: reply.Confidence}, nil
	}
	defer o.guard.Release(userID)

	reply := o.invoke(ctx, userID, kind, text, hist)

	var actions []*GoalAction
	o.store.Update(userID, now, func(g *state.GoalState, c *state.ConversationContext) {
		c.CurrentAgent = kind
		c.AgentPerformance = blend(c.AgentPerformance, reply.Confidence)
		c.UserSatisfaction = blend(c.UserSatisfaction, reply.Confidence)

		if action := o.engine.Evaluate(g, c, time.Now()); action != nil {
			actions = append(actions, action)
		}
	})

	if o.validator != nil {
		o.validator.Validate(kind, text, reply.Content, "", string(userID), false)
	}
	o.recordTurns(ctx, userID, kind, text, reply.Content)

	return &MessageResult{
		Content:          reply.Content,
		AgentUsed:        kind,
		Confidence:       reply.Confidence,
		ProactiveActions: actions,
	}, nil
}

// DispatchAction routes a proactive action: delayed actions get a
// one-shot timer; immediate ones execute now, falling back to the queue
// when the guard is held.
func (o *Orchestrator) DispatchAction(userID state.UserID, action *GoalAction) {
	if action == nil {
		return
	}
	if action.Timing == TimingDelayed && action.Delay > 0 {
		o.scheduler.ScheduleOnce(userID, action.Delay, func() {
			o.runQueuedAction(userID, &GoalAction{
				Type:      action.Type,
				AgentKind: action.AgentKind,
				Message:   action.Message,
				Timing:    TimingImmediate,
			})
		})
		return
	}
	go o.runQueuedAction(userID, action)
}

// ExecuteProactiveAction is the only path that invokes an agent for a
// non-reply message. It fails with the busy sentinel when the guard
// cannot be acquired; callers rely on the queue, never on retrying.
func (o *Orchestrator) ExecuteProactiveAction(ctx context.Context, userID state.UserID, action *GoalAction) (*InvocationResult, error) {
	if !o.scheduler.Alive(userID) {
		return nil, errors.NewSessionClosed(string(userID))
	}
	if !o.guard.TryAcquire(userID) {
		return nil, errors.ErrAgentBusy
	}
	defer o.guard.Release(userID)

	var reply *agent.Reply
	if action.Message != "" {
		// Canned content (greeting, hold updates) skips the provider
		reply = &agent.Reply{Content: action.Message, Confidence: 1.0}
	} else {
		var hist []agent.Message
		if o.history != nil {
			hist, _ = o.history.RecentHistory(ctx, string(userID), 15)
		}
		reply = o.invokeProactive(ctx, userID, action, hist)
		if reply == nil {
			// Failed proactive actions are silent to the user
			return nil, errors.NewInvocationFailed(action.AgentKind.String(), 1, nil)
		}
	}

	now := time.Now()
	o.store.Update(userID, now, func(g *state.GoalState, c *state.ConversationContext) {
		if action.Type == ActionHandoff {
			c.CurrentAgent = action.AgentKind
			c.ClearHandoff()
			g.CurrentState = state.StateEngaged
		}
	})

	if o.validator != nil {
		o.validator.Validate(action.AgentKind, "", reply.Content, "", string(userID), true)
	}
	o.recordTurns(ctx, userID, action.AgentKind, "", reply.Content)

	if o.transport != nil {
		if err := o.transport.Deliver(userID, Delivery{
			Content:    reply.Content,
			AgentUsed:  action.AgentKind,
			Confidence: reply.Confidence,
			Proactive:  true,
		}); err != nil {
			o.logger.Warn("Proactive delivery failed",
				zap.String("user_id", string(userID)),
				zap.Error(err),
			)
		}
	}

	return &InvocationResult{
		Content:    reply.Content,
		AgentUsed:  action.AgentKind,
		Confidence: reply.Confidence,
	}, nil
}

// runQueuedAction executes a freshly dispatched action. Losing the
// acquire race appends it to the tail of the user's queue.
func (o *Orchestrator) runQueuedAction(userID state.UserID, action *GoalAction) {
	if o.executeAction(userID, action) {
		o.guard.Enqueue(userID, action)
	}
}

// runDrainedAction is the guard's drain callback. A drained action that
// loses the acquire race goes back to the head of the queue, so the
// actions queued behind it keep their order.
func (o *Orchestrator) runDrainedAction(userID state.UserID, action *GoalAction) {
	if o.executeAction(userID, action) {
		o.guard.Requeue(userID, action)
	}
}

// executeAction runs one proactive action. True means the guard was
// held and the caller must queue the action; other failures are logged
// and the queue keeps draining.
func (o *Orchestrator) executeAction(userID state.UserID, action *GoalAction) bool {
	if !o.scheduler.Alive(userID) {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.InvocationTimeout)
	defer cancel()

	_, err := o.ExecuteProactiveAction(ctx, userID, action)
	if err == nil {
		return false
	}
	if errors.IsAgentBusy(err) {
		return true
	}
	o.logger.Warn("Proactive action failed",
		zap.String("user_id", string(userID)),
		zap.String("action_type", string(action.Type)),
		zap.Error(err),
	)
	return false
}

// statusTick recomputes decays, re-runs the decision engine, and pushes
// a read-only snapshot to the transport.
func (o *Orchestrator) statusTick(userID state.UserID) {
	now := time.Now()
	var action *GoalAction
	o.store.Update(userID, now, func(g *state.GoalState, c *state.ConversationContext) {
		o.cfg.Decay.ApplyIdleDecay(g, now)
		o.cfg.Decay.ApplyMessageTimeDecay(c, now)
		action = o.engine.Evaluate(g, c, now)
	})

	if action != nil {
		o.DispatchAction(userID, action)
	}

	if o.transport != nil {
		if snap, ok := o.store.Snapshot(userID); ok {
			if err := o.transport.PushStatus(userID, snap); err != nil {
				o.logger.Debug("Status push failed", zap.String("user_id", string(userID)), zap.Error(err))
			}
		}
	}
}

// resolveAgent picks the agent for a reactive turn: explicit override
// first, then a pending handoff, then the classifier, else whatever
// agent is current.
func (o *Orchestrator) resolveAgent(c *state.ConversationContext, text string, override agent.Kind) agent.Kind {
	if override != "" {
		c.ClearHandoff()
		return override
	}
	if c.ShouldHandoff {
		target := c.HandoffTarget
		c.ClearHandoff()
		return target
	}
	if o.classifier != nil {
		if suggested, confidence := o.classifier.Classify(text); confidence >= classifierConfidenceFloor {
			return suggested
		}
	}
	if c.CurrentAgent != "" {
		return c.CurrentAgent
	}
	return agent.KindGeneral
}

// invoke runs a reactive agent turn; provider failure degrades to the
// canned fallback so the user always gets a response.
func (o *Orchestrator) invoke(ctx context.Context, userID state.UserID, kind agent.Kind, text string, hist []agent.Message) *agent.Reply {
	a, err := o.registry.Get(kind)
	if err != nil {
		o.logger.Error("Unknown agent kind", zap.String("kind", kind.String()), zap.Error(err))
		return agent.FallbackReply(kind)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, o.cfg.InvocationTimeout)
	defer cancel()

	reply, err := a.Respond(invokeCtx, text, hist)
	if err != nil {
		o.logger.Error("Agent invocation failed",
			zap.String("user_id", string(userID)),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		return agent.FallbackReply(kind)
	}
	return reply
}

// invokeProactive runs a proactive agent turn; nil on failure.
func (o *Orchestrator) invokeProactive(ctx context.Context, userID state.UserID, action *GoalAction, hist []agent.Message) *agent.Reply {
	a, err := o.registry.Get(action.AgentKind)
	if err != nil {
		o.logger.Error("Unknown agent kind", zap.String("kind", action.AgentKind.String()), zap.Error(err))
		return nil
	}

	prompt := proactivePrompt(action)
	reply, err := a.Respond(ctx, prompt, hist)
	if err != nil {
		o.logger.Warn("Proactive invocation failed",
			zap.String("user_id", string(userID)),
			zap.String("kind", action.AgentKind.String()),
			zap.Error(err),
		)
		return nil
	}
	return reply
}

// proactivePrompt builds the internal instruction for an agent-initiated
// turn. Never shown to the user.
func proactivePrompt(action *GoalAction) string {
	switch action.Type {
	case ActionHandoff:
		return "You are taking over the conversation for a caller waiting on hold. " +
			"Introduce yourself in one sentence, then open with something engaging."
	default:
		return "The caller has been quiet for a while. Proactively share something short and engaging to keep them company."
	}
}

// recordTurns appends the turn pair to the transcript store, best-effort.
func (o *Orchestrator) recordTurns(ctx context.Context, userID state.UserID, kind agent.Kind, userText, replyText string) {
	if o.history == nil {
		return
	}
	now := time.Now()
	if userText != "" {
		if err := o.history.AppendTurn(ctx, history.Turn{
			UserID:    string(userID),
			Role:      "user",
			Content:   userText,
			CreatedAt: now,
		}); err != nil {
			o.logger.Debug("Transcript append failed", zap.Error(err))
		}
	}
	if err := o.history.AppendTurn(ctx, history.Turn{
		UserID:    string(userID),
		Role:      "assistant",
		AgentKind: kind.String(),
		Content:   replyText,
		CreatedAt: now,
	}); err != nil {
		o.logger.Debug("Transcript append failed", zap.Error(err))
	}
}

// blend folds a new observation into a running score
func blend(current, observation float64) float64 {
	v := 0.7*current + 0.3*observation
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
