package agent

import (
	"context"
	"strings"

	"concierge/backend/pkg/logger"
	"go.uber.org/zap"
)

// CompletionProvider is the external text-generation collaborator.
// The LLM adapter satisfies this; tests plug in fakes.
type CompletionProvider interface {
	Complete(ctx context.Context, systemPrompt, message string, history []Message) (string, error)
}

// persona describes how one agent kind talks
type persona struct {
	systemPrompt string
	fallback     string
	confidence   float64
}

var personas = map[Kind]persona{
	KindGeneral: {
		systemPrompt: "You are a friendly support-line assistant. Keep replies short and conversational.",
		fallback:     "I'm here with you — what can I help with?",
		confidence:   0.6,
	},
	KindHold: {
		systemPrompt: "You are a hold-line attendant. Reassure the caller that a specialist is on the way. One or two sentences.",
		fallback:     "Thanks for your patience — a specialist will be with you shortly.",
		confidence:   0.9,
	},
	KindJoke: {
		systemPrompt: "You tell short, clean, genuinely funny jokes. One joke per reply.",
		fallback:     "Why don't programmers like nature? Too many bugs.",
		confidence:   0.8,
	},
	KindTrivia: {
		systemPrompt: "You share one surprising trivia fact per reply, then ask a light follow-up question.",
		fallback:     "Here's one: honey never spoils. Sealed pots from ancient Egypt are still edible.",
		confidence:   0.8,
	},
	KindGif: {
		systemPrompt: "You describe a fitting reaction GIF in brackets, like [GIF: cat typing furiously], plus a one-line quip.",
		fallback:     "[GIF: dog patiently staring at the door] Hang tight!",
		confidence:   0.7,
	},
	KindStoryTeller: {
		systemPrompt: "You tell very short serialized stories, a paragraph at a time, ending on a mild cliffhanger.",
		fallback:     "Once upon a time, a ticket waited in a queue. Little did it know, its turn was coming...",
		confidence:   0.75,
	},
	KindRiddleMaster: {
		systemPrompt: "You pose one riddle per reply and reveal the previous answer when asked.",
		fallback:     "What has keys but can't open locks? (Think about it — answer next time!)",
		confidence:   0.75,
	},
	KindQuoteMaster: {
		systemPrompt: "You share one inspiring or witty quote per reply, with attribution.",
		fallback:     "\"Patience is bitter, but its fruit is sweet.\" — Aristotle",
		confidence:   0.75,
	},
	KindGameHost: {
		systemPrompt: "You host quick text games: 20 questions, word association, two truths and a lie. Keep turns snappy.",
		fallback:     "Quick game while we wait? Word association: I'll start — 'telephone'.",
		confidence:   0.75,
	},
	KindMusicGuru: {
		systemPrompt: "You recommend songs and fun music facts matched to the caller's mood.",
		fallback:     "While you wait: 'Here Comes the Sun' — clinically proven hold music improvement.",
		confidence:   0.7,
	},
	KindAccountSupport: {
		systemPrompt: "You are an account support specialist. Help with login, profile, and account access issues.",
		fallback:     "I can help with your account. Could you tell me a bit more about the issue?",
		confidence:   0.85,
	},
	KindBillingSupport: {
		systemPrompt: "You are a billing support specialist. Help with invoices, charges, and refunds. Never invent amounts.",
		fallback:     "I can look into billing questions. What charge are you asking about?",
		confidence:   0.85,
	},
	KindWebsiteSupport: {
		systemPrompt: "You are a website support specialist. Help with page errors, loading problems, and browser issues.",
		fallback:     "Let's sort out that website issue. What page were you on when it happened?",
		confidence:   0.85,
	},
	KindOperatorSupport: {
		systemPrompt: "You are a human-operator liaison. Collect what the caller needs so an operator can take over.",
		fallback:     "I'll get you to an operator. Can you summarize what you need help with?",
		confidence:   0.8,
	},
}

// FallbackReply returns the canned reply for a kind, used when the
// completion provider fails so the user always gets some response.
func FallbackReply(kind Kind) *Reply {
	p, ok := personas[kind]
	if !ok {
		p = personas[KindGeneral]
	}
	return &Reply{Content: p.fallback, Confidence: 0.1}
}

// PersonaAgent is an LLM-backed agent with a per-kind persona prompt.
type PersonaAgent struct {
	kind     Kind
	provider CompletionProvider
	logger   *zap.Logger
}

// NewPersonaAgent creates an agent for the given kind
func NewPersonaAgent(kind Kind, provider CompletionProvider) *PersonaAgent {
	return &PersonaAgent{
		kind:     kind,
		provider: provider,
		logger:   logger.Get(),
	}
}

// Kind returns the agent's kind
func (a *PersonaAgent) Kind() Kind {
	return a.kind
}

// Respond generates a reply for the message using the agent's persona
func (a *PersonaAgent) Respond(ctx context.Context, message string, history []Message) (*Reply, error) {
	p, ok := personas[a.kind]
	if !ok {
		p = personas[KindGeneral]
	}

	content, err := a.provider.Complete(ctx, p.systemPrompt, message, history)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	confidence := p.confidence
	if content == "" {
		a.logger.Warn("Empty completion, using fallback", zap.String("kind", a.kind.String()))
		return FallbackReply(a.kind), nil
	}

	return &Reply{Content: content, Confidence: confidence}, nil
}

// RegisterDefaults fills a registry with persona agents for every known kind.
func RegisterDefaults(r *Registry, provider CompletionProvider) {
	for kind := range personas {
		r.Register(NewPersonaAgent(kind, provider))
	}
}
