package agent

import (
	"context"
	"testing"

	"concierge/backend/pkg/errors"
)

type fakeAgent struct {
	kind Kind
}

func (a *fakeAgent) Kind() Kind { return a.kind }

func (a *fakeAgent) Respond(_ context.Context, _ string, _ []Message) (*Reply, error) {
	return &Reply{Content: "ok", Confidence: 0.5}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	joke := &fakeAgent{kind: KindJoke}
	r.Register(joke)

	got, err := r.Get(KindJoke)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != Agent(joke) {
		t.Error("expected the registered agent back")
	}

	// Re-registering a kind replaces the agent
	replacement := &fakeAgent{kind: KindJoke}
	r.Register(replacement)
	got, _ = r.Get(KindJoke)
	if got != Agent(replacement) {
		t.Error("expected the replacement agent")
	}
	if len(r.Kinds()) != 1 {
		t.Errorf("expected 1 registered kind, got %d", len(r.Kinds()))
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(KindTrivia)
	if err == nil {
		t.Fatal("expected an error for an unregistered kind")
	}
	var unknown *errors.ErrUnknownAgentKind
	if u, ok := err.(*errors.ErrUnknownAgentKind); ok {
		unknown = u
	}
	if unknown == nil || unknown.Kind != "trivia" {
		t.Errorf("expected typed unknown-kind error, got %v", err)
	}
}
