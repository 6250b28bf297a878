package agent

import "time"

// Kind identifies a conversational agent. The orchestration engine treats
// kinds as opaque registry keys; adding a kind means registering an Agent,
// not editing orchestration code.
type Kind string

const (
	KindGeneral         Kind = "general"
	KindHold            Kind = "hold"
	KindJoke            Kind = "joke"
	KindTrivia          Kind = "trivia"
	KindGif             Kind = "gif"
	KindStoryTeller     Kind = "story_teller"
	KindRiddleMaster    Kind = "riddle_master"
	KindQuoteMaster     Kind = "quote_master"
	KindGameHost        Kind = "game_host"
	KindMusicGuru       Kind = "music_guru"
	KindAccountSupport  Kind = "account_support"
	KindBillingSupport  Kind = "billing_support"
	KindWebsiteSupport  Kind = "website_support"
	KindOperatorSupport Kind = "operator_support"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// EntertainmentKinds are the agents eligible for proactive engagement
// while a user waits on hold.
func EntertainmentKinds() []Kind {
	return []Kind{
		KindJoke,
		KindTrivia,
		KindGif,
		KindStoryTeller,
		KindRiddleMaster,
		KindQuoteMaster,
		KindGameHost,
		KindMusicGuru,
	}
}

// SupportKinds are the agents that handle actual support requests.
func SupportKinds() []Kind {
	return []Kind{
		KindAccountSupport,
		KindBillingSupport,
		KindWebsiteSupport,
		KindOperatorSupport,
	}
}

// IsEntertainment reports whether the kind belongs to the entertainment set.
func (k Kind) IsEntertainment() bool {
	for _, e := range EntertainmentKinds() {
		if k == e {
			return true
		}
	}
	return false
}

// Message is a single turn of conversation history passed to agents.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	AgentKind Kind      `json:"agent_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply is what an agent produces for a single turn.
type Reply struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}
