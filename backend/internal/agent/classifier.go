package agent

import "strings"

// Classifier maps raw user text to a suggested agent kind with a
// confidence score. An explicit caller override always wins upstream,
// so the classifier only has to be a reasonable default.
type Classifier interface {
	Classify(text string) (Kind, float64)
}

// KeywordClassifier is a deterministic keyword-based classifier.
// Pure and dependency-free so routing behavior is testable.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a keyword classifier
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// keyword tables, checked in order; support intents outrank entertainment
var classifierRules = []struct {
	kind     Kind
	score    float64
	keywords []string
}{
	{KindBillingSupport, 0.9, []string{"bill", "billing", "invoice", "charge", "charged", "refund", "payment", "subscription"}},
	{KindAccountSupport, 0.9, []string{"account", "login", "log in", "password", "locked out", "sign in", "profile", "email change"}},
	{KindWebsiteSupport, 0.85, []string{"website", "site", "page", "404", "error message", "broken", "won't load", "crash"}},
	{KindOperatorSupport, 0.95, []string{"operator", "human", "real person", "representative", "speak to someone", "supervisor"}},
	{KindJoke, 0.8, []string{"joke", "funny", "make me laugh", "humor"}},
	{KindTrivia, 0.8, []string{"trivia", "fun fact", "did you know", "quiz me"}},
	{KindGif, 0.75, []string{"gif", "meme", "reaction"}},
	{KindStoryTeller, 0.75, []string{"story", "tale", "once upon"}},
	{KindRiddleMaster, 0.75, []string{"riddle", "puzzle", "brain teaser"}},
	{KindQuoteMaster, 0.7, []string{"quote", "inspire", "motivation"}},
	{KindGameHost, 0.75, []string{"game", "play", "20 questions", "word association"}},
	{KindMusicGuru, 0.7, []string{"music", "song", "playlist", "band", "album"}},
}

// Classify returns the best-matching kind for the text, falling back to
// the general agent with low confidence when nothing matches.
func (c *KeywordClassifier) Classify(text string) (Kind, float64) {
	lowered := strings.ToLower(text)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if containsKeyword(lowered, kw) {
				return rule.kind, rule.score
			}
		}
	}
	return KindGeneral, 0.3
}

// containsKeyword reports whether kw occurs in text on word boundaries,
// so "play" matches "let's play" but not "playlist".
func containsKeyword(text, kw string) bool {
	for from := 0; from+len(kw) <= len(text); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if (start == 0 || !isWordChar(text[start-1])) &&
			(end == len(text) || !isWordChar(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
