package classifier

import (
	"context"
	"strings"
)

// KeywordClassifier is a local classifier mapping exact lowercase
// tokens to violation reasons. It serves deployments without a hosted
// provider and keeps tests deterministic.
type KeywordClassifier struct {
	// token -> reason, eg "spam" -> "spam", "hurt" -> "threat"
	Reasons map[string]string
}

var _ Classifier = (*KeywordClassifier)(nil)

func (c *KeywordClassifier) Classify(ctx context.Context, text string) (*Verdict, error) {
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'")
		if reason, ok := c.Reasons[tok]; ok {
			return &Verdict{Violation: true, Reason: reason}, nil
		}
	}
	return &Verdict{}, nil
}
