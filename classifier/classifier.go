// Package classifier adapts text-classification providers to a single
// policy-violation verdict.
package classifier

import (
	"context"
)

// Verdict is the outcome of classifying one piece of text.
// Unanalyzable means the provider rejected the input as structurally
// unprocessable; it is a skip, not a failure, and must not be retried.
type Verdict struct {
	Violation    bool
	Reason       string
	Unanalyzable bool
}

// Classifier returns a verdict for a string. Errors are always
// transport-level and safe to retry; structural rejection is expressed
// through Verdict.Unanalyzable instead.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Verdict, error)
}
