// Package identity resolves external identity-provider subjects to
// local user records, provisioning them exactly once under concurrent
// first-contact requests.
package identity

import (
	"context"
	"errors"
)

// Profile is the subset of an identity-provider subject record the
// pipeline needs for provisioning.
type Profile struct {
	SubjectID   string   `json:"subject_id"`
	Emails      []string `json:"emails"`
	DisplayName string   `json:"display_name"`
}

// PrimaryEmail returns the first listed email, or empty when the
// profile carries none.
func (p *Profile) PrimaryEmail() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// Directory is the identity-provider lookup contract.
type Directory interface {
	LookupSubject(ctx context.Context, subjectID string) (*Profile, error)
}

// ErrSubjectNotFound is returned when the identity provider has no
// record of the subject.
var ErrSubjectNotFound = errors.New("subject not found in identity provider")

// ErrProfileIncomplete is returned when a subject profile has no usable
// email to provision a user from.
var ErrProfileIncomplete = errors.New("identity profile has no usable email")

// ErrInconsistent indicates a user row reported as existing could not
// be re-read. This should never happen; it is surfaced loudly and not
// retried.
var ErrInconsistent = errors.New("user row missing after insert conflict")
