package moderation

import (
	"encoding/json"
	"fmt"

	"github.com/arbiterhq/arbiter/models"
	"github.com/arbiterhq/arbiter/notifier"
	"github.com/arbiterhq/arbiter/queue"
)

// Tagged payload types, one per topic. Each is validated at the queue
// boundary; a payload that fails to decode or validate is a poison job.

// ModerationJob asks the moderation worker to classify one piece of
// content.
type ModerationJob struct {
	ContentID   uint               `json:"contentId"`
	ContentKind models.ContentKind `json:"contentKind"`
	Body        string             `json:"body"`
	AuthorID    uint               `json:"authorId"`
}

func (j *ModerationJob) Validate() error {
	if j.ContentID == 0 {
		return fmt.Errorf("missing contentId")
	}
	if !j.ContentKind.Valid() {
		return fmt.Errorf("invalid contentKind: %q", j.ContentKind)
	}
	if j.AuthorID == 0 {
		return fmt.Errorf("missing authorId")
	}
	return nil
}

// AdminAction is an administrative decision on a flag.
type AdminAction string

const (
	ActionApprove = AdminAction("APPROVE")
	ActionReject  = AdminAction("REJECT")
)

// TargetStatus maps the action to the flag status it establishes.
func (a AdminAction) TargetStatus() (models.FlagStatus, error) {
	switch a {
	case ActionApprove:
		return models.FlagStatusApproved, nil
	case ActionReject:
		return models.FlagStatusRejected, nil
	default:
		return "", fmt.Errorf("unknown admin action: %q", a)
	}
}

// AdminActionJob carries an admin decision to the admin action worker.
type AdminActionJob struct {
	FlaggedContentID uint        `json:"flaggedContentId"`
	Action           AdminAction `json:"action"`
	Reason           string      `json:"reason,omitempty"`
	ActingAdminID    uint        `json:"actingAdminId"`
}

func (j *AdminActionJob) Validate() error {
	if j.FlaggedContentID == 0 {
		return fmt.Errorf("missing flaggedContentId")
	}
	if _, err := j.Action.TargetStatus(); err != nil {
		return err
	}
	if j.ActingAdminID == 0 {
		return fmt.Errorf("missing actingAdminId")
	}
	return nil
}

// Recipient is a point-in-time copy of the fields needed to address a
// message. It deliberately carries no notification preference; the
// notification worker re-reads that at send time.
type Recipient struct {
	ID          uint   `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// NotificationJob carries one pending notification to the notification
// worker.
type NotificationJob struct {
	Kind        notifier.Kind      `json:"kind"`
	Recipient   Recipient          `json:"recipient"`
	ContentKind models.ContentKind `json:"contentKind"`
	Reason      string             `json:"reason,omitempty"`
}

func (j *NotificationJob) Validate() error {
	if !j.Kind.Valid() {
		return fmt.Errorf("unknown notification kind: %q", j.Kind)
	}
	if j.Recipient.ID == 0 {
		return fmt.Errorf("missing recipient id")
	}
	if j.Recipient.Email == "" {
		return fmt.Errorf("missing recipient email")
	}
	return nil
}

func decodePayload(job *queue.Job, into interface{ Validate() error }) error {
	if err := json.Unmarshal(job.Payload, into); err != nil {
		return fmt.Errorf("decoding %s payload: %v: %w", job.Topic, err, queue.ErrPoisonJob)
	}
	if err := into.Validate(); err != nil {
		return fmt.Errorf("invalid %s payload: %v: %w", job.Topic, err, queue.ErrPoisonJob)
	}
	return nil
}
