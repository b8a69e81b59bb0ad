// Package notifier delivers moderation-outcome messages to users and
// operational events to operators. Preference gating happens in the
// caller (the notification worker), never here.
package notifier

import (
	"context"
	"fmt"
)

// Kind selects the message template for a notification.
type Kind string

const (
	KindContentFlagged  = Kind("content-flagged")
	KindContentApproved = Kind("content-approved")
	KindContentRejected = Kind("content-rejected")
)

func (k Kind) Valid() bool {
	switch k {
	case KindContentFlagged, KindContentApproved, KindContentRejected:
		return true
	default:
		return false
	}
}

// Notifier sends one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, kind Kind, recipientEmail, recipientName string, data map[string]string) error
}

// Message is a rendered notification ready for the mail transport.
type Message struct {
	Subject string
	Body    string
}

// RenderMessage fills in the template for a notification kind. Template
// data keys: "contentKind", "reason".
func RenderMessage(kind Kind, recipientName string, data map[string]string) (*Message, error) {
	contentKind := data["contentKind"]
	reason := data["reason"]

	switch kind {
	case KindContentFlagged:
		return &Message{
			Subject: "Your content is under review",
			Body: fmt.Sprintf("Hi %s,\n\nYour %s was flagged for review (%s). It will stay hidden until a moderator makes a decision.\n",
				recipientName, lowerKind(contentKind), reason),
		}, nil
	case KindContentApproved:
		return &Message{
			Subject: "Your content was approved",
			Body: fmt.Sprintf("Hi %s,\n\nGood news: a moderator reviewed your %s and approved it. It is visible again.\n",
				recipientName, lowerKind(contentKind)),
		}, nil
	case KindContentRejected:
		return &Message{
			Subject: "Your content was removed",
			Body: fmt.Sprintf("Hi %s,\n\nA moderator reviewed your %s and removed it. Reason: %s.\n",
				recipientName, lowerKind(contentKind), reason),
		}, nil
	default:
		return nil, fmt.Errorf("unknown notification kind: %q", kind)
	}
}

func lowerKind(contentKind string) string {
	switch contentKind {
	case "COMMENT":
		return "comment"
	case "REVIEW":
		return "review"
	default:
		return "content"
	}
}
