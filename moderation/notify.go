package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arbiterhq/arbiter/notifier"
	"github.com/arbiterhq/arbiter/queue"
	"github.com/arbiterhq/arbiter/store"
)

// NotificationWorker consumes notification jobs and conditionally
// dispatches to the mail transport. The user's notification preference
// is re-read from the store at send time; the copy in the payload is
// never trusted because it may have changed since enqueue.
type NotificationWorker struct {
	store    store.Store
	notifier notifier.Notifier
	logger   *slog.Logger
}

func NewNotificationWorker(st store.Store, n notifier.Notifier, logger *slog.Logger) *NotificationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationWorker{
		store:    st,
		notifier: n,
		logger:   logger.With("source", "notification_worker"),
	}
}

// HandleJob implements queue.Handler for the notification topic.
func (w *NotificationWorker) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload NotificationJob
	if err := decodePayload(job, &payload); err != nil {
		return err
	}

	log := w.logger.With("kind", payload.Kind, "recipientID", payload.Recipient.ID)

	user, err := w.store.GetUser(ctx, payload.Recipient.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("recipient no longer exists, dropping notification")
			return nil
		}
		return fmt.Errorf("loading recipient: %w", err)
	}
	if !user.NotifyOnModeration {
		log.Debug("recipient has moderation notifications disabled")
		notificationsSuppressed.Inc()
		return nil
	}

	data := map[string]string{
		"contentKind": string(payload.ContentKind),
		"reason":      payload.Reason,
	}
	if err := w.notifier.Send(ctx, payload.Kind, payload.Recipient.Email, payload.Recipient.DisplayName, data); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	notificationsSent.WithLabelValues(string(payload.Kind)).Inc()
	return nil
}
