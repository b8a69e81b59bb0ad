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

// AdminActionWorker consumes admin decisions, transitions the flag
// state machine, and enqueues the outcome notification. The only legal
// transitions are PENDING to APPROVED or REJECTED; both are terminal.
type AdminActionWorker struct {
	store  store.Store
	queue  queue.Queue
	logger *slog.Logger
}

func NewAdminActionWorker(st store.Store, q queue.Queue, logger *slog.Logger) *AdminActionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminActionWorker{
		store:  st,
		queue:  q,
		logger: logger.With("source", "admin_action_worker"),
	}
}

// HandleJob implements queue.Handler for the admin-action topic. The
// status transition is a compare-and-set on PENDING, so duplicate and
// stale deliveries can never flip a terminal state or double-notify.
func (w *AdminActionWorker) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload AdminActionJob
	if err := decodePayload(job, &payload); err != nil {
		return err
	}

	log := w.logger.With("flagID", payload.FlaggedContentID, "action", payload.Action, "adminID", payload.ActingAdminID)

	flag, err := w.store.GetFlaggedContent(ctx, payload.FlaggedContentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// flag (or its content) deleted concurrently
			log.Info("flag not found, acking as no-op")
			return nil
		}
		return fmt.Errorf("loading flag: %w", err)
	}

	target, err := payload.Action.TargetStatus()
	if err != nil {
		// Validate() already rejects unknown actions; belt and braces
		return fmt.Errorf("%v: %w", err, queue.ErrPoisonJob)
	}

	updated, err := w.store.UpdateFlaggedContentStatusIfPending(ctx, flag.ID, target)
	if err != nil {
		return fmt.Errorf("updating flag status: %w", err)
	}
	if !updated {
		current, err := w.store.GetFlaggedContent(ctx, flag.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("re-reading flag: %w", err)
		}
		if current.Status == target {
			log.Info("duplicate admin action, already applied")
		} else {
			log.Warn("stale admin action ignored", "currentStatus", current.Status, "requestedStatus", target)
		}
		return nil
	}
	adminActionsApplied.WithLabelValues(string(payload.Action)).Inc()
	log.Info("flag status updated", "status", target)

	reason := payload.Reason
	if reason == "" {
		reason = flag.Reason
	}

	author, err := w.store.GetUser(ctx, flag.AuthorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading author: %w", err)
	}

	kind := notifier.KindContentApproved
	if payload.Action == ActionReject {
		kind = notifier.KindContentRejected
	}
	enqueueNotification(ctx, w.queue, log, kind, author, flag.ContentKind, reason)
	return nil
}
