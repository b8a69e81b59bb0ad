// Package moderation implements the asynchronous moderation pipeline:
// the moderation, admin action, and notification workers, plus the
// intake surface the API layer enqueues through.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/arbiterhq/arbiter/classifier"
	"github.com/arbiterhq/arbiter/models"
	"github.com/arbiterhq/arbiter/notifier"
	"github.com/arbiterhq/arbiter/queue"
	"github.com/arbiterhq/arbiter/store"
)

// MinAnalyzableLength is the minimum trimmed length (in runes) worth
// sending to the classifier. Shorter strings are skipped outright: a
// "clean" verdict on "ok" is indistinguishable from a true negative
// and burns a provider call.
const MinAnalyzableLength = 5

// DefaultKeywordReasons is the ruleset for the local keyword fallback
// classifier, used when no hosted provider is configured.
func DefaultKeywordReasons() map[string]string {
	return map[string]string{
		"spam":  "spam",
		"scam":  "spam",
		"kill":  "threat",
		"hurt":  "threat",
		"slur":  "hate-speech",
		"dox":   "harassment",
		"doxx":  "harassment",
		"stalk": "harassment",
	}
}

// ModerationWorker consumes moderation jobs: classify the body, and on
// a violation create the flag and enqueue the author's notification.
type ModerationWorker struct {
	store      store.Store
	queue      queue.Queue
	classifier classifier.Classifier
	logger     *slog.Logger
}

func NewModerationWorker(st store.Store, q queue.Queue, cl classifier.Classifier, logger *slog.Logger) *ModerationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModerationWorker{
		store:      st,
		queue:      q,
		classifier: cl,
		logger:     logger.With("source", "moderation_worker"),
	}
}

// HandleJob implements queue.Handler for the moderation topic. Safe to
// re-run on redelivery: the flag insert is idempotent and the
// notification is only enqueued by the delivery that created the flag.
func (w *ModerationWorker) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload ModerationJob
	if err := decodePayload(job, &payload); err != nil {
		return err
	}

	log := w.logger.With("contentID", payload.ContentID, "contentKind", payload.ContentKind)

	body := strings.TrimSpace(payload.Body)
	if utf8.RuneCountInString(body) < MinAnalyzableLength {
		log.Debug("content too short to analyze, skipping")
		moderationSkipped.Inc()
		return nil
	}

	verdict, err := w.classifier.Classify(ctx, body)
	if err != nil {
		return fmt.Errorf("classifying content: %w", err)
	}
	if verdict.Unanalyzable {
		log.Info("classifier rejected input as unanalyzable, skipping")
		moderationSkipped.Inc()
		return nil
	}
	if !verdict.Violation {
		moderationClean.Inc()
		return nil
	}

	flag := &models.FlaggedContent{
		ContentID:   payload.ContentID,
		ContentKind: payload.ContentKind,
		AuthorID:    payload.AuthorID,
		Reason:      verdict.Reason,
		Status:      models.FlagStatusPending,
	}
	_, created, err := w.store.InsertFlaggedContentIfAbsent(ctx, flag)
	if err != nil {
		return fmt.Errorf("recording flag: %w", err)
	}
	if !created {
		// redelivery of a job that already flagged this content
		log.Info("content already flagged, skipping notification")
		return nil
	}
	moderationFlagged.WithLabelValues(string(payload.ContentKind)).Inc()
	log.Info("flagged content", "reason", verdict.Reason)

	author, err := w.store.GetUser(ctx, payload.AuthorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// author deleted concurrently, nobody to notify
			return nil
		}
		return fmt.Errorf("loading author: %w", err)
	}

	enqueueNotification(ctx, w.queue, log, notifier.KindContentFlagged, author, payload.ContentKind, verdict.Reason)
	return nil
}

// enqueueNotification is best-effort: by the time it runs the flag
// write has already committed, and a redelivery of the parent job would
// observe that write and skip the notification anyway. Failing the job
// here would burn retries without ever re-reaching this point, so an
// enqueue failure is logged and reported instead of returned.
func enqueueNotification(ctx context.Context, q queue.Queue, log *slog.Logger, kind notifier.Kind, recipient *models.User, contentKind models.ContentKind, reason string) {
	payload, err := json.Marshal(NotificationJob{
		Kind: kind,
		Recipient: Recipient{
			ID:          recipient.ID,
			Email:       recipient.Email,
			DisplayName: recipient.DisplayName,
		},
		ContentKind: contentKind,
		Reason:      reason,
	})
	if err != nil {
		log.Error("failed to encode notification payload", "err", err, "kind", kind)
		return
	}
	if _, err := q.Enqueue(ctx, queue.TopicNotification, payload, nil); err != nil {
		log.Error("failed to enqueue notification", "err", err, "kind", kind, "recipientID", recipient.ID)
		notificationsLost.WithLabelValues(string(kind)).Inc()
		return
	}
	log.Debug("enqueued notification", "kind", kind, "recipientID", recipient.ID)
}
