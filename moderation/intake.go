package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arbiterhq/arbiter/models"
	"github.com/arbiterhq/arbiter/queue"
	"github.com/arbiterhq/arbiter/store"
)

// ErrNotAdmin is returned when a non-admin user submits a moderation
// decision.
var ErrNotAdmin = errors.New("acting user is not an admin")

// ErrInvalidContentKind is returned for submissions whose kind is not a
// moderated content type.
var ErrInvalidContentKind = errors.New("invalid content kind")

// Intake is the surface the API layer calls into. Content creation is
// synchronous; the moderation job behind it is fire-and-forget, so a
// queue outage never turns into a content-creation failure.
type Intake struct {
	store  store.Store
	queue  queue.Queue
	logger *slog.Logger
}

func NewIntake(st store.Store, q queue.Queue, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		store:  st,
		queue:  q,
		logger: logger.With("source", "intake"),
	}
}

// SubmitContent persists the content row and enqueues its moderation
// job. An enqueue failure is logged, not surfaced: the caller's HTTP
// response depends only on the synchronous insert.
func (in *Intake) SubmitContent(ctx context.Context, authorID uint, kind models.ContentKind, body string, parentPostID uint) (*models.Content, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentKind, kind)
	}

	content := &models.Content{
		Kind:         kind,
		Body:         body,
		AuthorID:     authorID,
		ParentPostID: parentPostID,
	}
	if err := in.store.InsertContent(ctx, content); err != nil {
		return nil, fmt.Errorf("inserting content: %w", err)
	}

	payload, err := json.Marshal(ModerationJob{
		ContentID:   content.ID,
		ContentKind: kind,
		Body:        body,
		AuthorID:    authorID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := in.queue.Enqueue(ctx, queue.TopicModeration, payload, nil); err != nil {
		in.logger.Error("failed to enqueue moderation job", "err", err, "contentID", content.ID)
	}
	return content, nil
}

// SubmitAdminAction checks the acting user's role and enqueues the
// decision for the admin action worker. Unlike content intake, an
// enqueue failure here is surfaced: silently dropping an admin
// decision would strand the flag in PENDING with no signal.
func (in *Intake) SubmitAdminAction(ctx context.Context, actingAdminID, flaggedContentID uint, action AdminAction, reason string) error {
	admin, err := in.store.GetUser(ctx, actingAdminID)
	if err != nil {
		return fmt.Errorf("loading acting user: %w", err)
	}
	if admin.Role != models.RoleAdmin {
		return ErrNotAdmin
	}

	job := AdminActionJob{
		FlaggedContentID: flaggedContentID,
		Action:           action,
		Reason:           reason,
		ActingAdminID:    actingAdminID,
	}
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if _, err := in.queue.Enqueue(ctx, queue.TopicAdminAction, payload, nil); err != nil {
		return fmt.Errorf("enqueueing admin action: %w", err)
	}
	return nil
}
