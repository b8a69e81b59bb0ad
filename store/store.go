package store

import (
	"context"
	"errors"

	"github.com/arbiterhq/arbiter/models"
)

// ErrNotFound is returned by all getters when no row matches.
var ErrNotFound = errors.New("record not found")

// Store is the typed record-store contract the moderation pipeline
// depends on. Writes that establish uniqueness (users by external
// subject id, flags by content id and kind) are expressed as
// insert-if-absent with an explicit created indicator, never as a raw
// driver duplicate-key error.
type Store interface {
	GetUserByExternalID(ctx context.Context, extID string) (*models.User, error)
	// InsertUserIfAbsent atomically inserts the given user. When another
	// writer already owns the ExternalSubjectID, it returns the existing
	// row and created=false. If the conflict re-read finds no row either,
	// both return values are nil; callers treat that as an invariant
	// violation.
	InsertUserIfAbsent(ctx context.Context, u *models.User) (*models.User, bool, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	UpdateUserPreference(ctx context.Context, id uint, notify bool) error
	UpdateUserRole(ctx context.Context, id uint, role models.Role) error

	InsertContent(ctx context.Context, c *models.Content) error
	GetContent(ctx context.Context, id uint, kind models.ContentKind) (*models.Content, error)

	// InsertFlaggedContentIfAbsent mirrors InsertUserIfAbsent, keyed on
	// (ContentID, ContentKind).
	InsertFlaggedContentIfAbsent(ctx context.Context, f *models.FlaggedContent) (*models.FlaggedContent, bool, error)
	GetFlaggedContent(ctx context.Context, id uint) (*models.FlaggedContent, error)
	// UpdateFlaggedContentStatusIfPending is a compare-and-set: the row
	// only transitions when its current status is PENDING. Returns
	// whether a transition happened.
	UpdateFlaggedContentStatusIfPending(ctx context.Context, id uint, target models.FlagStatus) (bool, error)
	ListFlaggedContent(ctx context.Context, status models.FlagStatus, limit int) ([]*models.FlaggedContent, error)
}
