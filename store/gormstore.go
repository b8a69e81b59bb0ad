package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/arbiterhq/arbiter/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is a gorm-backed implementation of the Store interface.
// Uniqueness races are resolved with ON CONFLICT DO NOTHING followed by
// a re-read, so callers never see driver duplicate-key errors.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

// MigrateModels creates or updates the tables for all record entities.
func (s *GormStore) MigrateModels() error {
	return s.db.AutoMigrate(&models.User{}, &models.Content{}, &models.FlaggedContent{})
}

func (s *GormStore) GetUserByExternalID(ctx context.Context, extID string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "external_subject_id = ?", extID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) InsertUserIfAbsent(ctx context.Context, u *models.User) (*models.User, bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return u, true, nil
	}

	// Lost the race; take the winner's row.
	existing, err := s.GetUserByExternalID(ctx, u.ExternalSubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return existing, false, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) UpdateUserPreference(ctx context.Context, id uint, notify bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("notify_on_moderation", notify)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpdateUserRole(ctx context.Context, id uint, role models.Role) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) InsertContent(ctx context.Context, c *models.Content) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *GormStore) GetContent(ctx context.Context, id uint, kind models.ContentKind) (*models.Content, error) {
	var c models.Content
	if err := s.db.WithContext(ctx).First(&c, "id = ? AND kind = ?", id, kind).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *GormStore) InsertFlaggedContentIfAbsent(ctx context.Context, f *models.FlaggedContent) (*models.FlaggedContent, bool, error) {
	if f.Status == "" {
		f.Status = models.FlagStatusPending
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return f, true, nil
	}

	var existing models.FlaggedContent
	err := s.db.WithContext(ctx).First(&existing, "content_id = ? AND content_kind = ?", f.ContentID, f.ContentKind).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *GormStore) GetFlaggedContent(ctx context.Context, id uint) (*models.FlaggedContent, error) {
	var f models.FlaggedContent
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *GormStore) UpdateFlaggedContentStatusIfPending(ctx context.Context, id uint, target models.FlagStatus) (bool, error) {
	if !target.Terminal() {
		return false, fmt.Errorf("invalid target status: %q", target)
	}
	res := s.db.WithContext(ctx).Model(&models.FlaggedContent{}).
		Where("id = ? AND status = ?", id, models.FlagStatusPending).
		Update("status", target)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ListFlaggedContent(ctx context.Context, status models.FlagStatus, limit int) ([]*models.FlaggedContent, error) {
	q := s.db.WithContext(ctx).Order("id desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*models.FlaggedContent
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
