package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/models"
)

// MemStore is an in-memory implementation of the Store interface with
// the same uniqueness and compare-and-set semantics as GormStore. Used
// for tests and local development.
type MemStore struct {
	lk sync.Mutex

	nextUserID    uint
	nextContentID uint
	nextFlagID    uint

	usersByID    map[uint]*models.User
	usersByExtID map[string]*models.User
	content      map[string]*models.Content
	flagsByID    map[uint]*models.FlaggedContent
	flagsByKey   map[string]*models.FlaggedContent
}

func NewMemStore() *MemStore {
	return &MemStore{
		nextUserID:    1,
		nextContentID: 1,
		nextFlagID:    1,
		usersByID:     make(map[uint]*models.User),
		usersByExtID:  make(map[string]*models.User),
		content:       make(map[string]*models.Content),
		flagsByID:     make(map[uint]*models.FlaggedContent),
		flagsByKey:    make(map[string]*models.FlaggedContent),
	}
}

var _ Store = (*MemStore)(nil)

func contentKey(id uint, kind models.ContentKind) string {
	return fmt.Sprintf("%d/%s", id, kind)
}

func (s *MemStore) GetUserByExternalID(ctx context.Context, extID string) (*models.User, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	u, ok := s.usersByExtID[extID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) InsertUserIfAbsent(ctx context.Context, u *models.User) (*models.User, bool, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	if existing, ok := s.usersByExtID[u.ExternalSubjectID]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *u
	cp.ID = s.nextUserID
	s.nextUserID++
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.usersByID[cp.ID] = &cp
	s.usersByExtID[cp.ExternalSubjectID] = &cp

	out := cp
	u.ID = cp.ID
	return &out, true, nil
}

func (s *MemStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	u, ok := s.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) UpdateUserPreference(ctx context.Context, id uint, notify bool) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	u, ok := s.usersByID[id]
	if !ok {
		return ErrNotFound
	}
	u.NotifyOnModeration = notify
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) UpdateUserRole(ctx context.Context, id uint, role models.Role) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	u, ok := s.usersByID[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	return nil
}

// DeleteUser exists so tests can simulate concurrent account deletion
// by the external collaborator that owns user lifecycle.
func (s *MemStore) DeleteUser(id uint) {
	s.lk.Lock()
	defer s.lk.Unlock()

	u, ok := s.usersByID[id]
	if !ok {
		return
	}
	delete(s.usersByExtID, u.ExternalSubjectID)
	delete(s.usersByID, id)
}

func (s *MemStore) InsertContent(ctx context.Context, c *models.Content) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	c.ID = s.nextContentID
	s.nextContentID++
	c.CreatedAt = time.Now()
	cp := *c
	s.content[contentKey(c.ID, c.Kind)] = &cp
	return nil
}

func (s *MemStore) GetContent(ctx context.Context, id uint, kind models.ContentKind) (*models.Content, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	c, ok := s.content[contentKey(id, kind)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) InsertFlaggedContentIfAbsent(ctx context.Context, f *models.FlaggedContent) (*models.FlaggedContent, bool, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	key := contentKey(f.ContentID, f.ContentKind)
	if existing, ok := s.flagsByKey[key]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *f
	cp.ID = s.nextFlagID
	s.nextFlagID++
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	if cp.Status == "" {
		cp.Status = models.FlagStatusPending
	}
	s.flagsByID[cp.ID] = &cp
	s.flagsByKey[key] = &cp

	out := cp
	f.ID = cp.ID
	return &out, true, nil
}

func (s *MemStore) GetFlaggedContent(ctx context.Context, id uint) (*models.FlaggedContent, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	f, ok := s.flagsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemStore) UpdateFlaggedContentStatusIfPending(ctx context.Context, id uint, target models.FlagStatus) (bool, error) {
	if !target.Terminal() {
		return false, fmt.Errorf("invalid target status: %q", target)
	}

	s.lk.Lock()
	defer s.lk.Unlock()

	f, ok := s.flagsByID[id]
	if !ok {
		return false, nil
	}
	if f.Status != models.FlagStatusPending {
		return false, nil
	}
	f.Status = target
	f.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemStore) ListFlaggedContent(ctx context.Context, status models.FlagStatus, limit int) ([]*models.FlaggedContent, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	var out []*models.FlaggedContent
	for _, f := range s.flagsByID {
		if status != "" && f.Status != status {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
