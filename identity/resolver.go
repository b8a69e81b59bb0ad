package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arbiterhq/arbiter/models"
	"github.com/arbiterhq/arbiter/store"
)

// Resolver maps external subject ids to local user rows, creating them
// on first contact. Provisioning is optimistic: it inserts and treats a
// uniqueness conflict as "another request won the race", taking the
// winner's row instead of erroring. No lock is held around creation.
type Resolver struct {
	store  store.Store
	dir    Directory
	logger *slog.Logger
}

func NewResolver(st store.Store, dir Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  st,
		dir:    dir,
		logger: logger.With("source", "identity_resolver"),
	}
}

// ResolveUser returns the local user for an external subject id,
// provisioning it if this is the subject's first contact.
func (r *Resolver) ResolveUser(ctx context.Context, subjectID string) (*models.User, error) {
	u, err := r.store.GetUserByExternalID(ctx, subjectID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up user by subject id: %w", err)
	}

	prof, err := r.dir.LookupSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("fetching subject profile: %w", err)
	}
	email := prof.PrimaryEmail()
	if email == "" {
		return nil, fmt.Errorf("subject %s: %w", subjectID, ErrProfileIncomplete)
	}

	candidate := &models.User{
		ExternalSubjectID:  subjectID,
		Email:              email,
		DisplayName:        prof.DisplayName,
		Role:               models.RoleUser,
		NotifyOnModeration: true,
	}
	row, created, err := r.store.InsertUserIfAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("provisioning user: %w", err)
	}
	if created {
		r.logger.Info("provisioned user on first contact", "subjectID", subjectID, "userID", row.ID)
		usersProvisioned.Inc()
		return row, nil
	}
	if row == nil {
		// the conflicting row vanished between insert and re-read
		r.logger.Error("user row missing after insert conflict", "subjectID", subjectID)
		return nil, fmt.Errorf("subject %s: %w", subjectID, ErrInconsistent)
	}
	provisionRacesRecovered.Inc()
	return row, nil
}
