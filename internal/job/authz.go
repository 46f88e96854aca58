package job

import (
	"context"

	"jobmate/matching-service/internal/apperr"
)

// Actor identifies the caller as forwarded by the gateway.
type Actor struct {
	UserID        string
	InstitutionID string
}

// Authorizer answers the ownership predicates used across the platform.
type Authorizer interface {
	OwnedByUser(ctx context.Context, actor Actor, j *Job) bool
	OwnedByInstitution(ctx context.Context, actor Actor, j *Job) bool
}

// OwnerAuthorizer grants access to the poster and to staff of the owning institution.
type OwnerAuthorizer struct{}

// OwnedByUser implements Authorizer.
func (OwnerAuthorizer) OwnedByUser(_ context.Context, actor Actor, j *Job) bool {
	return actor.UserID != "" && actor.UserID == j.PosterID
}

// OwnedByInstitution implements Authorizer.
func (OwnerAuthorizer) OwnedByInstitution(_ context.Context, actor Actor, j *Job) bool {
	return actor.InstitutionID != "" && actor.InstitutionID == j.InstitutionID
}

// CheckOwnership returns apperr.ErrAccessDenied unless either predicate holds.
func CheckOwnership(ctx context.Context, a Authorizer, actor Actor, j *Job) error {
	if a.OwnedByUser(ctx, actor, j) || a.OwnedByInstitution(ctx, actor, j) {
		return nil
	}
	return apperr.ErrAccessDenied
}
