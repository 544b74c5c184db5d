package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

type identityKey struct{}

type identity struct {
	userID uuid.UUID
	role   enums.UserRole
}

// WithIdentity records the authenticated caller on ctx.
func WithIdentity(ctx context.Context, userID uuid.UUID, role enums.UserRole) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{userID: userID, role: role})
}

// IdentityFromContext returns the caller recorded by Auth. ok is false when
// the request never passed Auth.
func IdentityFromContext(ctx context.Context) (uuid.UUID, enums.UserRole, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	if !ok || id.userID == uuid.Nil || !id.role.IsValid() {
		return uuid.Nil, "", false
	}
	return id.userID, id.role, true
}
