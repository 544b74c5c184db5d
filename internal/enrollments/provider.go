// Package enrollments answers class-membership questions for audience
// resolution from the LMS collaborator tables.
package enrollments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

// Provider supplies class memberships and audience sizes.
type Provider interface {
	// ClassIDs returns enrolled classes for students, assigned classes for
	// teachers and nothing for administrators.
	ClassIDs(ctx context.Context, userID uuid.UUID, role enums.UserRole) ([]uuid.UUID, error)
	IsTeacherAssigned(ctx context.Context, teacherID, classID uuid.UUID) (bool, error)
	CountAudience(ctx context.Context, targeting audience.Targeting) (int64, error)
}

// Resolve builds the audience recipient for an authenticated user.
func Resolve(ctx context.Context, p Provider, userID uuid.UUID, role enums.UserRole) (audience.Recipient, error) {
	classIDs, err := p.ClassIDs(ctx, userID, role)
	if err != nil {
		return audience.Recipient{}, err
	}
	return audience.Recipient{UserID: userID, Role: role, ClassIDs: classIDs}, nil
}
