package enrollments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/db/models"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

// Repository reads class_enrollments, class_teachers and users.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an enrollments repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ClassIDs implements Provider.
func (r *Repository) ClassIDs(ctx context.Context, userID uuid.UUID, role enums.UserRole) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	switch role {
	case enums.UserRoleStudent:
		if err := r.db.WithContext(ctx).Model(&models.ClassEnrollment{}).
			Where("student_id = ?", userID).
			Order("class_id").
			Pluck("class_id", &ids).Error; err != nil {
			return nil, fmt.Errorf("list enrolled classes: %w", err)
		}
	case enums.UserRoleTeacher:
		if err := r.db.WithContext(ctx).Model(&models.ClassTeacher{}).
			Where("teacher_id = ?", userID).
			Order("class_id").
			Pluck("class_id", &ids).Error; err != nil {
			return nil, fmt.Errorf("list assigned classes: %w", err)
		}
	case enums.UserRoleAdmin:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return ids, nil
}

// IsTeacherAssigned implements Provider.
func (r *Repository) IsTeacherAssigned(ctx context.Context, teacherID, classID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ClassTeacher{}).
		Where("teacher_id = ? AND class_id = ?", teacherID, classID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check teacher assignment: %w", err)
	}
	return count > 0, nil
}

// CountAudience counts the users the targeting reaches, applying the same
// role gate and class gate (admins bypass it) as audience resolution.
func (r *Repository) CountAudience(ctx context.Context, t audience.Targeting) (int64, error) {
	roles := rolesFor(t.ReceiverRole)
	if len(roles) == 0 {
		return 0, fmt.Errorf("unknown receiver role %q", t.ReceiverRole)
	}

	query := r.db.WithContext(ctx).Model(&models.User{}).Where("users.role IN ?", roles)
	if t.ClassID != nil {
		query = query.Where(
			`(users.role = ?
			OR (users.role = ? AND EXISTS (SELECT 1 FROM class_enrollments e WHERE e.student_id = users.id AND e.class_id = ?))
			OR (users.role = ? AND EXISTS (SELECT 1 FROM class_teachers ct WHERE ct.teacher_id = users.id AND ct.class_id = ?)))`,
			enums.UserRoleAdmin,
			enums.UserRoleStudent, *t.ClassID,
			enums.UserRoleTeacher, *t.ClassID,
		)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count audience: %w", err)
	}
	return count, nil
}

func rolesFor(receiver enums.ReceiverRole) []enums.UserRole {
	var out []enums.UserRole
	for _, role := range []enums.UserRole{enums.UserRoleStudent, enums.UserRoleTeacher, enums.UserRoleAdmin} {
		if receiver.IsValid() && receiver.Matches(role) {
			out = append(out, role)
		}
	}
	return out
}
