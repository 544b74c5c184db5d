package models

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

// User is the slice of the LMS identity table the notification engine reads.
type User struct {
	ID   uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Role enums.UserRole `gorm:"column:role;type:text;not null"`
}
