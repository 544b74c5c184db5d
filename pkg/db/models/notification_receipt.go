package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationReceipt records that one recipient read one notification.
type NotificationReceipt struct {
	NotificationID uuid.UUID `gorm:"column:notification_id;type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	ReadAt         time.Time `gorm:"column:read_at;not null"`
}
