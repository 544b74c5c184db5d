package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

// Attachment references a file stored by the media service.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Notification is a single shared row per message; recipients are resolved
// from ReceiverRole and ClassID at query time.
type Notification struct {
	ID           uuid.UUID                       `gorm:"column:id;type:uuid;primaryKey"`
	Title        string                          `gorm:"column:title;type:text;not null"`
	Message      string                          `gorm:"column:message;type:text;not null"`
	SenderID     uuid.UUID                       `gorm:"column:sender_id;type:uuid;not null"`
	ReceiverRole enums.ReceiverRole              `gorm:"column:receiver_role;type:text;not null"`
	ClassID      *uuid.UUID                      `gorm:"column:class_id;type:uuid"`
	SubjectID    *uuid.UUID                      `gorm:"column:subject_id;type:uuid"`
	Type         enums.NotificationType          `gorm:"column:type;type:text;not null"`
	Priority     enums.NotificationPriority      `gorm:"column:priority;type:text;not null"`
	ReadCount    int64                           `gorm:"column:read_count;not null;default:0"`
	TargetCount  int64                           `gorm:"column:target_count;not null;default:0"`
	ScheduledAt  *time.Time                      `gorm:"column:scheduled_at"`
	SentAt       *time.Time                      `gorm:"column:sent_at"`
	ExpiresAt    *time.Time                      `gorm:"column:expires_at"`
	Metadata     datatypes.JSONMap               `gorm:"column:metadata;type:jsonb"`
	Attachments  datatypes.JSONSlice[Attachment] `gorm:"column:attachments;type:jsonb"`
	CreatedAt    time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the identifier client side so inserts stay portable.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// IsSent reports whether the notification has been released to its audience.
func (n *Notification) IsSent() bool {
	return n != nil && n.SentAt != nil
}

// IsExpired reports whether the notification expired at or before now.
func (n *Notification) IsExpired(now time.Time) bool {
	return n != nil && n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}
