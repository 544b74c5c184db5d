package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/pkg/db/models"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/pagination"
	"github.com/angelmondragon/lms-notifications/pkg/types"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// View is a notification as returned to one viewer.
type View struct {
	ID           uuid.UUID                  `json:"id"`
	Title        string                     `json:"title"`
	Message      string                     `json:"message"`
	SenderID     uuid.UUID                  `json:"senderId"`
	ReceiverRole enums.ReceiverRole         `json:"receiverRole"`
	ClassID      *uuid.UUID                 `json:"classId,omitempty"`
	SubjectID    *uuid.UUID                 `json:"subjectId,omitempty"`
	Type         enums.NotificationType     `json:"type"`
	Priority     enums.NotificationPriority `json:"priority"`
	IsRead       bool                       `json:"isRead"`
	ReadCount    int64                      `json:"readCount"`
	TargetCount  int64                      `json:"targetCount"`
	ScheduledAt  *time.Time                 `json:"scheduledAt,omitempty"`
	SentAt       *time.Time                 `json:"sentAt,omitempty"`
	ExpiresAt    *time.Time                 `json:"expiresAt,omitempty"`
	Metadata     map[string]any             `json:"metadata,omitempty"`
	Attachments  []models.Attachment        `json:"attachments,omitempty"`
	CreatedAt    time.Time                  `json:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
}

func newView(n *models.Notification, isRead bool) View {
	return View{
		ID:           n.ID,
		Title:        n.Title,
		Message:      n.Message,
		SenderID:     n.SenderID,
		ReceiverRole: n.ReceiverRole,
		ClassID:      n.ClassID,
		SubjectID:    n.SubjectID,
		Type:         n.Type,
		Priority:     n.Priority,
		IsRead:       isRead,
		ReadCount:    n.ReadCount,
		TargetCount:  n.TargetCount,
		ScheduledAt:  n.ScheduledAt,
		SentAt:       n.SentAt,
		ExpiresAt:    n.ExpiresAt,
		Metadata:     map[string]any(n.Metadata),
		Attachments:  []models.Attachment(n.Attachments),
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

// CreateInput carries a new notification.
type CreateInput struct {
	Title        string                     `json:"title" validate:"required,max=255"`
	Message      string                     `json:"message" validate:"required"`
	ReceiverRole enums.ReceiverRole         `json:"receiverRole" validate:"required"`
	ClassID      *uuid.UUID                 `json:"classId"`
	SubjectID    *uuid.UUID                 `json:"subjectId"`
	Type         enums.NotificationType     `json:"type"`
	Priority     enums.NotificationPriority `json:"priority"`
	ScheduledAt  *time.Time                 `json:"scheduledAt"`
	ExpiresAt    *time.Time                 `json:"expiresAt"`
	Metadata     map[string]any             `json:"metadata"`
	Attachments  []models.Attachment        `json:"attachments" validate:"omitempty,dive"`
}

// UpdateInput carries a partial edit. Nil pointers leave a field untouched;
// nullable fields use explicit-null wrappers.
type UpdateInput struct {
	Title        *string                     `json:"title" validate:"omitempty,max=255"`
	Message      *string                     `json:"message"`
	ReceiverRole *enums.ReceiverRole         `json:"receiverRole"`
	ClassID      types.Nullable[uuid.UUID]   `json:"classId"`
	SubjectID    types.Nullable[uuid.UUID]   `json:"subjectId"`
	Type         *enums.NotificationType     `json:"type"`
	Priority     *enums.NotificationPriority `json:"priority"`
	ScheduledAt  types.Nullable[time.Time]   `json:"scheduledAt"`
	ExpiresAt    types.Nullable[time.Time]   `json:"expiresAt"`
	Metadata     map[string]any              `json:"metadata"`
	Attachments  *[]models.Attachment        `json:"attachments"`
}

func (u UpdateInput) touchesTargeting() bool {
	return u.ReceiverRole != nil || u.ClassID.Valid
}

// ListResult is one page of notifications.
type ListResult struct {
	Items      []View          `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

// StatsFilters narrows the stats aggregation.
type StatsFilters struct {
	Type     *enums.NotificationType
	Priority *enums.NotificationPriority
}

// StatsGroup aggregates one (type, priority) pair.
type StatsGroup struct {
	Type        enums.NotificationType     `json:"type"`
	Priority    enums.NotificationPriority `json:"priority"`
	Count       int64                      `json:"count"`
	SentCount   int64                      `json:"sentCount"`
	ReadCount   int64                      `json:"readCount"`
	TargetCount int64                      `json:"targetCount"`
	ReadRate    float64                    `json:"readRate"`
}

// StatsResult is the stats response.
type StatsResult struct {
	Groups      []StatsGroup `json:"groups"`
	Total       int64        `json:"total"`
	SentCount   int64        `json:"sentCount"`
	ReadCount   int64        `json:"readCount"`
	TargetCount int64        `json:"targetCount"`
	ReadRate    float64      `json:"readRate"`
}

// UnreadCount is the payload of the unread-count event and endpoint.
type UnreadCount struct {
	Count int64 `json:"count"`
}

// Deleted is the payload of the deleted event.
type Deleted struct {
	ID uuid.UUID `json:"id"`
}
