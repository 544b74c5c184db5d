package enums

import "fmt"

// NotificationType maps to the notification_type column.
type NotificationType string

const (
	NotificationTypeAnnouncement NotificationType = "announcement"
	NotificationTypeAssignment   NotificationType = "assignment"
	NotificationTypeGrade        NotificationType = "grade"
	NotificationTypeForum        NotificationType = "forum"
	NotificationTypeSystem       NotificationType = "system"
	NotificationTypeReminder     NotificationType = "reminder"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAnnouncement,
	NotificationTypeAssignment,
	NotificationTypeGrade,
	NotificationTypeForum,
	NotificationTypeSystem,
	NotificationTypeReminder,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationPriority only affects ordering, never the audience.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

// validNotificationPriorities is ordered from lowest to highest rank.
var validNotificationPriorities = []NotificationPriority{
	NotificationPriorityLow,
	NotificationPriorityMedium,
	NotificationPriorityHigh,
	NotificationPriorityUrgent,
}

// NotificationPriorities returns the priorities ordered from lowest to highest.
func NotificationPriorities() []NotificationPriority {
	out := make([]NotificationPriority, len(validNotificationPriorities))
	copy(out, validNotificationPriorities)
	return out
}

// IsValid checks whether the given priority matches the canonical enum.
func (p NotificationPriority) IsValid() bool {
	return p.Rank() > 0
}

// Rank returns 1 (low) through 4 (urgent), or 0 for unknown values.
func (p NotificationPriority) Rank() int {
	for i, candidate := range validNotificationPriorities {
		if candidate == p {
			return i + 1
		}
	}
	return 0
}

// ParseNotificationPriority converts raw strings into NotificationPriority.
func ParseNotificationPriority(value string) (NotificationPriority, error) {
	for _, candidate := range validNotificationPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification priority %q", value)
}
