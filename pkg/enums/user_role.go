package enums

import "fmt"

// UserRole is the platform role carried in access tokens.
type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleTeacher UserRole = "teacher"
	UserRoleAdmin   UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleStudent,
	UserRoleTeacher,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanSendNotifications reports whether the role may author notifications.
func (r UserRole) CanSendNotifications() bool {
	return r == UserRoleAdmin || r == UserRoleTeacher
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}

// ReceiverRole is the coarse audience of a notification.
type ReceiverRole string

const (
	ReceiverRoleStudent ReceiverRole = "student"
	ReceiverRoleTeacher ReceiverRole = "teacher"
	ReceiverRoleAdmin   ReceiverRole = "admin"
	ReceiverRoleAll     ReceiverRole = "all"
)

var validReceiverRoles = []ReceiverRole{
	ReceiverRoleStudent,
	ReceiverRoleTeacher,
	ReceiverRoleAdmin,
	ReceiverRoleAll,
}

// ReceiverRoles lists every receiver role in declaration order.
func ReceiverRoles() []ReceiverRole {
	out := make([]ReceiverRole, len(validReceiverRoles))
	copy(out, validReceiverRoles)
	return out
}

// IsValid reports whether the value is a known ReceiverRole.
func (r ReceiverRole) IsValid() bool {
	for _, candidate := range validReceiverRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// Matches reports whether a user with the given role passes the role gate.
func (r ReceiverRole) Matches(role UserRole) bool {
	return r == ReceiverRoleAll || string(r) == string(role)
}

// ParseReceiverRole converts raw input into a ReceiverRole.
func ParseReceiverRole(value string) (ReceiverRole, error) {
	for _, candidate := range validReceiverRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receiver role %q", value)
}
