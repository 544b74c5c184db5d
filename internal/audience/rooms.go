package audience

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

const (
	userRoomPrefix  = "user_"
	classRoomPrefix = "class_"
	roleRoomPrefix  = "role_"
)

// UserRoom is the room exclusive to one user.
func UserRoom(id uuid.UUID) string {
	return userRoomPrefix + id.String()
}

// ClassRoom groups every connected member of a class.
func ClassRoom(id uuid.UUID) string {
	return classRoomPrefix + id.String()
}

// RoleRoom groups every connection of a role.
func RoleRoom(role enums.UserRole) string {
	return roleRoomPrefix + role.String()
}

// MemberRooms lists the rooms a connection for r joins.
func MemberRooms(r Recipient) []string {
	rooms := []string{UserRoom(r.UserID)}
	if r.Role.IsValid() {
		rooms = append(rooms, RoleRoom(r.Role))
	}
	for _, classID := range r.ClassIDs {
		rooms = append(rooms, ClassRoom(classID))
	}
	return rooms
}

// Route is where a notification with some targeting is delivered.
// Everyone means every open connection; Rooms is ignored then.
type Route struct {
	Rooms    []string
	Everyone bool
}

// Rooms computes the delivery route for t. Class-scoped notifications also go
// to the admin room because administrators bypass the class gate; connections
// reached this way are still filtered with MatchesTargeting.
func Rooms(t Targeting) Route {
	if t.ClassID != nil {
		return Route{Rooms: []string{ClassRoom(*t.ClassID), RoleRoom(enums.UserRoleAdmin)}}
	}
	if t.ReceiverRole == enums.ReceiverRoleAll {
		return Route{Everyone: true}
	}
	return Route{Rooms: []string{RoleRoom(enums.UserRole(t.ReceiverRole))}}
}
