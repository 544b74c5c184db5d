package enums

// RealtimeEvent names the events pushed over the websocket bus.
type RealtimeEvent string

const (
	RealtimeEventNotificationNew         RealtimeEvent = "notification:new"
	RealtimeEventNotificationUpdated     RealtimeEvent = "notification:updated"
	RealtimeEventNotificationDeleted     RealtimeEvent = "notification:deleted"
	RealtimeEventNotificationUnreadCount RealtimeEvent = "notification:unread_count"

	RealtimeEventAssignmentNew              RealtimeEvent = "assignment:new"
	RealtimeEventAssignmentUpdated          RealtimeEvent = "assignment:updated"
	RealtimeEventAssignmentDeadlineReminder RealtimeEvent = "assignment:deadline_reminder"

	RealtimeEventGradeNew     RealtimeEvent = "grade:new"
	RealtimeEventGradeUpdated RealtimeEvent = "grade:updated"

	RealtimeEventForumNewPost    RealtimeEvent = "forum:new_post"
	RealtimeEventForumNewComment RealtimeEvent = "forum:new_comment"
	RealtimeEventForumPostLiked  RealtimeEvent = "forum:post_liked"
)

// AssignmentAction is the lifecycle step of an assignment broadcast.
type AssignmentAction string

const (
	AssignmentActionNew              AssignmentAction = "new"
	AssignmentActionUpdated          AssignmentAction = "updated"
	AssignmentActionDeadlineReminder AssignmentAction = "deadline_reminder"
)

// Event returns the realtime event for the action, or false if unknown.
func (a AssignmentAction) Event() (RealtimeEvent, bool) {
	switch a {
	case AssignmentActionNew:
		return RealtimeEventAssignmentNew, true
	case AssignmentActionUpdated:
		return RealtimeEventAssignmentUpdated, true
	case AssignmentActionDeadlineReminder:
		return RealtimeEventAssignmentDeadlineReminder, true
	}
	return "", false
}

// GradeAction is the lifecycle step of a grade broadcast.
type GradeAction string

const (
	GradeActionNew     GradeAction = "new"
	GradeActionUpdated GradeAction = "updated"
)

// Event returns the realtime event for the action, or false if unknown.
func (a GradeAction) Event() (RealtimeEvent, bool) {
	switch a {
	case GradeActionNew:
		return RealtimeEventGradeNew, true
	case GradeActionUpdated:
		return RealtimeEventGradeUpdated, true
	}
	return "", false
}

// ForumAction is the lifecycle step of a forum broadcast.
type ForumAction string

const (
	ForumActionNewPost    ForumAction = "new_post"
	ForumActionNewComment ForumAction = "new_comment"
	ForumActionPostLiked  ForumAction = "post_liked"
)

// Event returns the realtime event for the action, or false if unknown.
func (a ForumAction) Event() (RealtimeEvent, bool) {
	switch a {
	case ForumActionNewPost:
		return RealtimeEventForumNewPost, true
	case ForumActionNewComment:
		return RealtimeEventForumNewComment, true
	case ForumActionPostLiked:
		return RealtimeEventForumPostLiked, true
	}
	return "", false
}

// DomainEventType is the Pub/Sub event_type attribute published by the LMS domain services.
type DomainEventType string

const (
	DomainEventAssignmentCreated          DomainEventType = "assignment.created"
	DomainEventAssignmentUpdated          DomainEventType = "assignment.updated"
	DomainEventAssignmentDeadlineReminder DomainEventType = "assignment.deadline_reminder"
	DomainEventGradeCreated               DomainEventType = "grade.created"
	DomainEventGradeUpdated               DomainEventType = "grade.updated"
	DomainEventForumPostCreated           DomainEventType = "forum.post_created"
	DomainEventForumCommentCreated        DomainEventType = "forum.comment_created"
	DomainEventForumPostLiked             DomainEventType = "forum.post_liked"
)
