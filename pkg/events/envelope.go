package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Envelope is the stable message body LMS domain services publish to Pub/Sub.
// The event type travels in the message's event_type attribute.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    uuid.UUID       `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// AssignmentEvent is published for assignment.* events.
type AssignmentEvent struct {
	AssignmentID uuid.UUID  `json:"assignmentId"`
	ClassID      uuid.UUID  `json:"classId"`
	SubjectID    *uuid.UUID `json:"subjectId,omitempty"`
	Title        string     `json:"title"`
	DueAt        *time.Time `json:"dueAt,omitempty"`
}

// GradeEvent is published for grade.* events.
type GradeEvent struct {
	GradeID   uuid.UUID  `json:"gradeId"`
	StudentID uuid.UUID  `json:"studentId"`
	ClassID   *uuid.UUID `json:"classId,omitempty"`
	SubjectID *uuid.UUID `json:"subjectId,omitempty"`
	Score     *float64   `json:"score,omitempty"`
}

// ForumEvent is published for forum.* events. RecipientID targets one user
// (the post author for likes and comments); otherwise ClassID scopes the post.
type ForumEvent struct {
	PostID      uuid.UUID  `json:"postId"`
	CommentID   *uuid.UUID `json:"commentId,omitempty"`
	AuthorID    uuid.UUID  `json:"authorId"`
	ClassID     *uuid.UUID `json:"classId,omitempty"`
	RecipientID *uuid.UUID `json:"recipientId,omitempty"`
	Title       string     `json:"title,omitempty"`
}
