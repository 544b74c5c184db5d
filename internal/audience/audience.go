// Package audience decides which recipients a notification reaches.
//
// Every gate is declared once as a clause holding both its SQL form and its
// in-memory form. IsInAudience evaluates the in-memory forms and Filter
// applies the SQL forms, so a live push and a later pull query always agree
// on membership.
package audience

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lms-notifications/pkg/db/models"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

// Recipient is the identity a notification is resolved against.
type Recipient struct {
	UserID   uuid.UUID
	Role     enums.UserRole
	ClassIDs []uuid.UUID
}

// IsAdmin reports whether the recipient bypasses the class gate.
func (r Recipient) IsAdmin() bool {
	return r.Role == enums.UserRoleAdmin
}

// Targeting holds the only notification fields audience resolution reads.
type Targeting struct {
	ReceiverRole enums.ReceiverRole
	ClassID      *uuid.UUID
}

// TargetingOf extracts the targeting fields from n.
func TargetingOf(n *models.Notification) Targeting {
	return Targeting{ReceiverRole: n.ReceiverRole, ClassID: n.ClassID}
}

// clause is one gate of the audience predicate.
type clause struct {
	sql  string
	args []any
	// targeting clauses only read ReceiverRole/ClassID; window clauses read timestamps.
	targeting bool
	eval      func(n *models.Notification) bool
}

// Predicate is the audience decision for one recipient at one instant.
type Predicate struct {
	clauses []clause
}

// PredicateFor builds the predicate for r evaluated at now.
func PredicateFor(r Recipient, now time.Time) Predicate {
	roles := acceptedReceiverRoles(r.Role)
	clauses := []clause{
		{
			sql: "notifications.sent_at IS NOT NULL",
			eval: func(n *models.Notification) bool {
				return n.SentAt != nil
			},
		},
		{
			sql:  "(notifications.expires_at IS NULL OR notifications.expires_at > ?)",
			args: []any{now},
			eval: func(n *models.Notification) bool {
				return n.ExpiresAt == nil || n.ExpiresAt.After(now)
			},
		},
		{
			sql:       "notifications.receiver_role IN ?",
			args:      []any{roles},
			targeting: true,
			eval: func(n *models.Notification) bool {
				return slices.Contains(roles, n.ReceiverRole)
			},
		},
	}

	if !r.IsAdmin() {
		classIDs := slices.Clone(r.ClassIDs)
		if len(classIDs) == 0 {
			clauses = append(clauses, clause{
				sql:       "notifications.class_id IS NULL",
				targeting: true,
				eval: func(n *models.Notification) bool {
					return n.ClassID == nil
				},
			})
		} else {
			clauses = append(clauses, clause{
				sql:       "(notifications.class_id IS NULL OR notifications.class_id IN ?)",
				args:      []any{classIDs},
				targeting: true,
				eval: func(n *models.Notification) bool {
					return n.ClassID == nil || slices.Contains(classIDs, *n.ClassID)
				},
			})
		}
	}

	return Predicate{clauses: clauses}
}

// Matches evaluates every gate against n.
func (p Predicate) Matches(n *models.Notification) bool {
	if n == nil {
		return false
	}
	for _, c := range p.clauses {
		if !c.eval(n) {
			return false
		}
	}
	return true
}

// MatchesTargeting evaluates only the role and class gates. The bus uses it
// for notifications that are already live.
func (p Predicate) MatchesTargeting(t Targeting) bool {
	probe := &models.Notification{ReceiverRole: t.ReceiverRole, ClassID: t.ClassID}
	for _, c := range p.clauses {
		if c.targeting && !c.eval(probe) {
			return false
		}
	}
	return true
}

// Scope applies every gate as a WHERE condition on the notifications table.
func (p Predicate) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range p.clauses {
			db = db.Where(c.sql, c.args...)
		}
		return db
	}
}

// IsInAudience reports whether r may see n at now.
func IsInAudience(n *models.Notification, r Recipient, now time.Time) bool {
	return PredicateFor(r, now).Matches(n)
}

// MatchesTargeting reports whether r passes the role and class gates of t.
func MatchesTargeting(t Targeting, r Recipient) bool {
	return PredicateFor(r, time.Time{}).MatchesTargeting(t)
}

// Filter is the query form of IsInAudience.
func Filter(r Recipient, now time.Time) func(*gorm.DB) *gorm.DB {
	return PredicateFor(r, now).Scope()
}

// Unread keeps notifications userID holds no read receipt for.
func Unread(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"NOT EXISTS (SELECT 1 FROM notification_receipts r WHERE r.notification_id = notifications.id AND r.user_id = ?)",
			userID,
		)
	}
}

func acceptedReceiverRoles(role enums.UserRole) []enums.ReceiverRole {
	out := []enums.ReceiverRole{enums.ReceiverRoleAll}
	for _, candidate := range enums.ReceiverRoles() {
		if candidate != enums.ReceiverRoleAll && candidate.Matches(role) {
			out = append(out, candidate)
		}
	}
	return out
}
