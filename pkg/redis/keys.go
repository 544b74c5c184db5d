package redis

import "strings"

const keyNamespace = "lms"

// key joins non-empty parts under the lms namespace.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// IdempotencyKey holds a consumer's claim on an event.
func (c *Client) IdempotencyKey(scope, id string) string { return key("idempotency", scope, id) }

// AccessSessionKey is written by the identity service per live access token.
func (c *Client) AccessSessionKey(accessID string) string { return key("session", "access", accessID) }

// EnrollmentKey caches a user's class memberships.
func (c *Client) EnrollmentKey(subject string) string { return key("enrollment", subject) }

// LockKey guards an exclusive job run.
func (c *Client) LockKey(name string) string { return key("lock", name) }
