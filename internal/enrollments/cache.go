package enrollments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

const defaultCacheTTL = 2 * time.Minute

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	EnrollmentKey(userID string) string
}

// CachedProvider reads class memberships through Redis. Authorization checks
// and audience counts always go to the source.
type CachedProvider struct {
	next  Provider
	cache cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedProvider wraps next with a read-through membership cache.
func NewCachedProvider(next Provider, cache cacheStore, ttl time.Duration, logg *logger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl, logg: logg}
}

// ClassIDs implements Provider. Cache failures fall back to the source.
func (c *CachedProvider) ClassIDs(ctx context.Context, userID uuid.UUID, role enums.UserRole) ([]uuid.UUID, error) {
	key := c.cache.EnrollmentKey(role.String() + ":" + userID.String())

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var ids []uuid.UUID
		if jsonErr := json.Unmarshal([]byte(raw), &ids); jsonErr == nil {
			return ids, nil
		}
	case !errors.Is(err, goredis.Nil):
		c.warn(ctx, "enrollment cache read failed", err)
	}

	ids, err := c.next.ClassIDs(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	payload, err := json.Marshal(ids)
	if err == nil {
		if setErr := c.cache.Set(ctx, key, payload, c.ttl); setErr != nil {
			c.warn(ctx, "enrollment cache write failed", setErr)
		}
	}
	return ids, nil
}

// IsTeacherAssigned implements Provider.
func (c *CachedProvider) IsTeacherAssigned(ctx context.Context, teacherID, classID uuid.UUID) (bool, error) {
	return c.next.IsTeacherAssigned(ctx, teacherID, classID)
}

// CountAudience implements Provider.
func (c *CachedProvider) CountAudience(ctx context.Context, t audience.Targeting) (int64, error) {
	return c.next.CountAudience(ctx, t)
}

func (c *CachedProvider) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
}
