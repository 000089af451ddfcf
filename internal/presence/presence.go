// Package presence tracks per-user online status as a connection counter
// in the shared cache, so any instance can answer is_online without
// consulting the others.
package presence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arnavsood/ludoarena/internal/cache"
)

// Tracker maintains ws:user:{user_id}:conn_count in the cache. Every
// operation is logged-and-swallowed on failure: presence is advisory, and
// the connection manager remains authoritative for this instance's own
// sockets.
type Tracker struct {
	cache  *cache.Cache
	logger *logrus.Logger
}

// New builds a Tracker over the given cache adapter.
func New(c *cache.Cache, logger *logrus.Logger) *Tracker {
	return &Tracker{cache: c, logger: logger}
}

func connCountKey(userID uuid.UUID) string {
	return fmt.Sprintf("ws:user:%s:conn_count", userID)
}

// OnConnect increments userID's connection counter.
func (t *Tracker) OnConnect(ctx context.Context, userID uuid.UUID) {
	if _, err := t.cache.Incr(ctx, connCountKey(userID)); err != nil {
		t.logger.WithError(err).WithField("user_id", userID).Warn("presence: increment failed")
	}
}

// OnDisconnect decrements userID's connection counter, deleting the key
// once it reaches zero.
func (t *Tracker) OnDisconnect(ctx context.Context, userID uuid.UUID) {
	key := connCountKey(userID)
	n, err := t.cache.Decr(ctx, key)
	if err != nil {
		t.logger.WithError(err).WithField("user_id", userID).Warn("presence: decrement failed")
		return
	}
	if n <= 0 {
		if err := t.cache.Del(ctx, key); err != nil {
			t.logger.WithError(err).WithField("user_id", userID).Warn("presence: cleanup failed")
		}
	}
}

// IsOnline reports whether userID currently has any live connection,
// anywhere in the fleet.
func (t *Tracker) IsOnline(ctx context.Context, userID uuid.UUID) bool {
	ok, err := t.cache.Exists(ctx, connCountKey(userID))
	if err != nil {
		t.logger.WithError(err).WithField("user_id", userID).Warn("presence: existence check failed")
		return false
	}
	return ok
}
