package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// pauseTTL bounds how long a cached pause marker lives without being
// refreshed. The database remains the source of truth; the cache only has
// to make a broadcast stop visible to new dispatch attempts promptly.
const pauseTTL = 24 * time.Hour

// PauseCache mirrors pause state into Redis so every dispatch check does
// not need a database round trip. Cache faults are treated as "not paused"
// and logged; the enforcer's own database check still applies.
type PauseCache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewPauseCache creates a pause cache over the given Redis client.
func NewPauseCache(rdb *redis.Client, logger *slog.Logger) *PauseCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PauseCache{rdb: rdb, logger: logger}
}

func userPauseKey(userID string) string {
	return "steward:paused:user:" + userID
}

func agentPauseKey(userID, agentID string) string {
	return fmt.Sprintf("steward:paused:agent:%s:%s", userID, agentID)
}

// IsPaused reports whether the user as a whole, or the specific agent, has
// a pause marker. Errors degrade to false.
func (c *PauseCache) IsPaused(ctx context.Context, userID, agentID string) bool {
	n, err := c.rdb.Exists(ctx, userPauseKey(userID), agentPauseKey(userID, agentID)).Result()
	if err != nil {
		c.logger.Warn("pause cache unavailable, treating as not paused",
			slog.String("user_id", userID), slog.Any("error", err))
		return false
	}
	return n > 0
}

// PauseUser marks every agent of the user paused.
func (c *PauseCache) PauseUser(ctx context.Context, userID, reason string) error {
	if err := c.rdb.Set(ctx, userPauseKey(userID), reason, pauseTTL).Err(); err != nil {
		return fmt.Errorf("caching user pause: %w", err)
	}
	return nil
}

// PauseAgent marks a single agent scope paused.
func (c *PauseCache) PauseAgent(ctx context.Context, userID, agentID, reason string) error {
	if err := c.rdb.Set(ctx, agentPauseKey(userID, agentID), reason, pauseTTL).Err(); err != nil {
		return fmt.Errorf("caching agent pause: %w", err)
	}
	return nil
}

// ResumeUser clears the user-wide pause marker.
func (c *PauseCache) ResumeUser(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, userPauseKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing user pause: %w", err)
	}
	return nil
}

// ResumeAgent clears a single agent's pause marker.
func (c *PauseCache) ResumeAgent(ctx context.Context, userID, agentID string) error {
	if err := c.rdb.Del(ctx, agentPauseKey(userID, agentID)).Err(); err != nil {
		return fmt.Errorf("clearing agent pause: %w", err)
	}
	return nil
}
