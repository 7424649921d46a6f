// Package cache is a TTL'd Redis acceleration layer over the leaderboard
// and FULL_SYNC_STATE snapshots. It is never the durable store — every
// method degrades to "miss" on a Redis error so callers can recompute
// from Postgres, matching §3's ownership rule that Postgres alone is
// authoritative. Grounded on Dragoon4002-crash-backend/db/redis.go's
// client construction and JSON-in-hash/string pattern.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	leaderboardKey  = "marketday:leaderboard"
	snapshotKeyFmt  = "marketday:snapshot:%s"
	leaderboardTTL  = 30 * time.Second
	snapshotTTL     = 24 * time.Hour
)

// Cache wraps a redis client. A nil *Cache (New failed to reach Redis) is
// valid and every method becomes a guaranteed miss.
type Cache struct {
	client *redis.Client
}

// New connects to Redis using the same env-driven shape as
// Dragoon4002-crash-backend's InitRedis: REDIS_URL, REDIS_PASSWORD, REDIS_DB.
func New(ctx context.Context) (*Cache, error) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "localhost:6379"
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         url,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// SetLeaderboard stores the top-100 leaderboard JSON with a short TTL,
// invalidated naturally by expiry and overwritten on the next day boundary.
func (c *Cache) SetLeaderboard(ctx context.Context, entries any) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	c.client.Set(ctx, leaderboardKey, data, leaderboardTTL)
}

// Leaderboard decodes the cached leaderboard JSON into out and reports
// true, or reports false on any miss or Redis error — callers recompute
// from Postgres in that case.
func (c *Cache) Leaderboard(ctx context.Context, out any) bool {
	if c == nil || c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetSnapshot stores a user's last-known FULL_SYNC_STATE payload, served
// by the websocket handshake only when it cannot read the state or the
// user from Postgres.
func (c *Cache) SetSnapshot(ctx context.Context, userID string, payload any) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.client.Set(ctx, fmt.Sprintf(snapshotKeyFmt, userID), data, snapshotTTL)
}

// Snapshot returns a user's last cached snapshot, or false on a miss.
func (c *Cache) Snapshot(ctx context.Context, userID string, out any) bool {
	if c == nil || c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, fmt.Sprintf(snapshotKeyFmt, userID)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
