package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/models"
	"solock-backend/internal/platform/redis"
)

const leaderboardKey = "leaderboard:top"

// LeaderboardCache stores the last projected leaderboard snapshot so a
// failed authoritative fetch can degrade to stale data instead of nothing.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Get(ctx context.Context) ([]models.LeaderboardEntry, error) {
	data, err := c.client.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, apperrors.NewNotFoundError("leaderboard snapshot", leaderboardKey)
		}
		return nil, apperrors.NewCacheError("get leaderboard", err)
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperrors.NewCacheError("decode leaderboard", err)
	}
	return entries, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, entries []models.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return apperrors.NewCacheError("encode leaderboard", err)
	}

	if err := c.client.Set(ctx, leaderboardKey, data, c.ttl).Err(); err != nil {
		return apperrors.NewCacheError("set leaderboard", err)
	}
	return nil
}
