package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, now: time.Now}
}

type groupValue struct {
	Name     string    `json:"name"`
	CachedAt time.Time `json:"cachedAt"`
}

func groupKey(endpoint, groupID string) string {
	return fmt.Sprintf("group:%s:%s", endpoint, groupID)
}

func (c *RedisCache) GroupName(ctx context.Context, endpoint, groupID string) (string, bool, error) {
	raw, err := c.rdb.Get(ctx, groupKey(endpoint, groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var val groupValue
	if err := json.Unmarshal(raw, &val); err != nil {
		return "", false, err
	}
	if val.Name == "" {
		return "", false, nil
	}
	return val.Name, true, nil
}

func (c *RedisCache) StoreGroupNames(ctx context.Context, endpoint string, groups []model.Group) error {
	if len(groups) == 0 {
		return nil
	}

	cachedAt := c.now().UTC()
	pipe := c.rdb.Pipeline()
	for _, g := range groups {
		if g.ID == "" || g.Name == "" {
			continue
		}
		b, err := json.Marshal(groupValue{Name: g.Name, CachedAt: cachedAt})
		if err != nil {
			return err
		}
		pipe.Set(ctx, groupKey(endpoint, g.ID), b, c.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}
