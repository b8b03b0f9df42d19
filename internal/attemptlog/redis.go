// Package attemptlog keeps the bounded per-endpoint delivery log in Redis,
// as an alternative to the attempts table of the SQL stores.
package attemptlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/shohag/hookrelay/internal/models"
)

const DefaultKeyPrefix = "hookrelay:attempts"

// RedisLog stores attempts newest first in one list per endpoint, trimmed
// to the retention window on every append.
type RedisLog struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, url, prefix string) (*RedisLog, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(rdb, prefix), nil
}

func NewRedisWithClient(rdb *redis.Client, prefix string) *RedisLog {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLog{rdb: rdb, prefix: prefix}
}

func (l *RedisLog) key(tenantID, endpointID string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, tenantID, endpointID)
}

func (l *RedisLog) CreateAttempt(ctx context.Context, a *models.Attempt, keep int) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	key := l.key(a.TenantID, a.EndpointID)
	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	if keep > 0 {
		pipe.LTrim(ctx, key, 0, int64(keep-1))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ListAttempts filters in memory; the window is bounded by retention so the
// whole list is small.
func (l *RedisLog) ListAttempts(ctx context.Context, tenantID, endpointID string, filter models.AttemptFilter) ([]models.Attempt, int, error) {
	raw, err := l.rdb.LRange(ctx, l.key(tenantID, endpointID), 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	matched := make([]models.Attempt, 0, len(raw))
	for _, item := range raw {
		var a models.Attempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, 0, fmt.Errorf("decode attempt: %w", err)
		}
		if a.Matches(filter.Status) {
			matched = append(matched, a)
		}
	}

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

// PurgeAttempts drops the log of a deleted endpoint.
func (l *RedisLog) PurgeAttempts(ctx context.Context, tenantID, endpointID string) error {
	return l.rdb.Del(ctx, l.key(tenantID, endpointID)).Err()
}

// PurgeTenant drops the logs of every endpoint of a deleted tenant.
func (l *RedisLog) PurgeTenant(ctx context.Context, tenantID string) error {
	iter := l.rdb.Scan(ctx, 0, fmt.Sprintf("%s:%s:*", l.prefix, tenantID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return l.rdb.Del(ctx, keys...).Err()
}

func (l *RedisLog) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *RedisLog) Close() error {
	return l.rdb.Close()
}
