package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"roadassist/internal/config"
	"roadassist/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisActivityStream mirrors activity entries into a capped Redis stream
// so dashboards can tail recent request activity.
type RedisActivityStream struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisActivityStream(client *redis.Client, key string, maxLen int64) *RedisActivityStream {
	return &RedisActivityStream{
		client: client,
		key:    key,
		maxLen: maxLen,
	}
}

func (r *RedisActivityStream) Append(ctx context.Context, entry *models.ActivityLog) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}

	args := &redis.XAddArgs{
		Stream: r.key,
		Values: map[string]interface{}{
			"id":         entry.ID,
			"user_id":    entry.UserID,
			"action":     entry.Action,
			"request_id": entry.RequestID,
			"details":    details,
			"created_at": entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append activity to stream: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *RedisActivityStream) Recent(ctx context.Context, limit int64) ([]*models.ActivityLog, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	msgs, err := r.client.XRevRangeN(ctx, r.key, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read activity stream: %w", err)
	}

	out := make([]*models.ActivityLog, 0, len(msgs))
	for _, msg := range msgs {
		entry, err := decodeStreamEntry(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stream entry %s: %w", msg.ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func decodeStreamEntry(values map[string]interface{}) (*models.ActivityLog, error) {
	str := func(k string) string {
		v, _ := values[k].(string)
		return v
	}

	entry := &models.ActivityLog{
		Action:    str("action"),
		RequestID: str("request_id"),
		Details:   json.RawMessage(str("details")),
	}
	var err error
	if entry.ID, err = strconv.ParseInt(str("id"), 10, 64); err != nil {
		return nil, fmt.Errorf("bad id: %w", err)
	}
	if entry.UserID, err = strconv.ParseInt(str("user_id"), 10, 64); err != nil {
		return nil, fmt.Errorf("bad user_id: %w", err)
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, str("created_at")); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	return entry, nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
