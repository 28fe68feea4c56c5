package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisUsageRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisUsageRepository(client *redis.Client) ports.UsageRepository {
	return &RedisUsageRepository{
		client: client,
		prefix: "omnicast:usage:",
	}
}

type sessionRecord struct {
	ID        domain.SessionID `json:"id"`
	StartedAt time.Time        `json:"started_at"`
}

func (r *RedisUsageRepository) hoursKey(userID domain.UserID) string {
	return r.prefix + "hours:" + string(userID)
}

func (r *RedisUsageRepository) sessionKey(userID domain.UserID) string {
	return r.prefix + "session:" + string(userID)
}

func (r *RedisUsageRepository) CloudHoursUsed(ctx context.Context, userID domain.UserID) (float64, error) {
	val, err := r.client.Get(ctx, r.hoursKey(userID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cloud hours from Redis: %w", err)
	}

	hours, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse cloud hours: %w", err)
	}
	return hours, nil
}

func (r *RedisUsageRepository) AddCloudHours(ctx context.Context, userID domain.UserID, hours float64) error {
	if err := r.client.IncrByFloat(ctx, r.hoursKey(userID), hours).Err(); err != nil {
		return fmt.Errorf("failed to add cloud hours in Redis: %w", err)
	}
	return nil
}

func (r *RedisUsageRepository) SetActiveSession(ctx context.Context, userID domain.UserID, sessionID domain.SessionID, startedAt time.Time) error {
	data, err := json.Marshal(sessionRecord{ID: sessionID, StartedAt: startedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set active session in Redis: %w", err)
	}
	return nil
}

func (r *RedisUsageRepository) ClearActiveSession(ctx context.Context, userID domain.UserID) error {
	if err := r.client.Del(ctx, r.sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear active session in Redis: %w", err)
	}
	return nil
}

func (r *RedisUsageRepository) ActiveSession(ctx context.Context, userID domain.UserID) (domain.SessionID, time.Time, error) {
	data, err := r.client.Get(ctx, r.sessionKey(userID)).Result()
	if err == redis.Nil {
		return "", time.Time{}, domain.ErrNoActiveSession
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to get active session from Redis: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return rec.ID, rec.StartedAt, nil
}
