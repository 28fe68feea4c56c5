package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisDestinationRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisDestinationRepository(client *redis.Client) ports.DestinationRepository {
	return &RedisDestinationRepository{
		client: client,
		prefix: "omnicast:destination:",
	}
}

func (r *RedisDestinationRepository) destKey(id domain.DestinationID) string {
	return r.prefix + string(id)
}

func (r *RedisDestinationRepository) userSetKey(userID domain.UserID) string {
	return r.prefix + "user:" + string(userID)
}

func (r *RedisDestinationRepository) Create(ctx context.Context, dest *domain.Destination) error {
	key := r.destKey(dest.ID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check destination existence: %w", err)
	}
	if exists > 0 {
		return domain.ErrDestinationExists
	}

	data, err := json.Marshal(dest)
	if err != nil {
		return fmt.Errorf("failed to marshal destination: %w", err)
	}

	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set destination in Redis: %w", err)
	}

	if err := r.client.SAdd(ctx, r.userSetKey(dest.UserID), string(dest.ID)).Err(); err != nil {
		return fmt.Errorf("failed to index destination by user: %w", err)
	}

	return nil
}

func (r *RedisDestinationRepository) GetByID(ctx context.Context, id domain.DestinationID) (*domain.Destination, error) {
	data, err := r.client.Get(ctx, r.destKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrDestinationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get destination from Redis: %w", err)
	}

	var dest domain.Destination
	if err := json.Unmarshal([]byte(data), &dest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal destination: %w", err)
	}

	return &dest, nil
}

func (r *RedisDestinationRepository) Update(ctx context.Context, dest *domain.Destination) error {
	if _, err := r.GetByID(ctx, dest.ID); err != nil {
		return err
	}

	data, err := json.Marshal(dest)
	if err != nil {
		return fmt.Errorf("failed to marshal destination: %w", err)
	}

	if err := r.client.Set(ctx, r.destKey(dest.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update destination in Redis: %w", err)
	}

	return nil
}

func (r *RedisDestinationRepository) Delete(ctx context.Context, id domain.DestinationID) error {
	dest, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.client.SRem(ctx, r.userSetKey(dest.UserID), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove destination from user index: %w", err)
	}

	if err := r.client.Del(ctx, r.destKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete destination from Redis: %w", err)
	}

	return nil
}

func (r *RedisDestinationRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.Destination, error) {
	ids, err := r.client.SMembers(ctx, r.userSetKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list destinations from Redis: %w", err)
	}

	var out []*domain.Destination
	for _, id := range ids {
		dest, err := r.GetByID(ctx, domain.DestinationID(id))
		if err == domain.ErrDestinationNotFound {
			// Stale index entry; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, dest)
	}

	return out, nil
}
