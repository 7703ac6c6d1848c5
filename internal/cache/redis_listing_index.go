package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dropsync-api/internal/domain"
)

// RedisListingIndex stores each account's SKU -> listing map as a Redis
// hash, so the index survives process restarts and is shared between
// replicas. Only the owning account's run mutates its hash.
type RedisListingIndex struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisListingIndex creates a Redis-backed listing index on an existing
// client connection.
func NewRedisListingIndex(client *redis.Client, keyPrefix string) *RedisListingIndex {
	if keyPrefix == "" {
		keyPrefix = "dropsync:listings"
	}
	return &RedisListingIndex{client: client, keyPrefix: keyPrefix}
}

func (r *RedisListingIndex) accountKey(accountID int64) string {
	return fmt.Sprintf("%s:%d", r.keyPrefix, accountID)
}

func (r *RedisListingIndex) Get(ctx context.Context, accountID int64, sku string) (*domain.ListingEntry, error) {
	data, err := r.client.HGet(ctx, r.accountKey(accountID), sku).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry domain.ListingEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *RedisListingIndex) Put(ctx context.Context, accountID int64, sku string, entry domain.ListingEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.accountKey(accountID), sku, data).Err()
}

func (r *RedisListingIndex) PutAll(ctx context.Context, accountID int64, entries map[string]domain.ListingEntry) error {
	if len(entries) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(entries))
	for sku, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		fields[sku] = data
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.accountKey(accountID), fields)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisListingIndex) Evict(ctx context.Context, accountID int64, sku string) error {
	return r.client.HDel(ctx, r.accountKey(accountID), sku).Err()
}

func (r *RedisListingIndex) Size(ctx context.Context, accountID int64) (int64, error) {
	return r.client.HLen(ctx, r.accountKey(accountID)).Result()
}
