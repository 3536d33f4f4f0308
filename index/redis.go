package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/termsync/termsync/entry"
)

const keyPrefix = "termsync:pending:"

// Redis stores pending entries as JSON values with a TTL, so an entry whose
// end event never arrives (crashed shell, closed laptop) does not linger
// forever. Multiple server replicas pointed at the same Redis share one
// pending set.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection before returning.
func NewRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Put(ctx context.Context, uuid string, e *entry.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode pending entry: %w", err)
	}
	return r.client.Set(ctx, keyPrefix+uuid, data, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, uuid string) (*entry.Entry, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+uuid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var e entry.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decode pending entry %s: %w", uuid, err)
	}
	return &e, true, nil
}

func (r *Redis) Remove(ctx context.Context, uuid string) error {
	return r.client.Del(ctx, keyPrefix+uuid).Err()
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
