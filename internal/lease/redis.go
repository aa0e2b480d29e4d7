// Package lease provides a Redis backed sync driver lease for terminals that
// share a Redis instance instead of a local database file.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tillpoint/possync/internal/engine"
)

const defaultKeyPrefix = "possync:lease:"

// renewScript extends the lease only while holder still owns it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only while holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds Redis connection configuration.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis implements engine.Lease with SET NX PX and compare-and-set scripts.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) key(tenantID string) string {
	return r.keyPrefix + tenantID
}

// Acquire takes the lease when it is free or already held by holder.
func (r *Redis) Acquire(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(tenantID), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}
	return r.Renew(ctx, tenantID, holder, ttl)
}

// Renew extends a lease held by holder.
func (r *Redis) Renew(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, r.client, []string{r.key(tenantID)}, holder, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", err)
	}
	return n == 1, nil
}

// Release drops the lease if holder still owns it.
func (r *Redis) Release(ctx context.Context, tenantID, holder string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(tenantID)}, holder).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ engine.Lease = (*Redis)(nil)
