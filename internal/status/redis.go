package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still belongs to the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements a Redis-backed status store, shared by every
// process pointed at the same Redis
type RedisStore struct {
	client *redis.Client
	config Config
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Config holds common status configuration
	Config Config
}

// NewRedisStoreWithConfig connects to Redis and verifies the connection
func NewRedisStoreWithConfig(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return NewRedisStoreWithClient(client, config.Config), nil
}

// NewRedisStoreWithClient creates a store with an existing client
func NewRedisStoreWithClient(client *redis.Client, config Config) *RedisStore {
	return &RedisStore{
		client: client,
		config: config,
	}
}

func (r *RedisStore) lockKey() string {
	return r.config.Prefix + "lock"
}

func (r *RedisStore) statusKey() string {
	return r.config.Prefix + "status"
}

// Acquire takes the lock with SET NX
func (r *RedisStore) Acquire(ctx context.Context, runID string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.LockTTL
	}

	ok, err := r.client.SetNX(ctx, r.lockKey(), runID, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !ok {
		return ErrBusy
	}
	return nil
}

// Release gives up the lock if runID still holds it
func (r *RedisStore) Release(ctx context.Context, runID string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.lockKey()}, runID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release generation lock: %w", err)
	}
	return nil
}

// Get returns the last recorded status
func (r *RedisStore) Get(ctx context.Context) (Status, error) {
	data, err := r.client.Get(ctx, r.statusKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Status{State: Never}, nil
		}
		return Status{}, fmt.Errorf("failed to read generation status: %w", err)
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("failed to decode generation status: %w", err)
	}
	return s, nil
}

// Set records a status. Status keys do not expire.
func (r *RedisStore) Set(ctx context.Context, s Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode generation status: %w", err)
	}
	if err := r.client.Set(ctx, r.statusKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write generation status: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
