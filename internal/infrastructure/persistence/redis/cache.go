// Package redis implements the Redis-backed parts of the habit engine.
//
// Key components:
//   - Cache: general-purpose JSON cache with TTL management
//   - AdviceCache: generated advice bundles keyed by routine and streak length
//   - CompletionLog: once-per-day routine completion marks
//   - PresenceTracker: TTL-based online presence for buddy candidates
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/habit-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// PoolTimeout is the timeout for getting a connection from the pool.
	PoolTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when the requested key is not found in cache.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when Redis connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned when serialization/deserialization fails.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheInvalidTTL is returned when an invalid TTL is provided.
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")

	// ErrCacheNilValue is returned when attempting to cache a nil value.
	ErrCacheNilValue = errors.New("cache: value cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY PREFIXES
// ══════════════════════════════════════════════════════════════════════════════

// Key prefixes for namespacing Redis keys.
const (
	// PrefixAdvice is the prefix for cached advice bundles.
	PrefixAdvice = "advice:"

	// PrefixCompletion is the prefix for per-day routine completion sets.
	PrefixCompletion = "completion:"

	// PrefixPresence is the prefix for presence keys.
	PrefixPresence = "presence:"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT TTLs
// ══════════════════════════════════════════════════════════════════════════════

const (
	// TTLPresence is how long a heartbeat keeps a candidate online.
	TTLPresence = 5 * time.Minute

	// TTLAdvice is the default TTL for cached advice.
	TTLAdvice = 10 * time.Minute

	// TTLCompletionGrace keeps a day's completion set a little past midnight.
	TTLCompletionGrace = time.Hour
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache provides general-purpose caching functionality with Redis.
// Every command goes through a circuit breaker so a dead Redis fails fast.
type Cache struct {
	client  *redis.Client
	breaker *circuitbreaker.Breaker
}

// NewBreaker returns the breaker for Redis commands. A missing key and a
// caller that gave up are not Redis failures.
func NewBreaker(onStateChange func(name string, from, to circuitbreaker.State)) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Settings{
		Name:          "redis",
		Trip:          3,
		Cooldown:      15 * time.Second,
		IsFailure:     IsOutage,
		OnStateChange: onStateChange,
	})
}

// IsOutage reports whether err means Redis itself is failing.
func IsOutage(err error) bool {
	return err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled)
}

// NewCache creates a new Cache and pings the server.
func NewCache(ctx context.Context, cfg Config, breaker *circuitbreaker.Breaker) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return NewCacheFromClient(client, breaker), nil
}

// NewCacheFromClient wraps an existing client. A nil breaker gets NewBreaker.
func NewCacheFromClient(client *redis.Client, breaker *circuitbreaker.Breaker) *Cache {
	if breaker == nil {
		breaker = NewBreaker(nil)
	}
	return &Cache{client: client, breaker: breaker}
}

// Client returns the underlying Redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Breaker returns the circuit breaker guarding the client.
func (c *Cache) Breaker() *circuitbreaker.Breaker {
	return c.breaker
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable. It bypasses the breaker so health
// checks see the real state.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// do runs fn through the breaker and maps redis.Nil to ErrCacheMiss.
func (c *Cache) do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := c.breaker.Do(ctx, fn)
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// BASIC OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Set stores a value with the given key and TTL.
// The value is serialized to JSON before storage.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if value == nil {
		return ErrCacheNilValue
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return c.do(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, data, ttl).Err()
	})
}

// Get retrieves and deserializes a value by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	var data []byte
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, key).Bytes()
		return err
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return nil
}

// GetBytes retrieves the raw stored bytes.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}

	var data []byte
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, key).Bytes()
		return err
	})
	return data, err
}

// SetBytes stores raw bytes.
func (c *Cache) SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}

	return c.do(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, data, ttl).Err()
	})
}

// Delete removes keys from the cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.do(ctx, func(ctx context.Context) error {
		return c.client.Del(ctx, keys...).Err()
	})
}

// Exists checks if a key exists in the cache.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}

	var count int64
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		count, err = c.client.Exists(ctx, key).Result()
		return err
	})
	return count > 0, err
}

// ══════════════════════════════════════════════════════════════════════════════
// SET OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SAddExpireAt adds a member to a set and sets the set's expiry in one
// transaction. It reports whether the member was new.
func (c *Cache) SAddExpireAt(ctx context.Context, key, member string, at time.Time) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}

	var added *redis.IntCmd
	err := c.do(ctx, func(ctx context.Context) error {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			added = pipe.SAdd(ctx, key, member)
			pipe.ExpireAt(ctx, key, at)
			return nil
		})
		return err
	})
	if err != nil {
		return false, err
	}

	return added.Val() == 1, nil
}

// SRem removes members from a set.
func (c *Cache) SRem(ctx context.Context, key string, members ...interface{}) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.client.SRem(ctx, key, members...).Err()
	})
}

// SMembers returns all members of a set.
func (c *Cache) SMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		members, err = c.client.SMembers(ctx, key).Result()
		return err
	})
	return members, err
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// AdviceKey generates a cache key for an advice bundle.
func AdviceKey(routineID string, days int) string {
	return fmt.Sprintf("%s%s:%d", PrefixAdvice, routineID, days)
}

// CompletionKey generates the key of a user's completion set for a day.
func CompletionKey(userID, day string) string {
	return PrefixCompletion + userID + ":" + day
}

// PresenceKey generates a presence key.
func PresenceKey(candidateID string) string {
	return PrefixPresence + candidateID
}
