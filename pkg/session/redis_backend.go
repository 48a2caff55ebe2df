package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "pixelctx:stats:"

// RedisBackend implements StatsBackend with one Redis list per session.
// It lets several server replicas share stats.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`
	// Password is the Redis password (optional).
	Password string `yaml:"password"`
	// DB is the Redis database number.
	DB int `yaml:"db"`
	// Prefix is the key prefix (default: "pixelctx:stats:").
	Prefix string `yaml:"prefix"`
	// TTL expires idle session logs (0 = never expire).
	TTL time.Duration `yaml:"ttl"`
	// PoolSize is the connection pool size (default: 10).
	PoolSize int `yaml:"pool_size"`
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackendFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisBackendFromClient creates a Redis backend from an existing client.
func NewRedisBackendFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (b *RedisBackend) callsKey(sessionID string) string {
	return b.prefix + "calls:" + sessionID
}

func (b *RedisBackend) indexKey() string {
	return b.prefix + "index"
}

func (b *RedisBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// Append pushes one call onto the session's list.
func (b *RedisBackend) Append(ctx context.Context, sessionID string, stats CallStats) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, b.callsKey(sessionID), data)
	pipe.SAdd(ctx, b.indexKey(), sessionID)
	if b.ttl > 0 {
		pipe.Expire(ctx, b.callsKey(sessionID), b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append stats: %w", err)
	}
	return nil
}

// Load reads the session's list in order.
func (b *RedisBackend) Load(ctx context.Context, sessionID string) ([]CallStats, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	data, err := b.client.LRange(ctx, b.callsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	calls := make([]CallStats, 0, len(data))
	for _, d := range data {
		var c CallStats
		if err := json.Unmarshal([]byte(d), &c); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, nil
}

// Replace atomically swaps the session's list.
func (b *RedisBackend) Replace(ctx context.Context, sessionID string, calls []CallStats) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	values := make([]any, 0, len(calls))
	for _, c := range calls {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		values = append(values, data)
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.callsKey(sessionID))
	if len(values) > 0 {
		pipe.RPush(ctx, b.callsKey(sessionID), values...)
		if b.ttl > 0 {
			pipe.Expire(ctx, b.callsKey(sessionID), b.ttl)
		}
	}
	pipe.SAdd(ctx, b.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace stats: %w", err)
	}
	return nil
}

// Delete removes the session's list and index entry.
func (b *RedisBackend) Delete(ctx context.Context, sessionID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.callsKey(sessionID))
	pipe.SRem(ctx, b.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete stats: %w", err)
	}
	return nil
}

// Sessions lists indexed ids whose list still exists, sorted. Ids whose list
// expired are pruned from the index.
func (b *RedisBackend) Sessions(ctx context.Context) ([]string, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(ids)

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := b.client.Exists(ctx, b.callsKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		if n == 0 {
			if err := b.client.SRem(ctx, b.indexKey(), id).Err(); err != nil {
				log.Printf("[Session] redis: prune expired session %s from index: %v", id, err)
			}
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Close releases the Redis client.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

// Ping checks if the Redis connection is alive.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.client.Ping(ctx).Err()
}
