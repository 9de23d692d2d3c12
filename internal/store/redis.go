package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/humanwheel-leaderboard/internal/config"
)

// batch size for MGET and DEL calls
const redisChunk = 500

// RedisKV provides the KV contract on top of Redis strings
type RedisKV struct {
	client    redis.UniversalClient
	scanCount int64
	logger    *slog.Logger
}

// NewRedisKV connects to Redis and verifies the connection
func NewRedisKV(cfg *config.RedisConfig, logger *slog.Logger) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisKVFromClient(client, cfg.ScanCount, logger), nil
}

// NewRedisKVFromClient wraps an existing client
func NewRedisKVFromClient(client redis.UniversalClient, scanCount int64, logger *slog.Logger) *RedisKV {
	if scanCount <= 0 {
		scanCount = 100
	}
	return &RedisKV{
		client:    client,
		scanCount: scanCount,
		logger:    logger,
	}
}

// Close closes the Redis connection
func (s *RedisKV) Close() error {
	return s.client.Close()
}

// Ping checks the connection
func (s *RedisKV) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// Get returns the value stored at key
func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting key: %w", err)
	}
	return val, nil
}

// Set overwrites the value at key
func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("setting key: %w", err)
	}
	return nil
}

// Delete removes key; a missing key is not an error
func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	return nil
}

// MultiDelete removes keys using pipelined DEL batches
func (s *RedisKV) MultiDelete(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(keys)/redisChunk+1)
	for start := 0; start < len(keys); start += redisChunk {
		end := min(start+redisChunk, len(keys))
		cmds = append(cmds, pipe.Del(ctx, keys[start:end]...))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("batch deleting keys: %w", err)
	}

	deleted := 0
	for _, cmd := range cmds {
		deleted += int(cmd.Val())
	}
	return deleted, nil
}

// KeysByPrefix scans for keys starting with prefix
func (s *RedisKV) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning keys: %w", err)
	}

	// SCAN may return a key more than once
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetByPrefix returns every entry under prefix, ordered by key
func (s *RedisKV) GetByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	keys, err := s.KeysByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for start := 0; start < len(keys); start += redisChunk {
		chunk := keys[start:min(start+redisChunk, len(keys))]
		values, err := s.client.MGet(ctx, chunk...).Result()
		if err != nil {
			return nil, fmt.Errorf("getting values: %w", err)
		}
		for i, v := range values {
			// deleted between SCAN and MGET
			if v == nil {
				continue
			}
			str, ok := v.(string)
			if !ok {
				s.logger.Warn("unexpected redis value type", "key", chunk[i])
				continue
			}
			entries = append(entries, Entry{Key: chunk[i], Value: []byte(str)})
		}
	}
	return entries, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
