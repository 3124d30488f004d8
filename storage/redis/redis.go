// Package redis provides a Redis implementation of the replygate.Store interface
// and a shared sliding-window replygate.RateLimiter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// Storage implements replygate.Store using Redis string keys
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "replygate:")
	KeyPrefix string

	// DocumentTTL is the TTL for stored documents (0 = no expiration)
	DocumentTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:   "replygate:",
		DocumentTTL: 0, // User state doesn't expire
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "replygate:"
	}

	return &Storage{
		client: client,
		config: config,
	}, nil
}

// Get implements replygate.Store
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.config.KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, replygate.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Set implements replygate.Store
func (s *Storage) Set(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("invalid key")
	}

	if err := s.client.Set(ctx, s.config.KeyPrefix+key, doc, s.config.DocumentTTL).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
