package server

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/replygate/internal/config"
	"github.com/mihaimyh/replygate/pkg/replygate"
	firestoreStorage "github.com/mihaimyh/replygate/storage/firestore"
	"github.com/mihaimyh/replygate/storage/memory"
	"github.com/mihaimyh/replygate/storage/postgres"
	redisStorage "github.com/mihaimyh/replygate/storage/redis"
	"github.com/mihaimyh/replygate/storage/tiered"
)

// backend is the store chosen by configuration plus the resources it owns
type backend struct {
	store   replygate.Store
	limiter replygate.RateLimiter
	closers []func() error
}

func (b *backend) close() error {
	var errs []error
	// Close in reverse order of acquisition
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.Backend {
	case config.BackendMemory:
		b.store = memory.New()

	case config.BackendRedis:
		client, err := b.openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := redisStorage.New(client, redisStorage.Config{KeyPrefix: cfg.RedisKeyPrefix})
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.store = store

	case config.BackendPostgres:
		store, err := b.openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.store = store

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		store, err := firestoreStorage.New(client, firestoreStorage.Config{Collection: cfg.FirestoreCollection})
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.store = store

	case config.BackendTiered:
		client, err := b.openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		hot, err := redisStorage.New(client, redisStorage.Config{KeyPrefix: cfg.RedisKeyPrefix})
		if err != nil {
			_ = b.close()
			return nil, err
		}
		cold, err := b.openPostgres(ctx, cfg)
		if err != nil {
			_ = b.close()
			return nil, err
		}
		store, err := tiered.New(tiered.Config{
			Hot:              hot,
			Cold:             cold,
			AsyncCounterSync: cfg.TieredAsync,
			AsyncErrorHandler: func(err error) {
				logger.Error().Err(err).Msg("tiered cold write failed")
			},
		})
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.store = store

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	return b, nil
}

// openRedis connects a client and installs the shared sliding-window rate limiter
func (b *backend) openRedis(ctx context.Context, cfg config.StoreConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	b.closers = append(b.closers, client.Close)

	limiter, err := redisStorage.NewRateLimiter(client, cfg.RedisKeyPrefix)
	if err != nil {
		return nil, err
	}
	b.limiter = limiter
	return client, nil
}

func (b *backend) openPostgres(ctx context.Context, cfg config.StoreConfig) (*postgres.Storage, error) {
	pgConfig := postgres.DefaultConfig()
	pgConfig.ConnectionString = cfg.DatabaseURL
	store, err := postgres.New(ctx, pgConfig)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() error {
		store.Close()
		return nil
	})
	return store, nil
}
