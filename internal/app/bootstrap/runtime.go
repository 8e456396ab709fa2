package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/whatsapp-booking-agent/internal/config"
	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// ProfileStore is the store selected by PROFILE_STORE together with the
// resources it owns.
type ProfileStore struct {
	conversation.ProfileStore
	Backend string
	Ping    func(ctx context.Context) error
	Close   func()
}

// BuildProfileStore wires the configured profile backend. awsCfg is only
// read for the dynamodb backend.
func BuildProfileStore(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, awsCfg aws.Config, logger *logging.Logger) (*ProfileStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.ProfileStore {
	case "", "memory":
		logger.Warn("using in-memory profile store; conversations are lost on restart")
		return &ProfileStore{
			ProfileStore: conversation.NewMemoryProfileStore(),
			Backend:      "memory",
			Ping:         func(context.Context) error { return nil },
			Close:        noop,
		}, nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis profile store needs REDIS_ADDR")
		}
		return &ProfileStore{
			ProfileStore: conversation.NewRedisProfileStore(redisClient, cfg.ProfileTTL),
			Backend:      "redis",
			Ping:         func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Close:        noop,
		}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		return &ProfileStore{
			ProfileStore: conversation.NewPostgresProfileStore(pool),
			Backend:      "postgres",
			Ping:         pool.Ping,
			Close:        pool.Close,
		}, nil
	case "dynamodb":
		client := dynamodb.NewFromConfig(awsCfg)
		table := cfg.DynamoProfilesTable
		return &ProfileStore{
			ProfileStore: conversation.NewDynamoProfileStore(client, table, cfg.ProfileTTL, logger),
			Backend:      "dynamodb",
			Ping: func(ctx context.Context) error {
				_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
				return err
			},
			Close: noop,
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown profile store %q", cfg.ProfileStore)
	}
}

// BuildHistoryStore prefers Redis and falls back to process memory.
func BuildHistoryStore(cfg *appconfig.Config, redisClient *redis.Client) conversation.HistoryStore {
	limit := conversation.DefaultHistoryLimit
	if cfg != nil && cfg.HistoryLimit > 0 {
		limit = cfg.HistoryLimit
	}
	if redisClient != nil {
		return conversation.NewRedisHistoryStore(redisClient, limit)
	}
	return conversation.NewMemoryHistoryStore(limit)
}

// BuildLocker returns a Redis lock when several replicas may share
// contacts, otherwise an in-process one.
func BuildLocker(cfg *appconfig.Config, redisClient *redis.Client) conversation.Locker {
	if redisClient != nil {
		ttl := cfg.LockTTL
		return conversation.NewRedisLocker(redisClient, ttl)
	}
	return conversation.NewMemoryLocker()
}
