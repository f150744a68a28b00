package main

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/blob"
	blobmem "github.com/TomaszGol/iOS-Messenger/internal/blob/memory"
	"github.com/TomaszGol/iOS-Messenger/internal/blob/s3blob"
	"github.com/TomaszGol/iOS-Messenger/internal/config"
	"github.com/TomaszGol/iOS-Messenger/internal/events"
	"github.com/TomaszGol/iOS-Messenger/internal/events/kafkapub"
	"github.com/TomaszGol/iOS-Messenger/internal/metrics"
	"github.com/TomaszGol/iOS-Messenger/internal/migrate"
	"github.com/TomaszGol/iOS-Messenger/internal/notify"
	"github.com/TomaszGol/iOS-Messenger/internal/notify/redisbus"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
	"github.com/TomaszGol/iOS-Messenger/internal/store/memory"
	"github.com/TomaszGol/iOS-Messenger/internal/store/pebblekv"
	"github.com/TomaszGol/iOS-Messenger/internal/store/postgres"
)

// openStore migrates and connects the configured node store.
func openStore(ctx context.Context, cfg config.StoreCfg, log *zap.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.StorePostgres:
		if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.NewStore(db, log), nil
	case config.StorePebble:
		return pebblekv.Open(cfg.PebbleDir, &pebble.Options{}, log)
	default:
		log.Warn("in-memory store; data is lost on restart")
		return memory.New(), nil
	}
}

// openBus returns the Redis bus when configured, the in-process bus otherwise.
func openBus(ctx context.Context, cfg config.RedisCfg, log *zap.Logger) (notify.Bus, func(), error) {
	if cfg.Addr == "" {
		return notify.NewLocal(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return redisbus.New(client, cfg.Prefix, log), func() { _ = client.Close() }, nil
}

func openBlobs(ctx context.Context, cfg config.BlobCfg, log *zap.Logger) (blob.Store, error) {
	if cfg.Backend == config.BlobS3 {
		return s3blob.New(ctx, s3blob.Options{
			Region:   cfg.Region,
			Bucket:   cfg.Bucket,
			Endpoint: cfg.Endpoint,
			URLTTL:   cfg.URLTTL,
		}, log)
	}
	return blobmem.New(cfg.BaseURL), nil
}

func openEvents(cfg config.KafkaCfg, log *zap.Logger, m *metrics.Metrics) (events.Publisher, func()) {
	if len(cfg.Brokers) == 0 {
		return events.Nop{}, func() {}
	}
	p := kafkapub.New(cfg.Brokers, cfg.Topic, log, m)
	return p, func() { _ = p.Close() }
}
