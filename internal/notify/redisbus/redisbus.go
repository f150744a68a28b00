// Package redisbus implements notify.Bus over Redis pub/sub so watchers on
// one server instance see writes made through another.
package redisbus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus publishes change signals on "<prefix>:changed:<path>" channels.
type Bus struct {
	client redis.UniversalClient
	prefix string
	log    *zap.Logger
}

// New constructs a Redis-backed bus.
func New(client redis.UniversalClient, prefix string, log *zap.Logger) *Bus {
	if prefix == "" {
		prefix = "msgr"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{client: client, prefix: prefix, log: log}
}

// Channel returns the pub/sub channel name for path.
func (b *Bus) Channel(path string) string { return b.prefix + ":changed:" + path }

// Publish sends the path as payload.
func (b *Bus) Publish(ctx context.Context, path string) error {
	return b.client.Publish(ctx, b.Channel(path), path).Err()
}

// Subscribe waits for the subscription to be confirmed before returning so
// that no publish issued afterwards is missed.
func (b *Bus) Subscribe(ctx context.Context, path string) (<-chan struct{}, func(), error) {
	ps := b.client.Subscribe(ctx, b.Channel(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					b.log.Warn("redis subscription closed", zap.String("path", path))
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				b.log.Debug("redis unsubscribe", zap.String("path", path), zap.Error(err))
			}
		})
	}
	return out, cancel, nil
}
