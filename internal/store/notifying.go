package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/notify"
)

// Notifying decorates a Store so every successful write publishes a change
// signal for the written paths.
type Notifying struct {
	Store
	bus notify.Bus
	log *zap.Logger
}

// WithNotify wraps s; publish failures are logged and never fail the write.
func WithNotify(s Store, bus notify.Bus, log *zap.Logger) *Notifying {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifying{Store: s, bus: bus, log: log}
}

// Set writes and publishes.
func (n *Notifying) Set(ctx context.Context, path string, value []byte) (int64, error) {
	ver, err := n.Store.Set(ctx, path, value)
	if err == nil {
		n.publish(ctx, path)
	}
	return ver, err
}

// CompareAndSet writes and publishes.
func (n *Notifying) CompareAndSet(ctx context.Context, path string, baseVer int64, value []byte) (int64, error) {
	ver, err := n.Store.CompareAndSet(ctx, path, baseVer, value)
	if err == nil {
		n.publish(ctx, path)
	}
	return ver, err
}

// Apply commits and publishes every written path.
func (n *Notifying) Apply(ctx context.Context, writes []Write) ([]int64, error) {
	vers, err := n.Store.Apply(ctx, writes)
	if err == nil {
		for _, w := range writes {
			n.publish(ctx, w.Path)
		}
	}
	return vers, err
}

func (n *Notifying) publish(ctx context.Context, path string) {
	if err := n.bus.Publish(ctx, path); err != nil {
		n.log.Warn("publish change", zap.String("path", path), zap.Error(err))
	}
}
