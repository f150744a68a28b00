package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/notify"
)

// Watcher turns bus signals into a stream of node snapshots.
type Watcher struct {
	store Store
	bus   notify.Bus
	log   *zap.Logger
}

// NewWatcher constructs a Watcher.
func NewWatcher(s Store, bus notify.Bus, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{store: s, bus: bus, log: log}
}

// Watch emits the current node at path (Ver 0 when absent) and then one
// node per observed version change, until ctx is done. The channel is
// closed on exit.
func (w *Watcher) Watch(ctx context.Context, path string) (<-chan Node, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	// subscribe before the first read so no change falls in between
	sig, cancel, err := w.bus.Subscribe(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make(chan Node, 1)
	go func() {
		defer close(out)
		defer cancel()

		last := int64(-1)
		emit := func() bool {
			n, err := w.store.Get(ctx, path)
			switch {
			case errors.Is(err, errs.ErrNotFound):
				n = Node{Path: path}
			case err != nil:
				if ctx.Err() != nil {
					return false
				}
				w.log.Warn("watch read", zap.String("path", path), zap.Error(err))
				return true
			}
			if n.Ver == last {
				return true
			}
			last = n.Ver
			select {
			case out <- n:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sig:
				if !ok || !emit() {
					return
				}
			}
		}
	}()
	return out, nil
}
