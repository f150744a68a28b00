// Package notify fans out "path changed" signals to store watchers.
package notify

import (
	"context"
	"sync"
)

// Bus delivers change signals for store paths.
type Bus interface {
	// Publish signals that the value at path changed.
	Publish(ctx context.Context, path string) error
	// Subscribe returns a channel receiving a signal per change of path
	// (signals may be coalesced) and a cancel func releasing the subscription.
	Subscribe(ctx context.Context, path string) (<-chan struct{}, func(), error)
}

// Local is an in-process Bus.
type Local struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocal constructs an in-process bus.
func NewLocal() *Local {
	return &Local{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish never blocks; a subscriber that has not drained its previous
// signal simply keeps the pending one.
func (b *Local) Publish(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[path] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for path.
func (b *Local) Subscribe(_ context.Context, path string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.subs[path] == nil {
		b.subs[path] = make(map[chan struct{}]struct{})
	}
	b.subs[path][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[path], ch)
			if len(b.subs[path]) == 0 {
				delete(b.subs, path)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers reports the number of live subscriptions for path.
func (b *Local) Subscribers(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[path])
}
