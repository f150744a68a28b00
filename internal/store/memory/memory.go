// Package memory is an in-process implementation of store.Store used by
// tests and the single-node development server.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

// Store keeps nodes in a map guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]store.Node
}

// New constructs an empty store.
func New() *Store { return &Store{nodes: make(map[string]store.Node)} }

// Get returns a copy of the node at path.
func (s *Store) Get(_ context.Context, path string) (store.Node, error) {
	if err := store.ValidatePath(path); err != nil {
		return store.Node{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[path]
	if !ok {
		return store.Node{}, fmt.Errorf("%s: %w", path, errs.ErrNotFound)
	}
	n.Value = append([]byte(nil), n.Value...)
	return n, nil
}

// Set overwrites the value at path.
func (s *Store) Set(_ context.Context, path string, value []byte) (int64, error) {
	if err := store.ValidatePath(path); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ver := s.nodes[path].Ver + 1
	s.put(path, value, ver)
	return ver, nil
}

// CompareAndSet writes value when the current version equals baseVer.
func (s *Store) CompareAndSet(ctx context.Context, path string, baseVer int64, value []byte) (int64, error) {
	vers, err := s.Apply(ctx, []store.Write{{Path: path, BaseVer: baseVer, Value: value}})
	if err != nil {
		return 0, err
	}
	return vers[0], nil
}

// Apply checks all base versions first and then writes every path.
func (s *Store) Apply(_ context.Context, writes []store.Write) ([]int64, error) {
	if err := store.ValidateWrites(writes); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range writes {
		if cur := s.nodes[w.Path].Ver; cur != w.BaseVer {
			return nil, fmt.Errorf("write[%d] %s (have %d, base %d): %w", i, w.Path, cur, w.BaseVer, errs.ErrVersionConflict)
		}
	}
	vers := make([]int64, 0, len(writes))
	for _, w := range writes {
		ver := w.BaseVer + 1
		s.put(w.Path, w.Value, ver)
		vers = append(vers, ver)
	}
	return vers, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len reports the number of stored paths.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Store) put(path string, value []byte, ver int64) {
	s.nodes[path] = store.Node{Path: path, Value: append([]byte(nil), value...), Ver: ver}
}
