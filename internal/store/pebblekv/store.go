// Package pebblekv implements store.Store on an embedded Pebble database,
// for single-node deployments that do not want a PostgreSQL dependency.
package pebblekv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

// keyPrefix namespaces node keys inside the Pebble keyspace.
const keyPrefix = "node:"

// Store keeps each node as "node:<path>" -> uint64 version || value.
// Pebble has no read-modify-write transactions, so version checks and the
// following batch commit are serialized by mu.
type Store struct {
	mu  sync.Mutex
	db  *pebble.DB
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) a Pebble database at dir. opts may be nil.
func Open(dir string, opts *pebble.Options, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		log.Error("open pebble", zap.String("dir", dir), zap.Error(err))
		return nil, err
	}
	log.Info("pebble opened", zap.String("dir", dir))
	return &Store{db: db, log: log}, nil
}

// Get reads and decodes the node at path.
func (s *Store) Get(_ context.Context, path string) (store.Node, error) {
	if err := store.ValidatePath(path); err != nil {
		return store.Node{}, err
	}
	ver, val, err := s.read(path)
	if err != nil {
		return store.Node{}, err
	}
	if ver == 0 {
		return store.Node{}, fmt.Errorf("%s: %w", path, errs.ErrNotFound)
	}
	return store.Node{Path: path, Value: val, Ver: ver}, nil
}

// Set overwrites the value at path.
func (s *Store) Set(_ context.Context, path string, value []byte) (int64, error) {
	if err := store.ValidatePath(path); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _, err := s.read(path)
	if err != nil {
		return 0, err
	}
	ver := cur + 1
	if err := s.db.Set(nodeKey(path), encode(ver, value), pebble.Sync); err != nil {
		s.log.Error("set node", zap.String("path", path), zap.Error(err))
		return 0, store.WriteFailed("set "+path, err)
	}
	return ver, nil
}

// CompareAndSet is a single-write Apply.
func (s *Store) CompareAndSet(ctx context.Context, path string, baseVer int64, value []byte) (int64, error) {
	vers, err := s.Apply(ctx, []store.Write{{Path: path, BaseVer: baseVer, Value: value}})
	if err != nil {
		return 0, err
	}
	return vers[0], nil
}

// Apply checks every base version and commits all writes in one batch.
func (s *Store) Apply(_ context.Context, writes []store.Write) ([]int64, error) {
	if err := store.ValidateWrites(writes); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range writes {
		cur, _, err := s.read(w.Path)
		if err != nil {
			return nil, err
		}
		if cur != w.BaseVer {
			return nil, fmt.Errorf("write[%d] %s: %w", i, w.Path, errs.ErrVersionConflict)
		}
	}

	b := s.db.NewBatch()
	defer b.Close()
	vers := make([]int64, 0, len(writes))
	for _, w := range writes {
		ver := w.BaseVer + 1
		if err := b.Set(nodeKey(w.Path), encode(ver, w.Value), nil); err != nil {
			return nil, store.WriteFailed("batch "+w.Path, err)
		}
		vers = append(vers, ver)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		s.log.Error("commit batch", zap.Int("writes", len(writes)), zap.Error(err))
		return nil, store.WriteFailed("commit", err)
	}
	return vers, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	s.log.Info("pebble closed")
	return nil
}

// read returns version 0 when the key is absent.
func (s *Store) read(path string) (int64, []byte, error) {
	raw, closer, err := s.db.Get(nodeKey(path))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	defer closer.Close()
	return decode(raw)
}

func nodeKey(path string) []byte { return []byte(keyPrefix + path) }

func encode(ver int64, value []byte) []byte {
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out, uint64(ver))
	copy(out[8:], value)
	return out
}

// decode copies the value out of Pebble's buffer, which is only valid
// until the closer is closed.
func decode(raw []byte) (int64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, errors.New("pebblekv: corrupt node envelope")
	}
	ver := int64(binary.BigEndian.Uint64(raw[:8]))
	return ver, append([]byte(nil), raw[8:]...), nil
}
