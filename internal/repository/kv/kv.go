// Package kv implements the repository interfaces as JSON documents on a
// store.Store. Every list mutation is an optimistic read-modify-write that
// is retried with backoff on a version conflict.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/metrics"
	"github.com/TomaszGol/iOS-Messenger/internal/repository"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

// UsersPath is the flat users directory.
const UsersPath = "users"

// ConversationsPath is the directory list owned by userKey.
func ConversationsPath(userKey string) string { return store.Join(userKey, "conversations") }

// ProfilePath is the user record.
func ProfilePath(userKey string) string { return userKey }

// MessagesPath is the message log of a conversation.
func MessagesPath(conversationID string) string { return conversationID }

// Options tunes the conflict retry loop.
type Options struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
}

// Repository implements repository.ConversationRepository and
// repository.UserRepository.
type Repository struct {
	store   store.Store
	watcher *store.Watcher
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

var (
	_ repository.ConversationRepository = (*Repository)(nil)
	_ repository.UserRepository         = (*Repository)(nil)
)

// New constructs a Repository. watcher may be nil, in which case the Watch
// methods fail. m may be nil.
func New(s store.Store, watcher *store.Watcher, opts Options, log *zap.Logger, m *metrics.Metrics) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 8
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 10 * time.Millisecond
	}
	return &Repository{store: s, watcher: watcher, opts: opts, log: log, metrics: m}
}

// backoff is built per call; go-retry backoffs are stateful.
func (r *Repository) backoff() retry.Backoff {
	b := retry.NewExponential(r.opts.BaseDelay)
	b = retry.WithJitterPercent(25, b)
	b = retry.WithCappedDuration(time.Second, b)
	return retry.WithMaxRetries(r.opts.MaxAttempts-1, b)
}

// withRetry runs attempt until it succeeds, fails with anything other than
// a version conflict, or the attempts run out.
func (r *Repository) withRetry(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := attempt(ctx)
		if errors.Is(err, errs.ErrVersionConflict) {
			r.metrics.Conflict(op)
			r.log.Debug("version conflict, retrying", zap.String("op", op))
			return retry.RetryableError(err)
		}
		return err
	})
	r.metrics.Write(op, err)
	return err
}

// errSkip tells mutate that fn made no change.
var errSkip = errors.New("kv: nothing to write")

// mutate applies fn to the current value at path (nil raw, ver 0 when
// absent) and compare-and-sets the result.
func (r *Repository) mutate(ctx context.Context, op, path string, fn func(raw []byte, ver int64) ([]byte, error)) error {
	return r.withRetry(ctx, op, func(ctx context.Context) error {
		n, err := r.get(ctx, path)
		if err != nil {
			return err
		}
		next, err := fn(n.Value, n.Ver)
		if errors.Is(err, errSkip) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = r.store.CompareAndSet(ctx, path, n.Ver, next)
		return err
	})
}

// get returns a zero-version node when path is absent.
func (r *Repository) get(ctx context.Context, path string) (store.Node, error) {
	n, err := r.store.Get(ctx, path)
	if errors.Is(err, errs.ErrNotFound) {
		return store.Node{Path: path}, nil
	}
	return n, err
}

func (r *Repository) exists(ctx context.Context, path string) (bool, error) {
	n, err := r.get(ctx, path)
	if err != nil {
		return false, err
	}
	return n.Ver > 0, nil
}

// decodeList treats an absent or empty value as an empty list.
func decodeList[T any](path string, raw []byte) ([]T, error) {
	out := []T{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

// watchList decodes every snapshot of path into a list. Undecodable
// snapshots are logged and skipped.
func watchList[T any](ctx context.Context, r *Repository, path string) (<-chan []T, error) {
	if r.watcher == nil {
		return nil, errors.New("kv: watch not configured")
	}
	nodes, err := r.watcher.Watch(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make(chan []T, 1)
	go func() {
		defer close(out)
		for n := range nodes {
			list, err := decodeList[T](path, n.Value)
			if err != nil {
				r.log.Warn("watch decode", zap.String("path", path), zap.Error(err))
				continue
			}
			select {
			case out <- list:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
