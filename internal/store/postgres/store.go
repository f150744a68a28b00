package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

// Store keeps every path as one row of the nodes table.
type Store struct {
	db  *DB
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore constructs a PostgreSQL store.
func NewStore(db *DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Get selects the node at path.
func (s *Store) Get(ctx context.Context, path string) (store.Node, error) {
	if err := store.ValidatePath(path); err != nil {
		return store.Node{}, err
	}
	const q = `SELECT value, ver FROM nodes WHERE path=$1`
	n := store.Node{Path: path}
	if err := s.db.Pool.QueryRow(ctx, q, path).Scan(&n.Value, &n.Ver); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Node{}, fmt.Errorf("%s: %w", path, errs.ErrNotFound)
		}
		return store.Node{}, err
	}
	return n, nil
}

// Set upserts the value and bumps the version.
func (s *Store) Set(ctx context.Context, path string, value []byte) (int64, error) {
	if err := store.ValidatePath(path); err != nil {
		return 0, err
	}
	const q = `
INSERT INTO nodes (path, value, ver) VALUES ($1, $2, 1)
ON CONFLICT (path) DO UPDATE SET value=EXCLUDED.value, ver=nodes.ver+1, updated_at=now()
RETURNING ver`
	var ver int64
	if err := s.db.Pool.QueryRow(ctx, q, path, value).Scan(&ver); err != nil {
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

// Apply locks every existing row, checks base versions and writes the batch
// in one transaction. Rows are locked in path order so that two batches over
// the same paths cannot deadlock; vers follow the caller's order. Deadlocks
// and serialization failures surface as errs.ErrVersionConflict so callers
// retry them.
func (s *Store) Apply(ctx context.Context, writes []store.Write) (vers []int64, err error) {
	if err := store.ValidateWrites(writes); err != nil {
		return nil, err
	}
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, store.WriteFailed("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = backendErr("commit", e)
			vers = nil
		}
	}()

	order := make([]int, len(writes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return writes[order[a]].Path < writes[order[b]].Path })

	vers = make([]int64, len(writes))
	const sel = `SELECT ver FROM nodes WHERE path=$1 FOR UPDATE`
	const ins = `INSERT INTO nodes (path, value, ver) VALUES ($1,$2,1)`
	const upd = `UPDATE nodes SET value=$2, ver=$3, updated_at=now() WHERE path=$1`

	for _, i := range order {
		w := writes[i]
		var curVer int64
		scanErr := tx.QueryRow(ctx, sel, w.Path).Scan(&curVer)
		switch {
		case scanErr == nil:
			if curVer != w.BaseVer {
				return nil, fmt.Errorf("write[%d] %s: %w", i, w.Path, errs.ErrVersionConflict)
			}
			newVer := curVer + 1
			if _, err = tx.Exec(ctx, upd, w.Path, w.Value, newVer); err != nil {
				return nil, backendErr("update "+w.Path, err)
			}
			vers[i] = newVer
		case errors.Is(scanErr, pgx.ErrNoRows):
			if w.BaseVer != 0 {
				return nil, fmt.Errorf("write[%d] %s: %w", i, w.Path, errs.ErrVersionConflict)
			}
			if _, err = tx.Exec(ctx, ins, w.Path, w.Value); err != nil {
				if isUniqueViolation(err) {
					// a concurrent writer created the row after our SELECT
					return nil, fmt.Errorf("write[%d] %s: %w", i, w.Path, errs.ErrVersionConflict)
				}
				return nil, backendErr("insert "+w.Path, err)
			}
			vers[i] = 1
		case isSerializationFailure(scanErr):
			err = fmt.Errorf("lock %s: %w", w.Path, errs.ErrVersionConflict)
			return nil, err
		default:
			err = scanErr
			return nil, err
		}
	}
	return vers, nil
}

// backendErr maps a failed statement to a retryable conflict or WriteFailed.
func backendErr(op string, err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%s: %w: %v", op, errs.ErrVersionConflict, err)
	}
	return store.WriteFailed(op, err)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
