package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

const (
	selQ = `SELECT ver FROM nodes WHERE path=\$1 FOR UPDATE`
	insQ = `INSERT INTO nodes \(path, value, ver\) VALUES \(\$1,\$2,1\)`
	updQ = `UPDATE nodes SET value=\$2, ver=\$3, updated_at=now\(\) WHERE path=\$1`
)

func newStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewStore(&DB{Pool: mock}, nil), mock
}

func TestStore_Get_OK_And_NotFound(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT value, ver FROM nodes WHERE path=\$1`).
		WithArgs("conversation_1").
		WillReturnRows(pgxmock.NewRows([]string{"value", "ver"}).AddRow([]byte(`[]`), int64(4)))
	n, err := s.Get(ctx, "conversation_1")
	require.NoError(t, err)
	require.Equal(t, int64(4), n.Ver)
	require.Equal(t, []byte(`[]`), n.Value)
	require.Equal(t, "conversation_1", n.Path)

	mock.ExpectQuery(`SELECT value, ver FROM nodes WHERE path=\$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_BadPathSkipsQuery(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	_, err := s.Get(context.Background(), "a.b")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Set(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO nodes \(path, value, ver\) VALUES \(\$1, \$2, 1\) ON CONFLICT \(path\) DO UPDATE`).
		WithArgs("users", []byte(`[]`)).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(3)))
	v, err := s.Set(ctx, "users", []byte(`[]`))
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	mock.ExpectQuery(`INSERT INTO nodes`).
		WithArgs("users", []byte(`[]`)).
		WillReturnError(errors.New("disk full"))
	_, err = s.Set(ctx, "users", []byte(`[]`))
	require.ErrorIs(t, err, errs.ErrWriteFailed)
}

func TestStore_CompareAndSet_Update_OK(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(5)))
	mock.ExpectExec(updQ).WithArgs("k", []byte("v"), int64(6)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	v, err := s.CompareAndSet(context.Background(), "k", 5, []byte("v"))
	require.NoError(t, err)
	require.Equal(t, int64(6), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CompareAndSet_Create_OK(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(insQ).WithArgs("k", []byte("v")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	v, err := s.CompareAndSet(context.Background(), "k", 0, []byte("v"))
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CompareAndSet_Conflicts(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()

	// stale base on update
	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(2)))
	mock.ExpectRollback()
	_, err := s.CompareAndSet(ctx, "k", 1, []byte("v"))
	require.ErrorIs(t, err, errs.ErrVersionConflict)

	// row vanished / never existed but caller expected it
	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	_, err = s.CompareAndSet(ctx, "k", 3, []byte("v"))
	require.ErrorIs(t, err, errs.ErrVersionConflict)

	// concurrent insert of the same path
	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(insQ).WithArgs("k", []byte("v")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	_, err = s.CompareAndSet(ctx, "k", 0, []byte("v"))
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Apply_MultiPath_StopOnFirstConflict(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("conversation_x").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(insQ).WithArgs("conversation_x", []byte("c")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(selQ).WithArgs("me/conversations").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(7)))
	mock.ExpectRollback()

	_, err := s.Apply(context.Background(), []store.Write{
		{Path: "peer/conversations", BaseVer: 2, Value: []byte("a")},
		{Path: "me/conversations", BaseVer: 6, Value: []byte("b")},
		{Path: "conversation_x", BaseVer: 0, Value: []byte("c")},
	})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Apply_MultiPath_OK(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("conversation_x").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(insQ).WithArgs("conversation_x", []byte("c")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(selQ).WithArgs("peer/conversations").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(insQ).WithArgs("peer/conversations", []byte("a")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	vers, err := s.Apply(context.Background(), []store.Write{
		{Path: "peer/conversations", Value: []byte("a")},
		{Path: "conversation_x", Value: []byte("c")},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 1}, vers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Apply_LocksInPathOrder(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("alice/conversations").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(4)))
	mock.ExpectExec(updQ).WithArgs("alice/conversations", []byte("a"), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(selQ).WithArgs("bob/conversations").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(1)))
	mock.ExpectExec(updQ).WithArgs("bob/conversations", []byte("b"), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(selQ).WithArgs("conversation_m1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(insQ).WithArgs("conversation_m1", []byte("c")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	vers, err := s.Apply(context.Background(), []store.Write{
		{Path: "bob/conversations", BaseVer: 1, Value: []byte("b")},
		{Path: "conversation_m1", BaseVer: 0, Value: []byte("c")},
		{Path: "alice/conversations", BaseVer: 4, Value: []byte("a")},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1, 5}, vers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Apply_DeadlockIsConflict(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()
	w := []store.Write{{Path: "k", BaseVer: 1, Value: []byte("v")}}

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").WillReturnError(&pgconn.PgError{Code: "40P01"})
	mock.ExpectRollback()
	_, err := s.Apply(ctx, w)
	require.ErrorIs(t, err, errs.ErrVersionConflict)

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(1)))
	mock.ExpectExec(updQ).WithArgs("k", []byte("v"), int64(2)).
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	_, err = s.Apply(ctx, w)
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NotErrorIs(t, err, errs.ErrWriteFailed)

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(1)))
	mock.ExpectExec(updQ).WithArgs("k", []byte("v"), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	vers, err := s.Apply(ctx, w)
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.Nil(t, vers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Apply_BackendErrors(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()
	ctx := context.Background()
	w := []store.Write{{Path: "k", BaseVer: 1, Value: []byte("v")}}

	mock.ExpectBegin().WillReturnError(errors.New("conn refused"))
	_, err := s.Apply(ctx, w)
	require.ErrorIs(t, err, errs.ErrWriteFailed)

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(1)))
	mock.ExpectExec(updQ).WithArgs("k", []byte("v"), int64(2)).WillReturnError(errors.New("exec-fail"))
	mock.ExpectRollback()
	_, err = s.Apply(ctx, w)
	require.ErrorIs(t, err, errs.ErrWriteFailed)

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").WillReturnError(errors.New("weird-scan"))
	mock.ExpectRollback()
	_, err = s.Apply(ctx, w)
	require.Error(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(selQ).WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(1)))
	mock.ExpectExec(updQ).WithArgs("k", []byte("v"), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit().WillReturnError(errors.New("commit-fail"))
	vers, err := s.Apply(ctx, w)
	require.ErrorIs(t, err, errs.ErrWriteFailed)
	require.Nil(t, vers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Apply_DuplicatePathRejectedBeforeTx(t *testing.T) {
	s, mock := newStore(t)
	defer mock.Close()

	_, err := s.Apply(context.Background(), []store.Write{{Path: "k"}, {Path: "k"}})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.NoError(t, mock.ExpectationsWereMet())
}
