package redisbus

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBus_Channel(t *testing.T) {
	db, _ := redismock.NewClientMock()
	b := New(db, "", nil)
	require.Equal(t, "msgr:changed:conversation_1", b.Channel("conversation_1"))

	b = New(db, "dev", nil)
	require.Equal(t, "dev:changed:users", b.Channel("users"))
}

func TestBus_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := New(db, "msgr", zaptest.NewLogger(t))

	mock.ExpectPublish("msgr:changed:jan-40mail-2ecom/conversations", "jan-40mail-2ecom/conversations").SetVal(1)
	require.NoError(t, b.Publish(context.Background(), "jan-40mail-2ecom/conversations"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBus_PublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := New(db, "msgr", nil)

	mock.ExpectPublish("msgr:changed:users", "users").SetErr(errors.New("redis down"))
	require.Error(t, b.Publish(context.Background(), "users"))
	require.NoError(t, mock.ExpectationsWereMet())
}
