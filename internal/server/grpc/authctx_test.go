package grpcserver

import (
	"context"
	"testing"

	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

func TestWithSession_And_SessionFromCtx(t *testing.T) {
	t.Parallel()

	if s, ok := SessionFromCtx(context.Background()); ok || s != (model.Session{}) {
		t.Fatalf("expected no session in empty ctx")
	}

	want := model.Session{Email: "alice@example.com", Name: "Alice"}
	ctx := WithSession(context.Background(), want)

	got, ok := SessionFromCtx(ctx)
	if !ok {
		t.Fatalf("expected session in ctx")
	}
	if got != want {
		t.Fatalf("mismatch: got %+v, want %+v", got, want)
	}

	bad := context.WithValue(context.Background(), sessionKey, "not-a-session")
	if _, ok := SessionFromCtx(bad); ok {
		t.Fatalf("expected miss on wrong typed value")
	}
}

func Test_sessionFromCtx_RequiresEmail(t *testing.T) {
	t.Parallel()
	ctx := WithSession(context.Background(), model.Session{Name: "anon"})
	if _, err := sessionFromCtx(ctx); err == nil {
		t.Fatalf("want Unauthenticated for session without email")
	}
}
