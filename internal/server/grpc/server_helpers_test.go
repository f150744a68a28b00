package grpcserver

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/session"
)

func tokenFor(t *testing.T, key []byte, s model.Session) string {
	t.Helper()
	tok, err := session.Sign(key, s, time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tok
}

func ctxWithAuth(token string) context.Context {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	return metadata.NewIncomingContext(context.Background(), md)
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func Test_bearerTokenFromMD_MultipleHeaders_CaseInsensitive_Spaces(t *testing.T) {
	t.Parallel()
	md := metadata.New(nil)
	md.Append("authorization", "Basic foo")
	md.Append("authorization", "  bearer   tok.part.sig   ")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "tok.part.sig" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestAuthenticator_Unary(t *testing.T) {
	t.Parallel()
	key := []byte("secret")
	a := NewAuthenticator(key, "/svc/Public")
	ic := a.Unary()

	var seen model.Session
	h := func(ctx context.Context, req any) (any, error) {
		seen, _ = SessionFromCtx(ctx)
		return "ok", nil
	}

	alice := model.Session{Email: "alice@example.com", Name: "Alice"}
	if _, err := ic(ctxWithAuth(tokenFor(t, key, alice)), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Private"}, h); err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if seen != alice {
		t.Fatalf("session not attached: %+v", seen)
	}

	_, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Private"}, h)
	if st, ok := status.FromError(err); !ok || st.Code() != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}

	_, err = ic(ctxWithAuth(tokenFor(t, []byte("other"), alice)), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Private"}, h)
	if st, ok := status.FromError(err); !ok || st.Code() != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated on wrong key, got %v", err)
	}

	if _, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Public"}, h); err != nil {
		t.Fatalf("public method must pass: %v", err)
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeServerStream) Context() context.Context { return f.ctx }

func TestAuthenticator_Stream(t *testing.T) {
	t.Parallel()
	key := []byte("secret")
	ic := NewAuthenticator(key).Stream()
	alice := model.Session{Email: "alice@example.com"}

	var seen model.Session
	h := func(_ any, ss grpc.ServerStream) error {
		seen, _ = SessionFromCtx(ss.Context())
		return nil
	}
	info := &grpc.StreamServerInfo{FullMethod: "/svc/Watch", IsServerStream: true}

	if err := ic(nil, fakeServerStream{ctx: ctxWithAuth(tokenFor(t, key, alice))}, info, h); err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if seen != alice {
		t.Fatalf("session not attached: %+v", seen)
	}
	err := ic(nil, fakeServerStream{ctx: context.Background()}, info, h)
	if st, ok := status.FromError(err); !ok || st.Code() != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}
