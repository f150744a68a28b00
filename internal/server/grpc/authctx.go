package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/session"
)

type ctxKey string

const sessionKey ctxKey = "msgr.session"

// WithSession stores the authenticated session in ctx.
func WithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromCtx fetches the session stored by WithSession.
func SessionFromCtx(ctx context.Context) (model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(model.Session)
	return s, ok
}

// Authenticator verifies bearer tokens and attaches the session to the
// call context. Methods listed as public skip verification.
type Authenticator struct {
	key    []byte
	public map[string]bool
}

// NewAuthenticator constructs an Authenticator for HS256 tokens signed with key.
func NewAuthenticator(key []byte, publicMethods ...string) *Authenticator {
	pub := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		pub[m] = true
	}
	return &Authenticator{key: key, public: pub}
}

// Unary is the unary server interceptor.
func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if a.public[info.FullMethod] {
			return next(ctx, req)
		}
		ctx, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// Stream is the stream server interceptor.
func (a *Authenticator) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if a.public[info.FullMethod] {
			return next(srv, ss)
		}
		ctx, err := a.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return next(srv, &ctxStream{ServerStream: ss, ctx: ctx})
	}
}

func (a *Authenticator) authenticate(ctx context.Context) (context.Context, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	s, err := session.Verify(a.key, tok)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return WithSession(ctx, s), nil
}

// ctxStream overrides the context of a server stream.
type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *ctxStream) Context() context.Context { return s.ctx }

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
