// Package grpcserver exposes the messenger gRPC API handlers.
package grpcserver

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	v1 "github.com/TomaszGol/iOS-Messenger/internal/api/messengerv1"
	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/service"
)

// PublicMethods need no bearer token.
var PublicMethods = []string{v1.FullMethod("UserExists")}

// Server wires services into gRPC handlers.
type Server struct {
	accounts service.AccountService
	convs    service.ConversationService
	log      *zap.Logger
}

var _ v1.MessengerServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(accounts service.AccountService, convs service.ConversationService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{accounts: accounts, convs: convs, log: log}
}

// sessionFromCtx returns the session attached by the Authenticator.
func sessionFromCtx(ctx context.Context) (model.Session, error) {
	s, ok := SessionFromCtx(ctx)
	if !ok || s.Key() == "" {
		return model.Session{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return s, nil
}

// --- Accounts ---

// UserExists reports whether a profile exists for the email.
func (s *Server) UserExists(ctx context.Context, req *v1.UserExistsRequest) (*v1.UserExistsResponse, error) {
	ok, err := s.accounts.UserExists(ctx, req.Email)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.UserExistsResponse{Exists: ok}, nil
}

// Register creates the profile of the token's user.
func (s *Server) Register(ctx context.Context, req *v1.RegisterRequest) (*v1.RegisterResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	u := model.ChatUser{FirstName: req.FirstName, LastName: req.LastName, Email: sess.Email}
	if err := s.accounts.Register(ctx, u); err != nil {
		return nil, toStatus(err)
	}
	return &v1.RegisterResponse{UserKey: sess.Key()}, nil
}

// AllUsers returns the users directory.
func (s *Server) AllUsers(ctx context.Context, _ *v1.AllUsersRequest) (*v1.UsersResponse, error) {
	users, err := s.accounts.AllUsers(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.UsersResponse{Users: users}, nil
}

// SearchUsers filters the users directory by name prefix.
func (s *Server) SearchUsers(ctx context.Context, req *v1.SearchUsersRequest) (*v1.UsersResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.accounts.SearchUsers(ctx, sess, req.Term)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.UsersResponse{Users: users}, nil
}

// UploadProfilePicture stores the token user's avatar.
func (s *Server) UploadProfilePicture(ctx context.Context, req *v1.UploadProfilePictureRequest) (*v1.URLResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.accounts.UploadProfilePicture(ctx, sess.Email, req.PNG)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.URLResponse{URL: url}, nil
}

// ProfilePictureURL returns any user's avatar URL.
func (s *Server) ProfilePictureURL(ctx context.Context, req *v1.ProfilePictureURLRequest) (*v1.URLResponse, error) {
	url, err := s.accounts.ProfilePictureURL(ctx, req.Email)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.URLResponse{URL: url}, nil
}

// --- Conversations ---

// CreateConversation starts a conversation with the requested peer.
func (s *Server) CreateConversation(ctx context.Context, req *v1.CreateConversationRequest) (*v1.ConversationResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := toMessage(req.Message)
	if err != nil {
		return nil, toStatus(err)
	}
	c, err := s.convs.CreateConversation(ctx, sess, model.Peer{Email: req.PeerEmail, Name: req.PeerName}, msg)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.ConversationResponse{Conversation: c}, nil
}

// SendMessage appends a message; summary refresh failures are reported, not returned.
func (s *Server) SendMessage(ctx context.Context, req *v1.SendMessageRequest) (*v1.SendMessageResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := toMessage(req.Message)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := s.convs.SendMessage(ctx, sess, req.ConversationID, model.Peer{Email: req.PeerEmail, Name: req.PeerName}, msg)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &v1.SendMessageResponse{ConversationID: res.ConversationID, Message: res.Message}
	if res.SummaryErr != nil {
		out.SummaryError = res.SummaryErr.Error()
	}
	return out, nil
}

// ListConversations returns the caller's directory.
func (s *Server) ListConversations(ctx context.Context, _ *v1.ListConversationsRequest) (*v1.ConversationsResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.convs.ListConversations(ctx, sess)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.ConversationsResponse{Conversations: list}, nil
}

// ListMessages returns a conversation's log.
func (s *Server) ListMessages(ctx context.Context, req *v1.ListMessagesRequest) (*v1.MessagesResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.convs.ListMessages(ctx, sess, req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.MessagesResponse{Messages: msgs}, nil
}

// FindConversation returns the caller's conversation with a peer.
func (s *Server) FindConversation(ctx context.Context, req *v1.FindConversationRequest) (*v1.ConversationResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.convs.FindConversation(ctx, sess, req.PeerEmail)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.ConversationResponse{Conversation: c}, nil
}

// MarkRead marks the peer's messages as read.
func (s *Server) MarkRead(ctx context.Context, req *v1.MarkReadRequest) (*v1.MarkReadResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.convs.MarkRead(ctx, sess, req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.MarkReadResponse{Marked: n}, nil
}

// Repair reconciles the caller's directory with the message logs.
func (s *Server) Repair(ctx context.Context, _ *v1.RepairRequest) (*v1.RepairResponse, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	rep, err := s.convs.Repair(ctx, sess)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v1.RepairResponse{Checked: rep.Checked, Refreshed: rep.Refreshed, Dangling: rep.Dangling}, nil
}

// WatchConversations streams the caller's directory until the client goes away.
func (s *Server) WatchConversations(_ *v1.WatchConversationsRequest, stream grpc.ServerStreamingServer[v1.ConversationsResponse]) error {
	ctx := stream.Context()
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return err
	}
	ch, err := s.convs.WatchConversations(ctx, sess)
	if err != nil {
		return toStatus(err)
	}
	for list := range ch {
		if err := stream.Send(&v1.ConversationsResponse{Conversations: list}); err != nil {
			return err
		}
	}
	return toStatus(ctx.Err())
}

// WatchMessages streams a conversation's log until the client goes away.
func (s *Server) WatchMessages(req *v1.WatchMessagesRequest, stream grpc.ServerStreamingServer[v1.MessagesResponse]) error {
	ctx := stream.Context()
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return err
	}
	ch, err := s.convs.WatchMessages(ctx, sess, req.ConversationID)
	if err != nil {
		return toStatus(err)
	}
	for msgs := range ch {
		if err := stream.Send(&v1.MessagesResponse{Messages: msgs}); err != nil {
			return err
		}
	}
	return toStatus(ctx.Err())
}

// toMessage converts the wire message; a missing id is assigned here.
func toMessage(m v1.OutgoingMessage) (model.Message, error) {
	kind := model.KindText
	if m.Kind != "" {
		k, ok := model.ParseKind(m.Kind)
		if !ok {
			return model.Message{}, fmt.Errorf("message kind %q: %w", m.Kind, errs.ErrInvalidArgument)
		}
		kind = k
	}
	id := m.ID
	if id == "" {
		id = model.NewMessageID()
	}
	out := model.Message{ID: id, SentAt: m.SentAt, Kind: kind, Text: m.Text}
	if len(m.Data) > 0 || m.URL != "" || m.FileName != "" {
		out.Media = &model.Media{FileName: m.FileName, ContentType: m.ContentType, Data: m.Data, URL: m.URL}
	}
	return out, nil
}
