package messengerv1

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "messenger.v1.Messenger"

// MessengerServer is the server API of messenger.v1.Messenger.
type MessengerServer interface {
	UserExists(context.Context, *UserExistsRequest) (*UserExistsResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	AllUsers(context.Context, *AllUsersRequest) (*UsersResponse, error)
	SearchUsers(context.Context, *SearchUsersRequest) (*UsersResponse, error)
	UploadProfilePicture(context.Context, *UploadProfilePictureRequest) (*URLResponse, error)
	ProfilePictureURL(context.Context, *ProfilePictureURLRequest) (*URLResponse, error)
	CreateConversation(context.Context, *CreateConversationRequest) (*ConversationResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ConversationsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*MessagesResponse, error)
	FindConversation(context.Context, *FindConversationRequest) (*ConversationResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	Repair(context.Context, *RepairRequest) (*RepairResponse, error)
	WatchConversations(*WatchConversationsRequest, grpc.ServerStreamingServer[ConversationsResponse]) error
	WatchMessages(*WatchMessagesRequest, grpc.ServerStreamingServer[MessagesResponse]) error
}

// FullMethod returns "/messenger.v1.Messenger/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// RegisterMessengerServer registers srv on s.
func RegisterMessengerServer(s grpc.ServiceRegistrar, srv MessengerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes messenger.v1.Messenger for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessengerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("UserExists", MessengerServer.UserExists),
		unary("Register", MessengerServer.Register),
		unary("AllUsers", MessengerServer.AllUsers),
		unary("SearchUsers", MessengerServer.SearchUsers),
		unary("UploadProfilePicture", MessengerServer.UploadProfilePicture),
		unary("ProfilePictureURL", MessengerServer.ProfilePictureURL),
		unary("CreateConversation", MessengerServer.CreateConversation),
		unary("SendMessage", MessengerServer.SendMessage),
		unary("ListConversations", MessengerServer.ListConversations),
		unary("ListMessages", MessengerServer.ListMessages),
		unary("FindConversation", MessengerServer.FindConversation),
		unary("MarkRead", MessengerServer.MarkRead),
		unary("Repair", MessengerServer.Repair),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchConversations",
			Handler:       watchConversationsHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "WatchMessages",
			Handler:       watchMessagesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "messenger/v1/messenger.json",
}

// unary builds the method descriptor for a request/response call.
func unary[Req, Resp any](name string, call func(MessengerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MessengerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessengerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchConversationsHandler(srv any, stream grpc.ServerStream) error {
	m := new(WatchConversationsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MessengerServer).WatchConversations(m, &grpc.GenericServerStream[WatchConversationsRequest, ConversationsResponse]{ServerStream: stream})
}

func watchMessagesHandler(srv any, stream grpc.ServerStream) error {
	m := new(WatchMessagesRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MessengerServer).WatchMessages(m, &grpc.GenericServerStream[WatchMessagesRequest, MessagesResponse]{ServerStream: stream})
}
