// Package messengerv1 is the messenger.v1 gRPC API: message types, the
// service descriptor and a typed client. Messages travel as JSON.
package messengerv1

import (
	"time"

	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

type UserExistsRequest struct {
	Email string `json:"email"`
}

type UserExistsResponse struct {
	Exists bool `json:"exists"`
}

// RegisterRequest registers the token's user under the given name.
type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type RegisterResponse struct {
	UserKey string `json:"user_key"`
}

type AllUsersRequest struct{}

type SearchUsersRequest struct {
	Term string `json:"term"`
}

type UsersResponse struct {
	Users []model.UserEntry `json:"users"`
}

type UploadProfilePictureRequest struct {
	PNG []byte `json:"png"`
}

type ProfilePictureURLRequest struct {
	Email string `json:"email"`
}

type URLResponse struct {
	URL string `json:"url"`
}

// OutgoingMessage is a message to send. Kind is one of the model.MessageKind
// names; an empty ID is assigned by the server.
type OutgoingMessage struct {
	ID          string    `json:"id,omitempty"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text,omitempty"`
	SentAt      time.Time `json:"sent_at,omitempty"`
	FileName    string    `json:"file_name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Data        []byte    `json:"data,omitempty"`
	URL         string    `json:"url,omitempty"`
}

type CreateConversationRequest struct {
	PeerEmail string          `json:"peer_email"`
	PeerName  string          `json:"peer_name"`
	Message   OutgoingMessage `json:"message"`
}

type ConversationResponse struct {
	Conversation model.ConversationSummary `json:"conversation"`
}

type SendMessageRequest struct {
	ConversationID string          `json:"conversation_id"`
	PeerEmail      string          `json:"peer_email"`
	PeerName       string          `json:"peer_name"`
	Message        OutgoingMessage `json:"message"`
}

// SendMessageResponse reports a delivered message. SummaryError is set when
// a conversation summary could not be refreshed.
type SendMessageResponse struct {
	ConversationID string              `json:"conversation_id"`
	Message        model.StoredMessage `json:"message"`
	SummaryError   string              `json:"summary_error,omitempty"`
}

type ListConversationsRequest struct{}

type ConversationsResponse struct {
	Conversations []model.ConversationSummary `json:"conversations"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
}

type MessagesResponse struct {
	Messages []model.StoredMessage `json:"messages"`
}

type FindConversationRequest struct {
	PeerEmail string `json:"peer_email"`
}

type MarkReadRequest struct {
	ConversationID string `json:"conversation_id"`
}

type MarkReadResponse struct {
	Marked int `json:"marked"`
}

type RepairRequest struct{}

type RepairResponse struct {
	Checked   int      `json:"checked"`
	Refreshed []string `json:"refreshed"`
	Dangling  []string `json:"dangling"`
}

type WatchConversationsRequest struct{}

type WatchMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
}
