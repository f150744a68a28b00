package repository

import (
	"context"

	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

// DirectoryRepository stores each user's list of conversation summaries.
type DirectoryRepository interface {
	// ListConversations returns the user's summaries. errs.ErrNotFound when
	// the user record is absent; an empty slice when the user has none.
	ListConversations(ctx context.Context, userKey string) ([]model.ConversationSummary, error)
	// AppendConversation adds summary, creating the list on first use.
	// errs.ErrAlreadyExists when a summary with the same id is present.
	AppendConversation(ctx context.Context, userKey string, summary model.ConversationSummary) error
	// UpdateLatestMessage replaces latest_message of the first summary with
	// conversationID. errs.ErrNotFound, with the list untouched, when none matches.
	UpdateLatestMessage(ctx context.Context, userKey, conversationID string, latest model.LatestMessage) error
	// WatchConversations streams the list, starting with the current value.
	WatchConversations(ctx context.Context, userKey string) (<-chan []model.ConversationSummary, error)
}

// MessageLogRepository stores the append-only message log of each conversation.
type MessageLogRepository interface {
	// CreateLog writes a log holding only first. errs.ErrAlreadyExists if present.
	CreateLog(ctx context.Context, conversationID string, first model.StoredMessage) error
	// AppendMessage adds msg to the end of the log. errs.ErrNotFound when the log is missing.
	AppendMessage(ctx context.Context, conversationID string, msg model.StoredMessage) error
	// ListMessages returns the log in insertion order or errs.ErrNotFound.
	ListMessages(ctx context.Context, conversationID string) ([]model.StoredMessage, error)
	// WatchMessages streams the log, starting with the current value.
	WatchMessages(ctx context.Context, conversationID string) (<-chan []model.StoredMessage, error)
	// MarkRead flags every message not sent by readerKey as read and returns
	// how many changed.
	MarkRead(ctx context.Context, conversationID, readerKey string) (int, error)
}

// NewConversation is everything written when a conversation starts.
type NewConversation struct {
	OwnKey      string
	OwnSummary  model.ConversationSummary
	PeerKey     string
	PeerSummary model.ConversationSummary
	First       model.StoredMessage
}

// ConversationRepository combines the directory and message log with an
// atomic create.
type ConversationRepository interface {
	DirectoryRepository
	MessageLogRepository
	// CreateConversation appends both summaries and creates the message log
	// in one atomic write. errs.ErrNotFound when either user record is absent,
	// errs.ErrAlreadyExists when the conversation already exists.
	CreateConversation(ctx context.Context, c NewConversation) error
}
