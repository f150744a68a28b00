// Package events defines the domain events emitted after successful writes.
package events

import (
	"context"
	"time"
)

// Type names an event on the wire.
type Type string

// Published event types.
const (
	ConversationCreated Type = "conversation.created"
	MessageSent         Type = "message.sent"
)

// Event is a change notification for downstream consumers (push
// notifications, search indexing).
type Event struct {
	Type           Type      `json:"type"`
	ConversationID string    `json:"conversation_id"`
	SenderKey      string    `json:"sender_key"`
	PeerKey        string    `json:"peer_key"`
	MessageID      string    `json:"message_id"`
	MessageType    string    `json:"message_type"`
	At             time.Time `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
