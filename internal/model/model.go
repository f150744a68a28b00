// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/TomaszGol/iOS-Messenger/internal/identity"
)

// ConversationIDPrefix prefixes every conversation id derived from a first message id.
const ConversationIDPrefix = "conversation_"

// DateLayout is the fixed timestamp format stored in messages and summaries.
const DateLayout = "Jan 2, 2006 at 3:04:05 PM MST"

// FormatDate renders t in DateLayout (UTC).
func FormatDate(t time.Time) string { return t.UTC().Format(DateLayout) }

// ParseDate parses a DateLayout timestamp.
func ParseDate(s string) (time.Time, error) { return time.Parse(DateLayout, s) }

// ConversationID derives the conversation id from the first message id.
func ConversationID(firstMessageID string) string { return ConversationIDPrefix + firstMessageID }

// NewMessageID returns a fresh random message id.
func NewMessageID() string { return uuid.Must(uuid.NewV4()).String() }

// Session identifies the signed-in user for a single call.
type Session struct {
	Email string
	Name  string
}

// Key returns the user's record key, or "" when no email is set.
func (s Session) Key() string {
	if strings.TrimSpace(s.Email) == "" {
		return ""
	}
	return identity.SafeKey(s.Email)
}

// Peer is the other participant of a conversation.
type Peer struct {
	Email string
	Name  string
}

// Key returns the peer's record key, or "" when no email is set.
func (p Peer) Key() string {
	if strings.TrimSpace(p.Email) == "" {
		return ""
	}
	return identity.SafeKey(p.Email)
}

// LatestMessage is the snapshot of the newest message kept in a summary.
type LatestMessage struct {
	Date   string `json:"date"`
	Text   string `json:"message"`
	IsRead bool   `json:"is_read"`
}

// ConversationSummary is one entry of a user's conversation directory.
// Each participant owns an independent copy.
type ConversationSummary struct {
	ID            string        `json:"id"`
	PeerKey       string        `json:"other_user_email"`
	Name          string        `json:"name"`
	LatestMessage LatestMessage `json:"latest_message"`
}

// MessageType is the persisted discriminator of StoredMessage.Content.
type MessageType string

// Persisted message types.
const (
	TypeText  MessageType = "text"
	TypePhoto MessageType = "photo"
	TypeVideo MessageType = "video"
	TypeOther MessageType = "other"
)

// StoredMessage is a message as kept in a conversation's message log.
type StoredMessage struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	Date       string      `json:"date"`
	SenderKey  string      `json:"sender_email"`
	IsRead     bool        `json:"is_read"`
	SenderName string      `json:"name"`
}

// Latest returns the summary snapshot for m.
func (m StoredMessage) Latest() LatestMessage {
	return LatestMessage{Date: m.Date, Text: m.Content, IsRead: m.IsRead}
}

// MessageKind is the kind of an outgoing message as produced by the UI.
type MessageKind int

// Outgoing message kinds. Only text, photo and video are persistable.
const (
	KindText MessageKind = iota
	KindAttributedText
	KindPhoto
	KindVideo
	KindLocation
	KindEmoji
	KindAudio
	KindContact
	KindLinkPreview
	KindCustom
)

var kindNames = [...]string{
	KindText:           "text",
	KindAttributedText: "attributed_text",
	KindPhoto:          "photo",
	KindVideo:          "video",
	KindLocation:       "location",
	KindEmoji:          "emoji",
	KindAudio:          "audio",
	KindContact:        "contact",
	KindLinkPreview:    "link_preview",
	KindCustom:         "custom",
}

func (k MessageKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind is the inverse of MessageKind.String.
func ParseKind(s string) (MessageKind, bool) {
	for i, n := range kindNames {
		if n == s {
			return MessageKind(i), true
		}
	}
	return 0, false
}

// Media is the payload of a photo or video message. Either Data (uploaded
// by the sync layer) or URL (already uploaded) must be set.
type Media struct {
	FileName    string
	ContentType string
	Data        []byte
	URL         string
}

// Message is an outgoing message before it is encoded for the log.
type Message struct {
	ID     string
	SentAt time.Time
	Kind   MessageKind
	Text   string
	Media  *Media
}

// Profile is the user record stored under the user key.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UserEntry is one element of the flat users directory used for search.
// Email holds the safe key, as written by the mobile client.
type UserEntry struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ChatUser is a user being registered.
type ChatUser struct {
	FirstName string
	LastName  string
	Email     string
}

// SafeKey returns the user's record key.
func (u ChatUser) SafeKey() string { return identity.SafeKey(u.Email) }

// FullName joins first and last name.
func (u ChatUser) FullName() string { return strings.TrimSpace(u.FirstName + " " + u.LastName) }

// ProfilePictureFileName is the blob file name of the user's avatar.
func (u ChatUser) ProfilePictureFileName() string { return u.SafeKey() + "_profile_picture.png" }

// SendResult reports the outcome of a message send. The message log write
// succeeded; SummaryErr carries directory refresh failures, if any.
type SendResult struct {
	ConversationID string
	Message        StoredMessage
	SummaryErr     error
}

// RepairReport summarizes a directory reconciliation pass.
type RepairReport struct {
	Checked   int
	Refreshed []string // conversation ids whose summary was rewritten
	Dangling  []string // conversation ids whose message log is missing
}
