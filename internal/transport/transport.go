// Package transport defines the chat-transport collaborator consumed by the
// source client. The real implementation lives in internal/telegram; tests
// substitute fakes.
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by history and dialog calls before Connect.
var ErrNotConnected = errors.New("transport: not connected")

// ErrTopicsUnsupported is returned when a forum-topic operation is attempted
// against a chat that has no thread support.
var ErrTopicsUnsupported = errors.New("transport: forum topics not supported")

// ChatKind classifies a dialog.
type ChatKind string

const (
	ChatDirect    ChatKind = "direct"
	ChatGroup     ChatKind = "group"
	ChatBroadcast ChatKind = "broadcast"
)

// Chat is a conversation scope visible to the authenticated identity.
type Chat struct {
	ID          string
	Title       string
	Kind        ChatKind
	UnreadCount int
	Forum       bool
}

// Sender is the opaque sender descriptor attached to a message. Any subset of
// the fields may be empty; ID is zero when the source did not annotate one.
type Sender struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	ChannelTitle string
}

// Message is one unit of chat history as delivered by the transport.
type Message struct {
	ID       int
	Text     string
	Date     int64 // epoch seconds, source clock
	Sender   Sender
	Outgoing bool
	Media    string // attachment tag ("Photo", ...), empty if none

	// Thread annotations. TopicID is set when the source annotated topic
	// membership directly; ReplyRootID is the thread-root fallback.
	TopicID     int
	ReplyToID   int
	ReplyRootID int

	// Service marker for topic-creation messages.
	TopicCreated bool
	TopicTitle   string
}

// ForumTopic is a named sub-thread as reported by the native topic listing.
type ForumTopic struct {
	ID           int
	Title        string
	TopMessageID int
	LastDate     int64 // epoch seconds of last activity, 0 if unknown
}

// HistoryOptions scope a History call.
type HistoryOptions struct {
	Limit    int
	BeforeID int // return messages strictly before this ID; 0 = most recent
	TopicID  int // restrict to one topic; 0 = whole chat
}

// Client is the transport collaborator. Implementations own the connection
// lifecycle and authentication handshake; all other calls require Connect to
// have succeeded first.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool

	Me(ctx context.Context) (Sender, error)
	ListChats(ctx context.Context) ([]Chat, error)
	History(ctx context.Context, chatID string, opts HistoryOptions) ([]Message, error)
	MessageByID(ctx context.Context, chatID string, id int) (Message, error)
	ForumTopics(ctx context.Context, chatID string) ([]ForumTopic, error)
	IsForum(ctx context.Context, chatID string) (bool, error)
}
