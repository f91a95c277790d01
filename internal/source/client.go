// Package source provides typed, paginated access to chat history over the
// transport collaborator. It is stateless between calls; connection state is
// owned by the transport.
package source

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tgnotion/tgnotion/internal/transport"
)

// Client wraps a transport.Client with the read API the coordinator consumes.
type Client struct {
	tr     transport.Client
	logger *zap.Logger
}

// New creates a source client over the given transport.
func New(tr transport.Client, logger *zap.Logger) *Client {
	return &Client{tr: tr, logger: logger}
}

// Connect establishes the transport connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.tr.Connect(ctx)
}

// Disconnect tears the transport connection down.
func (c *Client) Disconnect() {
	c.tr.Disconnect()
}

// IsConnected reports transport connection state.
func (c *Client) IsConnected() bool {
	return c.tr.IsConnected()
}

// ListChats returns all chats visible to the authenticated identity, in
// source-native order.
func (c *Client) ListChats(ctx context.Context) ([]transport.Chat, error) {
	return c.tr.ListChats(ctx)
}

// GetMessages returns up to limit most-recent messages strictly before
// opts.BeforeID (or most recent overall), newest first. When opts.TopicID is
// set but the chat has no thread support, it returns an empty slice rather
// than failing. All other transport errors propagate unchanged; retries are
// the coordinator's concern.
func (c *Client) GetMessages(ctx context.Context, chatID string, limit int, opts GetOptions) ([]transport.Message, error) {
	msgs, err := c.tr.History(ctx, chatID, transport.HistoryOptions{
		Limit:    limit,
		BeforeID: opts.BeforeID,
		TopicID:  opts.TopicID,
	})
	if err != nil {
		if opts.TopicID != 0 && errors.Is(err, transport.ErrTopicsUnsupported) {
			c.logger.Info("topic fetch against non-forum chat, returning empty",
				zap.String("chat", chatID), zap.Int("topic", opts.TopicID))
			return nil, nil
		}
		return nil, err
	}
	return msgs, nil
}

// IsForumChat probes whether the chat is a forum. Advisory only: any transport
// error degrades to false.
func (c *Client) IsForumChat(ctx context.Context, chatID string) bool {
	forum, err := c.tr.IsForum(ctx, chatID)
	if err != nil {
		c.logger.Warn("forum probe failed", zap.String("chat", chatID), zap.Error(err))
		return false
	}
	return forum
}
