package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tgnotion/tgnotion/internal/transport"
)

// Config holds everything needed to build the MTProto client. CodePrompt and
// PasswordPrompt are supplied by the CLI layer; PasswordPrompt may be nil when
// the account has no 2FA password.
type Config struct {
	APIID          int
	APIHash        string
	Phone          string
	SessionPath    string
	CodePrompt     func(ctx context.Context) (string, error)
	PasswordPrompt func(ctx context.Context) (string, error)
}

const (
	// dialogPageSize dialogs per MessagesGetDialogs page; maxDialogPages
	// bounds the pagination loop for pathological accounts.
	dialogPageSize = 100
	maxDialogPages = 20
)

// Client implements transport.Client over gotd/td.
type Client struct {
	cfg    Config
	client *telegram.Client
	api    *tg.Client
	logger *zap.Logger

	// getDialogs is swappable in tests; production wires the raw API call.
	getDialogs func(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan error
	self      *tg.User
	peers     map[string]peerEntry
}

// peerEntry caches the access-hash-bearing input peer for one dialog.
type peerEntry struct {
	input   tg.InputPeerClass
	channel *tg.Channel
	forum   bool
}

// New creates a Telegram client for the given credentials. The MTProto side
// carries its own rate limiter so history scans cannot trip FLOOD_WAIT.
func New(cfg Config, logger *zap.Logger) *Client {
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		Logger:         logger.Named("mtproto"),
		Middlewares: []telegram.Middleware{
			ratelimit.New(rate.Every(100*time.Millisecond), 5),
		},
	})
	c := &Client{
		cfg:    cfg,
		client: client,
		api:    client.API(),
		logger: logger,
		peers:  make(map[string]peerEntry),
	}
	c.getDialogs = func(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error) {
		return c.api.MessagesGetDialogs(ctx, req)
	}
	return c
}

// Connect starts the MTProto connection in the background and runs the
// authentication flow if the stored session is not authorized. It returns once
// the client is connected and authorized, or with the first error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- c.client.Run(runCtx, func(ctx context.Context) error {
			if err := c.authorize(ctx); err != nil {
				return fmt.Errorf("authorize: %w", err)
			}
			self, err := c.client.Self(ctx)
			if err != nil {
				return fmt.Errorf("self: %w", err)
			}
			c.mu.Lock()
			c.self = self
			c.mu.Unlock()
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		c.mu.Lock()
		c.connected = true
		c.cancel = cancel
		c.done = done
		c.mu.Unlock()
		c.logger.Info("telegram connected", zap.String("phone", c.cfg.Phone))
		return nil
	case err := <-done:
		cancel()
		if err == nil {
			err = fmt.Errorf("telegram client stopped before ready")
		}
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Disconnect terminates the connection. In-flight calls are cancelled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.connected = false
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	c.logger.Info("telegram disconnecting")
	cancel()
	if done != nil {
		<-done
	}
}

// IsConnected reports whether Connect has succeeded and Disconnect has not run.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Me returns the authenticated identity.
func (c *Client) Me(ctx context.Context) (transport.Sender, error) {
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()
	if self == nil {
		return transport.Sender{}, transport.ErrNotConnected
	}
	return transport.Sender{
		ID:        self.ID,
		FirstName: self.FirstName,
		LastName:  self.LastName,
		Username:  self.Username,
	}, nil
}

// ListChats returns all dialogs visible to the authenticated identity, in
// source-native order, and refreshes the peer cache as a side effect. The
// dialog list is pulled page by page; a sliced response with a full page
// means more dialogs remain.
func (c *Client) ListChats(ctx context.Context) ([]transport.Chat, error) {
	if !c.IsConnected() {
		return nil, transport.ErrNotConnected
	}

	var (
		out        []transport.Chat
		seen       = make(map[string]bool)
		offsetDate int
		offsetID   int
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)

	for page := 0; page < maxDialogPages; page++ {
		resp, err := c.getDialogs(ctx, &tg.MessagesGetDialogsRequest{
			Limit:      dialogPageSize,
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
		})
		if err != nil {
			return nil, fmt.Errorf("get dialogs: %w", err)
		}

		var (
			dialogs  []tg.DialogClass
			users    []tg.UserClass
			tgChats  []tg.ChatClass
			messages []tg.MessageClass
			sliced   bool
		)
		switch d := resp.(type) {
		case *tg.MessagesDialogs:
			dialogs, users, tgChats, messages = d.Dialogs, d.Users, d.Chats, d.Messages
		case *tg.MessagesDialogsSlice:
			dialogs, users, tgChats, messages = d.Dialogs, d.Users, d.Chats, d.Messages
			sliced = true
		default:
			return nil, fmt.Errorf("get dialogs: unexpected response %T", resp)
		}

		userMap := make(map[int64]*tg.User)
		for _, u := range users {
			if usr, ok := u.(*tg.User); ok {
				userMap[usr.ID] = usr
			}
		}
		chatMap := make(map[int64]tg.ChatClass)
		for _, ch := range tgChats {
			switch v := ch.(type) {
			case *tg.Chat:
				chatMap[v.ID] = v
			case *tg.Channel:
				chatMap[v.ID] = v
			}
		}

		var (
			lastDialog *tg.Dialog
			lastEntry  peerEntry
		)
		c.mu.Lock()
		for _, dc := range dialogs {
			d, ok := dc.(*tg.Dialog)
			if !ok {
				continue
			}
			chat, entry, ok := c.resolveDialog(d, userMap, chatMap)
			if !ok {
				continue
			}
			c.peers[chat.ID] = entry
			lastDialog, lastEntry = d, entry
			if seen[chat.ID] {
				continue
			}
			seen[chat.ID] = true
			out = append(out, chat)
		}
		c.mu.Unlock()

		if !sliced || len(dialogs) < dialogPageSize || lastDialog == nil {
			break
		}
		offsetID = lastDialog.TopMessage
		offsetDate = messageDate(messages, lastDialog.TopMessage)
		offsetPeer = lastEntry.input
	}
	return out, nil
}

// messageDate finds the date of the message carrying the given ID in a
// dialogs response, for use as the next page's offset.
func messageDate(messages []tg.MessageClass, id int) int {
	for _, mc := range messages {
		if m, ok := mc.(*tg.Message); ok && m.ID == id {
			return m.Date
		}
	}
	return 0
}

// resolveDialog maps one raw dialog to a transport.Chat plus its peer entry.
// Chat IDs follow the familiar convention: users positive, basic groups
// negative, channels with a -100 prefix.
func (c *Client) resolveDialog(d *tg.Dialog, users map[int64]*tg.User, chats map[int64]tg.ChatClass) (transport.Chat, peerEntry, bool) {
	switch p := d.Peer.(type) {
	case *tg.PeerUser:
		u, ok := users[p.UserID]
		if !ok {
			return transport.Chat{}, peerEntry{}, false
		}
		title := displayName(u.FirstName, u.LastName, u.Username)
		return transport.Chat{
				ID:          strconv.FormatInt(u.ID, 10),
				Title:       title,
				Kind:        transport.ChatDirect,
				UnreadCount: d.UnreadCount,
			}, peerEntry{
				input: &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash},
			}, true
	case *tg.PeerChat:
		g, ok := chats[p.ChatID].(*tg.Chat)
		if !ok {
			return transport.Chat{}, peerEntry{}, false
		}
		return transport.Chat{
				ID:          "-" + strconv.FormatInt(g.ID, 10),
				Title:       g.Title,
				Kind:        transport.ChatGroup,
				UnreadCount: d.UnreadCount,
			}, peerEntry{
				input: &tg.InputPeerChat{ChatID: g.ID},
			}, true
	case *tg.PeerChannel:
		ch, ok := chats[p.ChannelID].(*tg.Channel)
		if !ok {
			return transport.Chat{}, peerEntry{}, false
		}
		kind := transport.ChatGroup
		if ch.Broadcast {
			kind = transport.ChatBroadcast
		}
		return transport.Chat{
				ID:          "-100" + strconv.FormatInt(ch.ID, 10),
				Title:       ch.Title,
				Kind:        kind,
				UnreadCount: d.UnreadCount,
				Forum:       ch.Forum,
			}, peerEntry{
				input:   &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
				channel: ch,
				forum:   ch.Forum,
			}, true
	}
	return transport.Chat{}, peerEntry{}, false
}

// resolvePeer looks up the cached peer for chatID, refreshing the dialog list
// once on a miss.
func (c *Client) resolvePeer(ctx context.Context, chatID string) (peerEntry, error) {
	c.mu.Lock()
	entry, ok := c.peers[chatID]
	c.mu.Unlock()
	if ok {
		return entry, nil
	}

	if _, err := c.ListChats(ctx); err != nil {
		return peerEntry{}, err
	}

	c.mu.Lock()
	entry, ok = c.peers[chatID]
	c.mu.Unlock()
	if !ok {
		return peerEntry{}, fmt.Errorf("chat %q not found in dialogs", chatID)
	}
	return entry, nil
}

// IsForum reports whether the chat is a forum-style supergroup.
func (c *Client) IsForum(ctx context.Context, chatID string) (bool, error) {
	if !c.IsConnected() {
		return false, transport.ErrNotConnected
	}
	entry, err := c.resolvePeer(ctx, chatID)
	if err != nil {
		return false, err
	}
	return entry.forum, nil
}

func displayName(first, last, username string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case username != "":
		return "@" + username
	}
	return ""
}
