package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/tgnotion/tgnotion/internal/transport"
)

// History fetches up to opts.Limit messages strictly before opts.BeforeID,
// newest first. With opts.TopicID set the fetch is scoped to one forum topic
// and fails with transport.ErrTopicsUnsupported for non-forum chats.
func (c *Client) History(ctx context.Context, chatID string, opts transport.HistoryOptions) ([]transport.Message, error) {
	if !c.IsConnected() {
		return nil, transport.ErrNotConnected
	}
	entry, err := c.resolvePeer(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var resp tg.MessagesMessagesClass
	if opts.TopicID != 0 {
		if !entry.forum {
			return nil, transport.ErrTopicsUnsupported
		}
		resp, err = c.api.MessagesGetReplies(ctx, &tg.MessagesGetRepliesRequest{
			Peer:     entry.input,
			MsgID:    opts.TopicID,
			OffsetID: opts.BeforeID,
			Limit:    opts.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("get replies: %w", err)
		}
	} else {
		resp, err = c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     entry.input,
			OffsetID: opts.BeforeID,
			Limit:    opts.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}
	}

	return c.mapMessages(resp)
}

// MessageByID fetches a single message, used by topic discovery to recover a
// topic title from its root message.
func (c *Client) MessageByID(ctx context.Context, chatID string, id int) (transport.Message, error) {
	if !c.IsConnected() {
		return transport.Message{}, transport.ErrNotConnected
	}
	entry, err := c.resolvePeer(ctx, chatID)
	if err != nil {
		return transport.Message{}, err
	}

	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: id}}
	var resp tg.MessagesMessagesClass
	if entry.channel != nil {
		resp, err = c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: entry.channel.AsInput(),
			ID:      ids,
		})
	} else {
		resp, err = c.api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return transport.Message{}, fmt.Errorf("get message %d: %w", id, err)
	}

	msgs, err := c.mapMessages(resp)
	if err != nil {
		return transport.Message{}, err
	}
	if len(msgs) == 0 {
		return transport.Message{}, fmt.Errorf("message %d not found in chat %q", id, chatID)
	}
	return msgs[0], nil
}

// ForumTopics lists topics via the native channels.getForumTopics call.
// Returns transport.ErrTopicsUnsupported for anything that is not a forum.
func (c *Client) ForumTopics(ctx context.Context, chatID string) ([]transport.ForumTopic, error) {
	if !c.IsConnected() {
		return nil, transport.ErrNotConnected
	}
	entry, err := c.resolvePeer(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if entry.channel == nil || !entry.forum {
		return nil, transport.ErrTopicsUnsupported
	}

	resp, err := c.api.ChannelsGetForumTopics(ctx, &tg.ChannelsGetForumTopicsRequest{
		Channel: entry.channel.AsInput(),
		Limit:   100,
	})
	if err != nil {
		return nil, fmt.Errorf("get forum topics: %w", err)
	}

	lastDates := make(map[int]int64)
	for _, mc := range resp.Messages {
		if m, ok := mc.(*tg.Message); ok {
			lastDates[m.ID] = int64(m.Date)
		}
	}

	var topics []transport.ForumTopic
	for _, tc := range resp.Topics {
		t, ok := tc.(*tg.ForumTopic)
		if !ok {
			continue
		}
		topics = append(topics, transport.ForumTopic{
			ID:           t.ID,
			Title:        t.Title,
			TopMessageID: t.TopMessage,
			LastDate:     lastDates[t.TopMessage],
		})
	}
	return topics, nil
}

// mapMessages normalizes a raw history response. Empty messages are skipped;
// service messages survive only as topic-creation markers.
func (c *Client) mapMessages(resp tg.MessagesMessagesClass) ([]transport.Message, error) {
	var (
		raw     []tg.MessageClass
		users   []tg.UserClass
		tgChats []tg.ChatClass
	)
	switch m := resp.(type) {
	case *tg.MessagesMessages:
		raw, users, tgChats = m.Messages, m.Users, m.Chats
	case *tg.MessagesMessagesSlice:
		raw, users, tgChats = m.Messages, m.Users, m.Chats
	case *tg.MessagesChannelMessages:
		raw, users, tgChats = m.Messages, m.Users, m.Chats
	default:
		return nil, fmt.Errorf("unexpected messages response %T", resp)
	}

	userMap := make(map[int64]*tg.User)
	for _, u := range users {
		if usr, ok := u.(*tg.User); ok {
			userMap[usr.ID] = usr
		}
	}
	titleMap := make(map[int64]string)
	for _, ch := range tgChats {
		switch v := ch.(type) {
		case *tg.Chat:
			titleMap[v.ID] = v.Title
		case *tg.Channel:
			titleMap[v.ID] = v.Title
		}
	}

	var out []transport.Message
	for _, mc := range raw {
		switch m := mc.(type) {
		case *tg.Message:
			out = append(out, mapMessage(m, userMap, titleMap))
		case *tg.MessageService:
			if action, ok := m.Action.(*tg.MessageActionTopicCreate); ok {
				out = append(out, transport.Message{
					ID:           m.ID,
					Date:         int64(m.Date),
					Sender:       mapSender(m.FromID, userMap, titleMap),
					Outgoing:     m.Out,
					TopicCreated: true,
					TopicTitle:   action.Title,
					TopicID:      m.ID,
				})
			}
		}
	}
	return out, nil
}

func mapMessage(m *tg.Message, users map[int64]*tg.User, titles map[int64]string) transport.Message {
	msg := transport.Message{
		ID:       m.ID,
		Text:     m.Message,
		Date:     int64(m.Date),
		Sender:   mapSender(m.FromID, users, titles),
		Outgoing: m.Out,
		Media:    mediaKind(m.Media),
	}
	if reply, ok := m.ReplyTo.(*tg.MessageReplyHeader); ok {
		msg.ReplyToID = reply.ReplyToMsgID
		msg.ReplyRootID = reply.ReplyToTopID
		if msg.ReplyRootID == 0 {
			msg.ReplyRootID = reply.ReplyToMsgID
		}
		if reply.ForumTopic {
			msg.TopicID = msg.ReplyRootID
		}
	}
	return msg
}

func mapSender(from tg.PeerClass, users map[int64]*tg.User, titles map[int64]string) transport.Sender {
	switch p := from.(type) {
	case *tg.PeerUser:
		s := transport.Sender{ID: p.UserID}
		if u, ok := users[p.UserID]; ok {
			s.FirstName = u.FirstName
			s.LastName = u.LastName
			s.Username = u.Username
		}
		return s
	case *tg.PeerChat:
		return transport.Sender{ID: p.ChatID, ChannelTitle: titles[p.ChatID]}
	case *tg.PeerChannel:
		return transport.Sender{ID: p.ChannelID, ChannelTitle: titles[p.ChannelID]}
	}
	return transport.Sender{}
}

func mediaKind(media tg.MessageMediaClass) string {
	switch media.(type) {
	case nil, *tg.MessageMediaEmpty, *tg.MessageMediaWebPage:
		return ""
	case *tg.MessageMediaPhoto:
		return "Photo"
	case *tg.MessageMediaDocument:
		return "Document"
	case *tg.MessageMediaGeo, *tg.MessageMediaGeoLive, *tg.MessageMediaVenue:
		return "Location"
	case *tg.MessageMediaContact:
		return "Contact"
	case *tg.MessageMediaPoll:
		return "Poll"
	case *tg.MessageMediaDice:
		return "Dice"
	case *tg.MessageMediaGame:
		return "Game"
	case *tg.MessageMediaInvoice:
		return "Invoice"
	case *tg.MessageMediaStory:
		return "Story"
	}
	return "Media"
}
