package telegram

import (
	"testing"

	"github.com/gotd/td/tg"
)

func TestMediaKind(t *testing.T) {
	tests := []struct {
		name  string
		media tg.MessageMediaClass
		want  string
	}{
		{"nil", nil, ""},
		{"empty", &tg.MessageMediaEmpty{}, ""},
		{"web preview", &tg.MessageMediaWebPage{}, ""},
		{"photo", &tg.MessageMediaPhoto{}, "Photo"},
		{"document", &tg.MessageMediaDocument{}, "Document"},
		{"geo", &tg.MessageMediaGeo{}, "Location"},
		{"venue", &tg.MessageMediaVenue{}, "Location"},
		{"contact", &tg.MessageMediaContact{}, "Contact"},
		{"poll", &tg.MessageMediaPoll{}, "Poll"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mediaKind(tt.media)
			if got != tt.want {
				t.Errorf("mediaKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMapMessageTopicAnnotation(t *testing.T) {
	users := map[int64]*tg.User{
		7: {ID: 7, FirstName: "Alice", Username: "alice"},
	}

	m := &tg.Message{
		ID:      42,
		Message: "hello",
		Date:    1700000000,
		FromID:  &tg.PeerUser{UserID: 7},
		ReplyTo: &tg.MessageReplyHeader{
			ForumTopic:   true,
			ReplyToMsgID: 40,
			ReplyToTopID: 12,
		},
	}

	got := mapMessage(m, users, nil)
	if got.ID != 42 || got.Text != "hello" {
		t.Errorf("ID/Text = %d/%q, want 42/hello", got.ID, got.Text)
	}
	if got.TopicID != 12 {
		t.Errorf("TopicID = %d, want 12", got.TopicID)
	}
	if got.ReplyRootID != 12 {
		t.Errorf("ReplyRootID = %d, want 12", got.ReplyRootID)
	}
	if got.Sender.FirstName != "Alice" {
		t.Errorf("Sender.FirstName = %q, want Alice", got.Sender.FirstName)
	}
}

func TestMapMessageReplyWithoutTopID(t *testing.T) {
	m := &tg.Message{
		ID:      5,
		Message: "reply",
		ReplyTo: &tg.MessageReplyHeader{
			ForumTopic:   true,
			ReplyToMsgID: 3,
		},
	}

	got := mapMessage(m, nil, nil)
	if got.TopicID != 3 {
		t.Errorf("TopicID = %d, want reply root fallback 3", got.TopicID)
	}
}

func TestMapMessagesTopicCreate(t *testing.T) {
	resp := &tg.MessagesChannelMessages{
		Messages: []tg.MessageClass{
			&tg.MessageService{
				ID:     9,
				Date:   1700000100,
				Action: &tg.MessageActionTopicCreate{Title: "Releases"},
			},
			&tg.MessageService{
				ID:     10,
				Action: &tg.MessageActionChatEditTitle{Title: "ignored"},
			},
		},
	}

	c := &Client{}
	got, err := c.mapMessages(resp)
	if err != nil {
		t.Fatalf("mapMessages() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (non-topic service messages skipped)", len(got))
	}
	if !got[0].TopicCreated || got[0].TopicTitle != "Releases" || got[0].TopicID != 9 {
		t.Errorf("topic marker = %+v, want created Releases id 9", got[0])
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		first, last, username, want string
	}{
		{"Ana", "Silva", "ana", "Ana Silva"},
		{"Ana", "", "ana", "Ana"},
		{"", "", "ana", "@ana"},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		got := displayName(tt.first, tt.last, tt.username)
		if got != tt.want {
			t.Errorf("displayName(%q,%q,%q) = %q, want %q", tt.first, tt.last, tt.username, got, tt.want)
		}
	}
}
