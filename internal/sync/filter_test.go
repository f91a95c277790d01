package sync

import (
	"testing"
	"time"

	"github.com/tgnotion/tgnotion/internal/transport"
)

func TestPasses(t *testing.T) {
	from := time.Unix(100, 0)
	to := time.Unix(200, 0)

	tests := []struct {
		name string
		m    transport.Message
		opts Options
		want bool
	}{
		{
			name: "plain text passes",
			m:    transport.Message{Text: "hi", Date: 150},
			opts: Options{IncludeOutgoing: true, IncludeMedia: true},
			want: true,
		},
		{
			name: "empty text dropped even with media allowed",
			m:    transport.Message{Text: "", Date: 150, Media: "Photo"},
			opts: Options{IncludeOutgoing: true, IncludeMedia: true},
			want: false,
		},
		{
			name: "whitespace text dropped",
			m:    transport.Message{Text: " \n\t", Date: 150},
			opts: Options{IncludeOutgoing: true, IncludeMedia: true},
			want: false,
		},
		{
			name: "outgoing dropped when excluded",
			m:    transport.Message{Text: "hi", Date: 150, Outgoing: true},
			opts: Options{IncludeOutgoing: false, IncludeMedia: true},
			want: false,
		},
		{
			name: "media caption dropped when media excluded",
			m:    transport.Message{Text: "look", Date: 150, Media: "Photo"},
			opts: Options{IncludeOutgoing: true, IncludeMedia: false},
			want: false,
		},
		{
			name: "on from boundary passes",
			m:    transport.Message{Text: "hi", Date: 100},
			opts: Options{IncludeOutgoing: true, IncludeMedia: true, DateFilter: &DateRange{From: &from, To: &to}},
			want: true,
		},
		{
			name: "on to boundary passes",
			m:    transport.Message{Text: "hi", Date: 200},
			opts: Options{IncludeOutgoing: true, IncludeMedia: true, DateFilter: &DateRange{From: &from, To: &to}},
			want: true,
		},
		{
			name: "before range dropped",
			m:    transport.Message{Text: "hi", Date: 99},
			opts: Options{IncludeOutgoing: true, IncludeMedia: true, DateFilter: &DateRange{From: &from}},
			want: false,
		},
		{
			name: "after range dropped",
			m:    transport.Message{Text: "hi", Date: 201},
			opts: Options{IncludeOutgoing: true, IncludeMedia: true, DateFilter: &DateRange{To: &to}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := passes(tt.m, tt.opts); got != tt.want {
				t.Errorf("passes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSenderDisplay(t *testing.T) {
	tests := []struct {
		name string
		m    transport.Message
		want string
	}{
		{
			name: "outgoing is always You",
			m:    transport.Message{Outgoing: true, Sender: transport.Sender{FirstName: "Ana"}},
			want: "You",
		},
		{
			name: "full name",
			m:    transport.Message{Sender: transport.Sender{FirstName: "Ana", LastName: "Silva"}},
			want: "Ana Silva",
		},
		{
			name: "first name only",
			m:    transport.Message{Sender: transport.Sender{FirstName: "Ana", Username: "ana"}},
			want: "Ana",
		},
		{
			name: "username fallback",
			m:    transport.Message{Sender: transport.Sender{Username: "ana"}},
			want: "@ana",
		},
		{
			name: "channel title fallback",
			m:    transport.Message{Sender: transport.Sender{ChannelTitle: "Daily News"}},
			want: "Daily News",
		},
		{
			name: "numeric fallback",
			m:    transport.Message{Sender: transport.Sender{ID: 42}},
			want: "User 42",
		},
		{
			name: "nothing known",
			m:    transport.Message{},
			want: "User Unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := senderDisplay(tt.m); got != tt.want {
				t.Errorf("senderDisplay() = %q, want %q", got, tt.want)
			}
		})
	}
}
