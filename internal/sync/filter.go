package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/tgnotion/tgnotion/internal/transport"
)

// DateRange bounds message timestamps, both ends inclusive and optional.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// passes applies the local filter policy. Messages without any non-empty text
// are always dropped: a pure-media message with no caption never reaches the
// sink, regardless of IncludeMedia.
func passes(m transport.Message, opts Options) bool {
	if strings.TrimSpace(m.Text) == "" {
		return false
	}
	if !opts.IncludeOutgoing && m.Outgoing {
		return false
	}
	if !opts.IncludeMedia && m.Media != "" {
		return false
	}
	if opts.DateFilter != nil {
		ts := time.Unix(m.Date, 0)
		if opts.DateFilter.From != nil && ts.Before(*opts.DateFilter.From) {
			return false
		}
		if opts.DateFilter.To != nil && ts.After(*opts.DateFilter.To) {
			return false
		}
	}
	return true
}

func filterMessages(msgs []transport.Message, opts Options) []transport.Message {
	var out []transport.Message
	for _, m := range msgs {
		if passes(m, opts) {
			out = append(out, m)
		}
	}
	return out
}

// senderDisplay resolves the stored sender string: "You" for outgoing, then
// name, handle, group/channel title, and numeric fallbacks in that order.
func senderDisplay(m transport.Message) string {
	if m.Outgoing {
		return "You"
	}
	s := m.Sender
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	case s.LastName != "":
		return s.LastName
	case s.Username != "":
		return "@" + s.Username
	case s.ChannelTitle != "":
		return s.ChannelTitle
	case s.ID != 0:
		return fmt.Sprintf("User %d", s.ID)
	}
	return "User Unknown"
}
