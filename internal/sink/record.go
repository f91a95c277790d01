// Package sink provides typed access to one Notion database acting as the
// message store, including lazy schema self-healing and rate-limit-aware
// batched upserts.
package sink

import "time"

// Direction is the message direction enum persisted on every record.
type Direction string

const (
	Incoming Direction = "Incoming"
	Outgoing Direction = "Outgoing"
)

// Record is the persisted form of one extracted message. The page title is
// derived from Text (truncated) at write time; records are created once and
// never updated in place.
type Record struct {
	Text      string
	Sender    string
	Chat      string
	Timestamp time.Time
	Direction Direction
	MessageID int
	MediaKind string // empty if no attachment
	ChatID    string

	// Thread fields, zero outside forum chats.
	TopicID    int
	TopicTitle string
	ThreadID   int
}

// Filter selects records on the read path. All set conditions are combined
// with logical AND: contains-matching for ChatName and Sender, exact match
// for Direction, inclusive bounds for Start/End.
type Filter struct {
	ChatName  string
	Sender    string
	Direction Direction
	Start     *time.Time
	End       *time.Time
	Limit     int
}

// Stats are aggregate counts over a single page of the store. Truncated is
// set when the page came back full, meaning the counts may undercount the
// collection.
type Stats struct {
	TotalCount   int
	PerChat      map[string]int
	PerDirection map[string]int
	Truncated    bool
}
