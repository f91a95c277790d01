// Package sync orchestrates one-way extraction from the chat source into the
// document sink: fetch, local filtering, dedupe against the export ledger,
// batched upsert, and run bookkeeping.
package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tgnotion/tgnotion/internal/bus"
	"github.com/tgnotion/tgnotion/internal/ledger"
	"github.com/tgnotion/tgnotion/internal/sink"
	"github.com/tgnotion/tgnotion/internal/source"
	"github.com/tgnotion/tgnotion/internal/transport"
)

const (
	defaultMessageLimit = 100
	interChatDelay      = 500 * time.Millisecond
)

// Source is the read side consumed by the coordinator.
type Source interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	ListChats(ctx context.Context) ([]transport.Chat, error)
	GetMessages(ctx context.Context, chatID string, limit int, opts source.GetOptions) ([]transport.Message, error)
}

// Sink is the write side consumed by the coordinator.
type Sink interface {
	TestConnection(ctx context.Context) bool
	UpsertBatch(ctx context.Context, records []sink.Record) ([]string, error)
}

// Ledger records which messages have already been exported. A nil Ledger
// disables dedupe and run history.
type Ledger interface {
	Exported(chatID string, ids []int) (map[int]bool, error)
	MarkExported(chatID string, ids []int) error
	RecordRun(r ledger.Run) error
}

// ChatTypeFilter restricts ExtractAllChats by dialog kind. A nil filter
// passes everything.
type ChatTypeFilter struct {
	Users    bool
	Groups   bool
	Channels bool
}

func (f *ChatTypeFilter) match(kind transport.ChatKind) bool {
	if f == nil {
		return true
	}
	switch kind {
	case transport.ChatDirect:
		return f.Users
	case transport.ChatGroup:
		return f.Groups
	case transport.ChatBroadcast:
		return f.Channels
	}
	return false
}

// Options parameterize one extraction.
type Options struct {
	MessageLimit    int // <=0 means the default of 100
	IncludeOutgoing bool
	IncludeMedia    bool
	DateFilter      *DateRange
	SkipExported    bool

	// Thread scoping: TopicID limits the fetch to one topic; TopicIDs fetches
	// several and merges them newest-first under MessageLimit.
	TopicID  int
	TopicIDs []int

	// Dialog-kind filter, honored by ExtractAllChats only.
	ChatTypes *ChatTypeFilter
}

// Result summarizes one chat extraction.
type Result struct {
	ChatID    string
	ChatTitle string
	Count     int
	Records   []sink.Record
}

// Coordinator drives extraction runs. It owns no connection state beyond
// lazily connecting the source on first use.
type Coordinator struct {
	src    Source
	snk    Sink
	led    Ledger
	bus    *bus.Bus
	logger *zap.Logger

	timeouts Timeouts
	delay    time.Duration
}

// New creates a coordinator with default timeouts. led may be nil.
func New(src Source, snk Sink, led Ledger, b *bus.Bus, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		src:      src,
		snk:      snk,
		led:      led,
		bus:      b,
		logger:   logger,
		timeouts: DefaultTimeouts(),
		delay:    interChatDelay,
	}
}

func (c *Coordinator) ensureConnected(ctx context.Context) error {
	if c.src.IsConnected() {
		return nil
	}
	return doWithin(ctx, "source connect", c.timeouts.Connect, c.src.Connect)
}

// ExtractChat runs one extraction for a single chat. A chat whose filtered
// history is empty is a successful run with Count zero, not an error.
func (c *Coordinator) ExtractChat(ctx context.Context, chatID string, opts Options) (Result, error) {
	startedAt := time.Now()
	res := Result{ChatID: chatID, ChatTitle: chatID}

	if err := c.ensureConnected(ctx); err != nil {
		return res, fmt.Errorf("connecting source: %w", err)
	}

	// Advisory sink probe. A failure is logged and the run proceeds; the
	// upsert will surface any real sink problem.
	probeCtx, cancel := context.WithTimeout(ctx, c.timeouts.SinkProbe)
	if !c.snk.TestConnection(probeCtx) {
		c.logger.Warn("sink probe failed, continuing", zap.String("chat", chatID))
	}
	cancel()

	chats, err := callWithin(ctx, "list chats", c.timeouts.ListChats, c.src.ListChats)
	if err != nil {
		return res, fmt.Errorf("listing chats: %w", err)
	}
	for _, ch := range chats {
		if ch.ID == chatID {
			res.ChatTitle = ch.Title
			break
		}
	}

	msgs, err := c.fetch(ctx, chatID, opts)
	if err != nil {
		return res, fmt.Errorf("fetching history: %w", err)
	}

	msgs = filterMessages(msgs, opts)

	if opts.SkipExported && c.led != nil {
		msgs, err = c.dropExported(chatID, msgs)
		if err != nil {
			return res, fmt.Errorf("checking export ledger: %w", err)
		}
	}

	records := make([]sink.Record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, c.toRecord(m, chatID, res.ChatTitle))
	}

	if len(records) > 0 {
		_, err = callWithin(ctx, "batch upsert", c.timeouts.Upsert, func(ctx context.Context) ([]string, error) {
			return c.snk.UpsertBatch(ctx, records)
		})
		if err != nil {
			return res, fmt.Errorf("upserting %d records: %w", len(records), err)
		}
	}

	res.Count = len(records)
	res.Records = records
	c.bookkeep(chatID, res.ChatTitle, msgs, startedAt)

	c.logger.Info("chat extracted",
		zap.String("chat", chatID),
		zap.String("title", res.ChatTitle),
		zap.Int("count", res.Count))
	c.bus.Publish("extract.chat_done", res)
	return res, nil
}

// ExtractChats extracts every chat in order, pausing between chats and
// skipping over per-chat failures so one bad chat cannot sink the run.
func (c *Coordinator) ExtractChats(ctx context.Context, chatIDs []string, opts Options) ([]Result, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, fmt.Errorf("connecting source: %w", err)
	}

	var results []Result
	for i, id := range chatIDs {
		if i > 0 {
			if err := sleepCtx(ctx, c.delay); err != nil {
				return results, err
			}
		}
		res, err := c.ExtractChat(ctx, id, opts)
		if err != nil {
			c.logger.Error("chat extraction failed, skipping",
				zap.String("chat", id), zap.Error(err))
			c.bus.Publish("extract.chat_failed", map[string]string{
				"chat_id": id,
				"error":   err.Error(),
			})
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// ExtractAllChats lists every visible chat, applies the dialog-kind filter
// from opts.ChatTypes, and extracts the remainder.
func (c *Coordinator) ExtractAllChats(ctx context.Context, opts Options) ([]Result, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, fmt.Errorf("connecting source: %w", err)
	}

	chats, err := callWithin(ctx, "list chats", c.timeouts.ListChats, c.src.ListChats)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}

	var ids []string
	for _, ch := range chats {
		if opts.ChatTypes.match(ch.Kind) {
			ids = append(ids, ch.ID)
		}
	}
	c.logger.Info("extracting all chats",
		zap.Int("visible", len(chats)), zap.Int("selected", len(ids)))
	return c.ExtractChats(ctx, ids, opts)
}

// fetch pulls history for the requested scope. Multi-topic fetches are merged
// newest-first and re-capped at the message limit so the cap holds across
// topics, not per topic.
func (c *Coordinator) fetch(ctx context.Context, chatID string, opts Options) ([]transport.Message, error) {
	limit := opts.MessageLimit
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	fetchOne := func(topicID int) ([]transport.Message, error) {
		return callWithin(ctx, "fetch history", c.timeouts.Fetch, func(ctx context.Context) ([]transport.Message, error) {
			return c.src.GetMessages(ctx, chatID, limit, source.GetOptions{TopicID: topicID})
		})
	}

	if len(opts.TopicIDs) == 0 {
		return fetchOne(opts.TopicID)
	}

	var merged []transport.Message
	for _, tid := range opts.TopicIDs {
		batch, err := fetchOne(tid)
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", tid, err)
		}
		merged = append(merged, batch...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date > merged[j].Date
		}
		return merged[i].ID > merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// dropExported removes messages the ledger has already seen for this chat.
func (c *Coordinator) dropExported(chatID string, msgs []transport.Message) ([]transport.Message, error) {
	if len(msgs) == 0 {
		return msgs, nil
	}
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	seen, err := c.led.Exported(chatID, ids)
	if err != nil {
		return nil, err
	}
	var out []transport.Message
	for _, m := range msgs {
		if !seen[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Coordinator) toRecord(m transport.Message, chatID, chatTitle string) sink.Record {
	dir := sink.Incoming
	if m.Outgoing {
		dir = sink.Outgoing
	}
	return sink.Record{
		Text:       m.Text,
		Sender:     senderDisplay(m),
		Chat:       chatTitle,
		Timestamp:  time.Unix(m.Date, 0).UTC(),
		Direction:  dir,
		MessageID:  m.ID,
		MediaKind:  m.Media,
		ChatID:     chatID,
		TopicID:    m.TopicID,
		TopicTitle: m.TopicTitle,
		ThreadID:   m.ReplyRootID,
	}
}

// bookkeep marks exported messages and records the run. Best effort: a
// bookkeeping failure is logged, never surfaced, since the records are
// already in the sink.
func (c *Coordinator) bookkeep(chatID, chatTitle string, msgs []transport.Message, startedAt time.Time) {
	if c.led == nil {
		return
	}
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if err := c.led.MarkExported(chatID, ids); err != nil {
		c.logger.Warn("marking exported failed", zap.String("chat", chatID), zap.Error(err))
	}
	run := ledger.Run{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		ChatTitle:  chatTitle,
		Count:      len(msgs),
		StartedAt:  startedAt.UnixMilli(),
		FinishedAt: time.Now().UnixMilli(),
	}
	if err := c.led.RecordRun(run); err != nil {
		c.logger.Warn("recording run failed", zap.String("chat", chatID), zap.Error(err))
	}
}
