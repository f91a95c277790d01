package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tgnotion/tgnotion/internal/transport"
)

// Discovery budgets. The heuristic scan never looks at more than
// scanBatches×scanBatchSize messages and never probes more than
// maxCountProbes topics for counts.
const (
	scanBatches    = 10
	scanBatchSize  = 100
	maxCountProbes = 20
	probeLimit     = 100
)

// ListTopics discovers the topics of a forum-style chat. The native listing is
// used when the transport supports it; otherwise recent history is scanned for
// topic-creation markers and reply roots within a fixed budget. Partial data
// is kept: a failed count probe leaves that topic with whatever it already
// has. Results are sorted by last activity descending, undated topics last,
// ties broken by descending ID.
func (c *Client) ListTopics(ctx context.Context, chatID string) ([]Topic, error) {
	native, err := c.tr.ForumTopics(ctx, chatID)
	if err == nil {
		topics := make([]Topic, 0, len(native))
		for _, t := range native {
			topic := Topic{ID: t.ID, Title: t.Title}
			if t.LastDate > 0 {
				last := time.Unix(t.LastDate, 0).UTC()
				topic.LastActivityAt = &last
			}
			topics = append(topics, topic)
		}
		sortTopics(topics)
		return topics, nil
	}
	if !errors.Is(err, transport.ErrTopicsUnsupported) {
		return nil, fmt.Errorf("list forum topics: %w", err)
	}

	found, err := c.scanForTopics(ctx, chatID)
	if err != nil {
		return nil, err
	}

	topics := make([]Topic, 0, len(found))
	for _, t := range found {
		topics = append(topics, *t)
	}
	// Probe in descending-ID order so the newest topics get counted first.
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID > topics[j].ID })
	c.probeTopics(ctx, chatID, topics)

	sortTopics(topics)
	return topics, nil
}

// scanForTopics walks recent history looking for topic-creation markers and
// topic-annotated replies. Only the very first batch failing is fatal; later
// scan errors just end the scan with what was already found.
func (c *Client) scanForTopics(ctx context.Context, chatID string) (map[int]*Topic, error) {
	found := make(map[int]*Topic)
	beforeID := 0

	for batch := 0; batch < scanBatches; batch++ {
		msgs, err := c.tr.History(ctx, chatID, transport.HistoryOptions{
			Limit:    scanBatchSize,
			BeforeID: beforeID,
		})
		if err != nil {
			if batch == 0 {
				return nil, fmt.Errorf("topic scan: %w", err)
			}
			c.logger.Warn("topic scan batch failed, keeping partial results",
				zap.String("chat", chatID), zap.Int("batch", batch), zap.Error(err))
			break
		}
		if len(msgs) == 0 {
			break
		}

		for _, m := range msgs {
			switch {
			case m.TopicCreated:
				t := ensureTopic(found, m.ID)
				if t.Title == "" {
					t.Title = m.TopicTitle
				}
			case m.TopicID != 0:
				ensureTopic(found, m.TopicID)
			case m.ReplyRootID != 0:
				ensureTopic(found, m.ReplyRootID)
			}
		}

		beforeID = msgs[len(msgs)-1].ID
		if len(msgs) < scanBatchSize {
			break
		}
	}

	for id, t := range found {
		if t.Title != "" {
			continue
		}
		root, err := c.tr.MessageByID(ctx, chatID, id)
		if err == nil && root.TopicCreated && root.TopicTitle != "" {
			t.Title = root.TopicTitle
			continue
		}
		if err != nil {
			c.logger.Warn("topic root fetch failed, using synthetic title",
				zap.String("chat", chatID), zap.Int("topic", id), zap.Error(err))
		}
		t.Title = fmt.Sprintf("Topic %d", id)
	}

	return found, nil
}

// probeTopics refines counts and last-activity times with small bounded
// fetches until the probe budget is spent. A failed probe keeps that topic
// with partial data; it never fails the discovery.
func (c *Client) probeTopics(ctx context.Context, chatID string, topics []Topic) {
	probes := 0
	for i := range topics {
		if probes >= maxCountProbes {
			return
		}
		probes++

		msgs, err := c.tr.History(ctx, chatID, transport.HistoryOptions{
			Limit:   probeLimit,
			TopicID: topics[i].ID,
		})
		if err != nil {
			c.logger.Warn("topic count probe failed",
				zap.String("chat", chatID), zap.Int("topic", topics[i].ID), zap.Error(err))
			continue
		}

		topics[i].ApproxMessageCount = len(msgs)
		topics[i].CountIsApproximate = true
		if len(msgs) > 0 {
			last := time.Unix(msgs[0].Date, 0).UTC()
			topics[i].LastActivityAt = &last
		}
	}
}

func ensureTopic(found map[int]*Topic, id int) *Topic {
	if t, ok := found[id]; ok {
		return t
	}
	t := &Topic{ID: id}
	found[id] = t
	return t
}

func sortTopics(topics []Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		a, b := topics[i].LastActivityAt, topics[j].LastActivityAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return topics[i].ID > topics[j].ID
	})
}
