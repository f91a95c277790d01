package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tgnotion/tgnotion/internal/transport"
)

func TestListTopicsNative(t *testing.T) {
	tr := &fakeTransport{
		forumTopics: func(string) ([]transport.ForumTopic, error) {
			return []transport.ForumTopic{
				{ID: 1, Title: "General", LastDate: 100},
				{ID: 5, Title: "Releases", LastDate: 500},
				{ID: 3, Title: "Quiet"},
			}, nil
		},
	}
	c := testClient(tr)

	topics, err := c.ListTopics(context.Background(), "-1001")
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(topics) != 3 {
		t.Fatalf("len = %d, want 3", len(topics))
	}
	// Most recent activity first, undated topics last.
	if topics[0].Title != "Releases" || topics[1].Title != "General" || topics[2].Title != "Quiet" {
		t.Errorf("order = %q,%q,%q, want Releases,General,Quiet",
			topics[0].Title, topics[1].Title, topics[2].Title)
	}
	if tr.historyCalls != 0 {
		t.Errorf("historyCalls = %d, want 0 (native listing is authoritative)", tr.historyCalls)
	}
}

func TestListTopicsNativeErrorPropagates(t *testing.T) {
	wantErr := errors.New("flood wait")
	tr := &fakeTransport{
		forumTopics: func(string) ([]transport.ForumTopic, error) { return nil, wantErr },
	}
	c := testClient(tr)

	_, err := c.ListTopics(context.Background(), "-1001")
	if !errors.Is(err, wantErr) {
		t.Errorf("ListTopics() error = %v, want %v", err, wantErr)
	}
}

func TestListTopicsScanDiscovery(t *testing.T) {
	// One page of history: a creation marker for topic 10, replies annotated
	// with topic 10, and a reply rooted at undiscovered topic 4.
	page := []transport.Message{
		{ID: 30, Text: "in topic", TopicID: 10, Date: 300},
		{ID: 25, Text: "rooted reply", ReplyRootID: 4, Date: 250},
		{ID: 10, TopicCreated: true, TopicTitle: "Plans", Date: 100},
	}
	tr := &fakeTransport{
		history: func(_ string, opts transport.HistoryOptions) ([]transport.Message, error) {
			if opts.TopicID == 10 {
				return []transport.Message{{ID: 30, Date: 300}, {ID: 20, Date: 200}}, nil
			}
			if opts.TopicID == 4 {
				return []transport.Message{{ID: 25, Date: 250}}, nil
			}
			if opts.BeforeID != 0 {
				return nil, nil
			}
			return page, nil
		},
		messageByID: func(_ string, id int) (transport.Message, error) {
			return transport.Message{}, fmt.Errorf("message %d gone", id)
		},
	}
	c := testClient(tr)

	topics, err := c.ListTopics(context.Background(), "-1001")
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("len = %d, want 2", len(topics))
	}

	// Topic 10 has the later activity (t=300), topic 4 follows (t=250).
	if topics[0].ID != 10 || topics[1].ID != 4 {
		t.Fatalf("order = %d,%d, want 10,4", topics[0].ID, topics[1].ID)
	}
	if topics[0].Title != "Plans" {
		t.Errorf("title = %q, want Plans (from creation marker)", topics[0].Title)
	}
	if topics[1].Title != "Topic 4" {
		t.Errorf("title = %q, want synthetic Topic 4", topics[1].Title)
	}
	if topics[0].ApproxMessageCount != 2 || !topics[0].CountIsApproximate {
		t.Errorf("topic 10 count = %d approx=%v, want 2/true",
			topics[0].ApproxMessageCount, topics[0].CountIsApproximate)
	}
	if topics[1].ApproxMessageCount != 1 {
		t.Errorf("topic 4 count = %d, want 1", topics[1].ApproxMessageCount)
	}
}

func TestListTopicsScanBudget(t *testing.T) {
	// Transport serves endless full pages with no topic annotations: the scan
	// must stop after its batch budget.
	tr := &fakeTransport{}
	tr.history = func(_ string, opts transport.HistoryOptions) ([]transport.Message, error) {
		if opts.TopicID != 0 {
			return nil, nil
		}
		msgs := make([]transport.Message, scanBatchSize)
		base := 1_000_000 - tr.historyCalls*scanBatchSize
		for i := range msgs {
			msgs[i] = transport.Message{ID: base - i, Text: "x"}
		}
		return msgs, nil
	}
	c := testClient(tr)

	topics, err := c.ListTopics(context.Background(), "-1001")
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("len = %d, want 0", len(topics))
	}
	if tr.historyCalls > scanBatches {
		t.Errorf("historyCalls = %d, want at most %d", tr.historyCalls, scanBatches)
	}
}

func TestListTopicsProbeBudget(t *testing.T) {
	// 30 discovered topics but only maxCountProbes probes allowed.
	var page []transport.Message
	for id := 1; id <= 30; id++ {
		page = append(page, transport.Message{ID: id, TopicCreated: true, TopicTitle: fmt.Sprintf("T%d", id), Date: int64(id)})
	}
	probeCalls := 0
	tr := &fakeTransport{}
	tr.history = func(_ string, opts transport.HistoryOptions) ([]transport.Message, error) {
		if opts.TopicID != 0 {
			probeCalls++
			return []transport.Message{{ID: opts.TopicID, Date: int64(opts.TopicID)}}, nil
		}
		if opts.BeforeID != 0 {
			return nil, nil
		}
		return page, nil
	}
	c := testClient(tr)

	topics, err := c.ListTopics(context.Background(), "-1001")
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(topics) != 30 {
		t.Fatalf("len = %d, want 30 (unprobed topics kept)", len(topics))
	}
	if probeCalls != maxCountProbes {
		t.Errorf("probeCalls = %d, want %d", probeCalls, maxCountProbes)
	}
}

func TestListTopicsProbeFailureKeepsTopic(t *testing.T) {
	page := []transport.Message{
		{ID: 2, TopicCreated: true, TopicTitle: "Good", Date: 20},
		{ID: 1, TopicCreated: true, TopicTitle: "Flaky", Date: 10},
	}
	tr := &fakeTransport{}
	tr.history = func(_ string, opts transport.HistoryOptions) ([]transport.Message, error) {
		switch {
		case opts.TopicID == 1:
			return nil, errors.New("probe failed")
		case opts.TopicID == 2:
			return []transport.Message{{ID: 5, Date: 50}}, nil
		case opts.BeforeID != 0:
			return nil, nil
		}
		return page, nil
	}
	c := testClient(tr)

	topics, err := c.ListTopics(context.Background(), "-1001")
	if err != nil {
		t.Fatalf("ListTopics() error = %v, probe failure must not fail discovery", err)
	}
	if len(topics) != 2 {
		t.Fatalf("len = %d, want 2", len(topics))
	}
	var flaky *Topic
	for i := range topics {
		if topics[i].ID == 1 {
			flaky = &topics[i]
		}
	}
	if flaky == nil {
		t.Fatal("topic 1 missing from results")
	}
	if flaky.ApproxMessageCount != 0 || flaky.CountIsApproximate {
		t.Errorf("flaky topic count = %d approx=%v, want partial 0/false",
			flaky.ApproxMessageCount, flaky.CountIsApproximate)
	}
}
