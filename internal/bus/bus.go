package bus

import (
	"strings"
	"sync"
	"time"
)

// Event is one pipeline progress notification. Seq increases monotonically
// per bus, so a lagging consumer can detect dropped events.
type Event struct {
	Seq       uint64
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Bus fans events out to namespace-filtered subscribers. Delivery is
// best-effort: a subscriber whose buffer is full misses the event rather
// than stalling the publisher. The coordinator publishes extract.* events;
// the CLI subscribes to print progress and per-chat failures.
type Bus struct {
	mu     sync.Mutex
	seq    uint64
	nextID int
	subs   []*subscriber
}

type subscriber struct {
	id        int
	namespace string
	ch        chan Event
}

func (s *subscriber) wants(kind string) bool {
	return strings.HasPrefix(kind, s.namespace)
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers the event to every subscriber whose namespace is a prefix
// of kind.
func (b *Bus) Publish(kind string, payload any) {
	b.mu.Lock()
	b.seq++
	evt := Event{Seq: b.seq, Kind: kind, Timestamp: time.Now(), Payload: payload}
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if !s.wants(kind) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Full buffer: drop instead of stalling the pipeline.
		}
	}
}

// Subscribe registers interest in a kind prefix and returns the delivery
// channel plus an unsubscribe function. bufSize bounds how far the consumer
// may lag before events start dropping.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	s := &subscriber{namespace: namespace, ch: make(chan Event, bufSize)}
	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return s.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.subs {
			if cur.id == s.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}
