package bus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("extract.", 4)
	defer unsub()

	b.Publish("extract.chat_done", "Team")
	b.Publish("sink.batch", 10)

	select {
	case evt := <-ch:
		if evt.Kind != "extract.chat_done" {
			t.Errorf("Kind = %q, want %q", evt.Kind, "extract.chat_done")
		}
		if evt.Payload.(string) != "Team" {
			t.Errorf("Payload = %v, want Team", evt.Payload)
		}
	default:
		t.Fatal("expected event on channel")
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q for non-matching namespace", evt.Kind)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	unsub()

	b.Publish("extract.start", nil)
	select {
	case evt := <-ch:
		t.Fatalf("received event %q after unsubscribe", evt.Kind)
	default:
	}
}

func TestSequenceNumbers(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 4)
	defer unsub()

	b.Publish("a", nil)
	b.Publish("b", nil)

	first, second := <-ch, <-ch
	if second.Seq != first.Seq+1 {
		t.Errorf("Seq = %d then %d, want consecutive", first.Seq, second.Seq)
	}
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("extract.", 1)
	defer unsub()

	// Second publish must not block even though the buffer is full.
	b.Publish("extract.a", nil)
	b.Publish("extract.b", nil)
}
