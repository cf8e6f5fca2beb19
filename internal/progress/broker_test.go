package progress

import (
	"fmt"
	"testing"
)

func TestBrokerTopicRouting(t *testing.T) {
	b := NewBroker()
	jobA := b.Subscribe("job-a")
	jobB := b.Subscribe("job-b")
	defer b.Unsubscribe(jobA)
	defer b.Unsubscribe(jobB)

	b.Publish("job-a", EventPageCrawled, map[string]any{"url": "https://example.com/"})

	select {
	case ev := <-jobA.C:
		if ev.Topic != "job-a" || ev.Type != EventPageCrawled {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("topic subscriber did not receive its event")
	}

	select {
	case ev := <-jobB.C:
		t.Fatalf("other topic received %+v", ev)
	default:
	}
}

func TestBrokerWildcardReceivesEverything(t *testing.T) {
	b := NewBroker()
	all := b.Subscribe("")
	defer b.Unsubscribe(all)

	b.Publish("job-a", EventJobStatus, nil)
	b.Publish("job-b", EventSnippets, nil)

	for _, wantTopic := range []string{"job-a", "job-b"} {
		select {
		case ev := <-all.C:
			if ev.Topic != wantTopic {
				t.Errorf("event topic = %q, want %q", ev.Topic, wantTopic)
			}
		default:
			t.Fatalf("wildcard subscriber missed event for %s", wantTopic)
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("job-a")
	b.Unsubscribe(sub)

	if _, open := <-sub.C; open {
		t.Fatal("channel must be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish("job-a", EventJobStatus, nil)
}

func TestBrokerSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("job-a")
	defer b.Unsubscribe(sub)

	total := subscriberQueue + 10
	for i := 0; i < total; i++ {
		b.Publish("job-a", EventPageCrawled, map[string]any{"n": i})
	}

	// The queue holds the newest events; a marker reports the loss once
	// there is room again.
	for i := 0; i < subscriberQueue; i++ {
		<-sub.C
	}
	b.Publish("job-a", EventJobStatus, nil)

	ev := <-sub.C
	if ev.Type != EventDropped {
		t.Fatalf("expected drop marker first, got %s", ev.Type)
	}
	n, ok := ev.Data["dropped"].(int)
	if !ok || n <= 0 {
		t.Errorf("drop marker must carry a positive count, got %v", ev.Data["dropped"])
	}

	ev = <-sub.C
	if ev.Type != EventJobStatus {
		t.Errorf("expected the fresh event after the marker, got %s", ev.Type)
	}
}

func TestBrokerMultipleSubscribersSameTopic(t *testing.T) {
	b := NewBroker()
	var subs []*Subscriber
	for i := 0; i < 3; i++ {
		subs = append(subs, b.Subscribe("shared"))
	}
	defer func() {
		for _, s := range subs {
			b.Unsubscribe(s)
		}
	}()

	b.Publish("shared", EventRegenProgress, map[string]any{"done": 5})

	for i, s := range subs {
		select {
		case ev := <-s.C:
			if ev.Type != EventRegenProgress {
				t.Errorf("subscriber %d got %s", i, ev.Type)
			}
		default:
			t.Fatalf("subscriber %d missed the event", i)
		}
	}
}

func TestBrokerUnsubscribeLeavesSiblings(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("shared")
	c := b.Subscribe("shared")
	b.Unsubscribe(a)

	b.Publish("shared", EventJobStatus, nil)
	select {
	case ev := <-c.C:
		if ev.Type != EventJobStatus {
			t.Errorf("unexpected event %s", ev.Type)
		}
	default:
		t.Fatal("remaining subscriber must keep receiving")
	}
	b.Unsubscribe(c)
}

func TestEventDataRoundTrip(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("job-a")
	defer b.Unsubscribe(sub)

	data := map[string]any{"pages": 3, "url": fmt.Sprintf("https://example.com/%d", 3)}
	b.Publish("job-a", EventPageCrawled, data)

	ev := <-sub.C
	if ev.Data["pages"] != 3 || ev.Data["url"] != "https://example.com/3" {
		t.Errorf("event data mangled: %+v", ev.Data)
	}
	if ev.Time.IsZero() {
		t.Error("event time must be stamped")
	}
}
