package progress

import (
	"sync"
	"time"
)

// Event is one progress update published under a topic (usually a job
// or source ID).
type Event struct {
	Topic string         `json:"topic"`
	Type  string         `json:"type"`
	Data  map[string]any `json:"data,omitempty"`
	Time  time.Time      `json:"time"`
}

// Event types emitted by the crawl pipeline and the regenerator.
const (
	EventJobStatus     = "job_status"
	EventPageCrawled   = "page_crawled"
	EventPageSkipped   = "page_skipped"
	EventPageFailed    = "page_failed"
	EventSnippets      = "snippets_extracted"
	EventRegenProgress = "regenerate_progress"
	EventDropped       = "events_dropped"
)

const subscriberQueue = 256

// Subscriber receives events for one topic. Close via Broker.Unsubscribe.
type Subscriber struct {
	C chan Event

	topic   string
	mu      sync.Mutex
	dropped int
}

// Broker fans events out to per-topic subscribers. Publishing never
// blocks: a subscriber that cannot keep up loses its oldest events and
// is told how many went missing.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]*Subscriber
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*Subscriber)}
}

// Subscribe registers for events on one topic. The empty topic receives
// every event.
func (b *Broker) Subscribe(topic string) *Subscriber {
	sub := &Subscriber{
		C:     make(chan Event, subscriberQueue),
		topic: topic,
	}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
	b.mu.Unlock()
	close(sub.C)
}

// Publish delivers an event to the topic's subscribers and wildcard
// subscribers.
func (b *Broker) Publish(topic, eventType string, data map[string]any) {
	ev := Event{Topic: topic, Type: eventType, Data: data, Time: time.Now()}

	b.mu.RLock()
	targets := make([]*Subscriber, 0, len(b.subs[topic])+len(b.subs[""]))
	targets = append(targets, b.subs[topic]...)
	if topic != "" {
		targets = append(targets, b.subs[""]...)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(ev)
	}
}

// deliver enqueues without blocking, evicting the oldest event when the
// queue is full and accounting for the loss.
func (s *Subscriber) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped > 0 {
		marker := Event{
			Topic: s.topic,
			Type:  EventDropped,
			Data:  map[string]any{"dropped": s.dropped},
			Time:  time.Now(),
		}
		select {
		case s.C <- marker:
			s.dropped = 0
		default:
		}
	}

	select {
	case s.C <- ev:
		return
	default:
	}

	// Queue full: evict one, count the loss, try again.
	select {
	case <-s.C:
		s.dropped++
	default:
	}
	select {
	case s.C <- ev:
	default:
		s.dropped++
	}
}
