package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/agentfleet/watchtower/pkg/metrics"
)

// Broadcaster fans published messages out to topic subscribers.
//
// Publish is non-blocking for the caller: each subscriber owns a
// bounded queue, and a subscriber that lets its queue fill is dropped
// and disconnected rather than allowed to stall anyone else. One stuck
// dashboard tab cannot slow the event router or its peers.
type Broadcaster struct {
	queueSize int
	rec       *metrics.Recorder

	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	subs   map[*Subscriber]map[string]struct{}
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to
// queueSize messages each.
func NewBroadcaster(queueSize int, rec *metrics.Recorder) *Broadcaster {
	return &Broadcaster{
		queueSize: queueSize,
		rec:       rec,
		topics:    make(map[string]map[*Subscriber]struct{}),
		subs:      make(map[*Subscriber]map[string]struct{}),
	}
}

// Register creates a new subscriber with no topic subscriptions.
func (b *Broadcaster) Register() *Subscriber {
	s := newSubscriber(b.queueSize)
	b.mu.Lock()
	b.subs[s] = make(map[string]struct{})
	b.mu.Unlock()
	b.rec.SubscriberConnected()
	return s
}

// Subscribe adds the subscriber to a topic. A removed subscriber is a
// no-op; the connection is already on its way down.
func (b *Broadcaster) Subscribe(s *Subscriber, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics, ok := b.subs[s]
	if !ok {
		return
	}
	topics[topic] = struct{}{}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*Subscriber]struct{})
	}
	b.topics[topic][s] = struct{}{}
}

// Unsubscribe removes the subscriber from a topic.
func (b *Broadcaster) Unsubscribe(s *Subscriber, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachTopicLocked(s, topic)
	if topics, ok := b.subs[s]; ok {
		delete(topics, topic)
	}
}

// Remove detaches the subscriber from every topic and signals its
// writer goroutine. Safe to call more than once.
func (b *Broadcaster) Remove(s *Subscriber) {
	if !b.detach(s) {
		return
	}
	s.close()
	b.rec.SubscriberDisconnected()
}

// Publish marshals payload once and enqueues it for every subscriber of
// the topic. Subscribers whose queue is full are dropped and
// disconnected (slow-consumer policy).
func (b *Broadcaster) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal broadcast payload", "topic", topic, "error", err)
		return
	}
	b.publishRaw(topic, data)
}

func (b *Broadcaster) publishRaw(topic string, data []byte) {
	b.mu.RLock()
	set := b.topics[topic]
	targets := make([]*Subscriber, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	b.rec.Broadcast(TopicScope(topic))

	for _, s := range targets {
		if !s.enqueue(data) {
			b.dropSlow(s, topic)
		}
	}
}

// dropSlow applies the drop-and-disconnect policy: remove the
// subscriber from all topics so no further messages are enqueued, flush
// whatever is pending, attempt a terminal overflow frame, and signal
// the writer to close the connection.
func (b *Broadcaster) dropSlow(s *Subscriber, topic string) {
	if !b.detach(s) {
		return
	}

	s.flush()
	if frame, err := json.Marshal(ControlFrame{
		Type:    TypeOverflow,
		Message: "send queue overflow; subscriber disconnected",
	}); err == nil {
		s.enqueue(frame)
	}
	s.close()

	b.rec.SlowConsumerDropped()
	b.rec.SubscriberDisconnected()
	slog.Warn("Dropped slow subscriber", "subscriber_id", s.ID, "topic", topic)
}

// detach removes the subscriber from the maps. Returns false when the
// subscriber was already removed, so Remove and dropSlow can race
// without double-counting.
func (b *Broadcaster) detach(s *Subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics, ok := b.subs[s]
	if !ok {
		return false
	}
	for topic := range topics {
		b.detachTopicLocked(s, topic)
	}
	delete(b.subs, s)
	return true
}

func (b *Broadcaster) detachTopicLocked(s *Subscriber, topic string) {
	if set, ok := b.topics[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.topics, topic)
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// topicSubscribers reports how many subscribers a topic has. Tests poll
// this instead of sleeping.
func (b *Broadcaster) topicSubscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
