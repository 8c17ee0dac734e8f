// Package eventbus is the process-local topic pub/sub described in spec
// §4.3: many subscribers per topic, lossless per-subscriber fan-out, no
// persistence, no cross-subscriber ordering guarantee beyond per-topic
// publish order. It is the low-latency half of the Emitter's dual-write;
// the Event Log (internal/eventlog) is the durable half.
package eventbus

import "sync"

// Message is what publish sends and subscribe receives. The Emitter fills
// Timestamp from the Event Log's assigned timestamp so replay (from the
// log) and tail (from the bus) agree on ordering, per §4.5.
type Message struct {
	Type      string
	JobID     string
	Payload   []byte
	Timestamp int64 // unix nanoseconds
}

// subscriberQueueSize is the channel buffer given to each subscriber.
// Buffered rather than unbounded-in-memory: a slow subscriber backs up to
// this depth before Publish starts blocking on it, which keeps one stalled
// stream client from holding the bus mutex indefinitely. In practice the
// Stream Endpoint drains its queue continuously, so this is headroom, not
// a hard cap on history (history comes from the Event Log, not the bus).
const subscriberQueueSize = 1024

// Bus is a topic-keyed, in-process publish/subscribe hub.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	ch chan Message
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[*subscription]struct{})}
}

// Subscription is a live registration on a topic. Call Unsubscribe when the
// caller is done; it is safe to call more than once.
type Subscription struct {
	bus   *Bus
	topic string
	sub   *subscription
	once  sync.Once
}

// Messages returns the channel subscribers should range over. It is closed
// when Unsubscribe is called.
func (s *Subscription) Messages() <-chan Message {
	return s.sub.ch
}

// Unsubscribe removes the subscription from its topic and closes its
// channel. Any messages already queued remain readable until drained.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if set, ok := s.bus.subs[s.topic]; ok {
			delete(set, s.sub)
			if len(set) == 0 {
				delete(s.bus.subs, s.topic)
			}
		}
		s.bus.mu.Unlock()
		close(s.sub.ch)
	})
}

// Subscribe registers a new subscriber on topic and returns a handle to its
// message stream.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &subscription{ch: make(chan Message, subscriberQueueSize)}

	b.mu.Lock()
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[topic] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	return &Subscription{bus: b, topic: topic, sub: sub}
}

// Publish enqueues msg onto every subscriber currently registered on topic.
// A full queue blocks Publish on that subscriber's send until it drains,
// with no timeout (§4.3 promises a lossless queue, not a best-effort one).
// Publish takes the bus mutex only long enough to snapshot the subscriber
// set, so publishes to other topics are not held up by one slow subscriber.
func (b *Bus) Publish(topic string, msg Message) {
	b.mu.Lock()
	set := b.subs[topic]
	subs := make([]*subscription, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.ch <- msg
	}
}

// SubscriberCount reports how many subscribers are currently registered on
// topic. Exposed for tests and for diagnostics (e.g. a /debug endpoint),
// not used by any core control-flow decision.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
