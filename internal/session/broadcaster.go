package session

import (
	"sync"

	"github.com/maauso/phraseloop/internal/playback"
)

// subscriberBuffer is how many events a subscriber may fall behind before
// events are dropped for it.
const subscriberBuffer = 64

// Subscriber receives scheduler events from a Broadcaster.
type Subscriber struct {
	C    chan playback.Event
	done chan struct{}
}

// Done is closed when the subscriber is removed or the broadcaster closes.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Broadcaster fans out scheduler events to any number of subscribers.
// Publish never blocks: a subscriber whose buffer is full misses events.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed
// broadcaster returns a subscriber that is already done.
func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{
		C:    make(chan playback.Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.done)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes s and signals it to stop. Unknown subscribers are ignored.
func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.done)
}

// Count returns the number of active subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Broadcaster) Publish(e playback.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.C <- e:
		default:
			// slow subscriber, drop the event
		}
	}
}

// Close removes all subscribers. Later Subscribe calls get a done subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.done)
		delete(b.subs, s)
	}
}
