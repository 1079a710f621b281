package homeworks

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// defaultSubscriberBuffer is the per-subscription event buffer size.
const defaultSubscriberBuffer = 64

// Filter selects which unsolicited events a subscription receives.
// A nil Filter matches everything, including unclassified lines.
type Filter func(Event) bool

// FilterFamily matches events from one command family (e.g. "OUTPUT").
func FilterFamily(family string) Filter {
	return func(e Event) bool { return e.Command == family }
}

// FilterIID matches events from one command family about one integration ID.
func FilterIID(family string, iid int) Filter {
	want := strconv.Itoa(iid)
	return func(e Event) bool { return e.Command == family && e.IID() == want }
}

// Subscription is a registered listener for unsolicited events.
//
// Events arrive on C. The channel is buffered; when the subscriber falls
// behind, the oldest queued event is dropped and counted as an overrun.
// The registry never blocks on a slow subscriber.
type Subscription struct {
	id     uuid.UUID
	filter Filter
	ch     chan Event
}

// ID returns the subscription's handle.
func (s *Subscription) ID() uuid.UUID { return s.id }

// C returns the event delivery channel. It is closed by Unsubscribe and
// on registry shutdown.
func (s *Subscription) C() <-chan Event { return s.ch }

// Registry fans unsolicited device events out to subscribers.
//
// The registry holds subscriptions without owning the listeners' lifecycle:
// removal is explicit via Unsubscribe. Delivery is fire-and-forget per
// listener with bounded buffering and a drop-oldest overflow policy, so a
// slow listener can neither block the correlator nor other listeners.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	subs     map[uuid.UUID]*Subscription
	closed   bool
	bufSize  int
	overruns atomic.Uint64
}

// NewRegistry creates a registry with the given per-subscriber buffer
// size. Zero or negative means the default.
func NewRegistry(bufSize int) *Registry {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	return &Registry{
		subs:    make(map[uuid.UUID]*Subscription),
		bufSize: bufSize,
	}
}

// Subscribe registers a listener for events matching the filter.
// A nil filter matches every event.
func (r *Registry) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		filter: filter,
		ch:     make(chan Event, r.bufSize),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(sub.ch)
		return sub
	}
	r.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call with an already-removed subscription.
func (r *Registry) Unsubscribe(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return
	}
	delete(r.subs, id)
	close(sub.ch)
}

// Publish delivers an event to every matching subscription.
//
// Delivery never blocks: when a subscriber's buffer is full, the oldest
// queued event is discarded to make room and the overrun counter is
// incremented. Publish is called from the correlator loop, so anything
// slower than a channel send here would stall reply matching.
func (r *Registry) Publish(e Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}

		select {
		case sub.ch <- e:
		default:
			// Buffer full: drop the oldest queued event, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
			r.overruns.Add(1)
		}
	}
}

// Overruns returns the total number of events dropped due to slow
// subscribers. Informational: overruns never fail the publishing path.
func (r *Registry) Overruns() uint64 {
	return r.overruns.Load()
}

// Count returns the number of active subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close removes all subscriptions and closes their channels.
// Further Subscribe calls return a subscription with a closed channel.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for id, sub := range r.subs {
		delete(r.subs, id)
		close(sub.ch)
	}
}
