// Package fanout implements the Live-Event Fan-out bus (spec.md §4.6): a
// single in-process topic bus delivering lifecycle and output events to
// interested subscribers, typically HTTP clients attached over the
// websocket endpoint in internal/web.
package fanout

import (
	"sync"
	"sync/atomic"

	"github.com/scriptyard/scriptyard/internal/models"
)

// defaultMailboxCapacity bounds how many undelivered events a slow
// subscriber can accumulate before the bus starts dropping its oldest ones.
const defaultMailboxCapacity = 256

// Filter narrows which events a Subscription receives. A zero Filter (no
// ScriptID, no Types) matches everything.
type Filter struct {
	ScriptID *int64
	Types    map[models.EventType]bool
}

func (f Filter) matches(e models.Event) bool {
	if f.ScriptID != nil && *f.ScriptID != e.ScriptID {
		return false
	}
	if len(f.Types) > 0 && !f.Types[e.Type] {
		return false
	}
	return true
}

// Subscription is a live registration on the Bus. Events arrive on C; if the
// consumer falls behind, Lag reports how many events have been dropped for
// this subscription.
type Subscription struct {
	C    <-chan models.Event
	lag  *int64
	bus  *Bus
	id   uint64
	mu   sync.Mutex
	mbox chan models.Event
}

// Lag returns the number of events dropped for this subscription so far
// because its mailbox filled up.
func (s *Subscription) Lag() int64 {
	return atomic.LoadInt64(s.lag)
}

// Close unregisters the subscription and releases its mailbox. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Bus is the Live-Event Fan-out's single topic bus. The zero value is not
// usable; construct with New.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	subs      map[uint64]*subEntry
	mboxCap   int
}

type subEntry struct {
	filter Filter
	mbox   chan models.Event
	lag    *int64
}

// New creates an empty Bus. mboxCapacity of zero or less uses
// defaultMailboxCapacity.
func New(mboxCapacity int) *Bus {
	if mboxCapacity <= 0 {
		mboxCapacity = defaultMailboxCapacity
	}
	return &Bus{
		subs:    make(map[uint64]*subEntry),
		mboxCap: mboxCapacity,
	}
}

// Subscribe registers a new Subscription matching filter.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	mbox := make(chan models.Event, b.mboxCap)
	lag := new(int64)
	b.subs[id] = &subEntry{filter: filter, mbox: mbox, lag: lag}

	return &Subscription{
		C:    mbox,
		lag:  lag,
		bus:  b,
		id:   id,
		mbox: mbox,
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(entry.mbox)
	}
}

// Publish delivers e to every matching subscriber. A subscriber whose
// mailbox is full has its oldest undelivered event dropped to make room,
// per spec.md §4.6 — the subscription itself is never terminated by a slow
// consumer.
func (b *Bus) Publish(e models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, entry := range b.subs {
		if !entry.filter.matches(e) {
			continue
		}
		select {
		case entry.mbox <- e:
		default:
			// Mailbox full: drop the oldest queued event, then retry once.
			select {
			case <-entry.mbox:
				atomic.AddInt64(entry.lag, 1)
			default:
			}
			select {
			case entry.mbox <- e:
			default:
				// Another publisher drained concurrently with the drop
				// winning the race; count this event as dropped too.
				atomic.AddInt64(entry.lag, 1)
			}
		}
	}
}

// SubscriberCount reports the number of live subscriptions, for metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
