package raffle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/types"
)

// EventType identifies the kind of event published on the feed.
type EventType string

// The three durable notifications a raffle emits. Per round the order
// is: EventEntryRecorded once per entry, EventDrawStarted once, then
// EventWinnerResolved once.
const (
	EventEntryRecorded  EventType = "raffle.entryRecorded"
	EventDrawStarted    EventType = "raffle.drawStarted"
	EventWinnerResolved EventType = "raffle.winnerResolved"
)

// EntryRecorded is the payload of EventEntryRecorded.
type EntryRecorded struct {
	Player     types.Address
	Payment    *uint256.Int
	NumPlayers int // player count after this entry
}

// DrawStarted is the payload of EventDrawStarted.
type DrawStarted struct {
	RequestID types.Hash
}

// WinnerResolved is the payload of EventWinnerResolved.
type WinnerResolved struct {
	Winner types.Address
	Payout *uint256.Int
}

// Event is a message published on the feed.
type Event struct {
	Type      EventType
	Data      interface{}
	Timestamp time.Time
}

// Subscription represents a subscription to one or more event types on
// a Feed.
type Subscription struct {
	id     uint64
	types  map[EventType]struct{}
	ch     chan Event
	feed   *Feed
	closed atomic.Bool
}

// Chan returns a read-only channel receiving matching events.
func (s *Subscription) Chan() <-chan Event {
	return s.ch
}

// Unsubscribe removes this subscription from the feed and closes the
// underlying channel. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s.feed != nil {
		s.feed.Unsubscribe(s)
	}
}

// Feed is the publish/subscribe channel for raffle notifications. The
// raffle publishes while holding its state lock, so subscribers must
// drain their channel promptly; channels are buffered to absorb bursts.
// All methods are safe for concurrent use.
type Feed struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
}

// NewFeed creates a Feed. bufferSize controls the channel buffer for
// each subscription; values below 1 are raised to 1.
func NewFeed(bufferSize int) *Feed {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Feed{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe creates a subscription receiving events matching any of
// the given types. With no types it receives every event.
func (f *Feed) Subscribe(eventTypes ...EventType) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	typeSet := make(map[EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		typeSet[t] = struct{}{}
	}

	sub := &Subscription{
		id:    f.nextID,
		types: typeSet,
		ch:    make(chan Event, f.bufferSize),
		feed:  f,
	}
	f.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the given subscription and closes its channel.
// Safe to call multiple times or with nil.
func (f *Feed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}

	f.mu.Lock()
	delete(f.subs, sub.id)
	f.mu.Unlock()

	close(sub.ch)
}

// publish delivers an event to all matching subscribers. A subscriber
// whose buffer is full loses the event rather than blocking the raffle.
func (f *Feed) publish(eventType EventType, data interface{}) {
	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.closed.Load() {
			continue
		}
		if len(sub.types) > 0 {
			if _, ok := sub.types[eventType]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- event:
		default:
			// Drop for this subscriber (channel full).
		}
	}
}

// SubscriberCount returns the number of active subscriptions matching
// the given event type.
func (f *Feed) SubscriberCount(eventType EventType) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	count := 0
	for _, sub := range f.subs {
		if sub.closed.Load() {
			continue
		}
		if len(sub.types) == 0 {
			count++
			continue
		}
		if _, ok := sub.types[eventType]; ok {
			count++
		}
	}
	return count
}
