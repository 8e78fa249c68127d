package service

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"certmap/internal/domain"
)

// subscriberBuffer is how many undelivered events a subscriber may lag
// behind before it is evicted.
const subscriberBuffer = 16

// StatusBroadcaster fans out document status events to per-document
// subscribers. Publish never blocks.
type StatusBroadcaster struct {
	mu     sync.Mutex
	topics map[uuid.UUID]*topic
}

type topic struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan domain.StatusEvent
	closed bool
	// Until primed, events are held in backlog so the current state is
	// always delivered first.
	primed  bool
	backlog []domain.StatusEvent
}

// NewStatusBroadcaster creates an empty broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{topics: make(map[uuid.UUID]*topic)}
}

// Subscribe registers a subscriber for docID, then calls current for the
// document's present state. The returned channel yields that state first,
// followed by every event published from registration on, so an event raised
// while current runs is never lost. The channel is closed by the returned
// cancel func or when the subscriber falls too far behind.
func (b *StatusBroadcaster) Subscribe(docID uuid.UUID, current func() (domain.StatusEvent, error)) (<-chan domain.StatusEvent, func(), error) {
	sub := &subscriber{ch: make(chan domain.StatusEvent, subscriberBuffer)}

	b.mu.Lock()
	t, ok := b.topics[docID]
	if !ok {
		t = &topic{subs: make(map[*subscriber]struct{})}
		b.topics[docID] = t
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(docID, t, sub) })
	}

	ev, err := current()
	if err != nil {
		cancel()
		return nil, nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !sub.closed {
		sub.ch <- ev
		for _, queued := range sub.backlog {
			sub.ch <- queued
		}
		sub.primed, sub.backlog = true, nil
	}
	return sub.ch, cancel, nil
}

// Publish delivers ev to every subscriber of ev.DocumentID. A subscriber
// whose buffer is full is evicted.
func (b *StatusBroadcaster) Publish(ev domain.StatusEvent) {
	b.mu.Lock()
	t, ok := b.topics[ev.DocumentID]
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	evicted := 0
	for sub := range t.subs {
		if !sub.primed {
			// One slot stays reserved for the current state.
			if len(sub.backlog) < subscriberBuffer-1 {
				sub.backlog = append(sub.backlog, ev)
				continue
			}
			delete(t.subs, sub)
			sub.close()
			evicted++
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			delete(t.subs, sub)
			sub.close()
			evicted++
		}
	}
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if evicted > 0 {
		log.Printf("statusBroadcaster.Publish: evicted %d slow subscriber(s) for document %s", evicted, ev.DocumentID)
	}
	if empty {
		b.dropIfEmpty(ev.DocumentID, t)
	}
}

// SubscriberCount returns the number of live subscribers for docID.
func (b *StatusBroadcaster) SubscriberCount(docID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[docID]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (b *StatusBroadcaster) unsubscribe(docID uuid.UUID, t *topic, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.subs, sub)
	sub.close()
	if len(t.subs) == 0 && b.topics[docID] == t {
		delete(b.topics, docID)
	}
}

func (b *StatusBroadcaster) dropIfEmpty(docID uuid.UUID, t *topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.subs) == 0 && b.topics[docID] == t {
		delete(b.topics, docID)
	}
}

// close must be called with the owning topic's lock held.
func (s *subscriber) close() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
