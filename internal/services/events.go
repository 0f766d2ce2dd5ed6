package services

import (
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/log"
)

type EventKind string

const (
	EventTransactionAdded   EventKind = "transaction.added"
	EventTransactionUpdated EventKind = "transaction.updated"
	EventTransactionDeleted EventKind = "transaction.deleted"
	EventCategoryAdded      EventKind = "category.added"
	EventCategoryUpdated    EventKind = "category.updated"
	EventCategoryDeleted    EventKind = "category.deleted"
	EventRecategorized      EventKind = "transactions.recategorized"
	EventReconciled         EventKind = "ledger.reconciled"
)

const defaultSubscriberBuffer = 64

// Event announces one applied mutation. Categories holds the state of every
// touched category that still exists after the mutation.
type Event struct {
	Kind           EventKind
	Version        uint64
	TransactionIDs []string
	CategoryIDs    []string
	Categories     []core.Category
	At             time.Time
}

// Broker fans events out to subscriber channels. Slow subscribers lose
// events rather than stall writers; Version lets them notice the gap.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
	logger *log.Logger
}

func NewBroker(logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.Discard()
	}
	return &Broker{subs: make(map[int]chan Event), logger: logger}
}

// Subscribe returns a channel of future events and a function that removes
// the subscription and closes the channel.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Dropping event for slow subscriber",
				"subscriber", id,
				"kind", string(ev.Kind),
				log.FieldVersion, ev.Version)
		}
	}
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
