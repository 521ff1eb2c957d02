package store

import (
	"log/slog"
	"sync"

	"nutrilog/internal/model"
)

// DefaultBuffer is the number of events a subscriber may fall behind before
// it is dropped.
const DefaultBuffer = 64

// Subscription receives the change events of the tables it asked for. C is
// closed when the subscription is cancelled or dropped for falling behind.
type Subscription struct {
	C <-chan model.ChangeEvent

	ch     chan model.ChangeEvent
	tables map[string]bool
	once   sync.Once
}

func (s *Subscription) wants(table string) bool {
	return len(s.tables) == 0 || s.tables[table]
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Feed fans change events out to subscribers.
type Feed struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	log  *slog.Logger
}

// NewFeed creates a feed with no subscribers.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{subs: make(map[*Subscription]struct{}), log: logger}
}

// Subscribe registers interest in tables. No tables means all of them.
func (f *Feed) Subscribe(tables []string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan model.ChangeEvent, buffer)
	s := &Subscription{C: ch, ch: ch, tables: make(map[string]bool, len(tables))}
	for _, t := range tables {
		s.tables[t] = true
	}

	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. It is safe to call more than
// once.
func (f *Feed) Unsubscribe(s *Subscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
	s.close()
}

// Publish delivers ev to every interested subscriber without blocking.
// Subscribers whose buffer is full are dropped.
func (f *Feed) Publish(ev model.ChangeEvent) {
	var slow []*Subscription

	f.mu.RLock()
	for s := range f.subs {
		if !s.wants(ev.Table) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			slow = append(slow, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range slow {
		f.log.Warn("feed: dropping slow subscriber", "table", ev.Table)
		f.Unsubscribe(s)
	}
}

// Len returns the number of live subscribers.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
