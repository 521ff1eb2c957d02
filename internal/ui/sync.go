package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"nutrilog/internal/cache"
	"nutrilog/internal/realtime"
)

// realtimeStateMsg carries the latest connection state.
type realtimeStateMsg realtime.State

// cacheChangedMsg reports that a watched cache key changed.
type cacheChangedMsg struct{}

// syncBridge turns realtime status callbacks and cache notifications into
// Bubble Tea messages. Callbacks never block: only the latest state and a
// single pending change are kept.
type syncBridge struct {
	states  chan realtime.State
	changes chan struct{}

	mu      sync.Mutex
	watches map[string][]func()
	stopRT  func()
}

func newSyncBridge(rt *realtime.Manager) *syncBridge {
	b := &syncBridge{
		states:  make(chan realtime.State, 1),
		changes: make(chan struct{}, 1),
		watches: make(map[string][]func()),
	}
	if rt != nil {
		b.stopRT = rt.Watch(func(s realtime.State) { offerLatest(b.states, s) })
	}
	return b
}

// watch replaces the cache subscriptions registered under group.
func (b *syncBridge) watch(c *cache.Cache, group string, keys ...cache.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, stop := range b.watches[group] {
		stop()
	}
	stops := make([]func(), 0, len(keys))
	for _, k := range keys {
		stops = append(stops, c.Subscribe(k, func(cache.Notification) {
			select {
			case b.changes <- struct{}{}:
			default:
			}
		}))
	}
	b.watches[group] = stops
}

func (b *syncBridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, stops := range b.watches {
		for _, stop := range stops {
			stop()
		}
	}
	b.watches = map[string][]func(){}
	if b.stopRT != nil {
		b.stopRT()
		b.stopRT = nil
	}
}

func (b *syncBridge) waitForState() tea.Cmd {
	return func() tea.Msg {
		return realtimeStateMsg(<-b.states)
	}
}

func (b *syncBridge) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-b.changes
		return cacheChangedMsg{}
	}
}

// offerLatest stores v in a one-slot channel, replacing an unread value.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
