package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/internal/cache"
	"nutrilog/internal/model"
)

type fakeChannel struct {
	events chan model.ChangeEvent
	err    error
	once   sync.Once
	closed atomic.Bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan model.ChangeEvent)}
}

func (c *fakeChannel) Events() <-chan model.ChangeEvent { return c.events }
func (c *fakeChannel) Err() error                       { return c.err }

func (c *fakeChannel) Close() error {
	c.closed.Store(true)
	c.once.Do(func() { close(c.events) })
	return nil
}

func (c *fakeChannel) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.events)
	})
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	next  func(ctx context.Context) (Channel, error)
}

func (d *fakeDialer) Dial(ctx context.Context, tables []string) (Channel, error) {
	d.mu.Lock()
	d.dials++
	next := d.next
	d.mu.Unlock()
	return next(ctx)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) set(next func(ctx context.Context) (Channel, error)) {
	d.mu.Lock()
	d.next = next
	d.mu.Unlock()
}

func refuse(ctx context.Context) (Channel, error) {
	return nil, errors.New("connection refused")
}

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) schedule(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fire: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.timers))
	for i, t := range s.timers {
		out[i] = t.delay
	}
	return out
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1]
}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	sched  *fakeScheduler
	cache  *cache.Cache
	states chan State
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	c, err := cache.New()
	require.NoError(t, err)

	h := &harness{
		dialer: &fakeDialer{next: refuse},
		sched:  &fakeScheduler{},
		cache:  c,
		states: make(chan State, 256),
	}
	opts = append([]Option{WithScheduler(h.sched.schedule)}, opts...)
	h.m = NewManager(h.dialer, c, opts...)
	unwatch := h.m.Watch(func(s State) { h.states <- s })
	t.Cleanup(func() {
		unwatch()
		h.m.Disconnect()
	})
	<-h.states
	return h
}

func (h *harness) waitFor(t *testing.T, desc string, pred func(State) bool) State {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.states:
			if pred(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; current state %+v", desc, h.m.State())
		}
	}
}

func reconnecting(attempts int) func(State) bool {
	return func(s State) bool { return s.Status == Reconnecting && s.Attempts == attempts }
}

func TestBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, Backoff(i+1), "attempt %d", i+1)
	}
}

func TestReconnectBacksOffThenGivesUp(t *testing.T) {
	h := newHarness(t)

	h.m.Connect()
	h.waitFor(t, "first reconnect", reconnecting(1))

	for n := 2; n <= MaxAttempts; n++ {
		h.sched.last().fire()
		h.waitFor(t, "reconnect", reconnecting(n))
	}
	h.sched.last().fire()
	s := h.waitFor(t, "give up", func(s State) bool { return s.GaveUp })

	assert.Equal(t, Disconnected, s.Status)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, h.sched.delays())
	assert.Equal(t, MaxAttempts+1, h.dialer.count(), "initial connect plus five reconnects")

	// an explicit connect starts over
	h.m.Connect()
	s = h.waitFor(t, "reconnect after explicit connect", reconnecting(1))
	assert.False(t, s.GaveUp)
	assert.Equal(t, time.Second, s.NextRetry)
}

func TestConnectedResetsAttempts(t *testing.T) {
	h := newHarness(t)

	h.m.Connect()
	h.waitFor(t, "first reconnect", reconnecting(1))
	h.sched.last().fire()
	h.waitFor(t, "second reconnect", reconnecting(2))

	ch := newFakeChannel()
	h.dialer.set(func(ctx context.Context) (Channel, error) { return ch, nil })
	h.sched.last().fire()
	s := h.waitFor(t, "connected", func(s State) bool { return s.Status == Connected })
	assert.Zero(t, s.Attempts)

	h.dialer.set(refuse)
	ch.fail(errors.New("socket closed"))
	s = h.waitFor(t, "reconnect after drop", reconnecting(1))
	assert.EqualError(t, s.LastErr, "socket closed")
}

func TestSubscribeTimeoutIsDistinguished(t *testing.T) {
	h := newHarness(t, WithSubscribeTimeout(10*time.Millisecond))
	h.dialer.set(func(ctx context.Context) (Channel, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	h.m.Connect()
	s := h.waitFor(t, "reconnect after timeout", reconnecting(1))
	assert.ErrorIs(t, s.LastErr, ErrTimedOut)
}

func TestDisconnectCancelsScheduledReconnect(t *testing.T) {
	h := newHarness(t)

	h.m.Connect()
	h.waitFor(t, "reconnect", reconnecting(1))
	timer := h.sched.last()

	h.m.Disconnect()
	h.waitFor(t, "disconnected", func(s State) bool { return s.Status == Disconnected })
	assert.True(t, timer.stopped.Load())

	// a timer that already fired past its cancellation does nothing
	timer.fire()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.count())
	assert.Equal(t, Disconnected, h.m.State().Status)
}

func TestDisconnectClosesChannel(t *testing.T) {
	h := newHarness(t)
	ch := newFakeChannel()
	h.dialer.set(func(ctx context.Context) (Channel, error) { return ch, nil })

	h.m.Connect()
	h.waitFor(t, "connected", func(s State) bool { return s.Status == Connected })

	h.m.Connect()
	assert.Equal(t, 1, h.dialer.count(), "connect while connected is a no-op")

	h.m.Disconnect()
	assert.True(t, ch.closed.Load())
	s := h.waitFor(t, "disconnected", func(s State) bool { return s.Status == Disconnected })
	assert.False(t, s.GaveUp)
	assert.Len(t, h.sched.delays(), 0, "no reconnect after an explicit disconnect")
}

func TestEventsAreAppliedInOrder(t *testing.T) {
	h := newHarness(t)
	ch := newFakeChannel()
	h.dialer.set(func(ctx context.Context) (Channel, error) { return ch, nil })
	h.cache.Set(cache.Meals(), []model.MealRecord{})

	h.m.Connect()
	h.waitFor(t, "connected", func(s State) bool { return s.Status == Connected })

	for _, id := range []int64{1, 2, 3} {
		ev, err := model.NewChangeEvent(model.TableMealLogs, model.EventInsert, model.MealRecord{ID: id}, nil)
		require.NoError(t, err)
		ch.events <- ev
	}
	ev, err := model.NewChangeEvent(model.TableMealLogs, model.EventDelete, nil, model.MealRecord{ID: 2})
	require.NoError(t, err)
	ch.events <- ev

	// an unbuffered channel means the previous event has been picked up; a
	// final no-op event flushes the last one through the handler
	ch.events <- model.ChangeEvent{Table: "unknown"}

	v, _ := h.cache.Peek(cache.Meals())
	list := v.([]model.MealRecord)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].ID)
	assert.Equal(t, int64(1), list[1].ID)
}
