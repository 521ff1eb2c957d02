package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"nutrilog/internal/cache"
	"nutrilog/internal/model"
)

const (
	// MaxAttempts is the number of automatic reconnects tried before the
	// manager gives up and waits for an explicit Connect.
	MaxAttempts = 5

	baseDelay = time.Second
	maxDelay  = 30 * time.Second

	DefaultSubscribeTimeout = 10 * time.Second
)

// ErrTimedOut is reported when the channel does not confirm its
// subscription, or goes silent, within the allowed time.
var ErrTimedOut = errors.New("realtime: channel timed out")

// Status is the connection state of the manager.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Reconnecting
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// State is a snapshot of the manager.
type State struct {
	Status Status
	// Attempts counts automatic reconnects since the last confirmed
	// subscription.
	Attempts int
	// GaveUp is set once MaxAttempts reconnects have failed.
	GaveUp bool
	// NextRetry is the delay of the scheduled reconnect, if any.
	NextRetry time.Duration
	LastErr   error
}

// Backoff returns the delay before reconnect attempt n (1-based).
func Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := baseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}

// Timer is a scheduled call that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler func(d time.Duration, f func()) Timer

func defaultScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Manager.
type Option func(*Manager)

// WithScheduler replaces the timer used for reconnect backoff.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.schedule = s }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithSubscribeTimeout bounds how long Connecting may take.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// Manager keeps one realtime channel open and applies its change events to
// the cache. It never reconnects on its own after giving up.
type Manager struct {
	dialer   Dialer
	handler  *Handler
	schedule Scheduler
	timeout  time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	ch     Channel
	cancel context.CancelFunc
	timer  Timer
	seq    uint64

	watchMu   sync.Mutex
	watchers  map[uint64]func(State)
	nextWatch uint64
	delivered uint64
}

// NewManager creates a disconnected manager that applies events to c.
func NewManager(dialer Dialer, c *cache.Cache, opts ...Option) *Manager {
	m := &Manager{
		dialer:   dialer,
		schedule: defaultScheduler,
		timeout:  DefaultSubscribeTimeout,
		log:      slog.Default(),
		watchers: make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.handler = NewHandler(c, m.log)
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch calls fn with the current state and again after every transition.
// The returned func stops the notifications.
func (m *Manager) Watch(fn func(State)) func() {
	m.watchMu.Lock()
	m.nextWatch++
	id := m.nextWatch
	m.watchers[id] = fn
	m.watchMu.Unlock()

	fn(m.State())

	return func() {
		m.watchMu.Lock()
		delete(m.watchers, id)
		m.watchMu.Unlock()
	}
}

// Connect opens the channel unless it is already open or opening. It resets
// the attempt counter, so it also retries after the manager gave up.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state.Status == Connecting || m.state.Status == Connected {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.state.Attempts = 0
	m.state.GaveUp = false
	snap := m.startLocked()
	m.mu.Unlock()

	m.emit(snap)
}

// Disconnect closes the channel and cancels any scheduled reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	m.closeLocked()
	changed := m.state.Status != Disconnected || m.state.NextRetry != 0
	m.state.Status = Disconnected
	m.state.NextRetry = 0
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if changed {
		m.emit(snap)
	}
}

type snapshot struct {
	state State
	seq   uint64
}

func (m *Manager) snapshotLocked() snapshot {
	m.seq++
	return snapshot{state: m.state, seq: m.seq}
}

// startLocked moves to Connecting and dials in the background.
func (m *Manager) startLocked() snapshot {
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	m.cancel = cancel
	m.state.Status = Connecting
	m.state.NextRetry = 0
	snap := m.snapshotLocked()

	go m.dial(ctx, gen)
	return snap
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	ch, err := m.dialer.Dial(ctx, model.Tables)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || isTimeout(err)) {
		err = ErrTimedOut
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if ch != nil {
			ch.Close()
		}
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if err != nil {
		snaps := m.failLocked(err)
		m.mu.Unlock()
		m.emit(snaps...)
		return
	}

	m.ch = ch
	m.state.Status = Connected
	m.state.Attempts = 0
	m.state.GaveUp = false
	m.state.LastErr = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info("realtime: subscribed", "tables", model.Tables)
	m.emit(snap)
	m.pump(gen, ch)
}

// pump handles events one at a time in arrival order until the channel ends.
func (m *Manager) pump(gen uint64, ch Channel) {
	for ev := range ch.Events() {
		m.handler.Handle(ev)
	}

	err := ch.Err()
	if err == nil {
		err = errors.New("realtime: channel closed")
	} else if isTimeout(err) {
		err = ErrTimedOut
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	snaps := m.failLocked(err)
	m.mu.Unlock()
	m.emit(snaps...)
}

// failLocked records a channel failure and schedules the next reconnect, or
// gives up once MaxAttempts have been used.
func (m *Manager) failLocked(err error) []snapshot {
	m.closeLocked()
	m.state.LastErr = err
	m.state.Status = Disconnected
	m.state.NextRetry = 0
	snaps := []snapshot{m.snapshotLocked()}

	if errors.Is(err, ErrTimedOut) {
		m.log.Warn("realtime: channel timed out", "attempts", m.state.Attempts)
	} else {
		m.log.Warn("realtime: channel error", "err", err, "attempts", m.state.Attempts)
	}

	if m.state.Attempts >= MaxAttempts {
		m.state.GaveUp = true
		m.log.Error("realtime: giving up after reconnect attempts", "attempts", m.state.Attempts)
		return append(snaps, m.snapshotLocked())
	}

	m.state.Attempts++
	delay := Backoff(m.state.Attempts)
	m.state.Status = Reconnecting
	m.state.NextRetry = delay

	gen := m.gen
	m.timer = m.schedule(delay, func() { m.retry(gen) })
	return append(snaps, m.snapshotLocked())
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state.Status != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	snap := m.startLocked()
	m.mu.Unlock()

	m.emit(snap)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) closeLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.ch != nil {
		if err := m.ch.Close(); err != nil {
			m.log.Debug("realtime: close channel", "err", err)
		}
		m.ch = nil
	}
}

// emit delivers snapshots to watchers in transition order. A snapshot older
// than one already delivered is skipped.
func (m *Manager) emit(snaps ...snapshot) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	for _, s := range snaps {
		if s.seq <= m.delivered {
			continue
		}
		m.delivered = s.seq
		for _, fn := range m.watchers {
			fn(s.state)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
