package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is the number of keys kept before the least recently used
// entry is evicted.
const DefaultCapacity = 512

// Fetcher loads the authoritative value of a key.
type Fetcher func(ctx context.Context) (any, error)

// NotificationType says what happened to a key.
type NotificationType int

const (
	Updated NotificationType = iota
	Invalidated
	RolledBack
	Removed
)

func (t NotificationType) String() string {
	switch t {
	case Updated:
		return "updated"
	case Invalidated:
		return "invalidated"
	case RolledBack:
		return "rolled back"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Notification is delivered to key subscribers.
type Notification struct {
	Key  Key
	Type NotificationType
}

// Listener receives notifications for a subscribed key. It runs on the
// goroutine that changed the key and must not block.
type Listener func(Notification)

type entry struct {
	value     any
	stale     bool
	updatedAt time.Time
}

// fetchState tracks a fetch in flight so writes and invalidations that land
// while it runs are not lost when it completes.
type fetchState struct {
	invalidated bool
	overwritten bool
}

// Cache is an in-memory keyed query cache with coalesced reads and
// optimistic mutations. Values are treated as immutable: patches must return
// new values rather than modify the old ones in place.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[Key, *entry]
	fetching  map[Key]*fetchState
	locks     map[Key]chan struct{}
	listeners map[Key]map[uint64]Listener
	nextID    uint64

	group singleflight.Group
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	capacity int
	logger   *slog.Logger
}

// WithCapacity bounds the number of cached keys.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an empty cache.
func New(opts ...Option) (*Cache, error) {
	o := options{capacity: DefaultCapacity, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := lru.New[Key, *entry](o.capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &Cache{
		entries:   entries,
		fetching:  make(map[Key]*fetchState),
		locks:     make(map[Key]chan struct{}),
		listeners: make(map[Key]map[uint64]Listener),
		log:       o.logger,
		now:       time.Now,
	}, nil
}

// Read returns the cached value of key if it is fresh. Otherwise it calls
// fetch, sharing one call among concurrent readers of the same key. While a
// mutation holds key, its optimistic value is served without fetching.
func (c *Cache) Read(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries.Get(key); ok && (!e.stale || c.lockedLocked(key)) {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.load(fetchCtx, key, fetch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Cache) load(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	state := &fetchState{}
	c.mu.Lock()
	c.fetching[key] = state
	c.mu.Unlock()

	v, err := fetch(ctx)

	c.mu.Lock()
	delete(c.fetching, key)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	stored := false
	if !state.overwritten && !c.lockedLocked(key) {
		c.entries.Add(key, &entry{value: v, stale: state.invalidated, updatedAt: c.now()})
		stored = true
	}
	c.mu.Unlock()

	if stored {
		c.notify(key, Updated)
	} else {
		c.log.Debug("cache: discarded superseded fetch", "key", key.String())
	}
	return v, nil
}

// Peek returns the cached value of key regardless of freshness.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Fresh reports whether key holds a value that does not need refetching.
func (c *Cache) Fresh(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	return ok && !e.stale
}

// Set stores a fresh value for key.
func (c *Cache) Set(key Key, v any) {
	c.mu.Lock()
	c.writeLocked(key, v)
	c.mu.Unlock()
	c.notify(key, Updated)
}

// Update replaces the value of key with fn(old). old is nil when key is not
// cached.
func (c *Cache) Update(key Key, fn func(old any) any) {
	c.mu.Lock()
	var old any
	if e, ok := c.entries.Peek(key); ok {
		old = e.value
	}
	c.writeLocked(key, fn(old))
	c.mu.Unlock()
	c.notify(key, Updated)
}

// UpdateIfCached is Update for a key that is already cached. It reports
// whether key was present; absent keys are left absent.
func (c *Cache) UpdateIfCached(key Key, fn func(old any) any) bool {
	c.mu.Lock()
	e, ok := c.entries.Peek(key)
	if !ok {
		c.mu.Unlock()
		return false
	}
	if fs, fetching := c.fetching[key]; fetching {
		fs.overwritten = true
	}
	c.entries.Add(key, &entry{value: fn(e.value), stale: e.stale, updatedAt: c.now()})
	c.mu.Unlock()
	c.notify(key, Updated)
	return true
}

func (c *Cache) writeLocked(key Key, v any) {
	if fs, ok := c.fetching[key]; ok {
		fs.overwritten = true
	}
	c.entries.Add(key, &entry{value: v, updatedAt: c.now()})
}

// Invalidate marks key stale so the next Read refetches it. Invalidating a
// key that was never cached is a no-op.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	if fs, ok := c.fetching[key]; ok {
		fs.invalidated = true
	}
	e, ok := c.entries.Peek(key)
	if ok {
		e.stale = true
	}
	c.mu.Unlock()

	if ok {
		c.notify(key, Invalidated)
	}
}

// InvalidateKind marks every cached key of kind stale.
func (c *Cache) InvalidateKind(kind Kind) {
	c.mu.Lock()
	var keys []Key
	for _, k := range c.entries.Keys() {
		if k.Kind == kind {
			keys = append(keys, k)
		}
	}
	for k, fs := range c.fetching {
		if k.Kind == kind {
			fs.invalidated = true
		}
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.Invalidate(k)
	}
}

// Remove drops key from the cache.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	removed := c.entries.Remove(key)
	c.mu.Unlock()
	if removed {
		c.notify(key, Removed)
	}
}

// Subscribe registers fn for changes to key. The returned func unsubscribes.
func (c *Cache) Subscribe(key Key, fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.listeners[key] == nil {
		c.listeners[key] = make(map[uint64]Listener)
	}
	c.listeners[key][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set := c.listeners[key]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(c.listeners, key)
			}
		}
	}
}

func (c *Cache) notify(key Key, typ NotificationType) {
	c.mu.Lock()
	set := c.listeners[key]
	fns := make([]Listener, 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	n := Notification{Key: key, Type: typ}
	for _, fn := range fns {
		fn(n)
	}
}

// Get reads key through c and asserts the result to T.
func Get[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: %s holds %T, not %T", key, v, zero)
	}
	return t, nil
}
