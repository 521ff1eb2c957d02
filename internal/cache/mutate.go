package cache

import (
	"context"
	"fmt"
	"sort"
)

// Patch rewrites the cached value of one key. Apply receives nil when the
// key is not cached and must return a new value, not modify old.
type Patch struct {
	Key   Key
	Apply func(old any) any

	// IfCached skips the patch when key holds no value.
	IfCached bool
}

// Mutation is an optimistic write: Patches are applied before Commit runs
// and are rolled back together if it fails.
type Mutation struct {
	Patches []Patch

	// Commit performs the authoritative remote write.
	Commit func(ctx context.Context) (any, error)

	// Settle, if set, returns patches that replace the optimistic values with
	// the server-confirmed result. They are applied before the keys unlock.
	Settle func(result any) []Patch

	// Invalidate lists keys to mark stale once Commit succeeds.
	Invalidate []Key
}

// Transaction is the pre-image of one key touched by a mutation.
type Transaction struct {
	Key      Key
	PreImage any
	Existed  bool
	Stale    bool
	Patch    func(old any) any
}

type txn struct {
	records []Transaction
}

// apply snapshots and patches every key. Callers hold c.mu.
func (t *txn) apply(c *Cache, patches []Patch) {
	for _, p := range patches {
		rec := Transaction{Key: p.Key, Patch: p.Apply}
		var old any
		e, ok := c.entries.Peek(p.Key)
		if !ok && p.IfCached {
			continue
		}
		if ok {
			rec.PreImage = e.value
			rec.Existed = true
			rec.Stale = e.stale
			old = e.value
		}
		t.records = append(t.records, rec)
		c.writeLocked(p.Key, p.Apply(old))
	}
}

// rollback restores every pre-image in reverse order. A key invalidated
// while the mutation was pending keeps its stale mark. Callers hold c.mu.
func (t *txn) rollback(c *Cache) {
	for i := len(t.records) - 1; i >= 0; i-- {
		rec := t.records[i]
		if fs, ok := c.fetching[rec.Key]; ok {
			fs.overwritten = true
		}
		if !rec.Existed {
			c.entries.Remove(rec.Key)
			continue
		}
		stale := rec.Stale
		if e, ok := c.entries.Peek(rec.Key); ok && e.stale {
			stale = true
		}
		c.entries.Add(rec.Key, &entry{value: rec.PreImage, stale: stale, updatedAt: c.now()})
	}
}

func (t *txn) keys() []Key {
	keys := make([]Key, 0, len(t.records))
	for _, rec := range t.records {
		keys = append(keys, rec.Key)
	}
	return keys
}

// Mutate applies m optimistically and commits it. Mutations sharing a key
// run one after another: a second mutation waits until the first has either
// settled or rolled back. On commit failure every patched key is restored to
// its pre-image before the error is returned.
func (c *Cache) Mutate(ctx context.Context, m Mutation) (any, error) {
	if m.Commit == nil {
		return nil, fmt.Errorf("cache: mutation has no commit")
	}

	keys := lockOrder(m.Patches)
	if err := c.lock(ctx, keys); err != nil {
		return nil, err
	}
	defer c.unlock(keys)

	t := &txn{}
	c.mu.Lock()
	t.apply(c, m.Patches)
	c.mu.Unlock()
	c.notifyAll(t.keys(), Updated)

	result, err := m.Commit(ctx)
	if err != nil {
		c.mu.Lock()
		t.rollback(c)
		c.mu.Unlock()
		c.notifyAll(t.keys(), RolledBack)
		c.log.Debug("cache: mutation rolled back", "keys", len(t.records), "err", err)
		return nil, err
	}

	if m.Settle != nil {
		for _, p := range m.Settle(result) {
			if p.IfCached {
				c.UpdateIfCached(p.Key, p.Apply)
			} else {
				c.Update(p.Key, p.Apply)
			}
		}
	}
	for _, k := range m.Invalidate {
		c.Invalidate(k)
	}
	return result, nil
}

// Pending reports whether a mutation currently holds key.
func (c *Cache) Pending(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockedLocked(key)
}

func (c *Cache) lockedLocked(key Key) bool {
	_, ok := c.locks[key]
	return ok
}

// lockOrder dedupes the patched keys and sorts them so concurrent mutations
// always acquire overlapping locks in the same order.
func lockOrder(patches []Patch) []Key {
	seen := make(map[Key]bool, len(patches))
	keys := make([]Key, 0, len(patches))
	for _, p := range patches {
		if seen[p.Key] {
			continue
		}
		seen[p.Key] = true
		keys = append(keys, p.Key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

func (c *Cache) lock(ctx context.Context, keys []Key) error {
	for i, k := range keys {
		if err := c.lockOne(ctx, k); err != nil {
			c.unlock(keys[:i])
			return err
		}
	}
	return nil
}

func (c *Cache) lockOne(ctx context.Context, key Key) error {
	for {
		c.mu.Lock()
		held, ok := c.locks[key]
		if !ok {
			c.locks[key] = make(chan struct{})
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Cache) unlock(keys []Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if ch, ok := c.locks[k]; ok {
			close(ch)
			delete(c.locks, k)
		}
	}
}

func (c *Cache) notifyAll(keys []Key, typ NotificationType) {
	for _, k := range keys {
		c.notify(k, typ)
	}
}
