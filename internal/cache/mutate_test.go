package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepend(item string) func(old any) any {
	return func(old any) any {
		list, _ := old.([]string)
		return append([]string{item}, list...)
	}
}

func TestMutateRollsBackEveryKeyOnFailure(t *testing.T) {
	c := newTestCache(t)
	c.Set(Meals(), []string{"b", "c"})
	c.Set(DailyGrade("2024-05-01"), map[string]int{"count": 2})

	beforeList, _ := c.Peek(Meals())
	beforeDaily, _ := c.Peek(DailyGrade("2024-05-01"))

	boom := errors.New("insert rejected")
	var sawOptimistic bool
	_, err := c.Mutate(context.Background(), Mutation{
		Patches: []Patch{
			{Key: Meals(), Apply: prepend("a")},
			{Key: DailyGrade("2024-05-01"), Apply: func(old any) any {
				return map[string]int{"count": old.(map[string]int)["count"] + 1}
			}},
			{Key: Meal(5), Apply: func(any) any { return "placeholder" }},
		},
		Commit: func(ctx context.Context) (any, error) {
			v, _ := c.Peek(Meals())
			sawOptimistic = assert.ObjectsAreEqual([]string{"a", "b", "c"}, v)
			return nil, boom
		},
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, sawOptimistic)

	afterList, _ := c.Peek(Meals())
	afterDaily, _ := c.Peek(DailyGrade("2024-05-01"))
	assert.Equal(t, beforeList, afterList)
	assert.Equal(t, beforeDaily, afterDaily)

	_, ok := c.Peek(Meal(5))
	assert.False(t, ok, "keys absent before the mutation are removed again")
	assert.False(t, c.Pending(Meals()))
}

func TestMutateSettleReplacesOptimisticValue(t *testing.T) {
	c := newTestCache(t)
	c.Set(Meals(), []string{"b"})

	res, err := c.Mutate(context.Background(), Mutation{
		Patches: []Patch{{Key: Meals(), Apply: prepend("tmp")}},
		Commit: func(ctx context.Context) (any, error) {
			return "a", nil
		},
		Settle: func(result any) []Patch {
			return []Patch{{Key: Meals(), Apply: func(old any) any {
				list := old.([]string)
				out := append([]string(nil), list...)
				out[0] = result.(string)
				return out
			}}}
		},
		Invalidate: []Key{DailyGrade("2024-05-01")},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", res)

	v, _ := c.Peek(Meals())
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestMutationsOnSameKeyNeverInterleave(t *testing.T) {
	c := newTestCache(t)
	c.Set(Meals(), []string{})

	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.Mutate(context.Background(), Mutation{
			Patches: []Patch{{Key: Meals(), Apply: prepend("first")}},
			Commit: func(ctx context.Context) (any, error) {
				record("first commit start")
				close(firstStarted)
				<-releaseFirst
				record("first commit end")
				return nil, errors.New("fail")
			},
		})
		assert.Error(t, err)
	}()

	<-firstStarted
	go func() {
		defer wg.Done()
		_, err := c.Mutate(context.Background(), Mutation{
			Patches: []Patch{{Key: Meals(), Apply: func(old any) any {
				record("second patch sees " + joinOrEmpty(old.([]string)))
				return prepend("second")(old)
			}}},
			Commit: func(ctx context.Context) (any, error) {
				record("second commit")
				return nil, nil
			},
		})
		assert.NoError(t, err)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.True(t, c.Pending(Meals()))
	close(releaseFirst)
	wg.Wait()

	assert.Equal(t, []string{
		"first commit start",
		"first commit end",
		"second patch sees ",
		"second commit",
	}, events)

	v, _ := c.Peek(Meals())
	assert.Equal(t, []string{"second"}, v)
}

func TestMutateLockWaitHonoursContext(t *testing.T) {
	c := newTestCache(t)
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = c.Mutate(context.Background(), Mutation{
			Patches: []Patch{{Key: Meals(), Apply: prepend("x")}},
			Commit: func(ctx context.Context) (any, error) {
				close(started)
				<-hold
				return nil, nil
			},
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Mutate(ctx, Mutation{
		Patches: []Patch{{Key: Meals(), Apply: prepend("y")}},
		Commit:  func(ctx context.Context) (any, error) { return nil, nil },
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPendingKeyServesOptimisticValue(t *testing.T) {
	c := newTestCache(t)
	c.Set(Meals(), []string{"b"})
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = c.Mutate(context.Background(), Mutation{
			Patches: []Patch{{Key: Meals(), Apply: prepend("a")}},
			Commit: func(ctx context.Context) (any, error) {
				close(started)
				<-release
				return nil, nil
			},
		})
	}()
	<-started
	defer close(release)

	c.Invalidate(Meals())
	v, err := c.Read(context.Background(), Meals(), func(ctx context.Context) (any, error) {
		t.Error("pending key must not be fetched")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestRollbackKeepsInvalidationFromDuringMutation(t *testing.T) {
	c := newTestCache(t)
	c.Set(Meals(), []string{"b"})

	_, err := c.Mutate(context.Background(), Mutation{
		Patches: []Patch{{Key: Meals(), Apply: prepend("a")}},
		Commit: func(ctx context.Context) (any, error) {
			c.Invalidate(Meals())
			return nil, errors.New("fail")
		},
	})
	require.Error(t, err)

	v, _ := c.Peek(Meals())
	assert.Equal(t, []string{"b"}, v)
	assert.False(t, c.Fresh(Meals()))
}

func TestMutateWithoutCommit(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Mutate(context.Background(), Mutation{})
	assert.Error(t, err)
}

func joinOrEmpty(list []string) string {
	out := ""
	for i, s := range list {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func TestIfCachedPatchSkipsAbsentKeys(t *testing.T) {
	c := newTestCache(t)
	c.Set(Meals(), []string{"b"})

	_, err := c.Mutate(context.Background(), Mutation{
		Patches: []Patch{
			{Key: Meals(), Apply: prepend("a"), IfCached: true},
			{Key: Meal(1), Apply: func(any) any { return "meal" }, IfCached: true},
		},
		Commit: func(ctx context.Context) (any, error) {
			_, ok := c.Peek(Meal(1))
			assert.False(t, ok)
			return nil, errors.New("fail")
		},
	})
	require.Error(t, err)

	v, _ := c.Peek(Meals())
	assert.Equal(t, []string{"b"}, v)
	_, ok := c.Peek(Meal(1))
	assert.False(t, ok)
}
