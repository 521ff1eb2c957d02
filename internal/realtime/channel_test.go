package realtime

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/internal/cache"
	"nutrilog/internal/grade"
	"nutrilog/internal/model"
	"nutrilog/internal/server"
	"nutrilog/internal/store"
)

func startStore(t *testing.T) (*store.SQLite, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	feed := store.NewFeed(nil)
	db, err := store.Open(":memory:", feed, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(server.New(db, feed, nil).Router())
	t.Cleanup(srv.Close)
	return db, srv
}

func nextEvent(t *testing.T, ch Channel) model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch.Events():
		require.True(t, ok, "channel ended: %v", ch.Err())
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return model.ChangeEvent{}
	}
}

func TestWebSocketDialerStreamsChanges(t *testing.T) {
	db, srv := startStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := WebSocketDialer{BaseURL: srv.URL}.Dial(ctx, []string{model.TableMealLogs})
	require.NoError(t, err)
	defer ch.Close()

	_, err = db.CreateMeal(context.Background(), model.MealRecord{MealName: "rice", MealGrade: grade.B, MealDate: mealDay})
	require.NoError(t, err)

	ev := nextEvent(t, ch)
	assert.Equal(t, model.TableMealLogs, ev.Table)
	assert.Equal(t, model.EventInsert, ev.EventType)

	require.NoError(t, ch.Close())
	for range ch.Events() {
	}
	assert.NoError(t, ch.Err(), "closing is not an error")
}

func TestWebSocketDialerFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := WebSocketDialer{BaseURL: "http://127.0.0.1:1"}.Dial(ctx, model.Tables)
	assert.Error(t, err)
}

func TestFeedDialerReportsDrop(t *testing.T) {
	feed := store.NewFeed(nil)
	ch, err := FeedDialer{Feed: feed, Buffer: 1}.Dial(context.Background(), nil)
	require.NoError(t, err)

	// nobody reads, so the feed overflows and drops the subscriber
	for i := 0; i < 4; i++ {
		feed.Publish(model.ChangeEvent{Table: model.TableMealLogs})
	}
	for range ch.Events() {
	}
	assert.Error(t, ch.Err())
}

func TestManagerOverWebSocket(t *testing.T) {
	db, srv := startStore(t)
	c, err := cache.New()
	require.NoError(t, err)
	c.Set(cache.Meals(), []model.MealRecord{})

	m := NewManager(WebSocketDialer{BaseURL: srv.URL}, c)
	connected := make(chan struct{}, 1)
	unwatch := m.Watch(func(s State) {
		if s.Status == Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer unwatch()

	m.Connect()
	defer m.Disconnect()
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatalf("not connected: %+v", m.State())
	}

	created, err := db.CreateMeal(context.Background(), model.MealRecord{MealName: "soup", MealGrade: grade.A, MealDate: mealDay})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		v, _ := c.Peek(cache.Meals())
		list, _ := v.([]model.MealRecord)
		return len(list) == 1 && list[0].ID == created.ID
	}, 2*time.Second, 10*time.Millisecond)
}
