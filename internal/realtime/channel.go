package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nutrilog/internal/model"
	"nutrilog/internal/store"
)

// Channel is an open, subscribed change stream. Events is closed when the
// channel ends; Err then reports why.
type Channel interface {
	Events() <-chan model.ChangeEvent
	Err() error
	Close() error
}

// Dialer opens a channel subscribed to tables. Dial returns once the
// subscription is confirmed, or fails when ctx expires first.
type Dialer interface {
	Dial(ctx context.Context, tables []string) (Channel, error)
}

// stream is the Channel shared by the dialers. The producer calls deliver
// for each event and finish exactly once.
type stream struct {
	events  chan model.ChangeEvent
	closing chan struct{}
	once    sync.Once
	release func()

	mu  sync.Mutex
	err error
}

func newStream(release func()) *stream {
	return &stream{
		events:  make(chan model.ChangeEvent),
		closing: make(chan struct{}),
		release: release,
	}
}

func (s *stream) Events() <-chan model.ChangeEvent { return s.events }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.closing)
		s.release()
	})
	return nil
}

func (s *stream) deliver(ev model.ChangeEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closing:
		return false
	}
}

func (s *stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.events)
}

// FeedDialer subscribes directly to an in-process store feed.
type FeedDialer struct {
	Feed   *store.Feed
	Buffer int
}

// Dial subscribes to the feed. The subscription is confirmed immediately.
func (d FeedDialer) Dial(ctx context.Context, tables []string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := d.Feed.Subscribe(tables, d.Buffer)
	s := newStream(func() { d.Feed.Unsubscribe(sub) })

	go func() {
		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					s.finish(errors.New("realtime: feed subscription dropped"))
					return
				}
				if !s.deliver(ev) {
					s.finish(nil)
					return
				}
			case <-s.closing:
				s.finish(nil)
				return
			}
		}
	}()
	return s, nil
}

const (
	pongWait     = 60 * time.Second
	controlWrite = 10 * time.Second
)

// WebSocketDialer connects to a store server's /realtime endpoint.
type WebSocketDialer struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	Dialer  *websocket.Dialer
	Log     *slog.Logger
}

func (d WebSocketDialer) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(d.BaseURL, "/") + "/realtime")
	if err != nil {
		return "", fmt.Errorf("invalid realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// Dial opens the websocket, sends the subscribe frame and waits for the
// server's confirmation.
func (d WebSocketDialer) Dial(ctx context.Context, tables []string) (Channel, error) {
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, err
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := d.Log
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteJSON(model.Frame{Type: model.FrameSubscribe, Tables: tables}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send subscribe: %w", err)
	}
	var ack model.Frame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if ack.Type != model.FrameSubscribed {
		conn.Close()
		return nil, fmt.Errorf("subscription rejected: %s %s", ack.Type, ack.Error)
	}

	conn.SetWriteDeadline(time.Time{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWrite))
	})

	s := newStream(func() { conn.Close() })
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-s.closing:
					s.finish(nil)
				default:
					if isTimeout(err) {
						err = ErrTimedOut
					}
					s.finish(err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))

			var f model.Frame
			if err := json.Unmarshal(data, &f); err != nil {
				logger.Warn("realtime: dropping malformed frame", "err", err)
				continue
			}
			if f.Type != model.FrameChange {
				logger.Debug("realtime: ignoring frame", "type", f.Type)
				continue
			}
			if !s.deliver(f.Event()) {
				s.finish(nil)
				return
			}
		}
	}()
	return s, nil
}
