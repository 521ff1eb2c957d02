package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"nutrilog/internal/model"
	"nutrilog/internal/store"
)

const (
	pingInterval     = 25 * time.Second
	subscribeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// realtime streams change events to a websocket client. The first frame from
// the client must be a subscribe frame.
func (s *Server) realtime(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("realtime: upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	var req model.Frame
	if err := conn.ReadJSON(&req); err != nil || req.Type != model.FrameSubscribe {
		s.log.Info("realtime: expected subscribe frame", "err", err)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteJSON(model.Frame{Type: model.FrameError, Error: "expected subscribe"})
		return
	}
	conn.SetReadDeadline(time.Time{})

	sub := s.feed.Subscribe(req.Tables, store.DefaultBuffer)
	defer s.feed.Unsubscribe(sub)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(model.Frame{Type: model.FrameSubscribed, Tables: req.Tables}); err != nil {
		return
	}
	s.log.Debug("realtime: client subscribed", "tables", req.Tables, "remote", c.Request.RemoteAddr)

	// read loop ends on client close/error
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub.C:
			if !ok {
				// dropped for falling behind; the client reconnects and refetches
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(model.ChangeFrame(ev)); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
