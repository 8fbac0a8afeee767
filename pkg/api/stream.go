package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/log"
)

// streamWriteTimeout bounds a single event write to a subscriber socket
const streamWriteTimeout = 10 * time.Second

// streamHandler serves GET /api/events. Each connection holds one broker
// subscription and receives every event published while it is open, as
// JSON text frames. The first frame is a subscribed marker; anything
// published after it is delivered. Client frames are read and discarded,
// and a read error means the peer went away.
func (s *Server) streamHandler() http.Handler {
	return websocket.Server{
		// Browsers from any origin may listen; the stream carries only
		// public data.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.stream,
	}
}

func (s *Server) stream(ws *websocket.Conn) {
	defer ws.Close()

	// The HTTP server's deadlines survive the upgrade.
	_ = ws.SetReadDeadline(time.Time{})

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	logger := log.FromContext(ws.Request().Context()).With().Str("subscriber_id", sub.ID).Logger()
	logger.Debug().Str("remote", ws.Request().RemoteAddr).Msg("subscriber connected")

	hello := &events.Event{
		ID:        sub.ID,
		Type:      events.EventSubscribed,
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(`{}`),
	}
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := websocket.JSON.Send(ws, hello); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = io.Copy(io.Discard, ws)
	}()

	for {
		select {
		case <-gone:
			logger.Debug().Msg("subscriber disconnected")
			return
		case ev, ok := <-sub.C:
			if !ok {
				if err := sub.Err(); err != nil {
					logger.Warn().Err(err).Uint64("dropped", sub.Dropped()).Msg("subscription closed")
				}
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := websocket.JSON.Send(ws, ev); err != nil {
				logger.Debug().Err(err).Msg("write to subscriber failed")
				return
			}
		}
	}
}
