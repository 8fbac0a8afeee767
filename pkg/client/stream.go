package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/cuemby/hazardfeed/pkg/events"
)

// Stream is a live connection to the event endpoint. Events are delivered
// in the order the server published them; there is no replay, so anything
// published while the stream is down is missed.
type Stream struct {
	ID string

	ws     *websocket.Conn
	events chan *events.Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Subscribe opens an event stream. It returns once the server has
// registered the subscription, so every event published after Subscribe
// returns will be delivered. Cancelling ctx closes the stream.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/events"

	cfg, err := websocket.NewConfig(wsURL, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}

	var hello events.Event
	if err := websocket.JSON.Receive(ws, &hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("event stream handshake failed: %w", err)
	}
	if hello.Type != events.EventSubscribed {
		ws.Close()
		return nil, fmt.Errorf("event stream handshake failed: unexpected %s frame", hello.Type)
	}

	s := &Stream{
		ID:     hello.ID,
		ws:     ws,
		events: make(chan *events.Event, events.DefaultBufferSize),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Events yields events until the stream ends. The channel is closed when
// the connection drops or Close is called.
func (s *Stream) Events() <-chan *events.Event {
	return s.events
}

// Err returns the error that ended the stream, or nil if it was closed
// locally
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ws.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	defer close(s.events)

	for {
		var ev events.Event
		if err := websocket.JSON.Receive(s.ws, &ev); err != nil {
			select {
			case <-s.done:
			default:
				s.mu.Lock()
				s.err = fmt.Errorf("event stream lost: %w", err)
				s.mu.Unlock()
				s.Close()
			}
			return
		}

		select {
		case s.events <- &ev:
		case <-s.done:
			return
		}
	}
}
