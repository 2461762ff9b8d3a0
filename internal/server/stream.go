package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/observability"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const streamWriteTimeout = 5 * time.Second

// EventStream pushes committed domain events to websocket clients. Slow or
// broken clients are dropped.
type EventStream struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewEventStream() *EventStream {
	return &EventStream{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   observability.NewLogger("event-stream"),
	}
}

// Run broadcasts every event from in until ctx is cancelled or in closes,
// then disconnects all clients.
func (s *EventStream) Run(ctx context.Context, in <-chan event.Emitted) error {
	defer s.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-in:
			if !ok {
				return nil
			}
			s.Broadcast(e)
		}
	}
}

// Broadcast sends e to every connected client.
func (s *EventStream) Broadcast(e event.Emitted) {
	msg, err := json.Marshal(e)
	if err != nil {
		s.logger.Error().Err(err).Str("event", e.Name).Msg("marshal event")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Debug().Err(err).Msg("websocket write failed, dropping client")
			c.Close()
			delete(s.clients, c)
		}
	}
}

// Clients returns the number of connected clients.
func (s *EventStream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Handler upgrades the request and registers the connection. The read loop
// only detects disconnects; clients never send.
func (s *EventStream) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug().Err(err).Msg("websocket upgrade")
			return
		}
		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		go func() {
			defer func() {
				s.mu.Lock()
				delete(s.clients, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func (s *EventStream) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
}
