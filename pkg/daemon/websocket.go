package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nexusshell/corectl/pkg/events"
)

// streamMessage is the envelope every /events WebSocket frame carries,
// mirroring the slurm-client streaming server's StreamMessage shape.
type streamMessage struct {
	Type      string        `json:"type"`
	Data      *events.Event `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEvents upgrades GET /events to a WebSocket when the client sends
// the Upgrade handshake, falling back to a newline-delimited JSON stream
// for plain HTTP clients (e.g. curl), replaying the broker's backlog
// first in both cases.
func (s *httpServer) streamEvents(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		s.streamEventsPlain(w, r)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.wsReadLoop(conn, cancel)

	sub := s.d.broker.Subscribe()
	defer s.d.broker.Unsubscribe(sub)

	for _, evt := range s.d.broker.Recent() {
		if err := conn.WriteJSON(streamMessage{Type: "event", Data: evt, Timestamp: evt.Timestamp}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(streamMessage{Type: "event", Data: evt, Timestamp: evt.Timestamp}); err != nil {
				return
			}
		}
	}
}

// wsReadLoop drains and discards client frames so gorilla/websocket's
// control-frame handling (pong, close) keeps running; /events is
// server-push only, so any data frame is simply ignored.
func (s *httpServer) wsReadLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// streamEventsPlain serves /events as newline-delimited JSON for clients
// that didn't ask for a WebSocket upgrade, matching the stable-HTTP
// expectation of the rest of the surface (§6 lists /events as a plain GET).
func (s *httpServer) streamEventsPlain(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusOK, s.d.broker.Recent())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	sub := s.d.broker.Subscribe()
	defer s.d.broker.Unsubscribe(sub)

	enc := json.NewEncoder(w)
	for _, evt := range s.d.broker.Recent() {
		if enc.Encode(evt) != nil {
			return
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if enc.Encode(evt) != nil {
				return
			}
			flusher.Flush()
		}
	}
}
