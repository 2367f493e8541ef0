package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleFlowEvents serves one flow's event stream. It upgrades to
// WebSocket when the client sends the standard upgrade headers, and
// otherwise falls back to Server-Sent Events, matching spec.md's
// "SSE or WebSocket" wording for the same envelope.
func (s *Server) handleFlowEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.serveEvents(w, r, events.Filter{FlowID: id})
}

func (s *Server) handleGlobalEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, events.Filter{})
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, filter events.Filter) {
	sub := s.broker.Subscribe(filter)
	defer sub.Close()

	if websocket.IsWebSocketUpgrade(r) {
		s.serveEventsWebSocket(w, r, sub)
		return
	}
	s.serveEventsSSE(w, r, sub)
}

func (s *Server) serveEventsSSE(w http.ResponseWriter, r *http.Request, sub *events.Subscription) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write(append([]byte("data: "), append(data, '\n', '\n')...)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) serveEventsWebSocket(w http.ResponseWriter, r *http.Request, sub *events.Subscription) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
