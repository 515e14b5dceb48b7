package api

import (
	"net/http"
	"time"

	"ezvizswitch/internal/switches"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// StreamMessage is sent over /api/stream. The first messages of a
// connection are "snapshot" entries for every entity, followed by
// "state_changed" entries as they happen.
type StreamMessage struct {
	Type   string            `json:"type"`
	Entity switches.Snapshot `json:"entity"`
}

// handleStream upgrades to a WebSocket and pushes entity changes
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.streamsMu.Lock()
	s.streams[conn] = struct{}{}
	s.streamsMu.Unlock()

	s.logger.Debug("Stream client connected", zap.String("remote_addr", r.RemoteAddr))

	updates := make(chan switches.Snapshot, streamBuffer)
	sub := s.switches.Subscribe(func(snap switches.Snapshot) {
		select {
		case updates <- snap:
		default:
			s.logger.Warn("Stream client too slow, dropping update",
				zap.String("unique_id", snap.UniqueID))
		}
	})

	done := make(chan struct{})
	go s.readPump(conn, done)

	defer func() {
		sub.Unsubscribe()
		s.streamsMu.Lock()
		delete(s.streams, conn)
		s.streamsMu.Unlock()
		conn.Close()
		s.logger.Debug("Stream client disconnected", zap.String("remote_addr", r.RemoteAddr))
	}()

	for _, snap := range s.switches.Snapshots() {
		if err := s.writeMessage(conn, StreamMessage{Type: "snapshot", Entity: snap}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case snap := <-updates:
			if err := s.writeMessage(conn, StreamMessage{Type: "state_changed", Entity: snap}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("Stream write failed", zap.Error(err))
		return err
	}
	return nil
}

// readPump discards client messages and closes done when the peer goes away
func (s *Server) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) closeStreams() {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()

	for conn := range s.streams {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
