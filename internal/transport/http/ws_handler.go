package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeSessionFeed streams a session's lifecycle to the teacher who created it. The first
// message is a "session" snapshot; every later message is one event. Browsers cannot set
// headers on a websocket handshake, so the caller may also be given as ?userId=.
func (h *Handler) ServeSessionFeed(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(UserHeader)
	if caller == "" {
		caller = r.URL.Query().Get("userId")
	}
	if caller == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader})
		return
	}

	session, events, cancel, err := h.sessions.Subscribe(r.Context(), h.hub, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer cancel()
	if session.CreatedBy != caller {
		h.writeError(w, r, domain.ErrSessionNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The read loop only watches for the client going away; inbound messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, outboundMessage{Type: "session", Payload: session}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, outboundMessage{Type: string(event.Type), Payload: event}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, msg outboundMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("ws write error", zap.Error(err))
		return err
	}
	return nil
}
