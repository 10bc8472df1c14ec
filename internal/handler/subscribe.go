package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mindwell-dev/mindwell/internal/broker"
	"github.com/mindwell-dev/mindwell/internal/domain"
	"github.com/mindwell-dev/mindwell/internal/logger"
	mw "github.com/mindwell-dev/mindwell/internal/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Token auth already ran; cross-origin pages cannot read the
	// cookie and API clients send a bearer header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SubscribeThread streams message:new and thread:updated events for a
// single thread. View rights are checked at subscribe time and
// re-checked by the broker on every event. Delivery is at-least-once;
// after any disconnect the client re-fetches thread state instead of
// expecting buffered events.
func (h *Handler) SubscribeThread(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	threadId := domain.ThreadId(mux.Vars(r)["thread"])

	sub, ok := h.broker.Subscribe(caller, threadId)
	if !ok {
		http.Error(w, "Not authorized to view this thread", http.StatusForbidden)
		return
	}

	h.serveSubscription(w, r, sub)
}

// SubscribeEvents streams the caller's notification channel: events
// for every thread they may view at the moment each event fires.
func (h *Handler) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub := h.broker.SubscribeUser(caller)
	h.serveSubscription(w, r, sub)
}

func (h *Handler) serveSubscription(w http.ResponseWriter, r *http.Request, sub *broker.Subscription) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		logger.Log.Debug("websocket upgrade failed", "err", err)
		return
	}

	// Reader: we expect no client frames beyond control messages, but
	// the read loop is what notices a dropped connection.
	go func() {
		defer sub.Close()
		conn.SetReadLimit(512)
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
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case event, open := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
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
