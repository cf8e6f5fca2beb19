package http

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// progressSocket streams progress events to one client. The topic comes
// from the ?topic= query parameter (a job or source ID); without one the
// client receives every event. Writes are owned by this goroutine; the
// read loop exists only to notice the peer going away.
func (h *handlers) progressSocket(conn *websocket.Conn) {
	defer conn.Close()

	clientID := conn.Params("client_id")
	topic := conn.Query("topic")

	sub := h.deps.Broker.Subscribe(topic)
	defer h.deps.Broker.Unsubscribe(sub)

	if h.deps.Logger != nil {
		h.deps.Logger.Debug("websocket client connected", "client_id", clientID, "topic", topic)
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			if h.deps.Logger != nil {
				h.deps.Logger.Debug("websocket client disconnected", "client_id", clientID)
			}
			return
		}
	}
}
