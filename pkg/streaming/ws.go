package streaming

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Adapted from cmd/fanout/client.go's readPump/writePump constants and
// per-message framing discipline (one WebSocket frame per event, never
// batched, so the browser can parse each JSON object independently).
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = 25 * time.Second
	wsMaxMessage = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades r to a WebSocket connection and pumps every
// event delivered to session until the connection drops or session is
// closed, then unsubscribes session from hub.
func ServeWebSocket(hub *Hub, session *Session, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	go wsReadPump(conn, hub, session)
	wsWritePump(conn, session)
	return nil
}

// wsReadPump only exists to observe client disconnects and keep the
// pong deadline alive; sessions are server-push only, so any payload
// the browser sends is discarded.
func wsReadPump(conn *websocket.Conn, hub *Hub, session *Session) {
	defer func() {
		hub.Unsubscribe(session)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsWritePump(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-session.Out():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-session.Done():
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
