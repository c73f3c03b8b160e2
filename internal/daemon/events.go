package daemon

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reelforge/internal/api"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
)

const (
	eventWriteWait = 10 * time.Second
	eventPongWait  = 60 * time.Second
	eventPingEvery = eventPongWait * 9 / 10
)

// eventStreamer serves the per-job websocket feed. Every connection replays
// the job's recorded history and closes after the terminal event.
type eventStreamer struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newEventStreamer(logger *slog.Logger) *eventStreamer {
	return &eventStreamer{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// stream upgrades the request and relays sub until the job ends or the peer
// disconnects.
func (e *eventStreamer) stream(w http.ResponseWriter, r *http.Request, id string, sub *queue.Subscription) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		logging.WarnWithContext(e.logger, "websocket upgrade failed", "event_stream_upgrade_failed",
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
		)
		return
	}
	e.track(conn)
	defer e.untrack(conn)

	e.logger.Debug("event stream opened",
		logging.String(logging.FieldEventType, "event_stream_opened"),
		logging.String(logging.FieldJobID, id),
	)

	gone := make(chan struct{})
	go e.readPump(conn, gone)

	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case evt, ok := <-sub.C:
			if !ok {
				e.closeNormal(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(api.FromEvent(evt)); err != nil {
				return
			}
			if evt.Terminal() {
				e.closeNormal(conn)
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// signals gone when the peer disconnects.
func (e *eventStreamer) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (e *eventStreamer) closeNormal(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(eventWriteWait))
}

func (e *eventStreamer) track(conn *websocket.Conn) {
	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()
}

func (e *eventStreamer) untrack(conn *websocket.Conn) {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
	_ = conn.Close()
}

// closeAll sends a going-away frame to every open stream. Hijacked
// connections are not tracked by http.Server.Shutdown.
func (e *eventStreamer) closeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for conn := range e.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopping"), time.Now().Add(time.Second))
		_ = conn.Close()
	}
}
