package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fabric-actor/kernel/internal/management"
	"github.com/fabric-actor/kernel/pkg/logger"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Management-plane callers authenticate with the same bearer token
	// as every other endpoint (§4.9); the upgrade itself doesn't need
	// origin checking beyond what that middleware already enforces.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterEvents wires GET /events onto the router, streaming every
// reservation update the EventBus publishes to the caller as JSON
// frames over a websocket connection, the push-delivery complement to
// the bus's pull-style Subscribe used internally by management.Base.
func (s *Server) RegisterEvents(bus *management.EventBus) {
	s.router.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		handleEvents(s.log, bus, w, r)
	}).Methods(http.MethodGet)
}

func handleEvents(log *logger.Logger, bus *management.EventBus, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed: " + err.Error())
		return
	}
	defer conn.Close()

	updates, cancel := bus.Subscribe(nil)
	defer cancel()

	// Drain client-initiated control frames (ping/close) on their own
	// goroutine so a slow or silent client doesn't block delivery.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for snapshot := range updates {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
