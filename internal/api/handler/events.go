package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/edvin/panel/internal/supervisor"
)

const (
	eventBuffer  = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Events streams service state changes to websocket clients.
type Events struct {
	sup     *supervisor.Supervisor
	origins []string
}

// NewEvents allows cross-origin upgrades from the hosts of origins.
func NewEvents(sup *supervisor.Supervisor, origins []string) *Events {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return &Events{sup: sup, origins: patterns}
}

// Stream godoc
//
//	@Summary		Stream service state changes
//	@Description	Upgrades the request and writes one JSON message per state change until the client goes away.
//	@Tags			Events
//	@Security		ApiKeyAuth
//	@Success		101
//	@Router			/events [get]
func (h *Events) Stream(w http.ResponseWriter, r *http.Request) {
	// The server write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Subscribe before the handshake completes so no change is missed.
	events, cancel := h.sup.Subscribe(eventBuffer)
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(ctx, conn, ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
