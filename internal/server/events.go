package server

import (
	"context"
	"net/http"
	"time"

	"github.com/chaospilot/incident-console/internal"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

func (s *Server) upgrader() websocket.Upgrader {
	allowed := make(map[string]bool, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no origin.
			return origin == "" || len(allowed) == 0 || allowed[origin] || allowed["*"]
		},
	}
}

// pushSnapshots sends the current snapshot, then at most one snapshot per
// push interval while the console keeps changing. It returns when ctx is
// done or send fails.
func (s *Server) pushSnapshots(ctx context.Context, send func(internal.DashboardSnapshot) error) error {
	if err := send(s.console.Snapshot()); err != nil {
		return err
	}

	updates := s.console.Watch(ctx)
	ticker := time.NewTicker(s.cfg.PushInterval.Std())
	defer ticker.Stop()

	var pending *internal.DashboardSnapshot
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			pending = &snap
		case <-ticker.C:
			if pending == nil {
				continue
			}
			if err := send(*pending); err != nil {
				return err
			}
			pending = nil
		}
	}
}

// websocket streams snapshots as JSON text frames. Client frames are read
// and discarded so close and ping frames get processed.
func (s *Server) websocket(c *gin.Context) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.metrics.streams.WithLabelValues("websocket").Inc()
	defer s.metrics.streams.WithLabelValues("websocket").Dec()

	err = s.pushSnapshots(ctx, func(snap internal.DashboardSnapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(snap)
	})
	if err != nil && ctx.Err() == nil {
		internal.LogDebug("[server] websocket closed: %v", err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// events streams snapshots as server-sent events named "snapshot"
func (s *Server) events(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	s.metrics.streams.WithLabelValues("sse").Inc()
	defer s.metrics.streams.WithLabelValues("sse").Dec()

	_ = s.pushSnapshots(c.Request.Context(), func(snap internal.DashboardSnapshot) error {
		c.SSEvent("snapshot", snap)
		c.Writer.Flush()
		return nil
	})
}
