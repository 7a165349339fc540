package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/origbo/logware-security-platform-sub010/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboards are served from a separate origin
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	allowed, reason := s.limits.Acquire(ip)
	if !allowed {
		metrics.WebSocketConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Connection rejected", "ip", ip, "reason", reason)

		if reason == LimitReasonRate {
			return c.String(http.StatusTooManyRequests, "Too many connection attempts")
		}
		return c.String(http.StatusServiceUnavailable, "Connection limit reached")
	}
	defer s.limits.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	sessionID, err := s.hub.Register(conn)
	if err != nil {
		slog.Error("Failed to register session", "error", err)
		_ = conn.Close()
		return nil
	}
	defer s.hub.Disconnect(sessionID)

	// Read pump. Every inbound frame goes to the hub; the loop ends when the
	// client closes, the write side closes the transport, or the read
	// deadline expires without a pong.
	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.hub.Inbound(sessionID, raw)
	}

	return nil //nolint:nilerr // ReadMessage err is block-scoped; outer err is nil
}
