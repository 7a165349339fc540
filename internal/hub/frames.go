package hub

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Outbound frame types.
const (
	frameConnection           = "connection"
	frameAuthResult           = "auth_result"
	frameSubscriptionResult   = "subscription_result"
	frameUnsubscriptionResult = "unsubscription_result"
	framePong                 = "pong"
	frameWidgetUpdate         = "widget_update"
	frameError                = "error"
)

// connectionFrame is sent once right after the upgrade. It is the only
// outbound frame without a timestamp.
type connectionFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type authResultFrame struct {
	Type      string    `json:"type"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriptionResultFrame struct {
	Type      string    `json:"type"`
	Success   bool      `json:"success"`
	WidgetID  string    `json:"widgetId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type pongFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// widgetUpdateFrame carries both the post-subscribe snapshot and broadcast
// fan-out payloads.
type widgetUpdateFrame struct {
	Type      string    `json:"type"`
	WidgetID  string    `json:"widgetId"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type errorFrame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// marshalFrame encodes an outbound frame, returning nil on failure so send
// paths can treat it as a skipped delivery.
func marshalFrame(frame any) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal outbound frame", "error", err)
		return nil
	}
	return data
}
