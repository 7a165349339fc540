package hub

import (
	"encoding/json"
	"fmt"
)

// messageKind enumerates the closed set of inbound message types. Routing is
// an exhaustive switch over this enum, so adding a message type is a
// compile-visible decision instead of a runtime map lookup.
type messageKind int

const (
	kindUnknown messageKind = iota
	kindAuthenticate
	kindSubscribe
	kindUnsubscribe
	kindPing
)

func (k messageKind) String() string {
	switch k {
	case kindAuthenticate:
		return "authenticate"
	case kindSubscribe:
		return "subscribe"
	case kindUnsubscribe:
		return "unsubscribe"
	case kindPing:
		return "ping"
	default:
		return "unknown"
	}
}

// inboundFrame is the superset of fields a client may send. The widget type
// used for snapshot lookup travels as widgetType; when absent, the widget
// identifier doubles as the type key.
type inboundFrame struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	WidgetID   string `json:"widgetId"`
	WidgetType string `json:"widgetType"`
}

func (f *inboundFrame) kind() messageKind {
	switch f.Type {
	case "authenticate":
		return kindAuthenticate
	case "subscribe":
		return kindSubscribe
	case "unsubscribe":
		return kindUnsubscribe
	case "ping":
		return kindPing
	default:
		return kindUnknown
	}
}

// snapshotType returns the key used for the post-subscribe snapshot lookup.
func (f *inboundFrame) snapshotType() string {
	if f.WidgetType != "" {
		return f.WidgetType
	}
	return f.WidgetID
}

func decodeFrame(raw []byte) (*inboundFrame, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return &frame, nil
}
