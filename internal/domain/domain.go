package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// WidgetDataProvider returns the initial snapshot delivered to a client right
// after a successful subscription. In production this would be backed by the
// aggregation pipeline; the in-process provider serves canned snapshots.
type WidgetDataProvider interface {
	// Snapshot returns the current snapshot for a widget type. ok is false
	// when the provider has nothing for that type; the caller must then skip
	// the initial delivery without treating it as an error.
	Snapshot(ctx context.Context, widgetType string) (data any, ok bool)
}

// TokenVerifier checks a presented credential against the shared secret and
// returns the subject identity bound in its claims.
type TokenVerifier interface {
	Verify(token string) (subject string, err error)
}

// WidgetEvent is an externally produced "widget data changed" notification,
// consumed from the Redis event channel and fanned out to subscribers.
type WidgetEvent struct {
	WidgetID string          `json:"widgetId"`
	Data     json.RawMessage `json:"data"`
}

// Authentication errors surfaced by the gate.
var (
	ErrMissingCredential    = errors.New("missing credential")
	ErrAuthenticationFailed = errors.New("authentication failed")
)
