package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/origbo/logware-security-platform-sub010/internal/domain"
	"github.com/origbo/logware-security-platform-sub010/internal/metrics"
)

// widgetEventsChannel carries widget data changes from the platform's
// backend services. Every service instance subscribes, so an event reaches
// the subscribers of all instances.
const widgetEventsChannel = "widgets:events"

// WidgetPublisher fans a widget update out to its subscribers.
type WidgetPublisher interface {
	Publish(widgetID string, payload any) int
}

// EventSubscriber bridges Redis pub/sub widget events into the hub.
type EventSubscriber struct {
	client    *Client
	publisher WidgetPublisher
}

func NewEventSubscriber(client *Client, publisher WidgetPublisher) *EventSubscriber {
	return &EventSubscriber{client: client, publisher: publisher}
}

// Start consumes widget events until ctx is cancelled. Malformed events are
// counted and skipped; the loop never stops on a bad payload.
func (es *EventSubscriber) Start(ctx context.Context) {
	sub := es.client.rdb.Subscribe(ctx, widgetEventsChannel)
	defer sub.Close()

	slog.Info("Widget event subscriber started", "channel", widgetEventsChannel)

	msgCh := sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				slog.Warn("Widget event channel closed")
				return
			}

			event, err := decodeWidgetEvent([]byte(msg.Payload))
			if err != nil {
				metrics.WidgetEventsReceivedTotal.WithLabelValues("malformed").Inc()
				slog.Warn("Dropping malformed widget event", "error", err)
				continue
			}

			metrics.WidgetEventsReceivedTotal.WithLabelValues("ok").Inc()
			delivered := es.publisher.Publish(event.WidgetID, event.Data)
			slog.Debug("Widget event forwarded", "widget_id", event.WidgetID, "delivered", delivered)

		case <-ctx.Done():
			slog.Info("Widget event subscriber stopping")
			return
		}
	}
}

func decodeWidgetEvent(payload []byte) (domain.WidgetEvent, error) {
	var event domain.WidgetEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.WidgetEvent{}, fmt.Errorf("failed to unmarshal widget event: %w", err)
	}
	if event.WidgetID == "" {
		return domain.WidgetEvent{}, fmt.Errorf("widget event missing widgetId")
	}
	return event, nil
}

// PublishWidgetEvent publishes a widget change to all service instances.
// Used by tests and operational tooling.
func PublishWidgetEvent(ctx context.Context, client *Client, event domain.WidgetEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal widget event: %w", err)
	}
	return client.rdb.Publish(ctx, widgetEventsChannel, data).Err()
}
