package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// HubActiveSessions tracks the number of live client sessions
	HubActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_sessions",
			Help: "Number of live WebSocket client sessions",
		},
	)

	// HubActiveWidgets tracks the number of widgets with at least one subscriber
	HubActiveWidgets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_widgets",
			Help: "Number of widgets with at least one subscriber",
		},
	)

	// HubSubscriptionsTotal tracks subscribe/unsubscribe operations by action
	HubSubscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_subscriptions_total",
			Help: "Subscription operations by action (subscribe/unsubscribe)",
		},
		[]string{"action"},
	)

	// HubFramesReceivedTotal tracks inbound frames by declared type
	HubFramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_frames_received_total",
			Help: "Inbound frames by declared message type",
		},
		[]string{"type"},
	)

	// HubFrameErrorsTotal tracks rejected inbound frames by reason
	HubFrameErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_frame_errors_total",
			Help: "Rejected inbound frames by reason",
		},
		[]string{"reason"},
	)

	// HubCommandChannelDepth tracks pending commands in the hub actor queue
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Pending commands in the hub actor queue",
		},
	)
)

// Authentication Metrics
var (
	// AuthAttemptsTotal tracks authentication attempts by result
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Authentication attempts by result (success/failure/missing/already_authenticated)",
		},
		[]string{"result"},
	)
)

// Broadcast Metrics
var (
	// BroadcastUpdatesDeliveredTotal tracks widget update frames delivered to clients
	BroadcastUpdatesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_updates_delivered_total",
			Help: "Widget update frames delivered to clients",
		},
	)

	// BroadcastSendFailuresTotal tracks deliveries skipped because a client could not accept them
	BroadcastSendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_send_failures_total",
			Help: "Deliveries skipped because a client send buffer was full or its writer stopped",
		},
	)

	// SnapshotDeliveriesTotal tracks post-subscribe snapshot deliveries by result
	SnapshotDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_deliveries_total",
			Help: "Post-subscribe snapshot deliveries by result (delivered/missing/session_gone)",
		},
		[]string{"result"},
	)
)

// WebSocket Transport Metrics
var (
	// WebSocketPingFailures tracks failed protocol-level pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Failed WebSocket protocol pings (client likely disconnected)",
		},
	)

	// WebSocketIdleDisconnects tracks connections closed for inactivity
	WebSocketIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_idle_disconnects_total",
			Help: "Connections closed after exceeding the idle timeout",
		},
	)

	// WebSocketConnectionsRejectedTotal tracks connections rejected by admission control
	WebSocketConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Connections rejected by admission control, by limiter",
		},
		[]string{"limiter"},
	)
)

// Event Feed Metrics
var (
	// WidgetEventsReceivedTotal tracks widget events consumed from Redis by status
	WidgetEventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_events_received_total",
			Help: "Widget events consumed from the Redis feed by status (ok/malformed)",
		},
		[]string{"status"},
	)
)
