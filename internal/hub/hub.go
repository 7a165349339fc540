package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/origbo/logware-security-platform-sub010/internal/domain"
	"github.com/origbo/logware-security-platform-sub010/internal/logging"
	"github.com/origbo/logware-security-platform-sub010/internal/metrics"
)

const (
	commandTimeout  = 5 * time.Second // Actor command timeout
	snapshotTimeout = 2 * time.Second // Provider snapshot fetch timeout
	stopTimeout     = 10 * time.Second

	welcomeMessage  = "Connected to LogWare real-time service"
	shutdownMessage = "Server shutting down"
)

// Error messages surfaced to clients.
const (
	msgInvalidFormat     = "Invalid message format"
	msgUnsupportedType   = "Unsupported message type"
	msgAuthRequired      = "Authentication required"
	msgWidgetIDRequired  = "Widget ID is required"
	msgAuthSuccess       = "Authentication successful"
	msgAuthFailed        = "Authentication failed"
	msgMissingCredential = "Missing credential"
	msgAlreadyAuthed     = "Already authenticated"
	msgSubscribed        = "Subscribed"
	msgUnsubscribed      = "Unsubscribed"
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	replyChannel chan string
}

type inboundCmd struct {
	baseHubCmd
	sessionID string
	raw       []byte
}

type disconnectCmd struct {
	baseHubCmd
	sessionID string
}

type publishCmd struct {
	baseHubCmd
	widgetID     string
	payload      any
	replyChannel chan int
}

type deliverSnapshotCmd struct {
	baseHubCmd
	sessionID string
	widgetID  string
	data      any
}

type sessionStateCmd struct {
	baseHubCmd
	sessionID    string
	replyChannel chan SessionState
}

type subscriberCountCmd struct {
	baseHubCmd
	widgetID     string
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// SessionState is a read-only view of one session, used by tests and
// introspection endpoints.
type SessionState struct {
	Exists        bool
	Authenticated bool
	SubjectID     string
	Widgets       []string
}

// Hub is the push core: it owns every live session, the widget subscription
// index, the authentication gate, and the broadcast fan-out.
type Hub struct {
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	verifier domain.TokenVerifier
	provider domain.WidgetDataProvider
	registry *registry
	index    *subscriptionIndex
	done     chan struct{}
}

// New creates a hub and starts its actor goroutine.
// verifier checks presented credentials against the shared secret.
// provider serves the post-subscribe initial snapshots.
func New(verifier domain.TokenVerifier, provider domain.WidgetDataProvider, clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:    make(chan hubCmd, 256),
		clock:    clock,
		verifier: verifier,
		provider: provider,
		registry: newRegistry(),
		index:    newSubscriptionIndex(),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// Register creates a session for a freshly upgraded connection and sends the
// welcome frame. Returns the assigned session id.
func (h *Hub) Register(conn *websocket.Conn) (string, error) {
	replyCh := make(chan string, 1)
	h.cmdCh <- registerCmd{connection: conn, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case sessionID := <-replyCh:
		return sessionID, nil
	case <-timer.Chan():
		return "", fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Inbound hands one raw text frame from a connection's read loop to the
// dispatcher. Frames for sessions that no longer exist are dropped.
func (h *Hub) Inbound(sessionID string, raw []byte) {
	h.cmdCh <- inboundCmd{sessionID: sessionID, raw: raw}
}

// Disconnect tears the session down: it is removed from the registry and from
// every widget entry it appears in. Idempotent.
func (h *Hub) Disconnect(sessionID string) {
	h.cmdCh <- disconnectCmd{sessionID: sessionID}
}

// Publish fans a widget update out to the widget's current subscribers and
// returns the delivered count. Returns -1 if the command times out.
func (h *Hub) Publish(widgetID string, payload any) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- publishCmd{widgetID: widgetID, payload: payload, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case delivered := <-replyCh:
		return delivered
	case <-timer.Chan():
		slog.Warn("Publish timed out", "widget_id", widgetID, "timeout", commandTimeout)
		return -1
	}
}

// SessionState returns a read-only view of one session.
func (h *Hub) SessionState(sessionID string) SessionState {
	replyCh := make(chan SessionState, 1)
	h.cmdCh <- sessionStateCmd{sessionID: sessionID, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case state := <-replyCh:
		return state
	case <-timer.Chan():
		return SessionState{}
	}
}

// SubscriberCount returns the current subscriber count for a widget.
// Returns -1 if the command times out.
func (h *Hub) SubscriberCount(widgetID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- subscriberCountCmd{widgetID: widgetID, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		return -1
	}
}

// Stop shuts the hub down, sending close frames to every client. Blocks until
// the actor goroutine has exited or the timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAllSessions(shutdownMessage)
		}
	}()
	defer close(h.done)

	// Track command channel depth every second
	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			metrics.HubCommandChannelDepth.Set(float64(len(h.cmdCh)))

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case inboundCmd:
				h.handleInbound(c)
			case disconnectCmd:
				h.handleDisconnect(c.sessionID)
			case publishCmd:
				h.handlePublish(c)
			case deliverSnapshotCmd:
				h.handleDeliverSnapshot(c)
			case sessionStateCmd:
				c.replyChannel <- h.sessionState(c.sessionID)
			case subscriberCountCmd:
				c.replyChannel <- h.index.count(c.widgetID)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	writer := newClientWriter(c.connection, h.clock)
	s := h.registry.create(writer, h.clock.Now())

	metrics.HubActiveSessions.Set(float64(h.registry.len()))

	welcome := marshalFrame(connectionFrame{
		Type:      frameConnection,
		SessionID: s.id,
		Message:   welcomeMessage,
	})
	h.registry.trySend(s.id, welcome)

	logging.WithSession(s.id).Debug("Session registered", "total_sessions", h.registry.len())
	c.replyChannel <- s.id
}

func (h *Hub) handleInbound(c inboundCmd) {
	s, ok := h.registry.get(c.sessionID)
	if !ok {
		// Session torn down while the frame was in flight.
		return
	}

	s.writer.recordActivity()

	frame, err := decodeFrame(c.raw)
	if err != nil {
		metrics.HubFrameErrorsTotal.WithLabelValues("malformed").Inc()
		h.sendError(s, msgInvalidFormat)
		return
	}

	kind := frame.kind()
	metrics.HubFramesReceivedTotal.WithLabelValues(kind.String()).Inc()

	switch kind {
	case kindAuthenticate:
		h.authenticate(s, frame.Token)
	case kindSubscribe:
		h.subscribe(s, frame)
	case kindUnsubscribe:
		h.unsubscribe(s, frame.WidgetID)
	case kindPing:
		h.registry.trySend(s.id, marshalFrame(pongFrame{Type: framePong, Timestamp: h.clock.Now()}))
	case kindUnknown:
		metrics.HubFrameErrorsTotal.WithLabelValues("unsupported_type").Inc()
		h.sendError(s, msgUnsupportedType)
	}
}

// authenticate is the gate: it verifies the credential and binds the subject.
// Failures leave the session's state unchanged and keep the connection open
// so the client may retry. The result frame always goes back to the
// requesting session only.
func (h *Hub) authenticate(s *session, token string) {
	if s.authenticated {
		metrics.AuthAttemptsTotal.WithLabelValues("already_authenticated").Inc()
		h.sendAuthResult(s, true, msgAlreadyAuthed)
		return
	}

	switch err := h.verifyCredential(s, token); {
	case err == nil:
		metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
		logging.WithSubject(s.subjectID).Info("Session authenticated", "session_id", s.id)
		h.sendAuthResult(s, true, msgAuthSuccess)
	case errors.Is(err, domain.ErrMissingCredential):
		metrics.AuthAttemptsTotal.WithLabelValues("missing").Inc()
		h.sendAuthResult(s, false, msgMissingCredential)
	default:
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		slog.Warn("Authentication failed", "session_id", s.id, "error", err)
		h.sendAuthResult(s, false, msgAuthFailed)
	}
}

func (h *Hub) verifyCredential(s *session, token string) error {
	if token == "" {
		return domain.ErrMissingCredential
	}
	subject, err := h.verifier.Verify(token)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	s.authenticated = true
	s.subjectID = subject
	return nil
}

func (h *Hub) subscribe(s *session, frame *inboundFrame) {
	if !s.authenticated {
		metrics.HubFrameErrorsTotal.WithLabelValues("unauthenticated").Inc()
		h.sendError(s, msgAuthRequired)
		return
	}
	if frame.WidgetID == "" {
		metrics.HubFrameErrorsTotal.WithLabelValues("missing_widget_id").Inc()
		h.sendError(s, msgWidgetIDRequired)
		return
	}

	// Forward and reverse mappings mutate together on the actor goroutine.
	s.widgets[frame.WidgetID] = struct{}{}
	h.index.subscribe(frame.WidgetID, s.id)

	metrics.HubSubscriptionsTotal.WithLabelValues("subscribe").Inc()
	metrics.HubActiveWidgets.Set(float64(h.index.widgetCount()))

	h.registry.trySend(s.id, marshalFrame(subscriptionResultFrame{
		Type:      frameSubscriptionResult,
		Success:   true,
		WidgetID:  frame.WidgetID,
		Message:   msgSubscribed,
		Timestamp: h.clock.Now(),
	}))

	// The snapshot fetch happens off the actor goroutine; delivery re-enters
	// through a command so a since-disconnected session is a clean no-op.
	go h.fetchSnapshot(s.id, frame.WidgetID, frame.snapshotType())
}

func (h *Hub) fetchSnapshot(sessionID, widgetID, widgetType string) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	data, ok := h.provider.Snapshot(ctx, widgetType)
	if !ok {
		metrics.SnapshotDeliveriesTotal.WithLabelValues("missing").Inc()
		slog.Debug("No snapshot for widget type", "widget_type", widgetType)
		return
	}

	select {
	case h.cmdCh <- deliverSnapshotCmd{sessionID: sessionID, widgetID: widgetID, data: data}:
	case <-h.done:
	}
}

func (h *Hub) handleDeliverSnapshot(c deliverSnapshotCmd) {
	frame := marshalFrame(widgetUpdateFrame{
		Type:      frameWidgetUpdate,
		WidgetID:  c.widgetID,
		Data:      c.data,
		Timestamp: h.clock.Now(),
	})
	if h.registry.trySend(c.sessionID, frame) {
		metrics.SnapshotDeliveriesTotal.WithLabelValues("delivered").Inc()
	} else {
		metrics.SnapshotDeliveriesTotal.WithLabelValues("session_gone").Inc()
	}
}

// unsubscribe silently no-ops on a missing widget id instead of returning a
// validation error the way subscribe does; the dashboard client fires
// unsubscribe blindly during layout changes and treats any response as noise.
func (h *Hub) unsubscribe(s *session, widgetID string) {
	if widgetID == "" {
		return
	}

	delete(s.widgets, widgetID)
	h.index.unsubscribe(widgetID, s.id)

	metrics.HubSubscriptionsTotal.WithLabelValues("unsubscribe").Inc()
	metrics.HubActiveWidgets.Set(float64(h.index.widgetCount()))

	h.registry.trySend(s.id, marshalFrame(subscriptionResultFrame{
		Type:      frameUnsubscriptionResult,
		Success:   true,
		WidgetID:  widgetID,
		Message:   msgUnsubscribed,
		Timestamp: h.clock.Now(),
	}))
}

func (h *Hub) handlePublish(c publishCmd) {
	// Snapshot of the subscriber set at call time; joins and leaves during
	// the fan-out do not retroactively affect this publish.
	subscribers := h.index.subscribersOf(c.widgetID)

	frame := marshalFrame(widgetUpdateFrame{
		Type:      frameWidgetUpdate,
		WidgetID:  c.widgetID,
		Data:      c.payload,
		Timestamp: h.clock.Now(),
	})

	delivered := 0
	for _, sessionID := range subscribers {
		if h.registry.trySend(sessionID, frame) {
			delivered++
			metrics.BroadcastUpdatesDeliveredTotal.Inc()
		} else {
			metrics.BroadcastSendFailuresTotal.Inc()
		}
	}

	logging.WithWidget(c.widgetID).Debug("Widget update published", "subscribers", len(subscribers), "delivered", delivered)
	c.replyChannel <- delivered
}

func (h *Hub) handleDisconnect(sessionID string) {
	s, ok := h.registry.get(sessionID)
	if !ok {
		return
	}

	h.index.removeAll(sessionID, s.widgets)
	h.registry.remove(sessionID)
	s.writer.stop()

	metrics.HubActiveSessions.Set(float64(h.registry.len()))
	metrics.HubActiveWidgets.Set(float64(h.index.widgetCount()))

	logging.WithSession(sessionID).Info("Session closed", "subject_id", s.subjectID)
}

func (h *Hub) sessionState(sessionID string) SessionState {
	s, ok := h.registry.get(sessionID)
	if !ok {
		return SessionState{}
	}
	widgets := make([]string, 0, len(s.widgets))
	for widgetID := range s.widgets {
		widgets = append(widgets, widgetID)
	}
	return SessionState{
		Exists:        true,
		Authenticated: s.authenticated,
		SubjectID:     s.subjectID,
		Widgets:       widgets,
	}
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "sessions", h.registry.len())
	h.closeAllSessions(shutdownMessage)
	slog.Info("Hub shutdown complete")
}

func (h *Hub) sendError(s *session, message string) {
	h.registry.trySend(s.id, marshalFrame(errorFrame{
		Type:      frameError,
		Message:   message,
		Timestamp: h.clock.Now(),
	}))
}

func (h *Hub) sendAuthResult(s *session, success bool, message string) {
	h.registry.trySend(s.id, marshalFrame(authResultFrame{
		Type:      frameAuthResult,
		Success:   success,
		Message:   message,
		Timestamp: h.clock.Now(),
	}))
}

func (h *Hub) closeAllSessions(reason string) {
	for sessionID, s := range h.registry.sessions {
		h.index.removeAll(sessionID, s.widgets)
		h.registry.remove(sessionID)
		s.writer.stopGraceful(reason)
	}
	metrics.HubActiveSessions.Set(0)
	metrics.HubActiveWidgets.Set(0)
}
