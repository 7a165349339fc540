package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/origbo/logware-security-platform-sub010/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	idleTimeout       = 5 * time.Minute
	idleWarningTime   = 4 * time.Minute // Warn 1 minute before disconnect
	messageBufferSize = 16
)

// clientWriter owns the write side of one connection. No other component
// writes to the transport. It also drives server-initiated liveness:
// protocol pings on an interval, a pong read deadline, and an idle timeout
// so a dead client cannot occupy a session indefinitely.
type clientWriter struct {
	connection    *websocket.Conn
	clock         clockwork.Clock
	sendChannel   chan []byte
	doneChannel   chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	lastActivity  time.Time
	activityMutex sync.Mutex
	warningSent   bool
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		connection:   connection,
		clock:        clock,
		sendChannel:  make(chan []byte, messageBufferSize),
		doneChannel:  make(chan struct{}),
		lastActivity: clock.Now(),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue offers a frame to the write pump without blocking. A full buffer
// means the client is not keeping up; the delivery is skipped.
func (cw *clientWriter) enqueue(msg []byte) bool {
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = cw.connection.Close()
				return
			}
		case <-ticker.Chan():
			if cw.checkIdleTimeout() {
				// Closing the transport unblocks the read loop, which
				// drives the full session teardown.
				_ = cw.connection.Close()
				return
			}

			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		// Signal the run goroutine to exit and wait for it, so the close
		// frame below is never a concurrent write.
		close(cw.doneChannel)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		cw.recordActivity()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}

func (cw *clientWriter) updateReadDeadline() {
	deadline := cw.clock.Now().Add(pongDeadline)
	_ = cw.connection.SetReadDeadline(deadline)
}

// recordActivity updates the last activity timestamp. Called on pongs and on
// every inbound frame.
func (cw *clientWriter) recordActivity() {
	cw.activityMutex.Lock()
	defer cw.activityMutex.Unlock()
	cw.lastActivity = cw.clock.Now()
	cw.warningSent = false
	cw.updateReadDeadline()
}

// checkIdleTimeout checks if the connection is idle and sends a warning or
// signals disconnect. Returns true if the connection should be terminated.
func (cw *clientWriter) checkIdleTimeout() bool {
	cw.activityMutex.Lock()
	idleDuration := cw.clock.Since(cw.lastActivity)
	warningSent := cw.warningSent
	cw.activityMutex.Unlock()

	if idleDuration >= idleTimeout {
		metrics.WebSocketIdleDisconnects.Inc()
		return true
	}

	if !warningSent && idleDuration >= idleWarningTime {
		warning := []byte(`{"type":"error","message":"Connection idle. Will disconnect if no activity within 1 minute."}`)
		cw.updateWriteDeadline()
		if err := cw.connection.WriteMessage(websocket.TextMessage, warning); err == nil {
			cw.activityMutex.Lock()
			cw.warningSent = true
			cw.activityMutex.Unlock()
		}
	}

	return false
}
