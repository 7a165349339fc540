package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/origbo/logware-security-platform-sub010/internal/logging"
)

// registry owns the sessionID -> session mapping. It is a plain data
// structure: the hub actor goroutine is its only reader and writer.
type registry struct {
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

// create allocates a fresh session id and stores an unauthenticated session.
func (r *registry) create(writer *clientWriter, now time.Time) *session {
	s := &session{
		id:          uuid.NewString(),
		writer:      writer,
		widgets:     make(map[string]struct{}),
		connectedAt: now,
	}
	r.sessions[s.id] = s
	return s
}

// get reports an absent session as a normal outcome; callers routinely look
// up sessions that have just disconnected.
func (r *registry) get(sessionID string) (*session, bool) {
	s, ok := r.sessions[sessionID]
	return s, ok
}

// remove is idempotent; removing an absent session is a no-op.
func (r *registry) remove(sessionID string) {
	delete(r.sessions, sessionID)
}

func (r *registry) len() int {
	return len(r.sessions)
}

// trySend delivers a frame best-effort: absent session, nil frame, or a full
// send buffer all result in a skipped delivery, never an error. Send
// failures are logged and must leave registry state untouched - this is
// called from inside the broadcast fan-out.
func (r *registry) trySend(sessionID string, frame []byte) bool {
	if frame == nil {
		return false
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if !s.writer.enqueue(frame) {
		logging.WithSession(sessionID).Warn("Dropping frame for slow or stopped client")
		return false
	}
	return true
}
