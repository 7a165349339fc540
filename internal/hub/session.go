package hub

import "time"

// session is the server-side record of one live connection. A session starts
// unauthenticated; the gate binds a subject after credential verification,
// and only authenticated sessions may hold widget subscriptions. The widgets
// set mirrors the reverse index and both are mutated together on the actor
// goroutine.
type session struct {
	id            string
	writer        *clientWriter
	authenticated bool
	subjectID     string
	widgets       map[string]struct{}
	connectedAt   time.Time
}
