// Package hub implements the real-time push core using the actor pattern.
//
// A single goroutine owns both the session registry and the widget
// subscription index, so the forward and reverse mappings are always mutated
// together in one critical section. Everything else talks to the actor
// through a command channel (no mutexes). Per-connection write goroutines
// absorb slow clients so one stalled consumer never delays the fan-out to
// the rest.
package hub
