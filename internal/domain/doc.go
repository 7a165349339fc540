// Package domain defines the core domain types and interfaces.
//
// Contracts only - no implementation code. Interfaces live here on the
// consumer side to prevent circular imports between the hub, the data
// provider, and the transport adapters.
package domain
