// Package redis connects the service to the platform's Redis instance.
//
// Provides the client wrapper and the widget event subscriber that bridges
// backend data changes into the hub via pub/sub. The feed is optional; the
// service runs without it when REDIS_URL is unset.
package redis
