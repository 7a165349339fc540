// Package server exposes the HTTP surface: the WebSocket endpoint that
// feeds the hub, plus health, metrics, and version endpoints. It also
// enforces connection admission limits before a socket is upgraded.
package server
