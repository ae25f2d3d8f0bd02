// Package api implements the HTTP REST API and WebSocket server for Mood Core.
//
// This package provides:
//   - REST endpoints for connection control, topic subscriptions and the lamp
//   - WebSocket hub broadcasting connection events, inbound messages and
//     lamp state changes
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Graceful Degradation
//
// The server runs whether or not the broker is reachable. History endpoints
// answer 503 when SQLite storage is disabled, and /health reports each
// configured backing store separately.
package api
