// Package api implements the HTTP REST API and WebSocket server for Keyless Core.
//
// This package provides:
//   - REST endpoints for lock CRUD, state transitions, and PIN management
//   - Auth endpoints for login, refresh token rotation, and session introspection
//   - WebSocket hub for real-time lock state broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces (mobile apps, web admin) and
// the lock registry + MQTT bus. Lock state changes fan out two ways: to
// WebSocket clients subscribed to "lock.state_changed", and as retained MQTT
// messages on keyless/locks/{id}/state for lock firmware and integrations.
// Battery reports flow inbound on keyless/locks/{id}/battery.
//
// # Security
//
// Every protected route requires a valid JWT access token. The middleware
// verifies the signature and expiry, then loads the account and rejects
// disabled users; handlers receive the caller's identity through the request
// context and never trust IDs from request bodies. Credential and transition
// operations additionally pass the access service's ownership gate.
//
// PIN material never leaves the boundary: no response payload, log line, or
// error message carries a PIN or a PIN hash.
//
// WebSocket connections authenticate with single-use tickets so tokens are
// never exposed in URLs.
//
// # Graceful Degradation
//
// The server operates without MQTT and InfluxDB. Lock operations and
// WebSocket connections keep working; only firmware fan-out and telemetry
// are disabled.
package api
