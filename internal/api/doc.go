// Package api implements the HTTP REST API and WebSocket server for relay.
//
// This package provides:
//   - Binding endpoints: list, inspect, trigger by name or shortcut, reload
//   - Target endpoints: list and ping
//   - Variable store endpoints: list, get, set, delete
//   - The audit trail
//   - A WebSocket hub broadcasting trigger.completed and bindings.reloaded
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Security
//
// Protected routes take an HS256 bearer token signed with
// security.jwt.secret; "relay token" mints one. Each route checks the
// caller's role against an auth.Permission. WebSocket connections use
// single-use tickets from POST /auth/ws-ticket so the token never appears
// in a URL.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
