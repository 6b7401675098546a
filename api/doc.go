// Package api defines the request and response bodies of the AgentRoom HTTP
// API.
//
// # API Overview
//
// AgentRoom exposes a small RESTful API plus a websocket stream:
//   - POST   /api/v1/scopes/{scope}/trigger  start a run for a scope
//   - DELETE /api/v1/scopes/{scope}          stop the scope's run and delete its room
//   - GET    /api/v1/scopes/{scope}          room attached to a scope
//   - GET    /api/v1/rooms                   list rooms (?source=mirror reads Redis)
//   - GET    /api/v1/rooms/{id}              one room
//   - GET    /ws?scope={scope}               live messages, handovers and membership events
//   - GET    /health, /ready, /version, /metrics
//
// Every JSON response except the probes uses the envelope of
// handlers.Response: success, data or error, timestamp and request id.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
