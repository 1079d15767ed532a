// Package websocket streams run and stage lifecycle events to clients
// connected at /api/v1/runs/:id/ws.
package websocket
