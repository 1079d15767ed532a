// Package http exposes the REST API: run submission, listing, status,
// result and artifact queries, cancellation, plus /health and Prometheus
// /metrics.
package http
