// Package observability provides structured logging, Prometheus metrics,
// and health checks for the warden service.
//
// Logging is JSON-structured via stdlib slog with request and editing-session
// IDs carried through context. Metrics cover HTTP traffic, staging ledger
// operations, and review/commit outcomes.
package observability
