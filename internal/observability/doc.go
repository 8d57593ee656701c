// Package observability provides structured logging and Prometheus metrics
// for the author digest service.
package observability
