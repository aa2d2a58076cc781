// Package observability exposes Prometheus metrics for the monitor pipeline
// and serves them, a health check and optional pprof handlers over HTTP.
package observability
