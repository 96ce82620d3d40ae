// Package sinks implements progress consumers: Prometheus counters for
// /metrics, a debug log trace, and an in-memory tail for /v1/events.
package sinks
