// Package api hosts the HTTP control surface for the monitor. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/run and /v1/stop to start and stop the monitoring loop.
//   - GET /v1/status, /v1/logs and /v1/events for read-only views of the
//     current run, the log tail and recent progress events.
package api
