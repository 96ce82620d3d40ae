// Package monitor runs the stock-watch loop. An Orchestrator owns one run at a
// time: it opens a rendering session, scans every watched item in order with
// per-item failure isolation, closes the session, then waits out a randomized
// backoff before the next cycle. Stop requests are observed cooperatively at
// checkpoints between steps and inside every wait.
package monitor
