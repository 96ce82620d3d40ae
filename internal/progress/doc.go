// Package progress carries monitor milestones (run start/stop, cycles, item
// checks, alerts, session failures) from the loop to pluggable sinks. The Hub
// batches events on a background goroutine so the loop never blocks on a
// slow consumer.
package progress
