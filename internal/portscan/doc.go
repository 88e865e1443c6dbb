// Package portscan finds a free local TCP port within a configured range.
//
// Three pieces cooperate:
//
//   - Cache: a process-wide TTL cache of availability verdicts, so repeated
//     scans do not re-probe ports that recently answered.
//   - TCPProbe: one bind-then-release availability check with the outcome
//     classified explicitly (available, unavailable with reason, timed out).
//   - Scanner: orchestrates batched parallel probes over a range, with
//     per-candidate retries, exclusion sets, preferred-port fast paths, and
//     a deterministic array-position tie-break inside every batch.
//
// Determinism matters here: within a batch the winner is chosen after all
// probes settle, by candidate order rather than completion order, so scans
// are reproducible under test regardless of goroutine scheduling.
//
// The probe-then-release pattern is racy by nature. A port this package
// reports available can be taken by another process before the caller's real
// listen. The lifecycle manager owns that race: it blacklists ports that
// fail to bind and restarts with a fresh scan.
package portscan
