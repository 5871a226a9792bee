// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session starts, outcomes and reconnect attempts
//   - Decoded frames by kind
//   - Published records and publish or trace failures
//   - Bridge queue depth and overflow drops
package metrics
