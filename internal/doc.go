// Package internal contains helpers private to goSession: session handle
// generation, refresh token encoding and anti-CSRF token generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis-backed fixed-window counters
//
// Nothing here may import goSession or appear in its public API.
package internal
