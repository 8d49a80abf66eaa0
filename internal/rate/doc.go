// Package rate provides Redis-backed fixed-window counters that bound how
// fast tickets are issued and polled.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - lri: ticket issuance per client IP
//   - lrp: polls per ticket
//
// # What this package must NOT do
//
//   - Decide what a throttled caller sees (the engine maps ErrRateLimited).
//   - Be imported outside this module.
package rate
