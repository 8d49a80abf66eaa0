// Package credential keeps one upstream access credential valid for every
// caller of the service.
//
// The credential lives under a single Redis key. A write is one SET with a
// PX expiry, so value and lifetime are replaced together and readers never
// observe a value without its TTL. [Manager] reads through the cache and
// fetches from an [Issuer] on a miss. [Refresher] runs on its own goroutine
// and replaces the value before it expires or once the upstream stops
// accepting it.
//
// # Concurrency
//
// Callers in one process that race an empty cache are collapsed into a
// single upstream fetch. Separate processes may each fetch; the last SET
// wins and every value written is one the upstream issued. No lock is held
// across an upstream call.
//
// # What this package must NOT do
//
//   - Import the root package.
//   - Return a value whose TTL has already elapsed.
//   - Stop the refresh loop because one cycle failed.
package credential
