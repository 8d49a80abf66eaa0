// Package internal holds helpers private to lifehelper: ticket id
// generation, validation and log redaction.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators behind every Engine operation
//   - rate: Redis-backed fixed-window limits for issuance and polling
//
// # What this package must NOT do
//
//   - Export types that appear in the public lifehelper API.
//   - Be imported by any package outside this module.
package internal
