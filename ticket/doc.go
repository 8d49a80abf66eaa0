// Package ticket implements the Redis-backed store for QR login tickets and
// the closed status enumeration that drives the login state machine.
//
// # Storage
//
// Each ticket lives in one Redis hash with a PEXPIRE set at issuance. Status
// transitions run as a single Lua script that compares the current status
// with the expected predecessor and writes the successor. HSET never touches
// the key TTL, so a transition keeps the remaining lifetime of the ticket.
//
// # Architecture boundaries
//
// This package owns persistence and per-ticket linearizability. It does NOT
// generate ticket IDs, render QR artifacts, mint session tokens or decide
// what a poller is allowed to see. Those belong to the root engine and
// internal/flows.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Reset a ticket TTL after issuance.
//   - Persist the synthetic INVALID status.
package ticket
