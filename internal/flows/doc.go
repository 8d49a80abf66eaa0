// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssueTicket, RunPollTicket, RunExchangeLogin, etc.)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. The Engine builds the dependency structs once
// and stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the ticket store, resource provider,
// identity exchanger, user resolver, session minting, rate limiter, audit
// dispatcher and metrics. They do NOT own any of these resources. Ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
