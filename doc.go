// Package lifehelper is the login engine of the life-helper server: QR
// ticket login, login by one-time code, and the shared upstream access
// credential behind both.
//
// Every piece of state lives in Redis so any number of server processes can
// serve one deployment. Engine methods are safe to call from multiple
// goroutines after initialization through [Builder.Build].
//
// # QR ticket login
//
// A requester calls [Engine.IssueTicket] and shows the returned artifact.
// A logged-in scanner moves the ticket through SCANNED and CONFIRMED with
// [Engine.MarkTicketScanned] and [Engine.ConfirmTicket]. The requester
// polls with [Engine.PollTicket] or [Engine.PollTicketLogin]; exactly one
// poll observes CONFIRMED and consumes the ticket. Unknown, expired and
// consumed tickets all answer INVALID.
//
// # Code login
//
// [Engine.LoginByExchangeCode] trades a one-time code for an external
// identity through an [IdentityExchanger], maps it to a local user with a
// [UserResolver] and mints a session token.
//
// # Upstream credential
//
// When a credential issuer is configured the engine keeps one access
// credential in Redis for all processes. A background refresher, started by
// [Engine.Start], replaces it before it expires or when the upstream stops
// accepting it.
//
// # Architecture boundaries
//
// lifehelper is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (MetricsSnapshot, SessionInfo, etc.). Flow
// orchestration, rate limiting and audit dispatch live under internal/ and
// are never exported.
package lifehelper
