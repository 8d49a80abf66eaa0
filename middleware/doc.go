// Package middleware exposes HTTP middleware adapters for the life-helper
// login engine.
//
// # Middleware
//
//   - [Guard] verifies the bearer session token and injects the session.
//   - [ClientMeta] carries client IP and User-Agent into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.ValidateSessionToken.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware
