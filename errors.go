package lifehelper

import "errors"

var (
	// ErrTicketNotFound is returned when a ticket was never issued or its TTL elapsed.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrInvalidTransition is returned when a ticket is not in the predecessor status of the requested step.
	ErrInvalidTransition = errors.New("invalid ticket transition")
	// ErrTicketRateLimited is returned when issuance or polling exceeds its configured budget.
	ErrTicketRateLimited = errors.New("ticket rate limited")
	// ErrStoreUnavailable is returned when Redis or the user store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUpstreamUnavailable is returned when the upstream platform cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamInvalidCredential is returned when the upstream rejects the cached access credential.
	ErrUpstreamInvalidCredential = errors.New("upstream credential invalid")
	// ErrExchangeCodeInvalid is returned when the upstream rejects a login code.
	ErrExchangeCodeInvalid = errors.New("exchange code invalid")
	// ErrInvalidIdentity is returned for an empty or malformed user or external identity.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrSessionMintFailed is returned when a session token cannot be signed.
	ErrSessionMintFailed = errors.New("session mint failed")
	// ErrUnauthorized is returned when a session token is missing, expired, or does not verify.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEngineNotReady is returned when an operation needs a collaborator the engine was built without.
	ErrEngineNotReady = errors.New("engine not initialized")
)
