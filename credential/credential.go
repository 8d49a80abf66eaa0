package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredential is returned by an [Issuer] or [Prober] when the
	// upstream rejects the credential itself (expired, revoked, wrong app).
	ErrInvalidCredential = errors.New("upstream rejected credential")
	// ErrUpstreamUnavailable is returned when the upstream cannot be reached
	// or answered with a transient failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStoreUnavailable wraps Redis failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrInvalidCredentialTTL is returned when an issuer hands out a value
	// that is already expired.
	ErrInvalidCredentialTTL = errors.New("credential ttl must be positive")
)

// Credential is one value issued by the upstream together with the
// lifetime it declared.
type Credential struct {
	Value string
	TTL   time.Duration
}

// Issuer fetches a fresh credential from the upstream.
type Issuer interface {
	IssueCredential(ctx context.Context) (Credential, error)
}

// Prober checks that the upstream still accepts value. It returns nil,
// an error wrapping [ErrInvalidCredential], or one wrapping
// [ErrUpstreamUnavailable].
type Prober interface {
	Probe(ctx context.Context, value string) error
}

// ProberFunc adapts a function to [Prober].
type ProberFunc func(ctx context.Context, value string) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, value string) error { return f(ctx, value) }
