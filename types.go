package lifehelper

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/sengeiou/life-helper-server/internal/audit"
	"github.com/sengeiou/life-helper-server/ticket"
)

// Login channels recorded in session tokens.
const (
	ChannelQRCode = "qrcode"
	ChannelWeixin = "weixin"
)

// ResourceProvider supplies the scannable artifact for a new ticket. The
// returned URL must stay reachable for at least ttl.
type ResourceProvider interface {
	TicketResource(ctx context.Context, ticketID string, ttl time.Duration) (string, error)
}

// IdentityExchanger trades a one-time login code for an external identity.
type IdentityExchanger interface {
	ExchangeCodeForIdentity(ctx context.Context, code string) (string, error)
}

// UserResolver maps an external identity to a stable local user id,
// creating the user on first sight. Concurrent first logins for the same
// identity must resolve to one id.
type UserResolver interface {
	ResolveOrCreateLocalUser(ctx context.Context, externalID string) (string, error)
}

// IssueResult is returned by [Engine.IssueTicket].
type IssueResult struct {
	TicketID    string
	ResourceURL string
	ExpiresAt   time.Time
}

// PollResult is returned by [Engine.PollTicket] and [Engine.PollTicketLogin].
// UserID is set only on the single poll that consumed the ticket.
// SessionToken is additionally set by PollTicketLogin on that poll.
type PollResult struct {
	Status       ticket.Status
	UserID       string
	SessionToken string
}

// LoginResult is returned by [Engine.LoginByExchangeCodeWithResult].
type LoginResult struct {
	SessionToken string
	UserID       string
	ExternalID   string
}

// SessionInfo is the verified content of a session token.
type SessionInfo struct {
	UserID    string
	Channel   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HealthStatus reports backend reachability for readiness probes.
type HealthStatus struct {
	Redis           bool
	RedisLatency    time.Duration
	CredentialTTL   time.Duration
	CredentialReady bool
	RefresherActive bool
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON lines to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs events through [slog].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger uses [slog.Default].
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
