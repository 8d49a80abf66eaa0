package lifehelper

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override fields; [Builder.Build] validates it.
type Config struct {
	Ticket     TicketConfig
	Credential CredentialConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TICKET CONFIG
====================================
*/

// TicketConfig controls QR login ticket lifetime and key layout.
type TicketConfig struct {
	TTL              time.Duration
	RedisPrefix      string
	ImageRedisPrefix string
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig controls the shared upstream access credential.
// RefreshInterval and MinTTL only apply when a refresher is running.
type CredentialConfig struct {
	RedisKey        string
	FetchTimeout    time.Duration
	RefreshInterval time.Duration
	MinTTL          time.Duration
	CycleTimeout    time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session token minting.
type JWTConfig struct {
	SessionTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds issuance per client IP and polling per ticket.
// Both are fixed windows kept in Redis.
type RateLimitConfig struct {
	EnableIssueThrottle bool
	MaxIssuesPerIP      int
	IssueWindow         time.Duration
	EnablePollThrottle  bool
	MaxPollsPerTicket   int
	PollWindow          time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Ticket: TicketConfig{
			TTL:              120 * time.Second,
			RedisPrefix:      "lqt",
			ImageRedisPrefix: "lqi",
		},
		Credential: CredentialConfig{
			RedisKey:        "weixin:token",
			FetchTimeout:    10 * time.Second,
			RefreshInterval: 10 * time.Minute,
			MinTTL:          1000 * time.Second,
			CycleTimeout:    30 * time.Second,
		},
		JWT: JWTConfig{
			SessionTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "life-helper",
		},
		RateLimit: RateLimitConfig{
			EnableIssueThrottle: true,
			MaxIssuesPerIP:      20,
			IssueWindow:         time.Minute,
			EnablePollThrottle:  true,
			MaxPollsPerTicket:   240,
			PollWindow:          2 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// Ticket
	if c.Ticket.TTL < time.Second {
		return errors.New("Ticket TTL must be >= 1s")
	}
	if c.Ticket.TTL > time.Hour {
		return errors.New("Ticket TTL must be <= 1h")
	}
	if strings.TrimSpace(c.Ticket.RedisPrefix) == "" {
		return errors.New("Ticket RedisPrefix is required")
	}
	if strings.TrimSpace(c.Ticket.ImageRedisPrefix) == "" {
		return errors.New("Ticket ImageRedisPrefix is required")
	}
	if c.Ticket.RedisPrefix == c.Ticket.ImageRedisPrefix {
		return errors.New("Ticket RedisPrefix and ImageRedisPrefix must differ")
	}

	// Credential
	if strings.TrimSpace(c.Credential.RedisKey) == "" {
		return errors.New("Credential RedisKey is required")
	}
	if c.Credential.FetchTimeout <= 0 {
		return errors.New("Credential FetchTimeout must be > 0")
	}
	if c.Credential.RefreshInterval <= 0 {
		return errors.New("Credential RefreshInterval must be > 0")
	}
	if c.Credential.MinTTL < 0 {
		return errors.New("Credential MinTTL must be >= 0")
	}
	if c.Credential.CycleTimeout <= 0 {
		return errors.New("Credential CycleTimeout must be > 0")
	}

	// JWT
	if c.JWT.SessionTTL <= 0 {
		return errors.New("JWT SessionTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Rate limits
	if c.RateLimit.EnableIssueThrottle {
		if c.RateLimit.MaxIssuesPerIP <= 0 {
			return errors.New("RateLimit MaxIssuesPerIP must be > 0 when issue throttle is enabled")
		}
		if c.RateLimit.IssueWindow <= 0 {
			return errors.New("RateLimit IssueWindow must be > 0 when issue throttle is enabled")
		}
	}
	if c.RateLimit.EnablePollThrottle {
		if c.RateLimit.MaxPollsPerTicket <= 0 {
			return errors.New("RateLimit MaxPollsPerTicket must be > 0 when poll throttle is enabled")
		}
		if c.RateLimit.PollWindow <= 0 {
			return errors.New("RateLimit PollWindow must be > 0 when poll throttle is enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
