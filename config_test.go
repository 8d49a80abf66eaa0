package lifehelper

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with hs256 secret",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "ticket ttl too short",
			mutate: func(c *Config) {
				c.Ticket.TTL = 500 * time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "ticket ttl too long",
			mutate: func(c *Config) {
				c.Ticket.TTL = 2 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "ticket prefix blank",
			mutate: func(c *Config) {
				c.Ticket.RedisPrefix = "  "
			},
			wantValid: false,
		},
		{
			name: "ticket and image prefix collide",
			mutate: func(c *Config) {
				c.Ticket.ImageRedisPrefix = c.Ticket.RedisPrefix
			},
			wantValid: false,
		},
		{
			name: "credential key blank",
			mutate: func(c *Config) {
				c.Credential.RedisKey = ""
			},
			wantValid: false,
		},
		{
			name: "credential min ttl zero allowed",
			mutate: func(c *Config) {
				c.Credential.MinTTL = 0
			},
			wantValid: true,
		},
		{
			name: "credential interval zero",
			mutate: func(c *Config) {
				c.Credential.RefreshInterval = 0
			},
			wantValid: false,
		},
		{
			name: "jwt short hs256 secret",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "jwt unsupported method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "jwt ed25519 without keys",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
			},
			wantValid: false,
		},
		{
			name: "jwt leeway too large",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt audience blank",
			mutate: func(c *Config) {
				c.JWT.Audience = "   "
			},
			wantValid: false,
		},
		{
			name: "issue throttle without budget",
			mutate: func(c *Config) {
				c.RateLimit.MaxIssuesPerIP = 0
			},
			wantValid: false,
		},
		{
			name: "issue throttle disabled ignores budget",
			mutate: func(c *Config) {
				c.RateLimit.EnableIssueThrottle = false
				c.RateLimit.MaxIssuesPerIP = 0
			},
			wantValid: true,
		},
		{
			name: "poll throttle without window",
			mutate: func(c *Config) {
				c.RateLimit.PollWindow = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] = 'X'

	if cfg.JWT.PrivateKey[0] == 'X' {
		t.Fatal("cloneConfig must deep-copy key material")
	}
}
