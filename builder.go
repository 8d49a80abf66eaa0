package lifehelper

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/sengeiou/life-helper-server/credential"
	"github.com/sengeiou/life-helper-server/internal/audit"
	"github.com/sengeiou/life-helper-server/internal/rate"
	"github.com/sengeiou/life-helper-server/jwt"
	"github.com/sengeiou/life-helper-server/ticket"
)

// Builder collects engine collaborators. A Builder is single-use: call
// [Builder.Build] once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	resources        ResourceProvider
	resourcesFunc    func(*credential.Manager) ResourceProvider
	exchanger        IdentityExchanger
	users            UserResolver
	issuer           credential.Issuer
	prober           credential.Prober
	auditSink        AuditSink
	logger           *slog.Logger
	disableRefresher bool

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared Redis client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithResourceProvider sets the QR artifact source for new tickets.
func (b *Builder) WithResourceProvider(p ResourceProvider) *Builder {
	b.resources = p
	return b
}

// WithResourceProviderFunc defers provider construction until the
// credential manager exists, for providers that call the upstream with the
// shared credential. It overrides [Builder.WithResourceProvider].
func (b *Builder) WithResourceProviderFunc(fn func(*credential.Manager) ResourceProvider) *Builder {
	b.resourcesFunc = fn
	return b
}

// WithIdentityExchanger sets the login code exchanger.
func (b *Builder) WithIdentityExchanger(x IdentityExchanger) *Builder {
	b.exchanger = x
	return b
}

// WithUserResolver sets the external-to-local identity mapping.
func (b *Builder) WithUserResolver(r UserResolver) *Builder {
	b.users = r
	return b
}

// WithCredentialIssuer enables the shared upstream credential cache.
func (b *Builder) WithCredentialIssuer(issuer credential.Issuer) *Builder {
	b.issuer = issuer
	return b
}

// WithCredentialProber sets the liveness check used by the refresher.
func (b *Builder) WithCredentialProber(p credential.Prober) *Builder {
	b.prober = p
	return b
}

// WithoutRefresher builds the credential cache without a background
// refresher. Credentials are then only fetched on a cache miss.
func (b *Builder) WithoutRefresher() *Builder {
	b.disableRefresher = true
	return b
}

// WithAuditSink sets the audit destination. Events are only dispatched when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Nil means [slog.Default].
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.resources == nil && b.resourcesFunc == nil {
		return nil, errors.New("resource provider required")
	}
	if b.resourcesFunc != nil && b.issuer == nil {
		return nil, errors.New("resource provider func requires a credential issuer")
	}
	if (b.exchanger == nil) != (b.users == nil) {
		return nil, errors.New("identity exchanger and user resolver must be set together")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		redis:     b.redis,
		tickets:   ticket.NewStore(b.redis, cfg.Ticket.RedisPrefix),
		exchanger: b.exchanger,
		users:     b.users,
		logger:    logger,
		hasProber: b.prober != nil,
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIssueThrottle: cfg.RateLimit.EnableIssueThrottle,
		MaxIssuesPerIP:      cfg.RateLimit.MaxIssuesPerIP,
		IssueWindow:         cfg.RateLimit.IssueWindow,
		EnablePollThrottle:  cfg.RateLimit.EnablePollThrottle,
		MaxPollsPerTicket:   cfg.RateLimit.MaxPollsPerTicket,
		PollWindow:          cfg.RateLimit.PollWindow,
	})
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- SESSION TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.JWT.SessionTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.jwtManager = jm

	// -------- UPSTREAM CREDENTIAL --------
	if b.issuer != nil {
		engine.credentials = credential.NewManager(
			credential.NewCache(b.redis, cfg.Credential.RedisKey),
			b.issuer,
			credential.ManagerConfig{
				FetchTimeout: cfg.Credential.FetchTimeout,
				OnFetch:      engine.onCredentialFetch,
			},
		)
		if !b.disableRefresher {
			engine.refresher = credential.NewRefresher(engine.credentials, credential.RefresherConfig{
				Interval:     cfg.Credential.RefreshInterval,
				MinTTL:       cfg.Credential.MinTTL,
				CycleTimeout: cfg.Credential.CycleTimeout,
				Prober:       b.prober,
				Logger:       logger,
				OnCycle:      engine.onRefresherCycle,
			})
		}
	}

	engine.resources = b.resources
	if b.resourcesFunc != nil {
		engine.resources = b.resourcesFunc(engine.credentials)
		if engine.resources == nil {
			engine.audit.Close()
			return nil, errors.New("resource provider func returned nil")
		}
	}

	engine.flow = engine.buildFlows()

	b.built = true

	return engine, nil
}
