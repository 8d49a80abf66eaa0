package lifehelper

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sengeiou/life-helper-server/credential"
	"github.com/sengeiou/life-helper-server/weixin"
)

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type fakeResources struct {
	calls atomic.Int64
	err   error
}

func (f *fakeResources) TicketResource(_ context.Context, ticketID string, _ time.Duration) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "https://qr.example.test/" + ticketID, nil
}

type fakeExchanger struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (f *fakeExchanger) ExchangeCodeForIdentity(_ context.Context, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	openid, ok := f.codes[code]
	if !ok {
		return "", weixin.ErrCodeInvalid
	}
	delete(f.codes, code)
	return openid, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	ids   map[string]string
	calls int
}

func (f *fakeUsers) ResolveOrCreateLocalUser(_ context.Context, externalID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.ids == nil {
		f.ids = map[string]string{}
	}
	if id, ok := f.ids[externalID]; ok {
		return id, nil
	}
	id := strconv.Itoa(100 + len(f.ids))
	f.ids[externalID] = id
	return id, nil
}

type fakeIssuer struct {
	calls atomic.Int64
	ttl   time.Duration
	delay time.Duration
	err   error
}

func (f *fakeIssuer) IssueCredential(ctx context.Context) (credential.Credential, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return credential.Credential{}, ctx.Err()
		}
	}
	if f.err != nil {
		return credential.Credential{}, f.err
	}
	ttl := f.ttl
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return credential.Credential{Value: "cred-" + strconv.FormatInt(n, 10), TTL: ttl}, nil
}

type testEngineOptions struct {
	mutate    func(*Config)
	resources ResourceProvider
	issuer    credential.Issuer
	prober    credential.Prober
	sink      AuditSink
	exchanger *fakeExchanger
	users     *fakeUsers
}

func newTestEngine(t *testing.T, opts testEngineOptions) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := validTestConfig()
	if opts.mutate != nil {
		opts.mutate(&cfg)
	}
	if opts.resources == nil {
		opts.resources = &fakeResources{}
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithResourceProvider(opts.resources).
		WithoutRefresher()
	if opts.exchanger != nil || opts.users != nil {
		b = b.WithIdentityExchanger(opts.exchanger).WithUserResolver(opts.users)
	}
	if opts.issuer != nil {
		b = b.WithCredentialIssuer(opts.issuer)
	}
	if opts.prober != nil {
		b = b.WithCredentialProber(opts.prober)
	}
	if opts.sink != nil {
		b = b.WithAuditSink(opts.sink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr
}

func TestBuildRequiresCollaborators(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := validTestConfig()

	if _, err := New().WithConfig(cfg).WithResourceProvider(&fakeResources{}).Build(); err == nil {
		t.Fatal("expected missing redis to fail")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing resource provider to fail")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).
		WithResourceProviderFunc(func(*credential.Manager) ResourceProvider { return &fakeResources{} }).
		Build(); err == nil {
		t.Fatal("expected resource func without issuer to fail")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithResourceProvider(&fakeResources{}).
		WithIdentityExchanger(&fakeExchanger{}).
		Build(); err == nil {
		t.Fatal("expected exchanger without resolver to fail")
	}
	if _, err := New().WithRedis(rdb).WithResourceProvider(&fakeResources{}).Build(); err == nil {
		t.Fatal("expected default config without signing keys to fail")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(validTestConfig()).WithRedis(rdb).WithResourceProvider(&fakeResources{})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildResourceFuncReceivesManager(t *testing.T) {
	_, rdb := newTestRedis(t)

	var got *credential.Manager
	engine, err := New().
		WithConfig(validTestConfig()).
		WithRedis(rdb).
		WithCredentialIssuer(&fakeIssuer{}).
		WithResourceProviderFunc(func(m *credential.Manager) ResourceProvider {
			got = m
			return &fakeResources{}
		}).
		WithoutRefresher().
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if got == nil || got != engine.Credentials() {
		t.Fatal("expected resource func to receive the engine credential manager")
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.IssueTicket(ctx); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.PollTicket(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.LoginByExchangeCode(ctx, "code"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.CredentialToken(ctx); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}

func TestHealthReportsRedisAndCredential(t *testing.T) {
	engine, mr := newTestEngine(t, testEngineOptions{issuer: &fakeIssuer{}})
	ctx := context.Background()

	h := engine.Health(ctx)
	if !h.Redis || h.CredentialReady || h.RefresherActive {
		t.Fatalf("unexpected health before fetch: %+v", h)
	}

	if _, err := engine.CredentialToken(ctx); err != nil {
		t.Fatalf("CredentialToken failed: %v", err)
	}
	h = engine.Health(ctx)
	if !h.CredentialReady || h.CredentialTTL <= 0 {
		t.Fatalf("expected credential ready, got %+v", h)
	}

	mr.Close()
	if h := engine.Health(ctx); h.Redis {
		t.Fatal("expected redis down after miniredis close")
	}
}

func TestStartRunsRefresher(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := validTestConfig()
	cfg.Credential.RefreshInterval = time.Hour

	issuer := &fakeIssuer{}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithResourceProvider(&fakeResources{}).
		WithCredentialIssuer(issuer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for issuer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if issuer.calls.Load() == 0 {
		t.Fatal("expected refresher to fetch on start")
	}
	if !engine.Health(ctx).RefresherActive {
		t.Fatal("expected refresher to report active")
	}

	engine.Close()
	engine.Close()
	if engine.Health(context.Background()).RefresherActive {
		t.Fatal("expected refresher stopped after Close")
	}
}

func TestSecurityReport(t *testing.T) {
	engine, _ := newTestEngine(t, testEngineOptions{
		exchanger: &fakeExchanger{},
		users:     &fakeUsers{},
	})

	r := engine.SecurityReport()
	if r.SigningAlgorithm != "hs256" || r.TicketTTL != 120*time.Second {
		t.Fatalf("unexpected report: %+v", r)
	}
	if !r.IssueThrottleActive || !r.PollThrottleActive || !r.CodeLoginEnabled {
		t.Fatalf("expected throttles and code login active: %+v", r)
	}
	if r.CredentialCache || r.CredentialRefresher {
		t.Fatalf("expected no credential cache: %+v", r)
	}
}
