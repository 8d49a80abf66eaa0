package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeIssuer struct {
	calls atomic.Int64
	ttl   time.Duration
	delay time.Duration
	err   error
}

func (f *fakeIssuer) IssueCredential(ctx context.Context) (Credential, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Credential{}, f.err
	}
	return Credential{Value: fmt.Sprintf("token-%d", n), TTL: f.ttl}, nil
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
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
	return NewCache(rdb, ""), mr
}

func TestTokenFetchesOnMissAndCaches(t *testing.T) {
	cache, mr := newTestCache(t)
	issuer := &fakeIssuer{ttl: 7200 * time.Second}
	m := NewManager(cache, issuer, ManagerConfig{})

	v1, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	v2, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if v1 != "token-1" || v2 != v1 {
		t.Fatalf("expected cached token-1 twice, got %q and %q", v1, v2)
	}
	if issuer.calls.Load() != 1 {
		t.Fatalf("expected 1 issuer call, got %d", issuer.calls.Load())
	}
	if ttl := mr.TTL(DefaultKey); ttl != 7200*time.Second {
		t.Fatalf("expected issuer ttl on key, got %v", ttl)
	}
}

// cancelAfterGet cancels a context once the first GET has been answered.
type cancelAfterGet struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (h *cancelAfterGet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *cancelAfterGet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() == "get" {
			h.once.Do(h.cancel)
		}
		return err
	}
}

func (h *cancelAfterGet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestTokenMissSurvivesCallerCancellation(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rdb.AddHook(&cancelAfterGet{cancel: cancel})

	issuer := &fakeIssuer{ttl: time.Hour}
	m := NewManager(NewCache(rdb, ""), issuer, ManagerConfig{})

	v, err := m.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed after caller cancellation: %v", err)
	}
	if v != "token-1" {
		t.Fatalf("expected token-1, got %q", v)
	}
	if ctx.Err() == nil {
		t.Fatalf("expected the caller context to be cancelled by the first GET")
	}
	if got, _ := mr.Get(DefaultKey); got != "token-1" {
		t.Fatalf("expected token-1 cached, got %q", got)
	}
}

func TestTokenNeverReturnsExpiredValue(t *testing.T) {
	cache, mr := newTestCache(t)
	issuer := &fakeIssuer{ttl: 10 * time.Second}
	m := NewManager(cache, issuer, ManagerConfig{})

	if _, err := m.Token(context.Background()); err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	mr.FastForward(11 * time.Second)

	v, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if v != "token-2" {
		t.Fatalf("expected a fresh fetch after expiry, got %q", v)
	}
}

func TestTokenRejectsNonPositiveTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	m := NewManager(cache, &fakeIssuer{ttl: 0}, ManagerConfig{})

	if _, err := m.Token(context.Background()); !errors.Is(err, ErrInvalidCredentialTTL) {
		t.Fatalf("expected ErrInvalidCredentialTTL, got %v", err)
	}
	if mr.Exists(DefaultKey) {
		t.Fatal("expired credential must not be cached")
	}
}

func TestTokenWrapsUnknownIssuerErrors(t *testing.T) {
	cache, _ := newTestCache(t)
	m := NewManager(cache, &fakeIssuer{err: errors.New("boom")}, ManagerConfig{})

	if _, err := m.Token(context.Background()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestConcurrentEmptyCacheCollapsesFetch(t *testing.T) {
	cache, _ := newTestCache(t)
	issuer := &fakeIssuer{ttl: time.Hour, delay: 20 * time.Millisecond}
	m := NewManager(cache, issuer, ManagerConfig{})

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	values := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := m.Token(context.Background())
			if err != nil {
				errs <- err
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)
	close(errs)

	for err := range errs {
		t.Fatalf("Token failed: %v", err)
	}
	for v := range values {
		if v != "token-1" {
			t.Fatalf("expected every caller to see token-1, got %q", v)
		}
	}
	if issuer.calls.Load() != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", issuer.calls.Load())
	}
}

func TestRefreshOverwritesValueAndTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	issuer := &fakeIssuer{ttl: time.Hour}
	var kinds []FetchKind
	m := NewManager(cache, issuer, ManagerConfig{OnFetch: func(kind FetchKind, err error) {
		if err == nil {
			kinds = append(kinds, kind)
		}
	}})

	if _, err := m.Token(context.Background()); err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	v, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if v != "token-2" {
		t.Fatalf("expected token-2, got %q", v)
	}
	got, _ := mr.Get(DefaultKey)
	if got != "token-2" {
		t.Fatalf("expected stored token-2, got %q", got)
	}
	if ttl := mr.TTL(DefaultKey); ttl != time.Hour {
		t.Fatalf("expected ttl reset to 1h, got %v", ttl)
	}
	if len(kinds) != 2 || kinds[0] != FetchOnMiss || kinds[1] != FetchRefresh {
		t.Fatalf("unexpected fetch kinds: %v", kinds)
	}
}

func TestCacheRemainingTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := cache.RemainingTTL(ctx); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := mr.Set(DefaultKey, "forever"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	ttl, ok, err := cache.RemainingTTL(ctx)
	if err != nil || !ok || ttl != 0 {
		t.Fatalf("expected key without expiry to report 0, got ttl=%v ok=%v err=%v", ttl, ok, err)
	}
}

func TestCacheStoreUnavailable(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	if _, _, err := cache.Get(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
