package qrimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sengeiou/life-helper-server/credential"
	"github.com/sengeiou/life-helper-server/weixin"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
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
	return NewStore(rdb, ""), mr
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestRendererStoresPNGWithTicketTTL(t *testing.T) {
	store, mr := newTestStore(t)
	r := NewRenderer(store, RendererConfig{
		PublicBaseURL: "https://api.example.test/",
		LinkPrefix:    "lifehelper://scan?ticket=",
	})

	url, err := r.TicketResource(context.Background(), "abc123", 2*time.Minute)
	if err != nil {
		t.Fatalf("TicketResource failed: %v", err)
	}
	if url != "https://api.example.test/login/qrcode/image/abc123" {
		t.Fatalf("unexpected url %q", url)
	}

	png, err := store.Get(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatal("stored bytes are not a PNG")
	}
	if ttl := mr.TTL("lqi:abc123"); ttl != 2*time.Minute {
		t.Fatalf("expected image ttl 2m, got %v", ttl)
	}

	mr.FastForward(3 * time.Minute)
	if _, err := store.Get(context.Background(), "abc123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

type fakeTokens struct {
	current   string
	refreshes int
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) { return f.current, nil }

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	f.refreshes++
	f.current = fmt.Sprintf("fresh-%d", f.refreshes)
	return f.current, nil
}

type fakeGenerator struct {
	valid string
	calls []weixin.WxacodeRequest
}

func (g *fakeGenerator) GetUnlimitedWxacode(ctx context.Context, token string, req weixin.WxacodeRequest) ([]byte, error) {
	g.calls = append(g.calls, req)
	if token != g.valid {
		return nil, fmt.Errorf("%w: 40001", credential.ErrInvalidCredential)
	}
	return append([]byte{}, pngMagic...), nil
}

func TestWxacodeProviderUsesTicketAsScene(t *testing.T) {
	store, _ := newTestStore(t)
	tokens := &fakeTokens{current: "good"}
	gen := &fakeGenerator{valid: "good"}
	p := NewWxacodeProvider(store, tokens, gen, WxacodeConfig{PublicBaseURL: "https://api.example.test", Page: "pages/scan/scan"})

	url, err := p.TicketResource(context.Background(), "t1", time.Minute)
	if err != nil {
		t.Fatalf("TicketResource failed: %v", err)
	}
	if url != "https://api.example.test/login/qrcode/image/t1" {
		t.Fatalf("unexpected url %q", url)
	}
	if len(gen.calls) != 1 || gen.calls[0].Scene != "t1" || gen.calls[0].Page != "pages/scan/scan" {
		t.Fatalf("unexpected generator calls %+v", gen.calls)
	}
	if tokens.refreshes != 0 {
		t.Fatal("valid token must not be refreshed")
	}
}

func TestWxacodeProviderRefreshesRejectedTokenOnce(t *testing.T) {
	store, _ := newTestStore(t)
	tokens := &fakeTokens{current: "stale"}
	gen := &fakeGenerator{valid: "fresh-1"}
	p := NewWxacodeProvider(store, tokens, gen, WxacodeConfig{PublicBaseURL: "https://api.example.test"})

	if _, err := p.TicketResource(context.Background(), "t1", time.Minute); err != nil {
		t.Fatalf("TicketResource failed: %v", err)
	}
	if tokens.refreshes != 1 || len(gen.calls) != 2 {
		t.Fatalf("expected one refresh and a retry, got refreshes=%d calls=%d", tokens.refreshes, len(gen.calls))
	}
	if _, err := store.Get(context.Background(), "t1"); err != nil {
		t.Fatalf("expected image stored: %v", err)
	}
}

func TestWxacodeProviderGivesUpAfterRetry(t *testing.T) {
	store, _ := newTestStore(t)
	tokens := &fakeTokens{current: "stale"}
	gen := &fakeGenerator{valid: "never"}
	p := NewWxacodeProvider(store, tokens, gen, WxacodeConfig{})

	_, err := p.TicketResource(context.Background(), "t1", time.Minute)
	if !errors.Is(err, credential.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if tokens.refreshes != 1 {
		t.Fatalf("expected exactly one refresh, got %d", tokens.refreshes)
	}
}
