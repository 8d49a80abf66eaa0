package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchKind tells a [FetchHook] why the upstream was called.
type FetchKind int

const (
	// FetchOnMiss is a read-through fetch after an empty cache read.
	FetchOnMiss FetchKind = iota
	// FetchRefresh is an unconditional replacement.
	FetchRefresh
)

// FetchHook observes every upstream fetch. err is nil on success.
type FetchHook func(kind FetchKind, err error)

// ManagerConfig tunes a [Manager].
type ManagerConfig struct {
	// FetchTimeout bounds one upstream fetch. The fetch runs detached from
	// the caller's cancellation because other callers may be waiting on it.
	FetchTimeout time.Duration
	OnFetch      FetchHook
}

const defaultFetchTimeout = 10 * time.Second

// Manager serves the shared credential to request handlers.
type Manager struct {
	cache  *Cache
	issuer Issuer
	cfg    ManagerConfig
	group  singleflight.Group
}

// NewManager creates a [Manager] reading through cache and fetching from
// issuer.
func NewManager(cache *Cache, issuer Issuer, cfg ManagerConfig) *Manager {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Manager{
		cache:  cache,
		issuer: issuer,
		cfg:    cfg,
	}
}

// Cache returns the backing cache.
func (m *Manager) Cache() *Cache { return m.cache }

// Token returns the cached credential, fetching and caching a new one when
// the cache is empty.
//
//	Performance: 1 Redis GET on a hit; GET + issuer call + SET on a miss.
func (m *Manager) Token(ctx context.Context) (string, error) {
	value, ok, err := m.cache.Get(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return value, nil
	}

	v, err, _ := m.group.Do("token", func() (interface{}, error) {
		// Collapsed callers share this closure, so it must not inherit the
		// first caller's cancellation.
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FetchTimeout)
		defer cancel()

		// A concurrent fetch may have landed between the miss and here.
		value, ok, err := m.cache.Get(readCtx)
		if err != nil {
			return "", err
		}
		if ok {
			return value, nil
		}
		return m.fetch(ctx, FetchOnMiss)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh fetches a new credential and overwrites the cached one.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.fetch(ctx, FetchRefresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) fetch(ctx context.Context, kind FetchKind) (string, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FetchTimeout)
	defer cancel()

	value, err := m.issueAndStore(fetchCtx)
	if m.cfg.OnFetch != nil {
		m.cfg.OnFetch(kind, err)
	}
	return value, err
}

func (m *Manager) issueAndStore(ctx context.Context) (string, error) {
	cred, err := m.issuer.IssueCredential(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrUpstreamUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if cred.TTL <= 0 {
		return "", ErrInvalidCredentialTTL
	}
	if err := m.cache.Put(ctx, cred); err != nil {
		return "", err
	}
	return cred.Value, nil
}
