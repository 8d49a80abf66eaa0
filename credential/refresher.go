package credential

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Outcome is the result of one refresher cycle.
type Outcome int

const (
	// OutcomeFresh means the cached value had enough TTL left and passed
	// the probe.
	OutcomeFresh Outcome = iota
	// OutcomeRefreshed means a new value was fetched and stored.
	OutcomeRefreshed
	// OutcomeRefreshFailed means a refresh was due but the fetch or store
	// write failed. The previous value, if any, is left in place.
	OutcomeRefreshFailed
	// OutcomeSkipped means the cycle could not decide: the probe could not
	// reach the upstream or the TTL could not be read.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeRefreshFailed:
		return "refresh_failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CycleHook observes each cycle. probeErr is non-nil when the probe ran
// and failed.
type CycleHook func(outcome Outcome, probeErr error)

// RefresherConfig tunes a [Refresher].
type RefresherConfig struct {
	// Interval is the delay between cycles. Default 10m.
	Interval time.Duration
	// MinTTL is the remaining lifetime below which the value is refreshed
	// without probing. Default 1000s.
	MinTTL time.Duration
	// CycleTimeout bounds one cycle. Default 30s.
	CycleTimeout time.Duration
	// Prober is optional. Without one only the TTL is checked.
	Prober  Prober
	Logger  *slog.Logger
	OnCycle CycleHook
}

const (
	defaultRefreshInterval = 10 * time.Minute
	defaultMinTTL          = 1000 * time.Second
	defaultCycleTimeout    = 30 * time.Second
)

// Refresher periodically keeps the cached credential valid.
type Refresher struct {
	manager *Manager
	cfg     RefresherConfig
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRefresher creates a [Refresher] driving manager.
func NewRefresher(manager *Manager, cfg RefresherConfig) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRefreshInterval
	}
	if cfg.MinTTL <= 0 {
		cfg.MinTTL = defaultMinTTL
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		manager: manager,
		cfg:     cfg,
		logger:  logger.With("component", "credential_refresher"),
	}
}

// Start runs one cycle immediately and then one per Interval until ctx is
// cancelled or Stop is called. Calling Start twice is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)
}

// Stop ends the loop and waits for an in-flight cycle to return.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.started = false
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// The parent context may end the loop without Stop; release the
		// slot so Running reports it and a later Start can run again.
		r.mu.Lock()
		var cancel context.CancelFunc
		if r.done == done {
			cancel = r.cancel
			r.started, r.cancel, r.done = false, nil, nil
		}
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		close(done)
	}()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single refresh decision.
func (r *Refresher) RunOnce(ctx context.Context) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
	defer cancel()

	outcome, probeErr := r.cycle(ctx)
	if r.cfg.OnCycle != nil {
		r.cfg.OnCycle(outcome, probeErr)
	}
	return outcome
}

func (r *Refresher) cycle(ctx context.Context) (Outcome, error) {
	cache := r.manager.Cache()

	ttl, ok, err := cache.RemainingTTL(ctx)
	if err != nil {
		r.logger.Warn("credential ttl read failed", "error", err)
		return OutcomeSkipped, nil
	}
	if !ok || ttl <= r.cfg.MinTTL {
		return r.refresh(ctx, "ttl", ttl), nil
	}
	if r.cfg.Prober == nil {
		return OutcomeFresh, nil
	}

	value, ok, err := cache.Get(ctx)
	if err != nil {
		r.logger.Warn("credential read failed", "error", err)
		return OutcomeSkipped, nil
	}
	if !ok {
		return r.refresh(ctx, "expired", 0), nil
	}

	probeErr := r.cfg.Prober.Probe(ctx, value)
	switch {
	case probeErr == nil:
		return OutcomeFresh, nil
	case errors.Is(probeErr, ErrUpstreamUnavailable):
		r.logger.Warn("credential probe could not reach upstream", "error", probeErr)
		return OutcomeSkipped, probeErr
	default:
		r.logger.Info("credential rejected by upstream", "error", probeErr)
		return r.refresh(ctx, "probe", ttl), probeErr
	}
}

func (r *Refresher) refresh(ctx context.Context, reason string, ttl time.Duration) Outcome {
	if _, err := r.manager.Refresh(ctx); err != nil {
		r.logger.Error("credential refresh failed", "reason", reason, "error", err)
		return OutcomeRefreshFailed
	}
	r.logger.Info("credential refreshed", "reason", reason, "previous_ttl", ttl)
	return OutcomeRefreshed
}
