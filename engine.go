package lifehelper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sengeiou/life-helper-server/credential"
	"github.com/sengeiou/life-helper-server/internal/audit"
	"github.com/sengeiou/life-helper-server/internal/flows"
	"github.com/sengeiou/life-helper-server/internal/rate"
	"github.com/sengeiou/life-helper-server/jwt"
	"github.com/sengeiou/life-helper-server/ticket"
)

// Engine runs QR ticket login, code login and the shared upstream
// credential. Engine methods are safe for concurrent use after
// [Builder.Build].
type Engine struct {
	config      Config
	redis       redis.UniversalClient
	tickets     *ticket.Store
	rateLimiter *rate.Limiter
	resources   ResourceProvider
	exchanger   IdentityExchanger
	users       UserResolver
	credentials *credential.Manager
	refresher   *credential.Refresher
	jwtManager  *jwt.Manager
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	flow        flows.Service
	hasProber   bool

	closeOnce sync.Once
}

// Start launches background work: the credential refresher, when one was
// built. It returns immediately. Calling Start twice is a no-op.
func (e *Engine) Start(ctx context.Context) {
	if e == nil || e.refresher == nil {
		return
	}
	e.refresher.Start(ctx)
}

// Close stops the refresher and flushes the audit dispatcher. It is
// idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.refresher != nil {
			e.refresher.Stop()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEvent returns the dropped audit event counts keyed by event type.
func (e *Engine) AuditDroppedByEvent() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByEvent()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// Health pings Redis and reads the cached credential TTL.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	var status HealthStatus
	if e == nil || e.redis == nil {
		return status
	}

	start := time.Now()
	if err := e.redis.Ping(ctx).Err(); err == nil {
		status.Redis = true
		status.RedisLatency = time.Since(start)
	}

	if e.credentials != nil && status.Redis {
		ttl, ok, err := e.credentials.Cache().RemainingTTL(ctx)
		if err == nil && ok {
			status.CredentialReady = true
			status.CredentialTTL = ttl
		}
	}
	status.RefresherActive = e.refresher != nil && e.refresher.Running()
	return status
}
