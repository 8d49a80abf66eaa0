package lifehelper

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricTicketIssued counts tickets persisted in CREATED.
	MetricTicketIssued MetricID = iota
	// MetricTicketScanned counts CREATED -> SCANNED transitions.
	MetricTicketScanned
	// MetricTicketConfirmed counts SCANNED -> CONFIRMED transitions.
	MetricTicketConfirmed
	// MetricTicketConsumed counts consuming polls.
	MetricTicketConsumed
	// MetricTicketNotFound counts lookups of missing or expired tickets.
	MetricTicketNotFound
	// MetricTicketInvalidTransition counts rejected transitions.
	MetricTicketInvalidTransition
	// MetricTicketRateLimited counts issue or poll calls denied by rate limits.
	MetricTicketRateLimited
	// MetricTicketResourceFailure counts issuances whose QR resource failed.
	MetricTicketResourceFailure
	// MetricExchangeLoginSuccess counts code logins that minted a session.
	MetricExchangeLoginSuccess
	// MetricExchangeLoginCodeInvalid counts code logins rejected for the code.
	MetricExchangeLoginCodeInvalid
	// MetricExchangeLoginUpstreamFailure counts code logins lost to upstream errors.
	MetricExchangeLoginUpstreamFailure
	// MetricExchangeLoginResolveFailure counts code logins whose user lookup failed.
	MetricExchangeLoginResolveFailure
	// MetricSessionMinted counts session tokens issued.
	MetricSessionMinted
	// MetricSessionMintFailure counts session tokens that failed to sign.
	MetricSessionMintFailure
	// MetricSessionValidateFailure counts session tokens rejected on validation.
	MetricSessionValidateFailure
	// MetricCredentialFetch counts upstream credential fetches.
	MetricCredentialFetch
	// MetricCredentialFetchFailure counts failed upstream credential fetches.
	MetricCredentialFetchFailure
	// MetricCredentialRefreshed counts refresher cycles that rewrote the credential.
	MetricCredentialRefreshed
	// MetricCredentialRefreshFailure counts refresher cycles whose refresh failed.
	MetricCredentialRefreshFailure
	// MetricCredentialProbeSkipped counts refresher cycles skipped on upstream outage.
	MetricCredentialProbeSkipped
	// MetricCredentialFresh counts refresher cycles that left a healthy credential alone.
	MetricCredentialFresh
	// MetricPollLatency is the PollTicket latency histogram.
	MetricPollLatency
	// MetricExchangeLoginLatency is the LoginByExchangeCode latency histogram.
	MetricExchangeLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
// The zero value is disabled; use [NewMetrics].
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metric values.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a metrics set configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters record.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms record.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id. Safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Non-histogram ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if !isHistogram(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when latency is enabled, every
// histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(histogramIDs)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range histogramIDs {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

var histogramIDs = []MetricID{MetricPollLatency, MetricExchangeLoginLatency}

func isHistogram(id MetricID) bool {
	return id == MetricPollLatency || id == MetricExchangeLoginLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
