package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter slot.
type MetricID uint16

const (
	MetricSessionCreated MetricID = iota
	MetricSessionCreateFailure
	MetricVerifySuccess
	MetricVerifyNoSession
	MetricVerifyTryRefresh
	MetricVerifyUnauthorised
	MetricRefreshSuccess
	MetricRefreshUnauthorised
	MetricTokenTheftDetected
	MetricInvalidClaims
	MetricSessionRevoked
	MetricLegacyCookieCleared
	MetricStrayTokensCleared
	MetricVerifyLatency
	MetricIDCount
)

var metricNames = [MetricIDCount]string{
	MetricSessionCreated:       "session_created",
	MetricSessionCreateFailure: "session_create_failure",
	MetricVerifySuccess:        "verify_success",
	MetricVerifyNoSession:      "verify_no_session",
	MetricVerifyTryRefresh:     "verify_try_refresh",
	MetricVerifyUnauthorised:   "verify_unauthorised",
	MetricRefreshSuccess:       "refresh_success",
	MetricRefreshUnauthorised:  "refresh_unauthorised",
	MetricTokenTheftDetected:   "token_theft_detected",
	MetricInvalidClaims:        "invalid_claims",
	MetricSessionRevoked:       "session_revoked",
	MetricLegacyCookieCleared:  "legacy_cookie_cleared",
	MetricStrayTokensCleared:   "stray_tokens_cleared",
	MetricVerifyLatency:        "verify_latency",
}

// String returns the snake_case name used by exporters.
func (id MetricID) String() string {
	if id >= MetricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	HistogramBucketCount = 8
	cacheLineSize        = 64
)

// HistogramBounds are the inclusive upper bounds of the latency buckets.
// The final bucket is unbounded.
var HistogramBounds = [HistogramBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type histogram struct {
	buckets [HistogramBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config toggles collection.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds atomic counters and the verify latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only MetricVerifyLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricVerifyLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, HistogramBucketCount)
		for i := 0; i < HistogramBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramBounds {
		if d <= bound {
			return i
		}
	}
	return HistogramBucketCount - 1
}
