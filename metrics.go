package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricChallengeIssued
	MetricChallengeSuccess
	MetricChallengeFailure
	MetricChallengeExhausted
	MetricChallengeDeliveryFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshRaceRecovered
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricLogout
	MetricLogoutAll
	MetricPermissionAllowed
	MetricPermissionDenied
	MetricRoleCacheInvalidated
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's atomic counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters, consumed by
// the exporters under metrics/export.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] from config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only MetricValidateLatency carries
// a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[latencyBucket(d)], 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter atomically enough for export; counters
// are read individually, not as a consistent cut.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

// MetricName returns the export name for a counter.
func MetricName(id MetricID) string {
	switch id {
	case MetricLoginSuccess:
		return "login_success"
	case MetricLoginFailure:
		return "login_failure"
	case MetricLoginRateLimited:
		return "login_rate_limited"
	case MetricChallengeIssued:
		return "challenge_issued"
	case MetricChallengeSuccess:
		return "challenge_success"
	case MetricChallengeFailure:
		return "challenge_failure"
	case MetricChallengeExhausted:
		return "challenge_exhausted"
	case MetricChallengeDeliveryFailure:
		return "challenge_delivery_failure"
	case MetricRefreshSuccess:
		return "refresh_success"
	case MetricRefreshFailure:
		return "refresh_failure"
	case MetricRefreshRaceRecovered:
		return "refresh_race_recovered"
	case MetricRefreshReuseDetected:
		return "refresh_reuse_detected"
	case MetricRefreshRateLimited:
		return "refresh_rate_limited"
	case MetricLogout:
		return "logout"
	case MetricLogoutAll:
		return "logout_all"
	case MetricPermissionAllowed:
		return "permission_allowed"
	case MetricPermissionDenied:
		return "permission_denied"
	case MetricRoleCacheInvalidated:
		return "role_cache_invalidated"
	case MetricValidateLatency:
		return "validate_latency"
	default:
		return "unknown"
	}
}

func latencyBucket(d time.Duration) int {
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
