package authcore

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricRefreshReuseDetected)

	if m.Value(MetricLoginSuccess) != 2 {
		t.Fatalf("login success = %d, want 2", m.Value(MetricLoginSuccess))
	}

	s := m.Snapshot()
	if s.Counters[MetricLoginSuccess] != 2 || s.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("unexpected snapshot: %+v", s.Counters)
	}
	if s.Counters[MetricLoginFailure] != 0 {
		t.Fatal("untouched counters should be zero")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics must not record")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot should be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics reports disabled")
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricValidateLatency, 3*time.Millisecond)
	m.Observe(MetricValidateLatency, 70*time.Millisecond)
	m.Observe(MetricValidateLatency, 2*time.Second)
	// Only the validate histogram exists.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count = %d", len(buckets))
	}
	if buckets[0] != 1 || buckets[4] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected buckets: %v", buckets)
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if m.Value(MetricRefreshSuccess) != 8000 {
		t.Fatalf("value = %d, want 8000", m.Value(MetricRefreshSuccess))
	}
}

func TestEngineCountsOutcomes(t *testing.T) {
	fx := newTestEngine(t, func(cfg *Config) {
		cfg.Environment = EnvDevelopment
	}, testUser(t))
	ctx := ctxFrom("203.0.113.9", "go-test")

	if _, err := fx.engine.Login(ctx, "ada", "correct horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := fx.engine.Login(ctx, "ada", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	s := fx.engine.MetricsSnapshot()
	if s.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success = %d, want 1", s.Counters[MetricLoginSuccess])
	}
	if s.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure = %d, want 1", s.Counters[MetricLoginFailure])
	}
}

func TestMetricNameCoversAllIDs(t *testing.T) {
	for id := MetricID(0); id < metricIDCount; id++ {
		if MetricName(id) == "unknown" {
			t.Errorf("metric %d has no export name", id)
		}
	}
	if MetricName(metricIDCount) != "unknown" {
		t.Fatal("out-of-range ids should map to unknown")
	}
}
