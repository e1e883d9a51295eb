package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsRecordNothing(t *testing.T) {
	m := New(Config{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricExchangeSuccess)
	m.Observe(MetricExchangeLatency, time.Millisecond)

	if got := m.Value(MetricExchangeSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if m.LatencyEnabled() {
		t.Fatal("latency must follow Enabled")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricRateLimitDenied)
	m.Observe(MetricRateLimitLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
	if got := m.Value(MetricRateLimitDenied); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestIncFromManyGoroutines(t *testing.T) {
	m := New(Config{Enabled: true})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5000 {
				m.Inc(MetricRateLimitAllowed)
				m.Inc(MetricRateLimitFallback)
			}
		}()
	}
	wg.Wait()

	for _, id := range []MetricID{MetricRateLimitAllowed, MetricRateLimitFallback} {
		if got := m.Value(id); got != 16*5000 {
			t.Fatalf("metric %d: expected %d, got %d", id, 16*5000, got)
		}
	}
}

func TestObserveBucketBoundaries(t *testing.T) {
	tests := []struct {
		d      time.Duration
		bucket int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{5*time.Millisecond + time.Microsecond, 1},
		{25 * time.Millisecond, 2},
		{40 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{200 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{3 * time.Second, 7},
	}

	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			m := New(Config{Enabled: true, EnableLatencyHistograms: true})
			m.Observe(MetricRateLimitLatency, tt.d)

			buckets := m.Snapshot().Histograms[MetricRateLimitLatency]
			if len(buckets) != histBucketCount {
				t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
			}
			for i, v := range buckets {
				want := uint64(0)
				if i == tt.bucket {
					want = 1
				}
				if v != want {
					t.Fatalf("bucket %d: expected %d, got %d", i, want, v)
				}
			}
		})
	}
}

func TestSnapshotSeparatesCountersFromHistograms(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricSignOut, time.Millisecond)
	m.Inc(MetricSignOut)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricSignOut]; ok {
		t.Fatal("counter id must not produce a histogram")
	}
	if _, ok := snap.Counters[MetricExchangeLatency]; ok {
		t.Fatal("histogram id must not appear among counters")
	}
	if snap.Counters[MetricSignOut] != 1 {
		t.Fatalf("expected sign-out count 1, got %d", snap.Counters[MetricSignOut])
	}
}

func TestHistogramsOmittedWithoutLatency(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Observe(MetricExchangeLatency, time.Millisecond)

	if h := m.Snapshot().Histograms; len(h) != 0 {
		t.Fatalf("expected no histograms, got %v", h)
	}
}
