package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot metrics.Snapshot
}

func (f fakeSource) MetricsSnapshot() metrics.Snapshot { return f.snapshot }

type fakeAuditedSource struct {
	fakeSource
	dropped uint64
}

func (f fakeAuditedSource) AuditDropped() uint64 { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: metrics.Snapshot{
			Counters:   map[metrics.MetricID]uint64{},
			Histograms: map[metrics.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterHistogramAndAuditDrops(t *testing.T) {
	exp := NewExporter(fakeAuditedSource{
		fakeSource: fakeSource{snapshot: metrics.Snapshot{
			Counters: map[metrics.MetricID]uint64{
				metrics.MetricRateLimitDenied: 7,
			},
			Histograms: map[metrics.MetricID][]uint64{
				metrics.MetricExchangeLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		}},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"portalauth_rate_limit_denied_total 7",
		"portalauth_exchange_latency_seconds_bucket{le=\"0.005\"} 1",
		"portalauth_exchange_latency_seconds_bucket{le=\"+Inf\"} 36",
		"portalauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderOmitsAuditCounterForLimiterSources(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: metrics.Snapshot{
		Counters: map[metrics.MetricID]uint64{metrics.MetricRateLimitAllowed: 1},
	}})

	if strings.Contains(exp.Render(), "audit_dropped") {
		t.Fatal("limiter-only source must not export audit counter")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: metrics.Snapshot{
			Counters: map[metrics.MetricID]uint64{metrics.MetricSignOut: 1},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCollectorRegistersWithClientGolang(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: metrics.Snapshot{
		Counters: map[metrics.MetricID]uint64{
			metrics.MetricRateLimitAllowed: 4,
			metrics.MetricRateLimitDenied:  1,
		},
	}})

	reg := promclient.NewPedanticRegistry()
	if err := reg.Register(exp.Collector()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	expected := `
# HELP portalauth_rate_limit_denied_total Rate-limit checks that denied the request.
# TYPE portalauth_rate_limit_denied_total counter
portalauth_rate_limit_denied_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "portalauth_rate_limit_denied_total"); err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporter(fakeSource{
		snapshot: metrics.Snapshot{
			Counters: map[metrics.MetricID]uint64{
				metrics.MetricRateLimitAllowed: 1000,
				metrics.MetricRateLimitDenied:  40,
				metrics.MetricExchangeSuccess:  800,
			},
			Histograms: map[metrics.MetricID][]uint64{
				metrics.MetricRateLimitLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
