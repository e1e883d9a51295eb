package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	"github.com/PatonaIM/teamified-accounts-sub013/metrics/export/internaldefs"
	promclient "github.com/prometheus/client_golang/prometheus"
)

// Source is anything that can produce a metrics snapshot: the orchestrator,
// the rate limiter, or a bare [metrics.Metrics].
type Source interface {
	MetricsSnapshot() metrics.Snapshot
}

type auditSource interface {
	AuditDropped() uint64
}

// Exporter renders portal auth metrics in Prometheus text exposition format
// and can also act as a client_golang collector.
type Exporter struct {
	source Source
}

// NewExporter creates an exporter reading from source.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the rendered metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.dropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	if _, ok := p.source.(auditSource); ok {
		writeCounter(&b, internaldefs.AuditDroppedName, "Dropped audit events due to dispatcher backpressure.", dropped)
	}

	return b.String()
}

func (p *Exporter) dropped() uint64 {
	if a, ok := p.source.(auditSource); ok {
		return a.AuditDropped()
	}
	return 0
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Sum is not tracked by the snapshot.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

// Collector adapts the exporter to a client_golang registry so the same
// counters can be served by promhttp next to process metrics.
func (p *Exporter) Collector() promclient.Collector {
	c := &collector{exporter: p, descs: make(map[metrics.MetricID]*promclient.Desc)}
	for _, def := range internaldefs.CounterDefs {
		c.descs[def.ID] = promclient.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		c.descs[def.ID] = promclient.NewDesc(def.Name, def.Help, nil, nil)
	}
	c.dropped = promclient.NewDesc(internaldefs.AuditDroppedName, "Dropped audit events due to dispatcher backpressure.", nil, nil)
	return c
}

type collector struct {
	exporter *Exporter
	descs    map[metrics.MetricID]*promclient.Desc
	dropped  *promclient.Desc
}

func (c *collector) Describe(ch chan<- *promclient.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	ch <- c.dropped
}

func (c *collector) Collect(ch chan<- promclient.Metric) {
	if c.exporter == nil || c.exporter.source == nil {
		return
	}
	snapshot := c.exporter.source.MetricsSnapshot()

	for _, def := range internaldefs.CounterDefs {
		value, ok := snapshot.Counters[def.ID]
		if !ok {
			continue
		}
		ch <- promclient.MustNewConstMetric(c.descs[def.ID], promclient.CounterValue, float64(value))
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBoundValues))
		for i, bound := range internaldefs.HistogramBoundValues {
			buckets[bound] = cumulative[i]
		}
		ch <- promclient.MustNewConstHistogram(c.descs[def.ID], cumulative[len(cumulative)-1], 0, buckets)
	}

	if _, ok := c.exporter.source.(auditSource); ok {
		ch <- promclient.MustNewConstMetric(c.dropped, promclient.CounterValue, float64(c.exporter.dropped()))
	}
}
