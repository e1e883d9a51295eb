package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	"github.com/PatonaIM/teamified-accounts-sub013/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source produces metric snapshots; the orchestrator and the rate limiter
// both satisfy it.
type Source interface {
	MetricsSnapshot() metrics.Snapshot
}

type auditSource interface {
	AuditDropped() uint64
}

type histogramGauges struct {
	id      metrics.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes a Source through an OpenTelemetry meter. Values are
// read from a fresh snapshot on every collection.
type Exporter struct {
	source       Source
	audit        auditSource
	counters     map[metrics.MetricID]metric.Int64ObservableCounter
	histograms   []histogramGauges
	auditDropped metric.Int64ObservableCounter
	registration metric.Registration
}

// instruments accumulates the observables a callback is registered for.
type instruments struct {
	meter metric.Meter
	all   []metric.Observable
}

func (in *instruments) counter(name, help string) (metric.Int64ObservableCounter, error) {
	c, err := in.meter.Int64ObservableCounter(name, metric.WithDescription(help))
	if err != nil {
		return nil, fmt.Errorf("create observable counter %s: %w", name, err)
	}
	in.all = append(in.all, c)
	return c, nil
}

func (in *instruments) gauge(name, help string) (metric.Int64ObservableGauge, error) {
	g, err := in.meter.Int64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		return nil, fmt.Errorf("create observable gauge %s: %w", name, err)
	}
	in.all = append(in.all, g)
	return g, nil
}

// NewExporter registers one observable counter per exported counter and a
// gauge per cumulative histogram bucket. When source also reports dropped
// audit events, that count is exported too.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	switch {
	case meter == nil:
		return nil, ErrNilMeter
	case source == nil:
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[metrics.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	in := &instruments{meter: meter}

	for _, def := range internaldefs.CounterDefs {
		c, err := in.counter(def.Name, def.Help)
		if err != nil {
			return nil, err
		}
		e.counters[def.ID] = c
	}

	for _, def := range internaldefs.HistogramDefs {
		hg := histogramGauges{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			g, err := in.gauge(def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.")
			if err != nil {
				return nil, err
			}
			hg.buckets[i] = g
		}
		g, err := in.gauge(def.Name+"_count", "Histogram total sample count.")
		if err != nil {
			return nil, err
		}
		hg.count = g
		e.histograms = append(e.histograms, hg)
	}

	if a, ok := source.(auditSource); ok {
		c, err := in.counter(internaldefs.AuditDroppedName, "Dropped audit events due to dispatcher backpressure.")
		if err != nil {
			return nil, err
		}
		e.audit = a
		e.auditDropped = c
	}

	reg, err := meter.RegisterCallback(e.observe, in.all...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, hg := range e.histograms {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[hg.id]))
		for i, v := range cum {
			o.ObserveInt64(hg.buckets[i], int64(v))
		}
		o.ObserveInt64(hg.count, int64(cum[len(cum)-1]))
	}
	if e.audit != nil {
		o.ObserveInt64(e.auditDropped, int64(e.audit.AuditDropped()))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
