package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter (and optionally one latency histogram)
// tracked by [Metrics].
type MetricID uint16

const (
	// MetricSignInStarted counts redirect handshakes handed to the identity provider.
	MetricSignInStarted MetricID = iota
	// MetricSignInFailure counts handshakes the identity provider rejected.
	MetricSignInFailure
	// MetricExchangeSuccess counts first-party token exchanges that stored a pair.
	MetricExchangeSuccess
	// MetricExchangeFailure counts exchanges that ended without a stored pair.
	MetricExchangeFailure
	// MetricNoProviderSession counts callbacks that found no provider session.
	MetricNoProviderSession
	// MetricProfileFetchSuccess counts "who am I" calls that returned an identity.
	MetricProfileFetchSuccess
	// MetricProfileFetchFailure counts "who am I" calls muted to nil.
	MetricProfileFetchFailure
	// MetricSignOut counts sign-out calls.
	MetricSignOut
	// MetricSharedSessionDetected counts probes that found a live sibling session.
	MetricSharedSessionDetected
	// MetricSharedSessionAbsent counts probes answered with nil.
	MetricSharedSessionAbsent
	// MetricRateLimitAllowed counts admitted rate-limit checks.
	MetricRateLimitAllowed
	// MetricRateLimitDenied counts rejected rate-limit checks.
	MetricRateLimitDenied
	// MetricRateLimitFallback counts checks answered by the in-process counter.
	MetricRateLimitFallback
	// MetricRateLimitStoreError counts shared-store failures absorbed by the limiter.
	MetricRateLimitStoreError
	// MetricExchangeLatency tracks the exchange round trip.
	MetricExchangeLatency
	// MetricRateLimitLatency tracks a whole Check call.
	MetricRateLimitLatency
	metricIDCount
)

// bucketBounds are the inclusive upper bounds of the first seven latency
// buckets; anything slower lands in the eighth.
var bucketBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = 8

// Config toggles collection.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// counter sits alone on its cache line so hot counters bumped from
// different goroutines do not contend.
type counter struct {
	n atomic.Uint64
	_ [56]byte
}

type histogram [histBucketCount]atomic.Uint64

// Metrics is a fixed set of lock-free counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	hists   [len(histogramIDs)]histogram
}

// Snapshot is a point-in-time copy of all counters and histograms.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// New returns a Metrics honoring cfg.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

// LatencyEnabled reports whether histograms are being recorded.
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counts[id].n.Add(1)
}

// Observe records d into the histogram for id. Counter IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	h := histogramSlot(id)
	if h < 0 {
		return
	}
	m.hists[h][bucketIndex(d)].Add(1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].n.Load()
}

// Snapshot copies the current state. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if !IsHistogram(id) {
			s.Counters[id] = m.counts[id].n.Load()
		}
	}
	if !m.latency {
		return s
	}
	for slot, id := range histogramIDs {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.hists[slot][i].Load()
		}
		s.Histograms[id] = buckets
	}
	return s
}

var histogramIDs = [...]MetricID{MetricExchangeLatency, MetricRateLimitLatency}

func histogramSlot(id MetricID) int {
	for i, h := range histogramIDs {
		if h == id {
			return i
		}
	}
	return -1
}

// IsHistogram reports whether id names a latency histogram.
func IsHistogram(id MetricID) bool {
	return histogramSlot(id) >= 0
}

func bucketIndex(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
