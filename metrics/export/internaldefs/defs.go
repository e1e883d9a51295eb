package internaldefs

import "github.com/PatonaIM/teamified-accounts-sub013/metrics"

// CounterDef names one exported counter.
type CounterDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: metrics.MetricSignInStarted, Name: "portalauth_sign_in_started_total", Help: "Sign-in handshakes started with the identity provider."},
	{ID: metrics.MetricSignInFailure, Name: "portalauth_sign_in_failure_total", Help: "Sign-in handshakes rejected by the identity provider."},
	{ID: metrics.MetricExchangeSuccess, Name: "portalauth_exchange_success_total", Help: "First-party token exchanges that stored a token pair."},
	{ID: metrics.MetricExchangeFailure, Name: "portalauth_exchange_failure_total", Help: "First-party token exchanges that failed."},
	{ID: metrics.MetricNoProviderSession, Name: "portalauth_no_provider_session_total", Help: "Callbacks handled without a provider session."},
	{ID: metrics.MetricProfileFetchSuccess, Name: "portalauth_profile_fetch_success_total", Help: "Current-user lookups that returned an identity."},
	{ID: metrics.MetricProfileFetchFailure, Name: "portalauth_profile_fetch_failure_total", Help: "Current-user lookups muted to an empty result."},
	{ID: metrics.MetricSignOut, Name: "portalauth_sign_out_total", Help: "Sign-out operations."},
	{ID: metrics.MetricSharedSessionDetected, Name: "portalauth_shared_session_detected_total", Help: "Shared-session probes that found a live session."},
	{ID: metrics.MetricSharedSessionAbsent, Name: "portalauth_shared_session_absent_total", Help: "Shared-session probes without a determination."},
	{ID: metrics.MetricRateLimitAllowed, Name: "portalauth_rate_limit_allowed_total", Help: "Rate-limit checks that admitted the request."},
	{ID: metrics.MetricRateLimitDenied, Name: "portalauth_rate_limit_denied_total", Help: "Rate-limit checks that denied the request."},
	{ID: metrics.MetricRateLimitFallback, Name: "portalauth_rate_limit_fallback_total", Help: "Rate-limit checks served by the in-process counter."},
	{ID: metrics.MetricRateLimitStoreError, Name: "portalauth_rate_limit_store_error_total", Help: "Shared rate-limit store errors absorbed by the limiter."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: metrics.MetricExchangeLatency, Name: "portalauth_exchange_latency_seconds", Help: "First-party token exchange latency histogram."},
	{ID: metrics.MetricRateLimitLatency, Name: "portalauth_rate_limit_latency_seconds", Help: "Rate-limit check latency histogram."},
}

// HistogramBounds are the upper bounds of the eight fixed buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds as floats; the last bucket is
// implied +Inf and omitted.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter exported for dispatcher backpressure.
const AuditDroppedName = "portalauth_audit_dropped_total"

// NormalizeBuckets pads or truncates raw to the eight fixed buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
