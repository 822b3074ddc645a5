package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
)

// Namespace prefixes every exported metric name.
const Namespace = "gosession"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Sessions created."},
	{ID: goSession.MetricSessionCreateFailure, Name: "gosession_session_create_failure_total", Help: "Session creations that failed."},
	{ID: goSession.MetricVerifySuccess, Name: "gosession_verify_success_total", Help: "Requests whose session verified."},
	{ID: goSession.MetricVerifyNoSession, Name: "gosession_verify_no_session_total", Help: "Optional verifications that found no session."},
	{ID: goSession.MetricVerifyTryRefresh, Name: "gosession_verify_try_refresh_total", Help: "Verifications answered with try refresh token."},
	{ID: goSession.MetricVerifyUnauthorised, Name: "gosession_verify_unauthorised_total", Help: "Verifications answered with unauthorised."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful token rotations."},
	{ID: goSession.MetricRefreshUnauthorised, Name: "gosession_refresh_unauthorised_total", Help: "Refresh attempts answered with unauthorised."},
	{ID: goSession.MetricTokenTheftDetected, Name: "gosession_token_theft_detected_total", Help: "Refresh token reuse detections."},
	{ID: goSession.MetricInvalidClaims, Name: "gosession_invalid_claims_total", Help: "Claim validations that failed."},
	{ID: goSession.MetricSessionRevoked, Name: "gosession_session_revoked_total", Help: "Sessions revoked."},
	{ID: goSession.MetricLegacyCookieCleared, Name: "gosession_legacy_cookie_cleared_total", Help: "Legacy id refresh cookies removed."},
	{ID: goSession.MetricStrayTokensCleared, Name: "gosession_stray_tokens_cleared_total", Help: "Tokens cleared from the unused transfer method."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricVerifyLatency, Name: "gosession_verify_latency_seconds", Help: "Session verification latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const (
	AuditDroppedName = "gosession_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// BucketCount is the number of latency buckets, the last one unbounded.
const BucketCount = internalmetrics.HistogramBucketCount

// HistogramBoundSuffix names each bucket in OTel instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, 0, len(internalmetrics.HistogramBounds))
	for _, b := range internalmetrics.HistogramBounds {
		out = append(out, b.Seconds())
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
