package internaldefs

import (
	shopauth "github.com/mfaulken/shopauth"
)

// CounterDef defines a public type used by shopauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by shopauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: shopauth.MetricLoginIssued, Name: "shopauth_login_issued_total", Help: "Token pairs issued at login."},
	{ID: shopauth.MetricRegistrationIssued, Name: "shopauth_registration_issued_total", Help: "Token pairs issued at registration."},
	{ID: shopauth.MetricRefreshSuccess, Name: "shopauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: shopauth.MetricRefreshFailure, Name: "shopauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: shopauth.MetricRefreshExpired, Name: "shopauth_refresh_expired_total", Help: "Refresh attempts with an expired token."},
	{ID: shopauth.MetricRefreshUserMismatch, Name: "shopauth_refresh_user_mismatch_total", Help: "Refresh attempts whose subject did not own the record."},
	{ID: shopauth.MetricRefreshReuseDetected, Name: "shopauth_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: shopauth.MetricLogout, Name: "shopauth_logout_total", Help: "Single-session logout operations."},
	{ID: shopauth.MetricLogoutAll, Name: "shopauth_logout_all_total", Help: "Logouts escalated to all sessions."},
	{ID: shopauth.MetricRevokeAll, Name: "shopauth_revoke_all_total", Help: "Explicit revoke-all operations."},
	{ID: shopauth.MetricRateLimitHit, Name: "shopauth_rate_limit_hit_total", Help: "Throttle checks that denied requests."},
	{ID: shopauth.MetricRateLimitAllowed, Name: "shopauth_rate_limit_allowed_total", Help: "Throttle checks that passed requests."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: shopauth.MetricValidateLatency, Name: "shopauth_validate_latency_seconds", Help: "Access validation latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
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

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
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

// NormalizeBuckets copies a raw bucket slice into the fixed-width form the
// exporters work with, tolerating short or missing input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// histogram consumers expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
