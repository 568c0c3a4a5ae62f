// Package internaldefs holds the shared metric definitions consumed by
// the exporters. Not part of the public API.
package internaldefs

import (
	"github.com/opsdeck/authcore"
)

// CounterDef binds an engine counter to its export name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its export name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricChallengeIssued, Name: "authcore_challenge_issued_total", Help: "One-time-code challenges issued."},
	{ID: authcore.MetricChallengeSuccess, Name: "authcore_challenge_success_total", Help: "Challenges completed successfully."},
	{ID: authcore.MetricChallengeFailure, Name: "authcore_challenge_failure_total", Help: "Failed challenge verifications."},
	{ID: authcore.MetricChallengeExhausted, Name: "authcore_challenge_exhausted_total", Help: "Challenges invalidated by attempt cap."},
	{ID: authcore.MetricChallengeDeliveryFailure, Name: "authcore_challenge_delivery_failure_total", Help: "One-time codes that could not be delivered."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authcore.MetricRefreshRaceRecovered, Name: "authcore_refresh_race_recovered_total", Help: "Concurrent refreshes resolved inside the grace window."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Refresh token reuses detected outside the grace window."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-token logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricPermissionAllowed, Name: "authcore_permission_allowed_total", Help: "Permission checks that allowed."},
	{ID: authcore.MetricPermissionDenied, Name: "authcore_permission_denied_total", Help: "Permission checks that denied."},
	{ID: authcore.MetricRoleCacheInvalidated, Name: "authcore_role_cache_invalidated_total", Help: "Custom-role cache invalidations."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's fixed latency buckets.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw bucket slices to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
