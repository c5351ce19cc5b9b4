package internaldefs

import (
	"github.com/authgate/authgate"
)

// CounterDef defines a public type used by authgate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authgate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricRegisterSuccess, Name: "authgate_register_success_total", Help: "Successful registrations."},
	{ID: authgate.MetricRegisterDuplicate, Name: "authgate_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Password verifications that dispatched a login OTP."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed login attempts."},
	{ID: authgate.MetricLoginLocked, Name: "authgate_login_locked_total", Help: "Login attempts denied by account lockout."},
	{ID: authgate.MetricOTPIssued, Name: "authgate_otp_issued_total", Help: "One-time passcodes issued."},
	{ID: authgate.MetricOTPRateLimited, Name: "authgate_otp_rate_limited_total", Help: "OTP issue attempts denied by the attempt cap."},
	{ID: authgate.MetricOTPSuccess, Name: "authgate_otp_success_total", Help: "Successful OTP verifications."},
	{ID: authgate.MetricOTPFailure, Name: "authgate_otp_failure_total", Help: "Failed OTP verifications."},
	{ID: authgate.MetricOTPExpired, Name: "authgate_otp_expired_total", Help: "OTP verifications that found an expired code."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: authgate.MetricRefreshReuseDetected, Name: "authgate_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authgate.MetricRefreshTampered, Name: "authgate_refresh_tampered_total", Help: "Refresh tokens with invalid signatures."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Logout operations that revoked the account's sessions."},
	{ID: authgate.MetricResetRequested, Name: "authgate_reset_requested_total", Help: "Password reset OTP requests."},
	{ID: authgate.MetricResetVerified, Name: "authgate_reset_verified_total", Help: "Verified password reset OTPs."},
	{ID: authgate.MetricResetSuccess, Name: "authgate_reset_success_total", Help: "Completed password resets."},
	{ID: authgate.MetricResetFailure, Name: "authgate_reset_failure_total", Help: "Failed password reset completions."},
	{ID: authgate.MetricDeliveryFailure, Name: "authgate_delivery_failure_total", Help: "OTP emails that failed to dispatch."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricRefreshLatency, Name: "authgate_refresh_latency_seconds", Help: "Refresh rotation latency histogram."},
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

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
