package internaldefs

import (
	authpolicy "github.com/MrEthical07/authpolicy"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authpolicy.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authpolicy.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authpolicy.MetricSessionCreated, Name: "authpolicy_session_created_total", Help: "Created sessions."},
	{ID: authpolicy.MetricSessionEvicted, Name: "authpolicy_session_evicted_total", Help: "Sessions evicted to stay within the per-user cap."},
	{ID: authpolicy.MetricSessionDenied, Name: "authpolicy_session_denied_total", Help: "Session creations denied because concurrent sessions are disabled."},
	{ID: authpolicy.MetricSessionValidated, Name: "authpolicy_session_validated_total", Help: "Successful session validations."},
	{ID: authpolicy.MetricSessionExpired, Name: "authpolicy_session_expired_total", Help: "Session validations that found the session expired."},
	{ID: authpolicy.MetricSessionDestroyed, Name: "authpolicy_session_destroyed_total", Help: "Explicitly destroyed sessions."},
	{ID: authpolicy.MetricSessionDestroyAll, Name: "authpolicy_session_destroy_all_total", Help: "Destroy-all-sessions operations."},
	{ID: authpolicy.MetricLoginAttemptSuccess, Name: "authpolicy_login_attempt_success_total", Help: "Recorded successful login attempts."},
	{ID: authpolicy.MetricLoginAttemptFailure, Name: "authpolicy_login_attempt_failure_total", Help: "Recorded failed login attempts."},
	{ID: authpolicy.MetricLockoutCheck, Name: "authpolicy_lockout_check_total", Help: "Lockout checks."},
	{ID: authpolicy.MetricLockedOut, Name: "authpolicy_locked_out_total", Help: "Lockout checks that reported a lockout."},
	{ID: authpolicy.MetricLockoutTriggered, Name: "authpolicy_lockout_triggered_total", Help: "Failures that reached the lockout threshold."},
	{ID: authpolicy.MetricPasswordAccepted, Name: "authpolicy_password_accepted_total", Help: "Passwords that satisfied the policy."},
	{ID: authpolicy.MetricPasswordRejected, Name: "authpolicy_password_rejected_total", Help: "Passwords rejected by the policy."},
	{ID: authpolicy.MetricPasswordExpired, Name: "authpolicy_password_expired_total", Help: "Expiry checks that reported an expired password."},
	{ID: authpolicy.MetricStoreError, Name: "authpolicy_store_error_total", Help: "Shared store failures surfaced to callers."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authpolicy.MetricValidateSessionLatency, Name: "authpolicy_validate_session_latency_seconds", Help: "ValidateSession latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, as Prometheus labels.
var HistogramBounds = []string{
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundValues are HistogramBounds without +Inf, as numbers.
var HistogramBoundValues = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1}

// HistogramBoundSuffix are instrument-name-safe forms of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// AuditDroppedName is the counter exporters publish for dropped audit events.
const AuditDroppedName = "authpolicy_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."

// NormalizeBuckets copies raw into a fixed eight-bucket array. Missing
// buckets are zero and extra ones are ignored.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
