package attendance

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "attendance",
			Name:      "scans_total",
			Help:      "Scanned attendance codes, by outcome.",
		},
		[]string{"outcome"},
	)

	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "attendance",
			Name:      "sessions_total",
			Help:      "Attendance sessions requested by attendee devices, by outcome.",
		},
		[]string{"outcome"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rollcall",
			Subsystem: "attendance",
			Name:      "scan_duration_seconds",
			Help:      "Time spent processing a scan.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// ReplayClaimsTotal counts the ReplayGuard claims, by store & outcome.
	ReplayClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "attendance",
			Name:      "replay_claims_total",
			Help:      "Replay guard claims, by store and outcome.",
		},
		[]string{"store", "outcome"},
	)
)

var outcomes = map[error]string{
	ErrSessionNotFound:       "unknown_session",
	ErrSessionInactive:       "inactive_session",
	ErrCodeMalformed:         "malformed",
	ErrCodeInvalid:           "invalid",
	ErrCodeExpired:           "expired",
	ErrCodeReplayed:          "replayed",
	ErrEventClosed:           "event_closed",
	ErrWrongEvent:            "wrong_event",
	ErrLocationRequired:      "location_required",
	ErrOutsideGeofence:       "outside_geofence",
	ErrRegistrationCancelled: "cancelled",
	ErrTooSoon:               "too_soon",
	ErrAlreadyCheckedIn:      "already_checked_in",
	ErrNotCheckedIn:          "not_checked_in",
	ErrDeviceMismatch:        "device_mismatch",
	ErrInvalidTicket:         "invalid_ticket",
}

// outcome labels the result of an operation for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if o, ok := outcomes[errors.Cause(err)]; ok {
		return o
	}
	return "error"
}
