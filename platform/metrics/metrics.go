// Package metrics provides Prometheus metrics for the lead-action and
// availability paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the custom prometheus registry for the service.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// =============================================================================
// Lead actions
// =============================================================================

// CallTriggerOutcomes counts CallTrigger runs by outcome
// (called, duplicate_phone, ineligible, already_handled, failed).
var CallTriggerOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "leads",
	Name:      "call_trigger_total",
	Help:      "Lead call trigger attempts by outcome",
}, []string{"outcome"})

// LeadsStuckCalling counts leads left in the calling state after a failed
// call creation.
var LeadsStuckCalling = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "leads",
	Name:      "stuck_calling_total",
	Help:      "Leads left in calling state because call creation failed",
})

// DedupAborts counts actions skipped by a dedup gate.
var DedupAborts = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "fallback",
	Name:      "dedup_aborts_total",
	Help:      "Fallback evaluations aborted by a dedup gate",
}, []string{"gate"})

// FallbackOutcomes counts completed fallback evaluations by result
// (answered, sent, ineligible, superseded, undetermined, error, cancelled).
var FallbackOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "fallback",
	Name:      "evaluations_total",
	Help:      "Fallback evaluations by result",
}, []string{"result"})

// WebhookEvents counts lifecycle notifications by routed action.
var WebhookEvents = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "webhook",
	Name:      "events_total",
	Help:      "Lifecycle notifications received, by routed action",
}, []string{"action"})

// =============================================================================
// Availability
// =============================================================================

// AvailabilitySlotsReturned tracks slots returned per availability query.
var AvailabilitySlotsReturned = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "voicelead",
	Subsystem: "availability",
	Name:      "slots_returned",
	Help:      "Number of slots returned per availability query",
	Buckets:   []float64{0, 1, 5, 10, 20, 40, 80},
})

// AvailabilityDurationSeconds tracks availability query latency.
var AvailabilityDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "voicelead",
	Subsystem: "availability",
	Name:      "duration_seconds",
	Help:      "Time taken to compute availability including the appointment fetch",
	Buckets:   prometheus.DefBuckets,
})

// AvailabilityContactsSkipped counts contacts dropped from the conflict
// fetch because the store no longer has them.
var AvailabilityContactsSkipped = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "availability",
	Name:      "contacts_skipped_total",
	Help:      "Recent contacts skipped during the appointment fetch because they were not found",
})

// AppointmentsUnparseable counts fetched appointments skipped because
// their timestamps could not be parsed.
var AppointmentsUnparseable = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "availability",
	Name:      "unparseable_appointments_total",
	Help:      "Fetched appointments ignored by the overlap test due to unparseable times",
})

// =============================================================================
// Vendors
// =============================================================================

// VendorRequests counts outbound vendor requests by vendor and result.
var VendorRequests = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "voicelead",
	Subsystem: "vendor",
	Name:      "requests_total",
	Help:      "Outbound vendor requests by vendor and result",
}, []string{"vendor", "result"})

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
