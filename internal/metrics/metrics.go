// Package metrics declares the Prometheus instrumentation surface of
// the oracle daemon, following the teacher's package-scope
// promauto.New... var block pattern (internal/syncer/syncer.go,
// cmd/consumer/main.go) rather than a metrics struct threaded through
// every component.
package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProtocolVersion is the value of the static, unlabeled
// protocol_version gauge, fixed at 1.
const ProtocolVersion = 1

var (
	protocolVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eur2ccd_protocol_version",
		Help: "Static protocol version of the submitted chain update payload.",
	})

	lastReadPerSource = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eur2ccd_last_read_per_source",
		Help: "Most recent reading from a source, as a float64 EUR-per-CCD value.",
	}, []string{"source"})

	readFailuresPerSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eur2ccd_read_failures_per_source",
		Help: "Count of failed fetch attempts per source.",
	}, []string{"source"})

	lastSubmittedRateNumerator = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eur2ccd_last_submitted_rate_numerator",
		Help: "Numerator of the last successfully submitted rate.",
	})

	lastSubmittedRateDenominator = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eur2ccd_last_submitted_rate_denominator",
		Help: "Denominator of the last successfully submitted rate.",
	})

	submissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eur2ccd_submissions_total",
		Help: "Total number of update ticks whose broadcast was accepted (including duplicate-sequence absorptions).",
	})

	submissionsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eur2ccd_submissions_failed_total",
		Help: "Total number of update ticks where submission failed: too few governance keys held, a broadcast error, or a chain rejection.",
	})

	warnTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eur2ccd_warn_total",
		Help: "Total number of update ticks classified Warn by the safety governor.",
	})

	haltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eur2ccd_halt_total",
		Help: "Total number of update ticks classified Halt by the safety governor.",
	})

	dryRunActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eur2ccd_dry_run_active",
		Help: "1 if the service is currently in forced or configured dry-run mode, 0 otherwise.",
	})

	auditWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eur2ccd_audit_write_failures_total",
		Help: "Total number of audit-hook write failures, which never block an update.",
	})
)

func init() {
	protocolVersion.Set(ProtocolVersion)
}

// RecordRead records a successful reading from a source, as a float64
// for dashboard convenience; the canonical value stays the exact
// big.Rat carried through internal/ratio.
func RecordRead(source string, f *big.Rat) {
	v, _ := f.Float64()
	lastReadPerSource.WithLabelValues(source).Set(v)
}

// RecordReadFailure increments the failure counter for a source.
func RecordReadFailure(source string) {
	readFailuresPerSource.WithLabelValues(source).Inc()
}

// RecordSubmission records a successful broadcast (including a
// duplicate-sequence absorption) and the rate that was submitted.
func RecordSubmission(numerator, denominator uint64) {
	submissionsTotal.Inc()
	lastSubmittedRateNumerator.Set(float64(numerator))
	lastSubmittedRateDenominator.Set(float64(denominator))
}

// RecordSubmissionFailure increments the submission-failure counter.
func RecordSubmissionFailure() {
	submissionsFailedTotal.Inc()
}

// RecordWarn increments the Warn classification counter.
func RecordWarn() {
	warnTotal.Inc()
}

// RecordHalt increments the Halt classification counter.
func RecordHalt() {
	haltTotal.Inc()
}

// SetDryRunActive reflects the current dry-run state as a 0/1 gauge.
func SetDryRunActive(active bool) {
	if active {
		dryRunActive.Set(1)
		return
	}
	dryRunActive.Set(0)
}

// RecordAuditWriteFailure increments the audit-hook failure counter.
func RecordAuditWriteFailure() {
	auditWriteFailuresTotal.Inc()
}
