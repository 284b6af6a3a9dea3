/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counters and gauges for the operational surface of the engine: payment
  volume, activations, restructurings, defaults, and sweep health. Scraped
  from GET /metrics.

SEE ALSO:
  - handlers.go: Increments request-path counters
  - scheduler.go: Increments sweep counters
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	PaymentsRecorded      prometheus.Counter
	LeasesActivated       prometheus.Counter
	AdjustmentsApproved   prometheus.Counter
	DisbursementsApproved prometheus.Counter
	DefaultsOpened        prometheus.Counter
	SweepRuns             prometheus.Counter
	SweepFailures         prometheus.Counter
	AccountsInDefault     prometheus.Gauge
}

// NewMetrics builds and registers the collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mortgage_payments_recorded_total",
			Help: "Number of payments posted to account ledgers.",
		}),
		LeasesActivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mortgage_leases_activated_total",
			Help: "Number of applications converted to active accounts.",
		}),
		AdjustmentsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mortgage_adjustments_approved_total",
			Help: "Number of term adjustments applied to schedules.",
		}),
		DisbursementsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mortgage_disbursements_approved_total",
			Help: "Number of construction tranches released.",
		}),
		DefaultsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mortgage_defaults_opened_total",
			Help: "Number of default records opened by delinquency checks.",
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mortgage_sweep_runs_total",
			Help: "Number of completed delinquency sweeps.",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mortgage_sweep_account_failures_total",
			Help: "Number of accounts the sweep failed to refresh.",
		}),
		AccountsInDefault: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mortgage_accounts_in_default",
			Help: "Accounts currently carrying an open default record.",
		}),
	}
	reg.MustRegister(
		m.PaymentsRecorded,
		m.LeasesActivated,
		m.AdjustmentsApproved,
		m.DisbursementsApproved,
		m.DefaultsOpened,
		m.SweepRuns,
		m.SweepFailures,
		m.AccountsInDefault,
	)
	return m
}
