package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WalletMetrics counts money movements performed by the clearance engine.
// A nil *WalletMetrics is valid and records nothing.
type WalletMetrics struct {
	commissionCents   prometheus.Counter
	clearedTimers     prometheus.Counter
	clearedCents      prometheus.Counter
	sweepFailures     prometheus.Counter
	deductionsSettled prometheus.Counter
	deductedCents     prometheus.Counter
	reconcileDrift    prometheus.Counter
}

// NewWalletMetrics registers the wallet counters on the provided registerer.
func NewWalletMetrics(reg prometheus.Registerer) *WalletMetrics {
	if reg == nil {
		return nil
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      name,
			Help:      help,
		})
	}
	m := &WalletMetrics{
		commissionCents:   counter("commission_cents_total", "Commission withheld from completed orders, in cents."),
		clearedTimers:     counter("clearance_timers_cleared_total", "Clearance timers promoted to cleared by the sweep."),
		clearedCents:      counter("cleared_cents_total", "Credit made withdrawable by the sweep, in cents."),
		sweepFailures:     counter("clearance_failures_total", "Clearance timers that failed during a sweep and were left for retry."),
		deductionsSettled: counter("deductions_settled_total", "Pending deductions fully settled."),
		deductedCents:     counter("deducted_cents_total", "Amount applied against pending deductions, in cents."),
		reconcileDrift:    counter("reconcile_drift_total", "Wallets whose cached totals disagreed with the ledger."),
	}
	reg.MustRegister(
		m.commissionCents,
		m.clearedTimers,
		m.clearedCents,
		m.sweepFailures,
		m.deductionsSettled,
		m.deductedCents,
		m.reconcileDrift,
	)
	return m
}

func (m *WalletMetrics) AddCommission(cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.commissionCents.Add(float64(cents))
}

// ObserveClearance records one cleared timer and its amount.
func (m *WalletMetrics) ObserveClearance(cents int64) {
	if m == nil {
		return
	}
	m.clearedTimers.Inc()
	if cents > 0 {
		m.clearedCents.Add(float64(cents))
	}
}

func (m *WalletMetrics) IncSweepFailure() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}

// ObserveDeduction records an amount taken from a deduction and whether it settled.
func (m *WalletMetrics) ObserveDeduction(cents int64, settled bool) {
	if m == nil {
		return
	}
	if cents > 0 {
		m.deductedCents.Add(float64(cents))
	}
	if settled {
		m.deductionsSettled.Inc()
	}
}

func (m *WalletMetrics) IncReconcileDrift() {
	if m == nil {
		return
	}
	m.reconcileDrift.Inc()
}
