package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fyts_gps_samples_total",
			Help: "GPS samples processed by the movement filter, by decision reason",
		},
		[]string{"reason"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fyts_tracking_sessions_active",
			Help: "Tracking sessions started and not yet stopped",
		},
	)

	RunsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fyts_runs_submitted_total",
			Help: "Movement records submitted for review",
		},
	)

	RunStatusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fyts_run_status_changes_total",
			Help: "Admin status changes on movement records",
		},
		[]string{"status"},
	)

	DistributionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fyts_distributions_total",
			Help: "Distribution attempts by outcome",
		},
		[]string{"outcome"},
	)

	TransferConfirmDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fyts_transfer_confirm_duration_seconds",
			Help:    "Time from transfer submission to one confirmation",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fyts_exports_total",
			Help: "Approved-run CSV exports by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register 向默认 registry 注册全部指标，可重复调用
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SamplesTotal)
		prometheus.MustRegister(SessionsActive)
		prometheus.MustRegister(RunsSubmittedTotal)
		prometheus.MustRegister(RunStatusChangesTotal)
		prometheus.MustRegister(DistributionsTotal)
		prometheus.MustRegister(TransferConfirmDuration)
		prometheus.MustRegister(ExportsTotal)
	})
}
