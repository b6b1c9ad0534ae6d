package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation tracker.
var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_operations_total",
		Help: "Finished long-running operations by kind and terminal state",
	}, []string{"kind", "state"})

	OperationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "panel_operations_in_flight",
		Help: "Operations accepted but not yet finished",
	})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panel_operation_duration_seconds",
		Help:    "Duration of long-running operations",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})
)

// Supervisor and reconciler.
var (
	ServiceActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_service_actions_total",
		Help: "Service start/stop/restart requests by result",
	}, []string{"action", "result"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "panel_reconcile_duration_seconds",
		Help:    "Duration of each reconciliation cycle",
		Buckets: prometheus.DefBuckets,
	})

	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_reconcile_total",
		Help: "Total reconciliation cycles",
	}, []string{"result"})

	DriftDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_drift_detected_total",
		Help: "Services whose observed state differed from the registry",
	}, []string{"service"})
)

// Containers.
var (
	ContainerActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_container_actions_total",
		Help: "Container lifecycle requests by result",
	}, []string{"action", "result"})
)

// Cron.
var (
	CronRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_cron_runs_total",
		Help: "Cron job executions by trigger and outcome",
	}, []string{"trigger", "status"})

	CronRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "panel_cron_run_duration_seconds",
		Help:    "Cron job execution time",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	CronSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panel_cron_skipped_total",
		Help: "Scheduled runs skipped because the job was still running",
	})
)

// Certificates.
var (
	CertificatesIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_certificates_issued_total",
		Help: "Certificate issuances and renewals by provider and result",
	}, []string{"provider", "result"})

	CertificatesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "panel_certificates",
		Help: "Stored certificates by expiry status at the last expiry check",
	}, []string{"status"})
)
