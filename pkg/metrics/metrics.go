package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueJobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_queue_jobs_total",
			Help: "Number of queue jobs by status",
		},
		[]string{"status"},
	)

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_jobs_processed_total",
			Help: "Jobs processed by kind and final status",
		},
		[]string{"kind", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"kind"},
	)

	ZombiesReclaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_zombies_reclaimed_total",
			Help: "Zombie jobs reclaimed by outcome",
		},
		[]string{"outcome"},
	)

	FinishedJobsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_finished_jobs_purged_total",
			Help: "Finished job records removed by the retention sweep",
		},
	)

	// Cache metrics
	CacheEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_cache_entries_total",
			Help: "Cache entries by kind and http status",
		},
		[]string{"kind", "status"},
	)

	// Planning metrics
	BackfillJobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_backfill_jobs_created_total",
			Help: "Jobs created by backfill planning",
		},
	)

	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_reconcile_cycles_total",
			Help: "Completed reconcile cycles",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_reconcile_duration_seconds",
			Help:    "Reconcile cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Webhook metrics
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_webhook_events_total",
			Help: "Webhook events by type and result",
		},
		[]string{"event", "result"},
	)
)

func init() {
	prometheus.MustRegister(QueueJobsTotal)
	prometheus.MustRegister(JobsProcessedTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(ZombiesReclaimedTotal)
	prometheus.MustRegister(FinishedJobsPurgedTotal)
	prometheus.MustRegister(CacheEntriesTotal)
	prometheus.MustRegister(BackfillJobsCreatedTotal)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(WebhookEventsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures one duration for a histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time on the observer
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(time.Since(t.start).Seconds())
}
