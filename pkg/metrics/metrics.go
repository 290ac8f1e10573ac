package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corectl_jobs_total",
			Help: "Total number of jobs by state",
		},
		[]string{"state"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corectl_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	JobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corectl_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
	)

	JobRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corectl_job_retries_total",
			Help: "Total number of job retry attempts",
		},
	)

	// Pipeline metrics
	PipelinesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corectl_pipelines_total",
			Help: "Total number of pipelines by state",
		},
		[]string{"state"},
	)

	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corectl_pipeline_duration_seconds",
			Help:    "Pipeline execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corectl_stage_duration_seconds",
			Help:    "Pipeline stage execution duration in seconds by strategy",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// Resource monitor metrics
	ResourceCPUUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corectl_resource_cpu_usage_ratio",
			Help: "Current aggregate CPU usage ratio observed by the resource monitor",
		},
	)

	ResourceMemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corectl_resource_memory_usage_bytes",
			Help: "Current aggregate memory usage in bytes observed by the resource monitor",
		},
	)

	AdmissionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corectl_admission_rejections_total",
			Help: "Total number of jobs rejected at admission by reason",
		},
		[]string{"reason"},
	)

	// Container metrics
	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corectl_containers_total",
			Help: "Total number of containers by state",
		},
		[]string{"state"},
	)

	ContainerCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corectl_container_create_duration_seconds",
			Help:    "Time taken to create a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corectl_container_start_duration_seconds",
			Help:    "Time taken to start a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corectl_container_stop_duration_seconds",
			Help:    "Time taken to stop a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ImagesPulledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corectl_images_pulled_total",
			Help: "Total number of images pulled",
		},
	)

	VolumesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corectl_volumes_total",
			Help: "Total number of volumes",
		},
	)

	// Distributed dispatcher metrics
	ClusterNodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corectl_cluster_nodes_total",
			Help: "Total number of cluster nodes by status",
		},
		[]string{"status"},
	)

	ClusterIsMaster = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corectl_cluster_is_master",
			Help: "Whether this node currently holds the dispatcher master role (1 = master, 0 = not)",
		},
	)

	DispatchMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corectl_dispatch_messages_total",
			Help: "Total number of inter-node messages by type and direction",
		},
		[]string{"type", "direction"},
	)

	DispatchDuplicatesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corectl_dispatch_duplicates_dropped_total",
			Help: "Total number of duplicate inter-node messages dropped by dedup",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corectl_reconciliation_duration_seconds",
			Help:    "Time taken for a container health reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corectl_reconciliation_restarts_total",
			Help: "Total number of containers restarted by the reconciler",
		},
	)

	// Daemon control-plane metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corectl_api_requests_total",
			Help: "Total number of control-plane API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corectl_api_request_duration_seconds",
			Help:    "Control-plane API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corectl_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	WebhookCircuitOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corectl_webhook_circuit_open_total",
			Help: "Total number of times a webhook's circuit breaker tripped open",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobRetriesTotal)

	prometheus.MustRegister(PipelinesTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(StageDuration)

	prometheus.MustRegister(ResourceCPUUsage)
	prometheus.MustRegister(ResourceMemoryUsageBytes)
	prometheus.MustRegister(AdmissionRejectionsTotal)

	prometheus.MustRegister(ContainersTotal)
	prometheus.MustRegister(ContainerCreateDuration)
	prometheus.MustRegister(ContainerStartDuration)
	prometheus.MustRegister(ContainerStopDuration)
	prometheus.MustRegister(ImagesPulledTotal)
	prometheus.MustRegister(VolumesTotal)

	prometheus.MustRegister(ClusterNodesTotal)
	prometheus.MustRegister(ClusterIsMaster)
	prometheus.MustRegister(DispatchMessagesTotal)
	prometheus.MustRegister(DispatchDuplicatesDroppedTotal)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationRestartsTotal)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(WebhookDeliveriesTotal)
	prometheus.MustRegister(WebhookCircuitOpenTotal)
}

// Handler returns the Prometheus HTTP handler for the daemon's /metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
