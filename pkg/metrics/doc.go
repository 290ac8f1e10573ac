/*
Package metrics exposes corectl's Prometheus instrumentation and the
liveness/readiness/health HTTP handlers the daemon wires under /live,
/ready and /health. Handler returns the Prometheus exposition handler; the
daemon's router does not mount it.

Gauges and histograms are grouped by the subsystem they describe: job
(corectl_jobs_total, corectl_job_duration_seconds), pipeline
(corectl_pipelines_total, corectl_stage_duration_seconds), resource monitor
(corectl_resource_cpu_usage_ratio, corectl_admission_rejections_total),
container (corectl_containers_total, corectl_container_*_duration_seconds),
distributed dispatcher (corectl_cluster_nodes_total,
corectl_dispatch_messages_total) and control plane
(corectl_api_requests_total, corectl_webhook_deliveries_total). All are
registered at package init and safe for concurrent use.

Collector polls the job controller, container manager and dispatcher on a
15-second tick to keep the gauge-shaped metrics (counts by state) fresh
without every subsystem needing to push on every state transition:

	c := metrics.NewCollector(jobController, containerManager, dispatcher)
	c.Start()
	defer c.Stop()

HealthChecker tracks named component health (RegisterComponent/UpdateComponent)
feeding GetHealth/GetReadiness, which HealthHandler/ReadyHandler/LivenessHandler
expose as JSON over HTTP. Readiness additionally gates on the "storage",
"containerd" and "control-plane" components being registered healthy.
*/
package metrics
