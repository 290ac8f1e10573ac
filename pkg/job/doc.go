/*
Package job implements the job engine's core state machine: Job is a
single command or script invocation, Controller owns the live-job map,
history ring and concurrency semaphore, and Group ties sibling jobs
together for bulk cancel/wait.

	ctrl := job.NewController(job.DefaultConfig(), broker)
	id, _ := ctrl.CreateJob(job.Options{Command: "sleep", Args: []string{"5"}})
	if err := ctrl.StartJob(id); err != nil {
		// ConcurrencyLimitReached leaves the job Pending
	}

A job's signal path (pause/resume/cancel) only ever reaches the process
group it directly spawned; containers started via exec inside another
container's namespace are tracked independently by the container
manager. Controller satisfies pkg/metrics.JobSource so the periodic
collector can poll job counts without importing this package.
*/
package job
