/*
Package health implements the HTTP, TCP and Exec liveness checkers the
container manager runs against a running container to decide whether it
should be considered healthy (spec.md §4.7 ContainerMetadata health
probes).

Checker is the common interface; Config carries the interval/timeout/retry
knobs shared by all three probe kinds, and Status accumulates consecutive
pass/fail counts into a single Healthy bool the container manager's
reconciliation loop reads:

	cfg := health.DefaultConfig()
	checker := health.NewHTTPChecker("http://127.0.0.1:8080/healthz")
	status := health.NewStatus()

	for {
		if status.InStartPeriod(cfg) {
			time.Sleep(cfg.Interval)
			continue
		}
		result := checker.Check(ctx)
		status.Update(result, cfg)
		if !status.Healthy {
			// surface container.unhealthy, candidate for restart
		}
		time.Sleep(cfg.Interval)
	}

HTTPChecker treats any 2xx/3xx response as healthy; TCPChecker succeeds on
a completed dial; ExecChecker runs a command inside the container's mount
namespace and treats exit code 0 as healthy.
*/
package health
