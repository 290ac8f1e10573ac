package container

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/health"
)

// probeTick is how often StartHealthProbe polls every container; each
// container's actual check cadence is governed by its own
// health.Config.Interval, checked against rec.health.LastCheck.
const probeTick = 5 * time.Second

// StartHealthProbe runs each Running container's configured HealthCmd on
// its own interval and feeds the result into rec.health via Update. Create
// already allocates a health.Status for any container with a health check
// configured; until this loop runs, nothing ever called Update on it and
// the reconciler's UnhealthyContainers could never see a failure.
func (m *Manager) StartHealthProbe(ctx context.Context) {
	go m.runHealthProbe(ctx)
}

func (m *Manager) runHealthProbe(ctx context.Context) {
	ticker := time.NewTicker(probeTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Manager) probeAll(ctx context.Context) {
	m.mu.RLock()
	recs := make([]*record, 0, len(m.ids))
	for _, rec := range m.ids {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	for _, rec := range recs {
		m.probeOne(ctx, rec)
	}
}

func (m *Manager) probeOne(ctx context.Context, rec *record) {
	rec.mu.Lock()
	running := rec.meta.State == StateRunning
	id := rec.meta.ID
	cmd := rec.meta.Config.HealthCmd
	cfgPtr := rec.meta.Config.HealthCheck
	if rec.health == nil && running && len(cmd) > 0 {
		rec.health = health.NewStatus()
	}
	st := rec.health
	rec.mu.Unlock()

	if !running || len(cmd) == 0 || st == nil {
		return
	}

	hc := health.DefaultConfig()
	if cfgPtr != nil {
		hc = *cfgPtr
	}
	if st.InStartPeriod(hc) {
		return
	}
	if !st.LastCheck.IsZero() && time.Since(st.LastCheck) < hc.Interval {
		return
	}

	checker := health.NewExecChecker(cmd).WithContainer(id).WithTimeout(hc.Timeout)
	checker.ContainerExec = func(ctx context.Context, containerID string, argv []string) (string, error) {
		rec.mu.Lock()
		pid := rec.meta.Pid
		rec.mu.Unlock()
		args := append([]string{"-t", fmt.Sprintf("%d", pid), "-m", "-u", "-i", "-n", "-p"}, argv...)
		out, err := exec.CommandContext(ctx, "nsenter", args...).CombinedOutput()
		return string(out), err
	}

	checkCtx, cancel := context.WithTimeout(ctx, hc.Timeout)
	result := checker.Check(checkCtx)
	cancel()

	rec.mu.Lock()
	wasHealthy := st.Healthy
	st.Update(result, hc)
	nowHealthy := st.Healthy
	rec.mu.Unlock()

	if wasHealthy && !nowHealthy {
		m.emit(events.EventContainerUnhealthy, id, result.Message)
	}
}
