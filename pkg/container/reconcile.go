package container

import (
	"context"
	"time"

	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/reconciler"
)

// UnhealthyContainers implements reconciler.ContainerSource: containers
// with a live health.Status that has failed its configured retry
// threshold.
func (m *Manager) UnhealthyContainers() ([]reconciler.ContainerHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reconciler.ContainerHealth
	for _, rec := range m.ids {
		rec.mu.Lock()
		if rec.health != nil && !rec.health.Healthy {
			out = append(out, reconciler.ContainerHealth{
				ID:                  rec.meta.ID,
				Healthy:             false,
				ConsecutiveFailures: rec.health.ConsecutiveFailures,
				RestartPolicy:       string(rec.meta.Config.Restart),
			})
		}
		rec.mu.Unlock()
	}
	return out, nil
}

// RestartContainer implements reconciler.ContainerSource: stop (if
// running) then start the container in place, clearing its failure
// bookkeeping.
func (m *Manager) RestartContainer(id string) error {
	ctx := context.Background()
	rec, err := m.Resolve(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	running := rec.meta.State == StateRunning || rec.meta.State == StatePaused
	rec.mu.Unlock()
	if running {
		if err := m.Stop(ctx, id, 10*time.Second); err != nil {
			return err
		}
	}

	if err := m.Start(ctx, id); err != nil {
		return err
	}

	rec.mu.Lock()
	rec.meta.ConsecutiveFailures = 0
	rec.meta.LastFailureReason = ""
	rec.health = nil // fresh health.Status reattached on next probe cycle
	m.persist(&rec.meta)
	rec.mu.Unlock()
	return nil
}

// MarkFailed implements reconciler.ContainerSource: records a terminal
// failure reason without attempting a restart, for containers whose
// restart policy is "no" or whose retry budget is exhausted.
func (m *Manager) MarkFailed(id string, reason string) error {
	rec, err := m.Resolve(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	rec.meta.LastFailureReason = reason
	rec.meta.ConsecutiveFailures++
	m.persist(&rec.meta)
	rec.mu.Unlock()

	if rec.health != nil && !rec.health.Healthy {
		m.emit(events.EventContainerUnhealthy, id, reason)
	}
	m.emit(events.EventContainerFailed, id, reason)
	return nil
}
