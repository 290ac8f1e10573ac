package reconciler

import (
	"sync"
	"time"

	"github.com/nexusshell/corectl/pkg/log"
	"github.com/nexusshell/corectl/pkg/metrics"
	"github.com/rs/zerolog"
)

// ContainerHealth is the subset of a container's health bookkeeping the
// reconciler needs in order to decide whether a restart policy applies.
type ContainerHealth struct {
	ID                  string
	Healthy             bool
	ConsecutiveFailures int
	RestartPolicy       string // "no", "always", "on-failure"
}

// ContainerSource is the container manager's view the reconciler polls.
// pkg/container.Manager implements it.
type ContainerSource interface {
	UnhealthyContainers() ([]ContainerHealth, error)
	RestartContainer(id string) error
	MarkFailed(id string, reason string) error
}

// Reconciler is the background consistency loop that turns health-check
// failures into restarts or terminal failures according to each
// container's restart policy, the way the teacher's reconciler turned
// heartbeat/health observations into state transitions on a ticker.
type Reconciler struct {
	containers ContainerSource
	logger     zerolog.Logger
	mu         sync.Mutex
	interval   time.Duration
	stopCh     chan struct{}
}

// NewReconciler creates a Reconciler polling containers every interval.
func NewReconciler(containers ContainerSource, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reconciler{
		containers: containers,
		logger:     log.WithComponent("reconciler"),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the reconciliation loop in a background goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop halts the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	r.mu.Lock()
	defer r.mu.Unlock()

	unhealthy, err := r.containers.UnhealthyContainers()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list unhealthy containers")
		return
	}

	for _, c := range unhealthy {
		r.reconcileOne(c)
	}
}

func (r *Reconciler) reconcileOne(c ContainerHealth) {
	switch c.RestartPolicy {
	case "always", "on-failure":
		r.logger.Warn().
			Str("container_id", c.ID).
			Int("consecutive_failures", c.ConsecutiveFailures).
			Msg("restarting unhealthy container")
		if err := r.containers.RestartContainer(c.ID); err != nil {
			r.logger.Error().Err(err).Str("container_id", c.ID).Msg("failed to restart container")
		} else {
			metrics.ReconciliationRestartsTotal.Inc()
		}
	default:
		r.logger.Warn().
			Str("container_id", c.ID).
			Msg("marking unhealthy container failed, no restart policy")
		if err := r.containers.MarkFailed(c.ID, "health check failed"); err != nil {
			r.logger.Error().Err(err).Str("container_id", c.ID).Msg("failed to mark container failed")
		}
	}
}
