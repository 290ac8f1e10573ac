// Package daemon is the control plane: it owns every subsystem manager,
// exposes them over a binary framed RPC listener and an HTTP façade, and
// coordinates startup/shutdown the way nexusd's NexusDaemon does — create
// data-root directories, initialize managers, emit a start event, race the
// listeners and signal handler, then drain and stop on the way out.
package daemon

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexusshell/corectl/pkg/config"
	"github.com/nexusshell/corectl/pkg/container"
	"github.com/nexusshell/corectl/pkg/dispatch"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/job"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/nexusshell/corectl/pkg/metrics"
	"github.com/nexusshell/corectl/pkg/network"
	"github.com/nexusshell/corectl/pkg/pipeline"
	"github.com/nexusshell/corectl/pkg/reconciler"
	"github.com/nexusshell/corectl/pkg/resource"
	"github.com/nexusshell/corectl/pkg/storage"
	"github.com/nexusshell/corectl/pkg/volume"
	"github.com/rs/zerolog"
)

// reconcileInterval is how often the reconciler polls for containers
// whose health check has failed past their restart policy's threshold.
const reconcileInterval = 10 * time.Second

// Daemon wires every subsystem manager together and runs the RPC/HTTP
// façades described in §4.8. Build with New, run with Run.
type Daemon struct {
	cfg    config.Config
	logger zerolog.Logger

	broker      *events.Broker
	jobs        *job.Controller
	pipelines   *pipeline.Executor
	containers  *container.Manager
	images      *container.ImageManager
	volumes     *volume.Manager
	networks    *network.Manager
	resourceMon *resource.Monitor
	collector   *metrics.Collector
	dispatcher  *dispatch.Dispatcher // nil unless cluster_bind_addr is set
	webhooks    *webhookDispatcher
	store       storage.Store
	reconciler  *reconciler.Reconciler

	rpcListener  *rpcServer
	httpListener *httpServer

	tlsConfig *tls.Config

	mu          sync.Mutex
	shutdown    chan struct{}
	done        chan struct{}
	probeCancel context.CancelFunc
}

// New creates data-root subdirectories and every sub-manager, emitting a
// daemon.start event, mirroring nexusd's NexusDaemon::new.
func New(cfg config.Config, store storage.Store) (*Daemon, error) {
	logger := log.WithComponent("daemon")

	if err := validateOpenAPISpec(); err != nil {
		return nil, fmt.Errorf("embedded openapi spec is invalid: %w", err)
	}

	for _, dir := range []string{"containers", "images", "volumes", "tmp"} {
		if err := os.MkdirAll(filepath.Join(cfg.DataRoot, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create data-root subdirectory %s: %w", dir, err)
		}
	}

	broker := events.NewBroker()

	volumes, err := volume.NewManager(filepath.Join(cfg.DataRoot, "volumes"))
	if err != nil {
		return nil, fmt.Errorf("init volume manager: %w", err)
	}

	images, err := container.NewImageManager(cfg.DataRoot, broker)
	if err != nil {
		return nil, fmt.Errorf("init image manager: %w", err)
	}

	runtime, err := container.NewContainerdRuntime("")
	if err != nil {
		return nil, fmt.Errorf("init container runtime: %w", err)
	}
	driver := storage.NewOverlayDriver(cfg.DataRoot)
	containers := container.NewManager(runtime, driver, volumes, store, broker)

	jobCfg := job.DefaultConfig()
	if cfg.MaxConcurrentJobs > 0 {
		jobCfg.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	}
	jobs := job.NewController(jobCfg, broker)

	resourceMon, err := resource.New(resource.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("init resource monitor: %w", err)
	}

	pipelines := pipeline.NewExecutor(broker, resourceMon)
	collector := metrics.NewCollector(jobs, containers, nil)

	var dispatcher *dispatch.Dispatcher
	if cfg.ClusterBindAddr != "" {
		dcfg := dispatch.DefaultConfig()
		dcfg.Address = cfg.ClusterBindAddr
		dcfg.ElectionPriority = cfg.ElectionPriority
		self := dispatch.ClusterNode{ID: cfg.ClusterBindAddr, Address: cfg.ClusterBindAddr, ElectionPriority: cfg.ElectionPriority}
		dispatcher, err = dispatch.New(dcfg, self, broker)
		if err != nil {
			return nil, fmt.Errorf("init dispatcher: %w", err)
		}
	}

	tlsConfig, err := buildTLSConfig(cfg, store)
	if err != nil {
		return nil, fmt.Errorf("init tls: %w", err)
	}

	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		tlsConfig:   tlsConfig,
		broker:      broker,
		jobs:        jobs,
		pipelines:   pipelines,
		containers:  containers,
		images:      images,
		volumes:     volumes,
		networks:    network.NewManager(),
		resourceMon: resourceMon,
		collector:   collector,
		dispatcher:  dispatcher,
		store:       store,
		webhooks:    newWebhookDispatcher(cfg.Webhooks, broker),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	d.rpcListener = newRPCServer(d)
	d.httpListener = newHTTPServer(d)
	d.reconciler = reconciler.NewReconciler(containers, reconcileInterval)

	metrics.RegisterComponent("storage", true, "")
	metrics.RegisterComponent("containerd", true, "")
	metrics.RegisterComponent("control-plane", true, "")

	broker.Start()
	broker.Publish(&events.Event{ID: uuid.NewString(), Type: events.EventDaemonStart, Message: "daemon starting"})
	return d, nil
}

// Run starts the RPC listener, HTTP listener, health probe, reconciler,
// resource sampler, webhook dispatcher and (when configured) cluster
// dispatcher, and blocks until ctx is cancelled, a listener exits or an
// explicit Shutdown is requested, then performs a graceful shutdown,
// mirroring nexusd's NexusDaemon::run. Signal handling is left to the
// caller, which cancels ctx.
func (d *Daemon) Run(ctx context.Context) error {
	errCh := make(chan error, 4)

	go func() {
		if err := d.rpcListener.listen(d.cfg.RPCListen); err != nil {
			errCh <- fmt.Errorf("rpc listener: %w", err)
		}
	}()
	go func() {
		if err := d.httpListener.listen(d.cfg.HTTPListen); err != nil {
			errCh <- fmt.Errorf("http listener: %w", err)
		}
	}()

	probeCtx, cancel := context.WithCancel(ctx)
	d.probeCancel = cancel
	d.containers.StartHealthProbe(probeCtx)
	d.reconciler.Start()

	d.resourceMon.Start(ctx)
	d.collector.Start()
	d.webhooks.Start(ctx)
	if d.dispatcher != nil {
		if err := d.dispatcher.Start(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("cluster dispatcher failed to start")
		}
	}

	d.logger.Info().Msg("all services started, daemon is ready")
	d.broker.Publish(&events.Event{ID: uuid.NewString(), Type: events.EventDaemonReady, Message: "all services started successfully"})

	select {
	case <-ctx.Done():
	case <-d.shutdown:
	case err := <-errCh:
		d.logger.Error().Err(err).Msg("a daemon service terminated unexpectedly")
	}

	d.gracefulShutdown()
	close(d.done)
	return nil
}

// gracefulShutdown stops every Running container per its configured stop
// policy, flushes sub-manager state, and emits the terminal daemon.stop
// event, mirroring nexusd's graceful_shutdown.
func (d *Daemon) gracefulShutdown() {
	d.logger.Info().Msg("starting graceful shutdown")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, meta := range d.containers.List(false, nil) {
		d.logger.Info().Str("container", meta.ID).Msg("stopping container")
		if err := d.containers.Stop(stopCtx, meta.ID, 10*time.Second); err != nil {
			d.logger.Warn().Err(err).Str("container", meta.ID).Msg("failed to stop container during shutdown")
		}
	}

	if d.probeCancel != nil {
		d.probeCancel()
	}
	d.reconciler.Stop()

	d.jobs.Stop()
	d.resourceMon.Stop()
	d.collector.Stop()
	d.webhooks.Stop()
	if d.dispatcher != nil {
		d.dispatcher.Stop()
	}
	d.rpcListener.close()
	d.httpListener.close()

	d.broker.Publish(&events.Event{ID: uuid.NewString(), Type: events.EventDaemonStop, Message: "daemon stopped"})
	d.broker.Stop()

	d.logger.Info().Msg("graceful shutdown completed")
}

// Shutdown requests a graceful shutdown and blocks until Run has returned.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	select {
	case <-d.shutdown:
		d.mu.Unlock()
		return
	default:
		close(d.shutdown)
	}
	d.mu.Unlock()
	<-d.done
}

// ReloadConfig swaps in a freshly validated configuration and emits a
// config_reload event. Only the webhook policy set is live-reloadable
// today; listener addresses require a restart.
func (d *Daemon) ReloadConfig(cfg config.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	d.webhooks.Reconfigure(cfg.Webhooks)
	d.broker.Publish(&events.Event{ID: uuid.NewString(), Type: events.EventDaemonConfigReload, Message: "configuration reloaded"})
}

// Stats reports the same counters nexusd's get_daemon_stats exposes.
func (d *Daemon) Stats() map[string]any {
	byState := d.containers.CountContainersByState()
	imgs, _ := d.images.List()
	vols, _ := d.volumes.List()
	return map[string]any{
		"containers_total":   sumCounts(byState),
		"containers_running": byState["Running"],
		"containers_paused":  byState["Paused"],
		"containers_stopped": byState["Exited"],
		"images_total":       len(imgs),
		"volumes_total":      len(vols),
		"jobs_by_state":      d.jobs.CountJobsByState(),
	}
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
