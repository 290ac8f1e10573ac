package metrics

import "time"

// JobSource is the subset of the job controller the collector polls for
// gauge metrics. pkg/job.Controller implements it.
type JobSource interface {
	CountJobsByState() map[string]int
}

// ContainerSource is the subset of the container manager the collector
// polls. pkg/container.Manager implements it.
type ContainerSource interface {
	CountContainersByState() map[string]int
	CountVolumes() int
}

// ClusterSource is the subset of the distributed dispatcher the collector
// polls. pkg/dispatch.Dispatcher implements it.
type ClusterSource interface {
	IsMaster() bool
	CountNodesByStatus() map[string]int
}

// Collector periodically samples the job controller, container manager and
// distributed dispatcher into the package's Prometheus gauges, the way the
// teacher's manager-polling collector kept cluster-wide gauges fresh
// without each subsystem pushing metrics itself.
type Collector struct {
	jobs       JobSource
	containers ContainerSource
	cluster    ClusterSource
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCollector creates a Collector. Any source may be nil, in which case
// its metrics are simply never updated (useful for a daemon running
// without clustering enabled).
func NewCollector(jobs JobSource, containers ContainerSource, cluster ClusterSource) *Collector {
	return &Collector{
		jobs:       jobs,
		containers: containers,
		cluster:    cluster,
		interval:   15 * time.Second,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic collection loop.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectJobMetrics()
	c.collectContainerMetrics()
	c.collectClusterMetrics()
}

func (c *Collector) collectJobMetrics() {
	if c.jobs == nil {
		return
	}
	for state, count := range c.jobs.CountJobsByState() {
		JobsTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectContainerMetrics() {
	if c.containers == nil {
		return
	}
	for state, count := range c.containers.CountContainersByState() {
		ContainersTotal.WithLabelValues(state).Set(float64(count))
	}
	VolumesTotal.Set(float64(c.containers.CountVolumes()))
}

func (c *Collector) collectClusterMetrics() {
	if c.cluster == nil {
		return
	}
	if c.cluster.IsMaster() {
		ClusterIsMaster.Set(1)
	} else {
		ClusterIsMaster.Set(0)
	}
	for status, count := range c.cluster.CountNodesByStatus() {
		ClusterNodesTotal.WithLabelValues(status).Set(float64(count))
	}
}
