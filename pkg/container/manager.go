package container

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/health"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/nexusshell/corectl/pkg/ocispec"
	"github.com/nexusshell/corectl/pkg/storage"
	"github.com/nexusshell/corectl/pkg/volume"
	"github.com/rs/zerolog"
)

const metadataBucket = "containers"

// StorageDriver is the subset of pkg/storage's OverlayDriver Manager
// needs: rootfs preparation, volume bind/unbind and container-directory
// cleanup. A local interface keeps this package's dependency on
// pkg/storage to exactly the methods it calls.
type StorageDriver interface {
	ContainerDir(id string) string
	PrepareRootfs(id string, layers []string) (storage.Paths, error)
	MountVolume(hostPath, target string, readOnly bool) error
	UnmountVolume(target string) error
	Cleanup(id string) error
}

// Manager implements ContainerManager (spec.md §4.7): the Created ->
// Running <-> Paused -> Exited -> Removed state machine, name/id/prefix
// resolution, and the bridge between a container's persisted Metadata,
// its OCI bundle on disk and the containerd-backed Runtime that actually
// runs it.
type Manager struct {
	runtime Runtime
	driver  StorageDriver
	volumes *volume.Manager
	store   storage.Store
	broker  *events.Broker
	logger  zerolog.Logger

	mu   sync.RWMutex
	ids  map[string]*record // id -> record
	name map[string]string  // name -> id
}

// NewManager wires a Manager from its collaborators. store may be nil in
// which case metadata persists only in memory (useful for tests).
func NewManager(rt Runtime, driver StorageDriver, volumes *volume.Manager, store storage.Store, broker *events.Broker) *Manager {
	if store != nil {
		_ = store.EnsureBucket(metadataBucket)
	}
	return &Manager{
		runtime: rt,
		driver:  driver,
		volumes: volumes,
		store:   store,
		broker:  broker,
		logger:  log.WithComponent("container-manager"),
		ids:     make(map[string]*record),
		name:    make(map[string]string),
	}
}

func (m *Manager) emit(evtType events.EventType, id, message string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		ID:      uuid.NewString(),
		Type:    evtType,
		Message: message,
		Metadata: map[string]string{
			"container_id": id,
		},
	})
}

// Create validates name uniqueness, allocates an id, prepares the rootfs
// via StorageDriver, writes the OCI runtime config into the bundle
// directory and records Created metadata.
func (m *Manager) Create(name, image string, layers []string, cfg Config) (string, error) {
	m.mu.Lock()
	if name != "" {
		if _, exists := m.name[name]; exists {
			m.mu.Unlock()
			return "", corerr.New(corerr.Validation, corerr.ReasonStateConflict, name, "container name already in use")
		}
	}
	m.mu.Unlock()

	id := uuid.NewString()
	if name == "" {
		name = fmt.Sprintf("container-%s", id[:8])
	}

	paths, err := m.driver.PrepareRootfs(id, layers)
	if err != nil {
		return "", err
	}

	bundleCfg, err := m.bundleConfig(id, paths.Merged, cfg)
	if err != nil {
		_ = m.driver.Cleanup(id)
		return "", err
	}

	if err := ocispec.Write(m.driver.ContainerDir(id), bundleCfg); err != nil {
		_ = m.driver.Cleanup(id)
		return "", err
	}

	meta := Metadata{
		ID:         id,
		Name:       name,
		Image:      image,
		Config:     cfg,
		State:      StateCreated,
		CreatedAt:  time.Now(),
		BundlePath: paths.Merged,
	}

	rec := &record{meta: meta}
	if cfg.HealthCmd != nil || cfg.HealthCheck != nil {
		rec.health = health.NewStatus()
	}

	m.mu.Lock()
	m.ids[id] = rec
	m.name[name] = id
	m.mu.Unlock()

	m.persist(&meta)
	m.emit(events.EventContainerCreated, id, "container created")
	return id, nil
}

// bundleConfig builds the OCI bundle config both Create (to write
// config.json) and Start (to hand containerd an in-memory spec) need, so
// the two never drift apart.
func (m *Manager) bundleConfig(id, rootPath string, cfg Config) (ocispec.BundleConfig, error) {
	bundleCfg := ocispec.BundleConfig{
		Args:         cfg.Args,
		Env:          cfg.Env,
		Cwd:          cfg.Cwd,
		UID:          cfg.UID,
		GID:          cfg.GID,
		RootPath:     rootPath,
		RootReadonly: cfg.ReadOnly,
		Hostname:     cfg.Hostname,
		Namespaces:   ocispec.DefaultNamespaces(),
		Resources:    cfg.Resources,
		Capabilities: capabilitiesFor(cfg),
	}
	for _, v := range cfg.Volumes {
		if v.Kind == volume.KindTmpfs {
			continue
		}
		host, err := m.volumes.HostPath(&v)
		if err != nil {
			return ocispec.BundleConfig{}, corerr.Wrap(corerr.Validation, corerr.ReasonNone, id, err)
		}
		bundleCfg.Mounts = append(bundleCfg.Mounts, ocispec.Mount{
			Destination: v.Target,
			Source:      host,
			Type:        "bind",
			Options:     readOnlyOption(v.ReadOnly),
		})
	}
	return bundleCfg, nil
}

func readOnlyOption(ro bool) []string {
	if ro {
		return []string{"ro", "bind"}
	}
	return []string{"rw", "bind"}
}

// restrictedCapabilities is the minimal set a "restricted" security profile
// grants: enough to run an unprivileged process, nothing that touches host
// state.
var restrictedCapabilities = []string{
	"CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_FSETID", "CAP_FOWNER", "CAP_SETGID", "CAP_SETUID",
}

// defaultCapabilities mirrors the OCI reference bundle's default set
// (spec.md §6 container create default, before --privileged or
// --security-profile widen or narrow it).
var defaultCapabilities = append(append([]string{}, restrictedCapabilities...),
	"CAP_KILL", "CAP_NET_BIND_SERVICE", "CAP_SETPCAP", "CAP_SETFCAP",
	"CAP_NET_RAW", "CAP_SYS_CHROOT", "CAP_AUDIT_WRITE",
)

// privilegedCapabilities grants everything a --privileged container gets:
// every capability the default set has plus host-state-affecting ones a
// real container runtime restricts by default.
var privilegedCapabilities = append(append([]string{}, defaultCapabilities...),
	"CAP_SYS_ADMIN", "CAP_SYS_MODULE", "CAP_SYS_PTRACE", "CAP_SYS_RAWIO",
	"CAP_NET_ADMIN", "CAP_MKNOD", "CAP_SYS_BOOT",
)

// capabilitiesFor resolves cfg.Privileged and cfg.SecurityProfile into the
// capability set bundleConfig hands the OCI runtime spec. Privileged wins
// over any named profile, matching the teacher's flag-precedence posture
// elsewhere (explicit override beats named default).
func capabilitiesFor(cfg Config) []string {
	if cfg.Privileged {
		return privilegedCapabilities
	}
	switch cfg.SecurityProfile {
	case "unconfined":
		return privilegedCapabilities
	case "restricted":
		return restrictedCapabilities
	case "", "default":
		return defaultCapabilities
	default:
		return defaultCapabilities
	}
}

func (m *Manager) persist(meta *Metadata) {
	if m.store == nil {
		return
	}
	b, err := marshalMetadata(meta)
	if err != nil {
		m.logger.Warn().Err(err).Str("container_id", meta.ID).Msg("failed to marshal container metadata")
		return
	}
	if err := m.store.Put(metadataBucket, meta.ID, b); err != nil {
		m.logger.Warn().Err(err).Str("container_id", meta.ID).Msg("failed to persist container metadata")
	}
}

// Resolve looks up a container by exact name, exact id, or unambiguous id
// prefix, the way spec.md §4.7 describes name/id resolution.
func (m *Manager) Resolve(ref string) (*record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.name[ref]; ok {
		return m.ids[id], nil
	}
	if rec, ok := m.ids[ref]; ok {
		return rec, nil
	}

	var matches []*record
	for id, rec := range m.ids {
		if strings.HasPrefix(id, ref) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return nil, corerr.New(corerr.Data, corerr.ReasonNotFound, ref, "container not found")
	case 1:
		return matches[0], nil
	default:
		return nil, corerr.New(corerr.Validation, corerr.ReasonAmbiguous, ref, "ambiguous container id prefix")
	}
}

// Start invokes the OCI runtime with the container's bundle, records its
// pid and transitions it to Running.
func (m *Manager) Start(ctx context.Context, ref string) error {
	rec, err := m.Resolve(ref)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.meta.State != StateCreated && rec.meta.State != StateExited {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, rec.meta.ID,
			fmt.Sprintf("cannot start container in state %s", rec.meta.State))
	}

	bundleCfg, err := m.bundleConfig(rec.meta.ID, rec.meta.BundlePath, rec.meta.Config)
	if err != nil {
		return err
	}
	logPath := filepath.Join(m.driver.ContainerDir(rec.meta.ID), "container.log")
	if err := m.runtime.Create(ctx, rec.meta.ID, logPath, ocispec.Spec(bundleCfg)); err != nil {
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, rec.meta.ID, err)
	}
	pid, err := m.runtime.Start(ctx, rec.meta.ID)
	if err != nil {
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, rec.meta.ID, err)
	}

	rec.meta.Pid = int(pid)
	rec.meta.State = StateRunning
	rec.meta.StartedAt = time.Now()
	m.persist(&rec.meta)
	m.emit(events.EventContainerStarted, rec.meta.ID, "container started")

	go m.awaitExit(rec)
	return nil
}

func (m *Manager) awaitExit(rec *record) {
	ch, err := m.runtime.Wait(context.Background(), rec.meta.ID)
	if err != nil {
		return
	}
	code, ok := <-ch
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.meta.ExitCode = int(code)
	rec.meta.State = StateExited
	rec.meta.FinishedAt = time.Now()
	m.persist(&rec.meta)
	rec.mu.Unlock()
	m.emit(events.EventContainerExited, rec.meta.ID, fmt.Sprintf("exit code %d", code))
}

// Stop sends the configured stop signal (default SIGTERM), waits up to
// timeout, then sends SIGKILL if the container hasn't exited.
func (m *Manager) Stop(ctx context.Context, ref string, timeout time.Duration) error {
	rec, err := m.Resolve(ref)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	if rec.meta.State != StateRunning {
		rec.mu.Unlock()
		return nil
	}
	sig := parseSignal(rec.meta.Config.StopSignal)
	id := rec.meta.ID
	rec.mu.Unlock()

	if err := m.runtime.Signal(ctx, id, sig); err != nil {
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, id, err)
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			return m.runtime.Signal(ctx, id, syscall.SIGKILL)
		case <-ticker.C:
			rec.mu.Lock()
			exited := rec.meta.State == StateExited
			rec.mu.Unlock()
			if exited {
				return nil
			}
		}
	}
}

func parseSignal(name string) syscall.Signal {
	switch strings.ToUpper(name) {
	case "SIGKILL":
		return syscall.SIGKILL
	case "SIGINT":
		return syscall.SIGINT
	case "SIGHUP":
		return syscall.SIGHUP
	case "":
		return syscall.SIGTERM
	default:
		return syscall.SIGTERM
	}
}

// Kill immediately terminates a container.
func (m *Manager) Kill(ctx context.Context, ref string) error {
	rec, err := m.Resolve(ref)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	id := rec.meta.ID
	rec.mu.Unlock()
	return m.runtime.Signal(ctx, id, syscall.SIGKILL)
}

// Pause suspends a running container's cgroup.
func (m *Manager) Pause(ref string) error {
	rec, err := m.Resolve(ref)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.meta.State != StateRunning {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, rec.meta.ID,
			fmt.Sprintf("cannot pause container in state %s", rec.meta.State))
	}
	if err := freeze(rec.meta.Pid); err != nil {
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, rec.meta.ID, err)
	}
	rec.meta.State = StatePaused
	m.persist(&rec.meta)
	m.emit(events.EventContainerPaused, rec.meta.ID, "container paused")
	return nil
}

// Unpause resumes a paused container's cgroup.
func (m *Manager) Unpause(ref string) error {
	rec, err := m.Resolve(ref)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.meta.State != StatePaused {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, rec.meta.ID,
			fmt.Sprintf("cannot unpause container in state %s", rec.meta.State))
	}
	if err := thaw(rec.meta.Pid); err != nil {
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, rec.meta.ID, err)
	}
	rec.meta.State = StateRunning
	m.persist(&rec.meta)
	return nil
}

// Remove is valid from Created or Exited, or any state when force is set; it
// unmounts overlays, optionally purges referenced named volumes and
// deletes metadata.
func (m *Manager) Remove(ctx context.Context, ref string, force, removeVolumes bool) error {
	rec, err := m.Resolve(ref)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	state := rec.meta.State
	id := rec.meta.ID
	name := rec.meta.Name
	volumes := rec.meta.Config.Volumes
	rec.mu.Unlock()

	if state != StateExited && state != StateCreated && !force {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, id,
			fmt.Sprintf("cannot remove container in state %s without force", state))
	}

	if state == StateRunning || state == StatePaused {
		_ = m.runtime.Signal(ctx, id, syscall.SIGKILL)
	}
	_ = m.runtime.Delete(ctx, id)
	_ = m.driver.Cleanup(id)

	if removeVolumes {
		for _, v := range volumes {
			if v.Kind == volume.KindNamed {
				_ = m.volumes.Remove(v.Name)
			}
		}
	}

	m.mu.Lock()
	delete(m.ids, id)
	delete(m.name, name)
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.Delete(metadataBucket, id)
	}
	m.emit(events.EventContainerRemoved, id, "container removed")
	return nil
}

// Stats returns instantaneous CPU/memory/I/O/pids counters for a running
// container.
func (m *Manager) Stats(ref string) (Stats, error) {
	rec, err := m.Resolve(ref)
	if err != nil {
		return Stats{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.meta.State != StateRunning && rec.meta.State != StatePaused {
		return Stats{}, corerr.New(corerr.Runtime, corerr.ReasonInvalidState, rec.meta.ID,
			"container is not running")
	}
	return cgroupStats(rec.meta.Pid)
}

// List returns metadata for containers matching filters (AND-combined over
// the name, image and state keys). all=false restricts to Running|Paused.
func (m *Manager) List(all bool, filters map[string]string) []Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Metadata, 0, len(m.ids))
	for _, rec := range m.ids {
		rec.mu.Lock()
		meta := rec.meta
		rec.mu.Unlock()

		if !all && meta.State != StateRunning && meta.State != StatePaused {
			continue
		}
		if !matchesFilters(meta, filters) {
			continue
		}
		out = append(out, meta)
	}
	return out
}

func matchesFilters(meta Metadata, filters map[string]string) bool {
	for k, v := range filters {
		switch k {
		case "name":
			if meta.Name != v {
				return false
			}
		case "image":
			if meta.Image != v {
				return false
			}
		case "state":
			if string(meta.State) != v {
				return false
			}
		}
	}
	return true
}

// Inspect returns the full persisted metadata for a container.
func (m *Manager) Inspect(ref string) (Metadata, error) {
	rec, err := m.Resolve(ref)
	if err != nil {
		return Metadata{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.meta, nil
}

// CountContainersByState implements metrics.ContainerSource.
func (m *Manager) CountContainersByState() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range m.ids {
		rec.mu.Lock()
		counts[string(rec.meta.State)]++
		rec.mu.Unlock()
	}
	return counts
}

// CountVolumes implements metrics.ContainerSource.
func (m *Manager) CountVolumes() int {
	if m.volumes == nil {
		return 0
	}
	names, err := m.volumes.List()
	if err != nil {
		return 0
	}
	return len(names)
}
