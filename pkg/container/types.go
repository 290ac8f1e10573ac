package container

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nexusshell/corectl/pkg/health"
	"github.com/nexusshell/corectl/pkg/ocispec"
	"github.com/nexusshell/corectl/pkg/volume"
)

// State is a container's position in the state machine spec.md §4.7
// describes: Created -> Running <-> Paused -> Exited -> Removed, with a
// direct Created -> Removed path for a container removed before start.
type State string

const (
	StateCreated State = "Created"
	StateRunning State = "Running"
	StatePaused  State = "Paused"
	StateExited  State = "Exited"
	StateRemoved State = "Removed"
)

// RestartPolicy controls what ContainerManager does when a health check
// or the runtime itself reports a container has stopped unexpectedly.
type RestartPolicy string

const (
	RestartNo        RestartPolicy = "no"
	RestartAlways    RestartPolicy = "always"
	RestartOnFailure RestartPolicy = "on-failure"
)

// PortMapping records one published host:container port pair from
// --port h:c. corectl has no userspace proxy or iptables DNAT path (unlike
// the teacher's pkg/network, which owned real host port publishing); a
// mapping here is inspectable via Inspect but does not by itself make the
// container reachable on the host port.
type PortMapping struct {
	HostPort      uint16
	ContainerPort uint16
	Protocol      string // "tcp" (default) or "udp"
}

// Config is the user-supplied container configuration passed to Create.
type Config struct {
	Image      string
	Args       []string
	Env        []string
	Cwd        string
	UID        uint32
	GID        uint32
	Hostname   string
	Volumes    []volume.Spec
	Ports      []PortMapping
	Resources  ocispec.Resources
	StopSignal string // default SIGTERM
	HealthCheck *health.Config
	HealthCmd   []string // argv for an exec health check, empty disables it
	Restart     RestartPolicy

	// Privileged grants the default capability set plus the host-affecting
	// ones in privilegedCapabilities, overriding SecurityProfile; the
	// --privileged flag from spec.md §6.
	Privileged bool
	// ReadOnly mounts the container's root filesystem read-only.
	ReadOnly bool
	// Network names the network (spec.md §6 --network) the container is
	// attached to at create time; "" leaves it unattached.
	Network string
	// SecurityProfile names a capability profile ("default", "unconfined",
	// "restricted") resolved by bundleConfig into the bundle's capability
	// set; "" behaves like "default".
	SecurityProfile string
}

// Metadata is a container's full persisted record: identity, config,
// current state and runtime bookkeeping. It is what Manager.Inspect
// returns and what gets marshaled to JSON for pkg/storage.
type Metadata struct {
	ID         string
	Name       string
	Image      string
	Config     Config
	State      State
	Pid        int
	ExitCode   int
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	BundlePath string

	ConsecutiveFailures int
	LastFailureReason   string
}

// Stats is the instantaneous resource snapshot Manager.Stats returns,
// sourced from the container's cgroup (spec.md §4.7 "instantaneous CPU,
// memory, I/O, pids counters").
type Stats struct {
	CPUUsageNanos    uint64
	MemoryUsageBytes uint64
	MemoryLimitBytes uint64
	BlockReadBytes   uint64
	BlockWriteBytes  uint64
	PidsCurrent      uint64
}

// record is the in-memory handle Manager keeps per container: the
// persisted Metadata plus the mutex guarding concurrent operations and an
// optional live health.Status for the reconciler.
type record struct {
	mu     sync.Mutex
	meta   Metadata
	health *health.Status
}

func marshalMetadata(meta *Metadata) ([]byte, error) {
	return json.Marshal(meta)
}

func unmarshalMetadata(b []byte) (Metadata, error) {
	var meta Metadata
	err := json.Unmarshal(b, &meta)
	return meta, err
}
