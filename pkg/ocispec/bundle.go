package ocispec

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nexusshell/corectl/pkg/corerr"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Rlimit is one POSIX resource limit entry for the bundle's process.
type Rlimit struct {
	Type string
	Soft uint64
	Hard uint64
}

// Mount describes one bind/tmpfs/overlay mount point inside the bundle's
// rootfs, beyond the root filesystem itself.
type Mount struct {
	Destination string
	Source      string
	Type        string
	Options     []string
}

// IDMapping is one user or group namespace id-mapping range.
type IDMapping struct {
	ContainerID uint32
	HostID      uint32
	Size        uint32
}

// DeviceRule is one cgroup device-access rule.
type DeviceRule struct {
	Allow  bool
	Type   string
	Major  *int64
	Minor  *int64
	Access string
}

// Resources mirrors linux.resources{memory,cpu,pids,devices} from §6's
// OCI runtime bundle field list.
type Resources struct {
	MemoryLimitBytes int64
	CPUShares        uint64
	CPUQuota         int64
	CPUPeriod        uint64
	PidsLimit        int64
	Devices          []DeviceRule
}

// BundleConfig is corectl's own container-config shape, populated by
// ContainerManager from ContainerMetadata's config, and translated by
// Write into an OCI runtime-spec config.json — exactly the field list
// §6 names: process.args/env/cwd/user{uid,gid}/capabilities/rlimits,
// root.path/readonly, mounts, hostname, linux.namespaces,
// linux.resources, linux.{uid,gid}_mappings, linux.masked_paths,
// linux.readonly_paths.
type BundleConfig struct {
	Args           []string
	Env            []string
	Cwd            string
	UID            uint32
	GID            uint32
	AdditionalGIDs []uint32
	Capabilities   []string
	Rlimits        []Rlimit

	RootPath     string
	RootReadonly bool

	Mounts   []Mount
	Hostname string

	Namespaces []specs.LinuxNamespaceType
	Resources  Resources

	UIDMappings   []IDMapping
	GIDMappings   []IDMapping
	MaskedPaths   []string
	ReadonlyPaths []string
}

// Spec translates cfg into an OCI runtime-spec Spec without writing it to
// disk, for callers (the containerd-backed runtime invoker) that hand the
// struct directly to their runtime client instead of reading config.json
// back off the bundle.
func Spec(cfg BundleConfig) *specs.Spec {
	s := toSpec(cfg)
	return &s
}

// Write translates cfg into an OCI runtime-spec Spec and writes it as
// bundleDir/config.json.
func Write(bundleDir string, cfg BundleConfig) error {
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, bundleDir, err)
	}

	spec := toSpec(cfg)
	b, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return corerr.Wrap(corerr.Data, corerr.ReasonNone, bundleDir, err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "config.json"), b, 0o644); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, bundleDir, err)
	}
	return nil
}

func toSpec(cfg BundleConfig) specs.Spec {
	caps := &specs.LinuxCapabilities{
		Bounding:    cfg.Capabilities,
		Effective:   cfg.Capabilities,
		Permitted:   cfg.Capabilities,
		Inheritable: cfg.Capabilities,
	}

	rlimits := make([]specs.POSIXRlimit, len(cfg.Rlimits))
	for i, r := range cfg.Rlimits {
		rlimits[i] = specs.POSIXRlimit{Type: r.Type, Soft: r.Soft, Hard: r.Hard}
	}

	mounts := make([]specs.Mount, len(cfg.Mounts))
	for i, m := range cfg.Mounts {
		mounts[i] = specs.Mount{
			Destination: m.Destination,
			Source:      m.Source,
			Type:        m.Type,
			Options:     m.Options,
		}
	}

	namespaces := make([]specs.LinuxNamespace, len(cfg.Namespaces))
	for i, ns := range cfg.Namespaces {
		namespaces[i] = specs.LinuxNamespace{Type: ns}
	}

	uidMappings := toSpecIDMappings(cfg.UIDMappings)
	gidMappings := toSpecIDMappings(cfg.GIDMappings)

	var memLimit *int64
	if cfg.Resources.MemoryLimitBytes > 0 {
		v := cfg.Resources.MemoryLimitBytes
		memLimit = &v
	}
	var cpuShares, cpuPeriod *uint64
	var cpuQuota *int64
	if cfg.Resources.CPUShares > 0 {
		v := cfg.Resources.CPUShares
		cpuShares = &v
	}
	if cfg.Resources.CPUPeriod > 0 {
		v := cfg.Resources.CPUPeriod
		cpuPeriod = &v
	}
	if cfg.Resources.CPUQuota != 0 {
		v := cfg.Resources.CPUQuota
		cpuQuota = &v
	}

	devices := make([]specs.LinuxDeviceCgroup, len(cfg.Resources.Devices))
	for i, d := range cfg.Resources.Devices {
		devices[i] = specs.LinuxDeviceCgroup{
			Allow: d.Allow, Type: d.Type, Major: d.Major, Minor: d.Minor, Access: d.Access,
		}
	}

	var pidsLimit *specs.LinuxPids
	if cfg.Resources.PidsLimit > 0 {
		pidsLimit = &specs.LinuxPids{Limit: cfg.Resources.PidsLimit}
	}

	return specs.Spec{
		Version: specs.Version,
		Process: &specs.Process{
			Args: cfg.Args,
			Env:  cfg.Env,
			Cwd:  cfg.Cwd,
			User: specs.User{
				UID:            cfg.UID,
				GID:            cfg.GID,
				AdditionalGids: cfg.AdditionalGIDs,
			},
			Capabilities: caps,
			Rlimits:      rlimits,
		},
		Root: &specs.Root{
			Path:     cfg.RootPath,
			Readonly: cfg.RootReadonly,
		},
		Hostname: cfg.Hostname,
		Mounts:   mounts,
		Linux: &specs.Linux{
			Namespaces:  namespaces,
			UIDMappings: uidMappings,
			GIDMappings: gidMappings,
			Resources: &specs.LinuxResources{
				Memory: &specs.LinuxMemory{Limit: memLimit},
				CPU: &specs.LinuxCPU{
					Shares: cpuShares, Quota: cpuQuota, Period: cpuPeriod,
				},
				Pids:    pidsLimit,
				Devices: devices,
			},
			MaskedPaths:   cfg.MaskedPaths,
			ReadonlyPaths: cfg.ReadonlyPaths,
		},
	}
}

func toSpecIDMappings(mappings []IDMapping) []specs.LinuxIDMapping {
	out := make([]specs.LinuxIDMapping, len(mappings))
	for i, m := range mappings {
		out[i] = specs.LinuxIDMapping{ContainerID: m.ContainerID, HostID: m.HostID, Size: m.Size}
	}
	return out
}

// Namespace type constants re-exported for callers building BundleConfig
// without importing specs-go directly.
const (
	NamespacePID     = specs.PIDNamespace
	NamespaceNetwork = specs.NetworkNamespace
	NamespaceMount   = specs.MountNamespace
	NamespaceIPC     = specs.IPCNamespace
	NamespaceUTS     = specs.UTSNamespace
	NamespaceUser    = specs.UserNamespace
	NamespaceCgroup  = specs.CgroupNamespace
)

// DefaultNamespaces is the namespace set an ordinary container isolates:
// pid, network, mount, ipc and uts, leaving user and cgroup namespaces to
// callers that opt in explicitly.
func DefaultNamespaces() []specs.LinuxNamespaceType {
	return []specs.LinuxNamespaceType{
		NamespacePID, NamespaceNetwork, NamespaceMount, NamespaceIPC, NamespaceUTS,
	}
}
