package volume

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DefaultVolumesPath is the base directory for named volumes, relative to
// the daemon's data root (spec.md §6 "Named volumes live under the
// data-root's volumes/<name> directory").
const DefaultVolumesPath = "volumes"

// Kind distinguishes the three volume flavors spec.md defines.
type Kind string

const (
	KindBind  Kind = "bind"
	KindTmpfs Kind = "tmpfs"
	KindNamed Kind = "named"
)

// Spec describes one volume attachment on a container: Bind{source,target,
// readonly}, Tmpfs{target,size} or Named{name,target,readonly}.
type Spec struct {
	Kind      Kind
	Source    string // Bind only: host path
	Name      string // Named only: volume name
	Target    string // mount point inside the container
	ReadOnly  bool
	SizeBytes int64 // Tmpfs only: 0 means no explicit size limit
}

// Manager manages named volume storage and tmpfs mounts. Bind mounts need
// no management beyond validating the host source exists; they are
// resolved directly from the caller-supplied path.
type Manager struct {
	basePath string
}

// NewManager creates a volume manager rooted at dataRoot/volumes.
func NewManager(dataRoot string) (*Manager, error) {
	basePath := filepath.Join(dataRoot, DefaultVolumesPath)
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volumes directory: %w", err)
	}
	return &Manager{basePath: basePath}, nil
}

// pathFor returns the on-disk directory backing a named volume.
func (m *Manager) pathFor(name string) string {
	return filepath.Join(m.basePath, name)
}

// Create provisions the backing directory for a named volume. Bind and
// Tmpfs specs have no persistent backing store and are no-ops here.
func (m *Manager) Create(spec *Spec) error {
	switch spec.Kind {
	case KindNamed:
		if err := os.MkdirAll(m.pathFor(spec.Name), 0755); err != nil {
			return fmt.Errorf("failed to create volume %q: %w", spec.Name, err)
		}
		return nil
	case KindBind:
		if _, err := os.Stat(spec.Source); err != nil {
			return fmt.Errorf("bind source %q not accessible: %w", spec.Source, err)
		}
		return nil
	case KindTmpfs:
		return nil
	default:
		return fmt.Errorf("unknown volume kind: %q", spec.Kind)
	}
}

// Remove deletes a named volume's backing directory. Removing a volume
// that doesn't exist is not an error.
func (m *Manager) Remove(name string) error {
	path := m.pathFor(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove volume %q: %w", name, err)
	}
	return nil
}

// List returns the names of all named volumes currently on disk.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// HostPath resolves the host-side path that should be bind-mounted into
// the container's rootfs for spec. Tmpfs specs have no host path; call
// MountTmpfs against the target inside the prepared rootfs instead.
func (m *Manager) HostPath(spec *Spec) (string, error) {
	switch spec.Kind {
	case KindNamed:
		path := m.pathFor(spec.Name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return "", fmt.Errorf("volume %q does not exist", spec.Name)
		}
		return path, nil
	case KindBind:
		if _, err := os.Stat(spec.Source); err != nil {
			return "", fmt.Errorf("bind source %q not accessible: %w", spec.Source, err)
		}
		return spec.Source, nil
	case KindTmpfs:
		return "", fmt.Errorf("tmpfs volumes have no host path")
	default:
		return "", fmt.Errorf("unknown volume kind: %q", spec.Kind)
	}
}

// MountTmpfs mounts a tmpfs at target (an absolute path inside the
// container's already-prepared rootfs), honoring an optional byte size
// limit via the "size" mount option.
func MountTmpfs(target string, sizeBytes int64) error {
	data := ""
	if sizeBytes > 0 {
		data = fmt.Sprintf("size=%d", sizeBytes)
	}
	if err := unix.Mount("tmpfs", target, "tmpfs", 0, data); err != nil {
		return fmt.Errorf("failed to mount tmpfs at %q: %w", target, err)
	}
	return nil
}

// UnmountTmpfs lazily unmounts a tmpfs previously mounted by MountTmpfs.
func UnmountTmpfs(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("failed to unmount tmpfs at %q: %w", target, err)
	}
	return nil
}
