package network

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Driver names the bridge backend a network uses. Only DriverBridge is
// implemented; DriverHost and DriverNone are accepted as no-op passthrough
// modes for containers that want the host network namespace or none at all.
type Driver string

const (
	DriverBridge Driver = "bridge"
	DriverHost   Driver = "host"
	DriverNone   Driver = "none"
)

// Spec describes a network to create.
type Spec struct {
	Name   string
	Driver Driver
	Subnet string // CIDR, bridge driver only; empty lets the daemon pick one
}

// Info is the inspectable state of a network: its spec plus the containers
// currently attached to it.
type Info struct {
	ID         string
	Name       string
	Driver     Driver
	Subnet     string
	Containers map[string]string // container id -> attached IP
}

// Manager tracks the networks corectl owns and which containers are
// attached to each. It does not itself program iptables or create Linux
// bridges; bridge provisioning belongs to whatever attaches a container's
// network namespace at bundle-prep time (pkg/ocispec), the same split
// pkg/volume uses between named-volume bookkeeping and the mount calls
// that use it.
type Manager struct {
	mu       sync.Mutex
	networks map[string]*Info // keyed by name
}

// NewManager returns a Manager seeded with the always-present "bridge",
// "host", and "none" networks, mirroring a standard container engine's
// default network set.
func NewManager() *Manager {
	m := &Manager{networks: make(map[string]*Info)}
	for _, n := range []struct {
		name   string
		driver Driver
	}{
		{"bridge", DriverBridge},
		{"host", DriverHost},
		{"none", DriverNone},
	} {
		m.networks[n.name] = &Info{
			ID:         uuid.NewString(),
			Name:       n.name,
			Driver:     n.driver,
			Containers: make(map[string]string),
		}
	}
	return m
}

// Create registers a new named network. Creating a network whose name
// already exists fails; the three default networks cannot be recreated.
func (m *Manager) Create(spec *Spec) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if spec.Name == "" {
		return nil, fmt.Errorf("network name is required")
	}
	if _, exists := m.networks[spec.Name]; exists {
		return nil, fmt.Errorf("network %q already exists", spec.Name)
	}
	driver := spec.Driver
	if driver == "" {
		driver = DriverBridge
	}
	info := &Info{
		ID:         uuid.NewString(),
		Name:       spec.Name,
		Driver:     driver,
		Subnet:     spec.Subnet,
		Containers: make(map[string]string),
	}
	m.networks[spec.Name] = info
	return info, nil
}

// List returns all known networks, default and user-created alike.
func (m *Manager) List() []*Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Info, 0, len(m.networks))
	for _, info := range m.networks {
		out = append(out, info)
	}
	return out
}

// Inspect returns the full state of a single network by name.
func (m *Manager) Inspect(name string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.networks[name]
	if !ok {
		return nil, fmt.Errorf("network %q not found", name)
	}
	return info, nil
}

// Remove deletes a user-created network. It fails with a state-conflict if
// containers are still attached, unless force is set; the three default
// networks can never be removed.
func (m *Manager) Remove(name string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "bridge" || name == "host" || name == "none" {
		return fmt.Errorf("network %q is a default network and cannot be removed", name)
	}
	info, ok := m.networks[name]
	if !ok {
		return nil
	}
	if len(info.Containers) > 0 && !force {
		return fmt.Errorf("network %q still has attached containers", name)
	}
	delete(m.networks, name)
	return nil
}

// Prune removes every user-created network with no attached containers,
// returning the names removed.
func (m *Manager) Prune() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for name, info := range m.networks {
		if name == "bridge" || name == "host" || name == "none" {
			continue
		}
		if len(info.Containers) == 0 {
			delete(m.networks, name)
			removed = append(removed, name)
		}
	}
	return removed
}

// Attach records that a container joined a network at the given IP. Used
// at container create/start time once a network namespace is wired up.
func (m *Manager) Attach(name, containerID, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.networks[name]
	if !ok {
		return fmt.Errorf("network %q not found", name)
	}
	info.Containers[containerID] = ip
	return nil
}

// Detach removes a container's membership from every network it was
// attached to, normally called at container remove time.
func (m *Manager) Detach(containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, info := range m.networks {
		delete(info.Containers, containerID)
	}
}
