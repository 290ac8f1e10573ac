package network

import "testing"

func TestNewManagerSeedsDefaults(t *testing.T) {
	m := NewManager()
	names := map[string]bool{}
	for _, info := range m.List() {
		names[info.Name] = true
	}
	for _, want := range []string{"bridge", "host", "none"} {
		if !names[want] {
			t.Errorf("List() missing default network %q", want)
		}
	}
}

func TestManager_Create(t *testing.T) {
	m := NewManager()

	info, err := m.Create(&Spec{Name: "app-net", Driver: DriverBridge, Subnet: "172.20.0.0/24"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if info.Name != "app-net" || info.Subnet != "172.20.0.0/24" {
		t.Errorf("Create() = %+v, want Name=app-net Subnet=172.20.0.0/24", info)
	}

	if _, err := m.Create(&Spec{Name: "app-net"}); err == nil {
		t.Error("Create() on duplicate name should return error")
	}
}

func TestManager_Inspect(t *testing.T) {
	m := NewManager()
	if _, err := m.Inspect("does-not-exist"); err == nil {
		t.Error("Inspect() on unknown network should return error")
	}

	if _, err := m.Inspect("bridge"); err != nil {
		t.Errorf("Inspect(bridge) error = %v", err)
	}
}

func TestManager_RemoveDefaultRejected(t *testing.T) {
	m := NewManager()
	if err := m.Remove("bridge", true); err == nil {
		t.Error("Remove() on default network should return error even with force")
	}
}

func TestManager_RemoveRequiresForceWhenAttached(t *testing.T) {
	m := NewManager()
	if _, err := m.Create(&Spec{Name: "app-net"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Attach("app-net", "container-1", "172.20.0.2"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if err := m.Remove("app-net", false); err == nil {
		t.Error("Remove() without force on attached network should return error")
	}
	if err := m.Remove("app-net", true); err != nil {
		t.Errorf("Remove() with force error = %v", err)
	}
}

func TestManager_Prune(t *testing.T) {
	m := NewManager()
	if _, err := m.Create(&Spec{Name: "empty-net"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Create(&Spec{Name: "busy-net"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Attach("busy-net", "container-1", "172.20.0.2"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	removed := m.Prune()
	if len(removed) != 1 || removed[0] != "empty-net" {
		t.Errorf("Prune() = %v, want [empty-net]", removed)
	}
	if _, err := m.Inspect("busy-net"); err != nil {
		t.Error("Prune() should not remove a network with attached containers")
	}
	if _, err := m.Inspect("bridge"); err != nil {
		t.Error("Prune() should not touch default networks")
	}
}

func TestManager_Detach(t *testing.T) {
	m := NewManager()
	if _, err := m.Create(&Spec{Name: "app-net"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Attach("app-net", "container-1", "172.20.0.2"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	m.Detach("container-1")

	info, err := m.Inspect("app-net")
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if len(info.Containers) != 0 {
		t.Errorf("Detach() left %d containers attached, want 0", len(info.Containers))
	}
}
