package volume

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManager(t *testing.T) {
	tmpDir := t.TempDir()

	m, err := NewManager(tmpDir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	expected := filepath.Join(tmpDir, DefaultVolumesPath)
	if m.basePath != expected {
		t.Errorf("basePath = %v, want %v", m.basePath, expected)
	}
	if _, err := os.Stat(expected); os.IsNotExist(err) {
		t.Error("volumes base directory was not created")
	}
}

func TestManager_CreateNamed(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	spec := &Spec{Kind: KindNamed, Name: "test", Target: "/data"}

	if err := m.Create(spec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	path := m.pathFor(spec.Name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("volume directory was not created at %s", path)
	}
}

func TestManager_RemoveNamed(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	spec := &Spec{Kind: KindNamed, Name: "test", Target: "/data"}
	if err := m.Create(spec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	path := m.pathFor(spec.Name)

	testFile := filepath.Join(path, "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := m.Remove(spec.Name); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("volume directory still exists after remove")
	}
}

func TestManager_RemoveNonExistent(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	if err := m.Remove("nonexistent"); err != nil {
		t.Errorf("Remove() on non-existent volume error = %v, want nil", err)
	}
}

func TestManager_HostPathNamed(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	spec := &Spec{Kind: KindNamed, Name: "test", Target: "/data"}
	if err := m.Create(spec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	path, err := m.HostPath(spec)
	if err != nil {
		t.Fatalf("HostPath() error = %v", err)
	}
	if path != m.pathFor(spec.Name) {
		t.Errorf("HostPath() = %v, want %v", path, m.pathFor(spec.Name))
	}
}

func TestManager_HostPathNamedMissing(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	spec := &Spec{Kind: KindNamed, Name: "nonexistent", Target: "/data"}
	if _, err := m.HostPath(spec); err == nil {
		t.Error("HostPath() on non-existent named volume should return error")
	}
}

func TestManager_CreateBindValidatesSource(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	missing := &Spec{Kind: KindBind, Source: filepath.Join(tmpDir, "does-not-exist"), Target: "/data"}
	if err := m.Create(missing); err == nil {
		t.Error("Create() with missing bind source should return error")
	}

	existing := &Spec{Kind: KindBind, Source: tmpDir, Target: "/data"}
	if err := m.Create(existing); err != nil {
		t.Errorf("Create() with valid bind source error = %v", err)
	}
	path, err := m.HostPath(existing)
	if err != nil {
		t.Fatalf("HostPath() error = %v", err)
	}
	if path != tmpDir {
		t.Errorf("HostPath() = %v, want %v", path, tmpDir)
	}
}

func TestManager_HostPathTmpfsUnsupported(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	spec := &Spec{Kind: KindTmpfs, Target: "/tmp/scratch"}
	if _, err := m.HostPath(spec); err == nil {
		t.Error("HostPath() for tmpfs volume should return error")
	}
}

func TestManager_List(t *testing.T) {
	tmpDir := t.TempDir()
	m, _ := NewManager(tmpDir)

	for _, name := range []string{"a", "b"} {
		if err := m.Create(&Spec{Kind: KindNamed, Name: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	names, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 2 {
		t.Errorf("List() returned %d names, want 2", len(names))
	}
}
