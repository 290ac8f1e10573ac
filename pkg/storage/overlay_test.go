package storage

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireOverlayCapable(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("overlay mounting requires Linux")
	}
	if os.Geteuid() != 0 {
		t.Skip("overlay mounting requires root privileges")
	}
}

func TestPrepareRootfsCreatesLayerSymlinksInOrder(t *testing.T) {
	requireOverlayCapable(t)

	dataRoot := t.TempDir()
	layerA := filepath.Join(t.TempDir(), "layerA")
	layerB := filepath.Join(t.TempDir(), "layerB")
	require.NoError(t, os.MkdirAll(layerA, 0o755))
	require.NoError(t, os.MkdirAll(layerB, 0o755))

	d := NewOverlayDriver(dataRoot)
	paths, err := d.PrepareRootfs("c1", []string{layerA, layerB})
	require.NoError(t, err)
	defer d.Cleanup("c1")

	link0, err := os.Readlink(filepath.Join(paths.Lower, "layer0"))
	require.NoError(t, err)
	assert.Equal(t, layerA, link0)

	link1, err := os.Readlink(filepath.Join(paths.Lower, "layer1"))
	require.NoError(t, err)
	assert.Equal(t, layerB, link1)

	mounted, err := d.IsMounted(paths.Merged)
	require.NoError(t, err)
	assert.True(t, mounted)
}

func TestCleanupUnmountsAndRemovesContainerDir(t *testing.T) {
	requireOverlayCapable(t)

	dataRoot := t.TempDir()
	layer := filepath.Join(t.TempDir(), "layer")
	require.NoError(t, os.MkdirAll(layer, 0o755))

	d := NewOverlayDriver(dataRoot)
	paths, err := d.PrepareRootfs("c2", []string{layer})
	require.NoError(t, err)

	require.NoError(t, d.Cleanup("c2"))

	_, err = os.Stat(paths.Merged)
	assert.True(t, os.IsNotExist(err))
}

func TestPrepareRootfsRejectsEmptyLayerList(t *testing.T) {
	d := NewOverlayDriver(t.TempDir())
	_, err := d.PrepareRootfs("c3", nil)
	require.Error(t, err)
}

func TestCleanupOnUnpreparedContainerIsNoop(t *testing.T) {
	d := NewOverlayDriver(t.TempDir())
	assert.NoError(t, d.Cleanup("never-prepared"))
}
