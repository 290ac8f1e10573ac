package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRefReplacesUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "registry.example.com_app_web_v1.2.3", sanitizeRef("registry.example.com/app/web:v1.2.3"))
}

func TestImageManagerListAndRemove(t *testing.T) {
	dataRoot := t.TempDir()
	im, err := NewImageManager(dataRoot, nil)
	require.NoError(t, err)

	ref := "alpine:latest"
	require.NoError(t, os.MkdirAll(im.imageDir(ref), 0o755))

	refs, err := im.List()
	require.NoError(t, err)
	assert.Contains(t, refs, sanitizeRef(ref))

	require.NoError(t, im.Remove(ref))
	_, statErr := os.Stat(filepath.Join(dataRoot, "images", sanitizeRef(ref)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestImageManagerListExcludesLayersDirectory(t *testing.T) {
	dataRoot := t.TempDir()
	im, err := NewImageManager(dataRoot, nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dataRoot, "images", "layers"), 0o755))

	refs, err := im.List()
	require.NoError(t, err)
	assert.NotContains(t, refs, "layers")
}
