package ocispec

import (
	"os"
	"path/filepath"
	"testing"

	imagespec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportThenImportReproducesManifestDigest(t *testing.T) {
	layerDesc := NewDescriptor(MediaTypeLayer, []byte("layer-data"))
	img, err := NewImage("example:latest", imagespec.Image{
		Architecture: "amd64",
		OS:           "linux",
	}, []Layer{{Descriptor: layerDesc, Path: "/var/lib/corectl/layers/" + layerDesc.Digest.Encoded()}})
	require.NoError(t, err)

	wantDigest, err := ManifestDigest(img)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, Export(img, dir))

	imported, err := Import(dir, map[string]string{
		layerDesc.Digest.String(): filepath.Join(dir, "layers", layerDesc.Digest.Encoded()),
	})
	require.NoError(t, err)

	gotDigest, err := ManifestDigest(imported)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, gotDigest)
	assert.Equal(t, "linux", imported.Config.OS)
	require.Len(t, imported.Layers, 1)
	assert.Equal(t, layerDesc.Digest, imported.Layers[0].Descriptor.Digest)
}

func TestImportRejectsTamperedConfigBlob(t *testing.T) {
	img, err := NewImage("example:latest", imagespec.Image{OS: "linux"}, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, Export(img, dir))

	// Corrupt the config blob on disk without updating the manifest's
	// recorded digest.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"os":"tampered"}`), 0o644))

	_, err = Import(dir, nil)
	require.Error(t, err)
}
