package ocispec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexusshell/corectl/pkg/corerr"
	imagespec "github.com/opencontainers/image-spec/specs-go/v1"
)

func marshalConfig(config imagespec.Image) ([]byte, error) {
	return json.Marshal(config)
}

// ManifestDigest computes the content digest of img's manifest as it
// would be serialised to disk, letting callers confirm that an
// export-then-import round trip reproduced the identical manifest (§8).
func ManifestDigest(img Image) (digestStr string, err error) {
	b, err := json.MarshalIndent(img.Manifest, "", "  ")
	if err != nil {
		return "", err
	}
	return NewDescriptor(MediaTypeManifest, b).Digest.String(), nil
}

// Export writes img to dir as manifest.json, config.json and the config
// blob in a file named "<algorithm>.<hex>" after its digest, per §4.6's
// "OCI image on disk" layout. No file is written per layer and layer
// directory trees are NOT copied here — Export only materialises the
// manifest/config/blob-naming contract; the layer
// payload bytes a caller wants persisted must already exist at each
// Layer.Path and are referenced, not duplicated, since layers are owned
// by the image store and shared across images (§4.6: "the driver never
// deletes layer directories owned by images").
func Export(img Image, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, img.Reference, err)
	}

	configBytes, err := marshalConfig(img.Config)
	if err != nil {
		return corerr.Wrap(corerr.Data, corerr.ReasonNone, img.Reference, err)
	}
	if err := writeBlob(dir, img.Manifest.Config, configBytes); err != nil {
		return err
	}

	manifestBytes, err := json.MarshalIndent(img.Manifest, "", "  ")
	if err != nil {
		return corerr.Wrap(corerr.Data, corerr.ReasonNone, img.Reference, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestBytes, 0o644); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, img.Reference, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), configBytes, 0o644); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, img.Reference, err)
	}

	return nil
}

func writeBlob(dir string, desc Descriptor, content []byte) error {
	if err := Verify(desc, content); err != nil {
		return err
	}
	name := blobFilename(desc)
	return os.WriteFile(filepath.Join(dir, name), content, 0o644)
}

func blobFilename(desc Descriptor) string {
	return fmt.Sprintf("%s.%s", desc.Digest.Algorithm(), desc.Digest.Encoded())
}

// Import reads back an image directory written by Export, verifying the
// config blob's digest and reconstructing the Image. Layer directory
// trees are located at the paths recorded in layerPaths, keyed by layer
// digest string, since Export never copies layer payloads itself.
func Import(dir string, layerPaths map[string]string) (Image, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return Image{}, corerr.Wrap(corerr.IO, corerr.ReasonNone, dir, err)
	}
	var manifest imagespec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return Image{}, corerr.Wrap(corerr.Data, corerr.ReasonNone, dir, err)
	}

	configBytes, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return Image{}, corerr.Wrap(corerr.IO, corerr.ReasonNone, dir, err)
	}
	if err := Verify(manifest.Config, configBytes); err != nil {
		return Image{}, err
	}
	var config imagespec.Image
	if err := json.Unmarshal(configBytes, &config); err != nil {
		return Image{}, corerr.Wrap(corerr.Data, corerr.ReasonNone, dir, err)
	}

	layers := make([]Layer, len(manifest.Layers))
	for i, desc := range manifest.Layers {
		layers[i] = Layer{Descriptor: desc, Path: layerPaths[desc.Digest.String()]}
	}

	return Image{
		Manifest: manifest,
		Config:   config,
		Layers:   layers,
	}, nil
}
