package container

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	ocidigest "github.com/opencontainers/go-digest"
	imagespec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/nexusshell/corectl/pkg/ocispec"
	"github.com/rs/zerolog"
)

// ImageManager pulls, pushes and locally stores OCI images, backing
// Create's image-layer resolution the way the teacher's containerd
// runtime leaned on containerd's own image store — but here the layers
// land under the data root as plain directories so pkg/storage's
// OverlayDriver can reference them directly, matching spec.md §4.6's
// manual rootfs-preparation contract instead of delegating to a
// snapshotter.
type ImageManager struct {
	root   string // dataRoot/images
	logger zerolog.Logger
	broker *events.Broker
}

// NewImageManager roots image storage at dataRoot/images.
func NewImageManager(dataRoot string, broker *events.Broker) (*ImageManager, error) {
	root := filepath.Join(dataRoot, "images")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, corerr.Wrap(corerr.IO, corerr.ReasonNone, root, err)
	}
	return &ImageManager{root: root, logger: log.WithComponent("image-manager"), broker: broker}, nil
}

func (im *ImageManager) imageDir(ref string) string {
	return filepath.Join(im.root, sanitizeRef(ref))
}

func (im *ImageManager) layerDir(digest string) string {
	return filepath.Join(im.root, "layers", digest)
}

func sanitizeRef(ref string) string {
	out := make([]rune, 0, len(ref))
	for _, r := range ref {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Pull fetches ref from its registry, unpacks each layer under
// dataRoot/images/layers/<digest> and records an ocispec.Image manifest
// under dataRoot/images/<ref>. It returns the ordered list of on-disk
// layer directories, bottom-to-top, that StorageDriver.PrepareRootfs
// consumes directly.
func (im *ImageManager) Pull(ref string) ([]string, error) {
	nameRef, err := name.ParseReference(ref)
	if err != nil {
		return nil, corerr.Wrap(corerr.Validation, corerr.ReasonNone, ref, err)
	}

	remoteImg, err := remote.Image(nameRef)
	if err != nil {
		return nil, corerr.Wrap(corerr.Dependency, corerr.ReasonNone, ref, err)
	}

	configFile, err := remoteImg.ConfigFile()
	if err != nil {
		return nil, corerr.Wrap(corerr.Data, corerr.ReasonNone, ref, err)
	}

	layers, err := remoteImg.Layers()
	if err != nil {
		return nil, corerr.Wrap(corerr.Data, corerr.ReasonNone, ref, err)
	}

	dirs := make([]string, 0, len(layers))
	ociLayers := make([]ocispec.Layer, 0, len(layers))
	for _, layer := range layers {
		diffID, err := layer.DiffID()
		if err != nil {
			return nil, corerr.Wrap(corerr.Data, corerr.ReasonNone, ref, err)
		}
		size, err := layer.Size()
		if err != nil {
			return nil, corerr.Wrap(corerr.Data, corerr.ReasonNone, ref, err)
		}

		dir := im.layerDir(diffID.Hex)
		if err := extractLayer(layer, dir); err != nil {
			return nil, corerr.Wrap(corerr.IO, corerr.ReasonNone, ref, err)
		}
		dirs = append(dirs, dir)

		mt, err := layer.MediaType()
		if err != nil {
			mt = "application/vnd.oci.image.layer.v1.tar"
		}
		ociLayers = append(ociLayers, ocispec.Layer{
			Descriptor: imagespec.Descriptor{
				MediaType: string(mt),
				Digest:    ocidigest.Digest(fmt.Sprintf("%s:%s", diffID.Algorithm, diffID.Hex)),
				Size:      size,
			},
			Path: dir,
		})
	}

	img, err := ocispec.NewImage(ref, imagespec.Image{
		Architecture: configFile.Architecture,
		OS:           configFile.OS,
	}, ociLayers)
	if err != nil {
		return nil, err
	}

	if err := ocispec.Export(img, im.imageDir(ref)); err != nil {
		return nil, err
	}

	im.emit(events.EventImagePulled, ref)
	return dirs, nil
}

func (im *ImageManager) emit(evtType events.EventType, ref string) {
	if im.broker == nil {
		return
	}
	im.broker.Publish(&events.Event{
		Type:    evtType,
		Message: fmt.Sprintf("%s: %s", evtType, ref),
		Metadata: map[string]string{
			"image": ref,
		},
	})
}

// extractLayer writes layer's uncompressed tar stream's raw bytes to
// dir/layer.tar; a full tar extraction into a directory tree is the
// overlay lowerdir's responsibility at rootfs-prepare time, not pull time,
// matching spec.md §4.6's split between image storage and rootfs
// materialization.
func extractLayer(layer v1.Layer, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil // already extracted
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rc, err := layer.Uncompressed()
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(filepath.Join(dir, "layer.tar"))
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, rc)
	return err
}

// List returns the image references currently stored locally.
func (im *ImageManager) List() ([]string, error) {
	entries, err := os.ReadDir(im.root)
	if err != nil {
		return nil, corerr.Wrap(corerr.IO, corerr.ReasonNone, im.root, err)
	}
	var refs []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "layers" {
			refs = append(refs, e.Name())
		}
	}
	return refs, nil
}

// Remove deletes a locally stored image's manifest (not its shared
// layers, which may back other images).
func (im *ImageManager) Remove(ref string) error {
	return os.RemoveAll(im.imageDir(ref))
}

// loadLocal reads ref's manifest/config back from disk and reconstructs
// the Layer.Path entries from the layerDir convention, since Export
// never persists them itself (pkg/ocispec/store.go).
func (im *ImageManager) loadLocal(ref string) (ocispec.Image, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(im.imageDir(ref), "manifest.json"))
	if err != nil {
		return ocispec.Image{}, corerr.Wrap(corerr.Resource, corerr.ReasonNotFound, ref, err)
	}
	var manifest imagespec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return ocispec.Image{}, corerr.Wrap(corerr.Data, corerr.ReasonNone, ref, err)
	}

	layerPaths := make(map[string]string, len(manifest.Layers))
	for _, desc := range manifest.Layers {
		layerPaths[desc.Digest.String()] = im.layerDir(desc.Digest.Encoded())
	}
	img, err := ocispec.Import(im.imageDir(ref), layerPaths)
	if err != nil {
		return ocispec.Image{}, err
	}
	img.Reference = ref
	return img, nil
}

// Inspect returns the full locally stored manifest for ref.
func (im *ImageManager) Inspect(ref string) (ocispec.Image, error) {
	return im.loadLocal(ref)
}

// History returns ref's build history, oldest entry first, as recorded
// in its config's history list (image-spec §Image Configuration).
func (im *ImageManager) History(ref string) ([]imagespec.History, error) {
	img, err := im.loadLocal(ref)
	if err != nil {
		return nil, err
	}
	return img.Config.History, nil
}

// Tag records img under an additional reference newRef, sharing the
// same layer directories (layers are content-addressed and already
// shared across images, per Remove's docstring).
func (im *ImageManager) Tag(ref, newRef string) error {
	img, err := im.loadLocal(ref)
	if err != nil {
		return err
	}
	img.Reference = newRef
	if err := ocispec.Export(img, im.imageDir(newRef)); err != nil {
		return err
	}
	im.emit(events.EventImageTagged, newRef)
	return nil
}

// Push uploads a locally stored image to its reference's registry,
// rebuilding a go-containerregistry v1.Image from the on-disk layer.tar
// blobs the same tarball package Pull's counterpart, extractLayer, wrote.
func (im *ImageManager) Push(ref string) error {
	img, err := im.loadLocal(ref)
	if err != nil {
		return err
	}
	nameRef, err := name.ParseReference(ref)
	if err != nil {
		return corerr.Wrap(corerr.Validation, corerr.ReasonNone, ref, err)
	}

	v1Img := v1.Image(empty.Image)
	for _, l := range img.Layers {
		layer, err := tarball.LayerFromFile(filepath.Join(l.Path, "layer.tar"))
		if err != nil {
			return corerr.Wrap(corerr.IO, corerr.ReasonNone, ref, err)
		}
		if v1Img, err = mutate.AppendLayers(v1Img, layer); err != nil {
			return corerr.Wrap(corerr.Data, corerr.ReasonNone, ref, err)
		}
	}
	v1Img, err = mutate.ConfigFile(v1Img, &v1.ConfigFile{
		Architecture: img.Config.Architecture,
		OS:           img.Config.OS,
	})
	if err != nil {
		return corerr.Wrap(corerr.Data, corerr.ReasonNone, ref, err)
	}

	if err := remote.Write(nameRef, v1Img); err != nil {
		return corerr.Wrap(corerr.Dependency, corerr.ReasonNone, ref, err)
	}
	im.emit(events.EventImagePushed, ref)
	return nil
}

// Export writes ref's manifest, config and layer blobs to destDir as a
// self-contained directory, the portable counterpart to the internal
// image store Export leaves layer payloads out of.
func (im *ImageManager) Export(ref, destDir string) error {
	img, err := im.loadLocal(ref)
	if err != nil {
		return err
	}
	if err := ocispec.Export(img, destDir); err != nil {
		return err
	}
	for _, l := range img.Layers {
		if l.Path == "" {
			continue
		}
		dstDir := filepath.Join(destDir, "layers", l.Descriptor.Digest.Encoded())
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return corerr.Wrap(corerr.IO, corerr.ReasonNone, ref, err)
		}
		if err := copyFile(filepath.Join(l.Path, "layer.tar"), filepath.Join(dstDir, "layer.tar")); err != nil {
			return corerr.Wrap(corerr.IO, corerr.ReasonNone, ref, err)
		}
	}
	return nil
}

// Import reads a directory written by Export back into the local image
// store under ref, copying each referenced layer blob into the shared
// layer directory so Create's rootfs resolution can find it.
func (im *ImageManager) Import(srcDir, ref string) (string, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(srcDir, "manifest.json"))
	if err != nil {
		return "", corerr.Wrap(corerr.IO, corerr.ReasonNone, srcDir, err)
	}
	var manifest imagespec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return "", corerr.Wrap(corerr.Data, corerr.ReasonNone, srcDir, err)
	}

	layerPaths := make(map[string]string, len(manifest.Layers))
	for _, desc := range manifest.Layers {
		dir := im.layerDir(desc.Digest.Encoded())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", corerr.Wrap(corerr.IO, corerr.ReasonNone, srcDir, err)
		}
		src := filepath.Join(srcDir, "layers", desc.Digest.Encoded(), "layer.tar")
		if err := copyFile(src, filepath.Join(dir, "layer.tar")); err != nil {
			return "", corerr.Wrap(corerr.IO, corerr.ReasonNone, srcDir, err)
		}
		layerPaths[desc.Digest.String()] = dir
	}

	img, err := ocispec.Import(srcDir, layerPaths)
	if err != nil {
		return "", err
	}
	img.Reference = ref
	if err := ocispec.Export(img, im.imageDir(ref)); err != nil {
		return "", err
	}
	im.emit(events.EventImageImported, ref)
	return ref, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
