package container

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/ocispec"
)

// Commit packages a container's upper (writable) overlay directory as a
// new image layer and writes the composed manifest under newRef, the
// daemon-side half of "container commit" (spec.md §6). It does not stop or
// otherwise touch the container; callers typically commit a stopped
// container to get a consistent snapshot, the same convention the
// ImageManager's Pull/Export split already follows for pulled images.
func (m *Manager) Commit(ref, newRef string, images *ImageManager) (string, error) {
	rec, err := m.Resolve(ref)
	if err != nil {
		return "", err
	}
	rec.mu.Lock()
	id := rec.meta.ID
	baseImage := rec.meta.Image
	rec.mu.Unlock()

	upperDir := filepath.Join(m.driver.ContainerDir(id), "upper")
	digestStr, err := images.Commit(upperDir, baseImage, newRef)
	if err != nil {
		return "", err
	}
	m.emit(events.EventImageCommitted, id, "committed to "+newRef)
	return digestStr, nil
}

// Commit tars dir's current contents as a new layer, appends it to
// baseRef's layer list (if baseRef resolves to a known image), and writes
// the composed image under newRef.
func (im *ImageManager) Commit(dir, baseRef, newRef string) (string, error) {
	layerBytes, err := tarDirectory(dir)
	if err != nil {
		return "", corerr.Wrap(corerr.IO, corerr.ReasonNone, newRef, err)
	}

	desc := ocispec.NewDescriptor(ocispec.MediaTypeLayerPlain, layerBytes)
	layerPath := im.layerDir(desc.Digest.Encoded())
	if err := os.MkdirAll(layerPath, 0o755); err != nil {
		return "", corerr.Wrap(corerr.IO, corerr.ReasonNone, newRef, err)
	}
	if err := os.WriteFile(filepath.Join(layerPath, "layer.tar"), layerBytes, 0o644); err != nil {
		return "", corerr.Wrap(corerr.IO, corerr.ReasonNone, newRef, err)
	}

	var base ocispec.Image
	if baseRef != "" {
		if existing, err := ocispec.Import(im.imageDir(baseRef), nil); err == nil {
			base = existing
		}
	}

	layers := append(append([]ocispec.Layer{}, base.Layers...), ocispec.Layer{Descriptor: desc, Path: layerPath})
	img, err := ocispec.NewImage(newRef, base.Config, layers)
	if err != nil {
		return "", err
	}
	img.AddHistory("corectl commit", "", false)

	if err := ocispec.Export(img, im.imageDir(newRef)); err != nil {
		return "", err
	}
	im.emit(events.EventImageCommitted, newRef)
	return desc.Digest.String(), nil
}

// tarDirectory walks dir and returns an uncompressed tar stream of its
// contents, the write-side counterpart to Pull's extractLayer, which
// stores a pulled layer's uncompressed tar stream the same way.
func tarDirectory(dir string) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return nil // container never wrote anything: empty layer
			}
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
