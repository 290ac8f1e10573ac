package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/nexusshell/corectl/pkg/corerr"
	"golang.org/x/sys/unix"
)

// OverlayDriver prepares and tears down a container's merged root
// filesystem from an ordered list of image-layer directories, the way
// spec.md §4.6 describes: lower/upper/work/merged under a per-container
// directory, mounted with the kernel's overlay filesystem.
type OverlayDriver struct {
	// Root is the data-root directory under which "containers/<id>" and
	// "volumes/<name>" are created.
	Root string
}

// NewOverlayDriver returns a driver rooted at dataRoot.
func NewOverlayDriver(dataRoot string) *OverlayDriver {
	return &OverlayDriver{Root: dataRoot}
}

// ContainerDir returns the storage directory backing id, the bundle
// directory the container manager writes config.json into alongside
// the lower/upper/work/merged tree PrepareRootfs creates underneath it.
func (d *OverlayDriver) ContainerDir(id string) string {
	return d.containerDir(id)
}

func (d *OverlayDriver) containerDir(id string) string {
	return filepath.Join(d.Root, "containers", id)
}

// Paths are the four directories PrepareRootfs creates under a
// container's storage directory.
type Paths struct {
	Lower  string
	Upper  string
	Work   string
	Merged string
}

func (d *OverlayDriver) paths(id string) Paths {
	dir := d.containerDir(id)
	return Paths{
		Lower:  filepath.Join(dir, "lower"),
		Upper:  filepath.Join(dir, "upper"),
		Work:   filepath.Join(dir, "work"),
		Merged: filepath.Join(dir, "merged"),
	}
}

// PrepareRootfs materialises each entry of layers as lower/layer<i> and
// mounts an overlay filesystem over merged/, per the four steps §4.6
// specifies. layers is ordered lowest-to-highest precedence, matching the
// image's history order. The returned path is Paths.Merged; callers bind
// or tmpfs-mount configured volumes inside it afterward.
func (d *OverlayDriver) PrepareRootfs(id string, layers []string) (Paths, error) {
	if runtime.GOOS != "linux" {
		return Paths{}, corerr.New(corerr.Runtime, corerr.ReasonUnsupportedFeature, id,
			"overlay filesystem mounting is only supported on Linux")
	}
	if len(layers) == 0 {
		return Paths{}, corerr.New(corerr.Validation, corerr.ReasonNone, id, "no image layers supplied")
	}

	p := d.paths(id)
	for _, dir := range []string{p.Lower, p.Upper, p.Work, p.Merged} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, corerr.Wrap(corerr.IO, corerr.ReasonNone, id, err)
		}
	}

	lowerRefs := make([]string, len(layers))
	for i, layer := range layers {
		link := filepath.Join(p.Lower, fmt.Sprintf("layer%d", i))
		os.Remove(link)
		if err := os.Symlink(layer, link); err != nil {
			return Paths{}, corerr.Wrap(corerr.IO, corerr.ReasonNone, id, err)
		}
		lowerRefs[i] = link
	}

	// overlay resolves lowerdir precedence left-to-right as
	// highest-to-lowest, the reverse of our bottom-to-top layer order.
	reversed := make([]string, len(lowerRefs))
	for i, ref := range lowerRefs {
		reversed[len(lowerRefs)-1-i] = ref
	}
	options := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		strings.Join(reversed, ":"), p.Upper, p.Work)

	if err := unix.Mount("overlay", p.Merged, "overlay", 0, options); err != nil {
		return Paths{}, corerr.Wrap(corerr.Runtime, corerr.ReasonUnsupportedFeature, id,
			fmt.Errorf("mount overlay at %s: %w", p.Merged, err))
	}
	return p, nil
}

// MountVolume bind-mounts hostPath at target (an absolute path under
// Paths.Merged), honoring readOnly per §4.6 step 4. It does not mount tmpfs.
func (d *OverlayDriver) MountVolume(hostPath, target string, readOnly bool) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, target, err)
	}
	if err := unix.Mount(hostPath, target, "", unix.MS_BIND, ""); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, target, fmt.Errorf("bind mount %s: %w", hostPath, err))
	}
	if readOnly {
		if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return corerr.Wrap(corerr.IO, corerr.ReasonNone, target, fmt.Errorf("remount readonly %s: %w", target, err))
		}
	}
	return nil
}

// UnmountVolume lazily unmounts a mount point created by MountVolume.
func (d *OverlayDriver) UnmountVolume(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, target, err)
	}
	return nil
}

// IsMounted reports whether path is currently a mount point, used before
// Cleanup decides whether an unmount is needed (idempotent cleanup after
// a crash that left merged/ mounted but the process state unknown).
func (d *OverlayDriver) IsMounted(path string) (bool, error) {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		return false, corerr.Wrap(corerr.IO, corerr.ReasonNone, path, err)
	}
	return mounted, nil
}

// Cleanup unmounts merged/ and recursively deletes the container's
// storage directory. Per §4.6, the driver never deletes the layer
// directories referenced from lower/ — those are owned by images and
// removed only by the image manager. Unmounting an already-unmounted or
// nonexistent merged/ is not an error, so callers may retry Cleanup
// freely during crash recovery.
func (d *OverlayDriver) Cleanup(id string) error {
	p := d.paths(id)

	if mounted, err := d.IsMounted(p.Merged); err == nil && mounted {
		if err := unix.Unmount(p.Merged, unix.MNT_DETACH); err != nil {
			return corerr.Wrap(corerr.IO, corerr.ReasonNone, id, fmt.Errorf("unmount merged: %w", err))
		}
	}

	dir := d.containerDir(id)
	if err := os.RemoveAll(dir); err != nil {
		return corerr.Wrap(corerr.IO, corerr.ReasonNone, id, err)
	}
	return nil
}
