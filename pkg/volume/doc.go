/*
Package volume implements corectl's three volume kinds (spec.md §3):
Bind{source,target,readonly}, Tmpfs{target,size} and Named{name,target,
readonly}. Named volumes are the only kind with a lifecycle independent of
any single container; Manager persists them under the daemon's data root
at volumes/<name>.

	m, _ := volume.NewManager(dataRoot)
	m.Create(&volume.Spec{Kind: volume.KindNamed, Name: "cache"})
	hostPath, _ := m.HostPath(&volume.Spec{Kind: volume.KindNamed, Name: "cache"})
	// hostPath is bind-mounted into the container's rootfs at bundle prep time

Bind mounts resolve directly to their host source (validated to exist);
tmpfs mounts have no host path and are mounted straight into the prepared
rootfs via MountTmpfs, using golang.org/x/sys/unix the way the container
manager's other mount operations do.
*/
package volume
