/*
Package network implements corectl's container network registry (spec.md
§6 "Images, Volumes, Networks follow the same list/create/inspect/remove/
prune shape"). A network is a named record (driver and subnet) that
containers join via their `--network` flag; this package tracks the
networks corectl owns and which containers are attached to each, the way
pkg/volume tracks named volume directories.

	m := network.NewManager()
	m.Create(&network.Spec{Name: "app-net", Driver: network.DriverBridge, Subnet: "172.20.0.0/24"})
	m.Attach("app-net", containerID, "172.20.0.2")
	m.Remove("app-net", false)

This package only owns the registry and membership bookkeeping: it creates
and tears down no bridges or other host interfaces and does no packet
forwarding.
*/
package network
