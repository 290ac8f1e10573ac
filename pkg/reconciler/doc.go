/*
Package reconciler runs the background loop that turns container
health-check failures into restarts or terminal failures, the consistency
pass sitting alongside (not instead of) the container manager's own
event-driven state machine (spec.md §4.7).

On each tick it asks the ContainerSource for every container currently
failing its health check and applies that container's restart policy:
"always"/"on-failure" containers are restarted and the restart is counted
in corectl_reconciliation_restarts_total; containers with no matching
policy are marked failed instead. A single mutex serializes reconciliation
cycles so a slow cycle is never overlapped by the next tick.

	r := reconciler.NewReconciler(containerManager, 10*time.Second)
	r.Start()
	defer r.Stop()
*/
package reconciler
