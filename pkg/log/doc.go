/*
Package log provides structured logging for corectl using zerolog.

The log package wraps zerolog to give every subsystem (job controller,
pipeline runner, distributed dispatcher, container manager, daemon) a
JSON-structured logger with component and entity-id context fields. Console
output (human-readable, colorized) is used when JSONOutput is false, which
is the CLI's default for every command, the daemon included; the --json
flag switches to JSON.

Initializing the logger:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("job-controller")
	logger.Info().Str("job_id", id).Msg("job started")

Context loggers (WithComponent, WithNodeID, WithJobID, WithStageID,
WithContainerID) each copy the package-level Logger at the time they are
called. Init sets zerolog's global level, which applies to every logger,
derived ones included; the output it installs applies only to loggers
derived after the call.
*/
package log
