package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/pipeline"
)

// pipelineStageSpec is the JSON shape a "pipeline.run" RPC call submits for
// one stage: a shell command plus the names of stages it depends on. The
// pipeline engine's Transform type is a Go closure (spec.md §4.4), so a
// wire call can only ever select one of the stage kinds the daemon itself
// knows how to build — here, KindCommand, the same nsenter-free host-side
// exec the shell's own command stages would run.
type pipelineStageSpec struct {
	Name      string   `json:"name"`
	Argv      []string `json:"argv"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// pipelineRunRequest is the full "pipeline.run" params body.
type pipelineRunRequest struct {
	Name     string              `json:"name"`
	Strategy pipeline.Strategy   `json:"strategy,omitempty"`
	Stages   []pipelineStageSpec `json:"stages"`
}

// commandTransform builds a Transform that runs argv as a host process,
// ignoring its input Data and producing the captured stdout as a single
// Text value followed by an Empty terminator carrying the exit code.
func commandTransform(argv []string) pipeline.Transform {
	return func(ctx context.Context, _ pipeline.Data) ([]pipeline.Data, error) {
		if len(argv) == 0 {
			return nil, corerr.New(corerr.Validation, corerr.ReasonNone, "", "empty stage command")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		out, err := cmd.Output()
		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if err != nil {
			return nil, corerr.Wrap(corerr.Runtime, corerr.ReasonNone, argv[0], err)
		}
		return []pipeline.Data{pipeline.TextData(string(out)), pipeline.Empty(exitCode)}, nil
	}
}

// runPipeline builds a Pipeline from req's command stages and executes it
// through the daemon's shared Executor, the RPC façade's equivalent of the
// HTTP façade's container/image/volume handlers.
func (d *Daemon) runPipeline(ctx context.Context, req pipelineRunRequest) (*pipeline.Result, error) {
	if len(req.Stages) == 0 {
		return nil, corerr.New(corerr.Validation, corerr.ReasonEmptyPipeline, req.Name, "pipeline has no stages")
	}

	pl := pipeline.New(pipeline.Options{Name: req.Name, Strategy: req.Strategy})
	for _, stage := range req.Stages {
		if _, err := pl.AddStage(pipeline.Definition{
			Name:      stage.Name,
			Kind:      pipeline.KindCommand,
			DependsOn: stage.DependsOn,
			Transform: commandTransform(stage.Argv),
		}); err != nil {
			return nil, err
		}
	}
	return d.pipelines.Execute(ctx, pl, nil)
}

func registerPipelineMethods(s *rpcServer) {
	s.methods["pipeline.run"] = func(ctx context.Context, params json.RawMessage) (any, error) {
		var req pipelineRunRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("decode pipeline.run params: %w", err)
		}
		return s.d.runPipeline(ctx, req)
	}
}
