package daemon

import (
	"context"
	"testing"

	"github.com/nexusshell/corectl/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPipelineExecutesCommandStages(t *testing.T) {
	d := &Daemon{pipelines: pipeline.NewExecutor(nil, nil)}

	req := pipelineRunRequest{
		Name: "echo-test",
		Stages: []pipelineStageSpec{
			{Name: "say-hello", Argv: []string{"echo", "-n", "hello"}},
		},
	}

	result, err := d.runPipeline(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Stages, 1)
	assert.True(t, result.Stages[0].Success)
}

func TestRunPipelineRejectsEmptyStages(t *testing.T) {
	d := &Daemon{pipelines: pipeline.NewExecutor(nil, nil)}
	_, err := d.runPipeline(context.Background(), pipelineRunRequest{Name: "empty"})
	assert.Error(t, err)
}

func TestCommandTransformCapturesExitCode(t *testing.T) {
	transform := commandTransform([]string{"sh", "-c", "exit 3"})
	out, err := transform(context.Background(), pipeline.Data{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[1].IsTerminator())
	assert.Equal(t, 3, out[1].ExitCode)
}
