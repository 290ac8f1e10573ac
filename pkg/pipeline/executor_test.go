package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(ctx context.Context, in Data) ([]Data, error) {
	batch := in.Batch
	var out []Data
	for _, d := range batch {
		out = append(out, TextData(d.Text+"!"))
	}
	if len(batch) == 0 {
		out = append(out, TextData(in.Text+"!"))
	}
	return out, nil
}

func TestExecuteSequentialChain(t *testing.T) {
	pl := New(Options{Name: "seq", Strategy: Sequential})
	_, err := pl.AddStage(Definition{Name: "a", Transform: upper})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "b", DependsOn: []string{"a"}, Transform: upper})
	require.NoError(t, err)

	exec := NewExecutor(nil, nil)
	res, err := exec.Execute(context.Background(), pl, map[string]Data{"a": TextData("hi")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Stages, 2)
}

func TestExecuteParallelIndependentStages(t *testing.T) {
	pl := New(Options{Name: "par", Strategy: Parallel, MaxParallelism: 2})
	_, err := pl.AddStage(Definition{Name: "a", Transform: upper})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "b", Transform: upper})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "c", DependsOn: []string{"a", "b"}, Transform: upper})
	require.NoError(t, err)

	exec := NewExecutor(nil, nil)
	res, err := exec.Execute(context.Background(), pl, map[string]Data{
		"a": TextData("x"), "b": TextData("y"),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Stages, 3)
}

func TestExecuteStopsOnFirstFailureSequential(t *testing.T) {
	failing := func(ctx context.Context, in Data) ([]Data, error) {
		return nil, errors.New("boom")
	}
	pl := New(Options{Name: "fail-seq", Strategy: Sequential})
	_, err := pl.AddStage(Definition{Name: "a", Transform: failing, Retry: RetryPolicy{MaxAttempts: 1}})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "b", DependsOn: []string{"a"}, Transform: upper})
	require.NoError(t, err)

	exec := NewExecutor(nil, nil)
	res, err := exec.Execute(context.Background(), pl, nil)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Len(t, res.Stages, 1, "stage b must not run once a fails under StopOnFirstFailure")
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	var calls int32
	flaky := func(ctx context.Context, in Data) ([]Data, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient")
		}
		return []Data{TextData("ok")}, nil
	}
	pl := New(Options{Name: "retry", Strategy: Sequential})
	_, err := pl.AddStage(Definition{
		Name: "a", Transform: flaky,
		Retry: RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond},
	})
	require.NoError(t, err)

	exec := NewExecutor(nil, nil)
	res, err := exec.Execute(context.Background(), pl, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecuteConditionalEdgeSkipsOnNonZeroExit(t *testing.T) {
	failing := func(ctx context.Context, in Data) ([]Data, error) {
		return nil, errors.New("boom")
	}
	var ranB int32
	trackB := func(ctx context.Context, in Data) ([]Data, error) {
		atomic.AddInt32(&ranB, 1)
		return []Data{TextData("should not run")}, nil
	}

	pl := New(Options{Name: "cond", Strategy: Sequential, FailurePolicy: CompletePeersThenFail})
	_, err := pl.AddStage(Definition{Name: "a", Transform: failing, Retry: RetryPolicy{MaxAttempts: 1}})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "b", DependsOn: []string{"a"}, Transform: trackB})
	require.NoError(t, err)
	pl.AddConditionalEdge("a", "b")

	exec := NewExecutor(nil, nil)
	res, err := exec.Execute(context.Background(), pl, nil)
	require.Error(t, err)
	require.Len(t, res.Stages, 2)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ranB), "conditional consumer must not run after a non-zero upstream exit")

	var bResult *StageResult
	for i := range res.Stages {
		if res.Stages[i].Name == "b" {
			bResult = &res.Stages[i]
		}
	}
	require.NotNil(t, bResult)
	assert.Equal(t, 1, bResult.ExitCode)
}

func TestExecuteDataFlowStreams(t *testing.T) {
	pl := New(Options{Name: "df", Strategy: DataFlow})
	_, err := pl.AddStage(Definition{Name: "a", Transform: func(ctx context.Context, in Data) ([]Data, error) {
		return []Data{TextData(in.Text + "-a")}, nil
	}})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "b", DependsOn: []string{"a"}, Transform: func(ctx context.Context, in Data) ([]Data, error) {
		return []Data{TextData(in.Text + "-b")}, nil
	}})
	require.NoError(t, err)

	exec := NewExecutor(nil, nil)
	res, err := exec.Execute(context.Background(), pl, map[string]Data{"a": TextData("seed")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Stages, 2)
}

type fakeChecker struct {
	cpu, mem float64
}

func (f fakeChecker) CPUUsagePercent() float64    { return f.cpu }
func (f fakeChecker) MemoryUsagePercent() float64 { return f.mem }

func TestResourceOptimizedDeniesOverBudget(t *testing.T) {
	pl := New(Options{
		Name: "ro", Strategy: ResourceOptimized,
		Budget: &ResourceBudget{MaxCPUPercent: 10},
	})
	_, err := pl.AddStage(Definition{
		Name: "a", Transform: upper,
		Retry: RetryPolicy{MaxAttempts: 2, Interval: time.Millisecond},
	})
	require.NoError(t, err)

	exec := NewExecutor(nil, fakeChecker{cpu: 99})
	res, err := exec.Execute(context.Background(), pl, map[string]Data{"a": TextData("x")})
	require.Error(t, err)
	assert.False(t, res.Success)
}

func TestResourceOptimizedAdmitsUnderBudget(t *testing.T) {
	pl := New(Options{
		Name: "ro-ok", Strategy: ResourceOptimized,
		Budget: &ResourceBudget{MaxCPUPercent: 90},
	})
	_, err := pl.AddStage(Definition{Name: "a", Transform: upper})
	require.NoError(t, err)

	exec := NewExecutor(nil, fakeChecker{cpu: 10})
	res, err := exec.Execute(context.Background(), pl, map[string]Data{"a": TextData("x")})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
