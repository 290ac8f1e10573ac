package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthrough(ctx context.Context, in Data) ([]Data, error) {
	return []Data{in}, nil
}

func TestNewDefaultsToParallelStrategy(t *testing.T) {
	pl := New(Options{Name: "p"})
	assert.Equal(t, Parallel, pl.Strategy())
}

func TestBuildRejectsEmptyPipeline(t *testing.T) {
	pl := New(Options{Name: "empty"})
	_, err := pl.Build()
	require.Error(t, err)
}

func TestBuildRejectsCycle(t *testing.T) {
	pl := New(Options{Name: "cyclic"})
	_, err := pl.AddStage(Definition{Name: "a", DependsOn: []string{"b"}, Transform: passthrough})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "b", DependsOn: []string{"a"}, Transform: passthrough})
	require.NoError(t, err)

	_, err = pl.Build()
	require.Error(t, err)
}

func TestBuildRejectsDuplicateStageName(t *testing.T) {
	pl := New(Options{Name: "dup"})
	_, err := pl.AddStage(Definition{Name: "a", Transform: passthrough})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "a", Transform: passthrough})
	require.Error(t, err)
}

func TestBuildAcceptsValidChain(t *testing.T) {
	pl := New(Options{Name: "chain"})
	_, err := pl.AddStage(Definition{Name: "extract", Transform: passthrough})
	require.NoError(t, err)
	_, err = pl.AddStage(Definition{Name: "load", DependsOn: []string{"extract"}, Transform: passthrough})
	require.NoError(t, err)

	g, err := pl.Build()
	require.NoError(t, err)
	assert.Len(t, g.nodes, 2)
}
