package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraphDetectsCycle(t *testing.T) {
	g := newGraph([]string{"a", "b", "c"})
	g.addEdge("a", "b", EdgeDirect)
	g.addEdge("b", "c", EdgeDirect)
	g.addEdge("c", "a", EdgeDirect)
	assert.True(t, g.hasCycle())
}

func TestGraphAcyclicPasses(t *testing.T) {
	g := newGraph([]string{"a", "b", "c"})
	g.addEdge("a", "b", EdgeDirect)
	g.addEdge("b", "c", EdgeDirect)
	assert.False(t, g.hasCycle())
}

func TestGraphAllReachableFromSources(t *testing.T) {
	g := newGraph([]string{"a", "b", "c"})
	g.addEdge("a", "b", EdgeDirect)
	g.addEdge("c", "c", EdgeDirect)
	assert.False(t, g.allReachableFromSources()) // c depends only on itself, so no source reaches it

	g.addEdge("b", "c", EdgeDirect)
	assert.True(t, g.allReachableFromSources())
}

func TestGraphLevelsGroupsByDepth(t *testing.T) {
	g := newGraph([]string{"a", "b", "c", "d"})
	g.addEdge("a", "c", EdgeDirect)
	g.addEdge("b", "c", EdgeDirect)
	g.addEdge("c", "d", EdgeDirect)

	levels := g.levels(4)
	assert.Len(t, levels, 3)
	assert.ElementsMatch(t, []string{"a", "b"}, levels[0])
	assert.Equal(t, []string{"c"}, levels[1])
	assert.Equal(t, []string{"d"}, levels[2])
}

func TestGraphLevelsCapsWidthByMaxParallelism(t *testing.T) {
	g := newGraph([]string{"a", "b", "c"})
	levels := g.levels(2)
	assert.Len(t, levels, 2)
	assert.Len(t, levels[0], 2)
	assert.Len(t, levels[1], 1)
}
