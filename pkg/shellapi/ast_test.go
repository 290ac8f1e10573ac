package shellapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapRegistryLookup(t *testing.T) {
	called := false
	reg := MapRegistry{
		"echo": BuiltinFunc(func(args []string, env map[string]string) (BuiltinResult, error) {
			called = true
			return BuiltinResult{ExitCode: 0, Stdout: "hi"}, nil
		}),
	}

	b, ok := reg.Lookup("echo")
	assert.True(t, ok)

	res, err := b.Execute(nil, nil)
	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi", res.Stdout)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestASTNodesSatisfyNode(t *testing.T) {
	var nodes []Node
	nodes = append(nodes,
		Command{Name: "ls"},
		Pipeline{Stages: []Node{Command{Name: "ls"}, Command{Name: "grep"}}, PipeKinds: []PipeKind{PipeStandard}},
		Subshell{Inner: Command{Name: "pwd"}},
		Conditional{Condition: Command{Name: "test"}, Then: Command{Name: "echo"}},
		Loop{Kind: LoopFor, Body: Command{Name: "echo"}},
	)
	assert.Len(t, nodes, 5)
}
