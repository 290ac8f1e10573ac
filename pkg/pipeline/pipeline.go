// Package pipeline implements Pipeline and Stage, the DAG-of-typed-
// transformers execution engine that sits alongside the job engine: a
// Pipeline wires a set of Stages together with typed edges and a
// scheduling strategy, validates the graph is acyclic, and runs it
// through one of four scheduling strategies (§4.4).
package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nexusshell/corectl/pkg/corerr"
)

// Strategy selects how a Pipeline's stages are scheduled for execution.
type Strategy string

const (
	Sequential        Strategy = "Sequential"
	Parallel          Strategy = "Parallel"
	DataFlow          Strategy = "DataFlow"
	ResourceOptimized Strategy = "ResourceOptimized"
)

// FailurePolicy decides whether sibling stages continue after one fails.
type FailurePolicy string

const (
	// StopOnFirstFailure matches Sequential's default: abort remaining
	// stages immediately.
	StopOnFirstFailure FailurePolicy = "StopOnFirstFailure"
	// CompletePeersThenFail matches Parallel/DataFlow/ResourceOptimized's
	// default: let already-started siblings in the current level finish,
	// then fail the pipeline.
	CompletePeersThenFail FailurePolicy = "CompletePeersThenFail"
)

// ResourceBudget bounds what ResourceOptimized scheduling will admit.
// A zero field means that dimension is not checked.
type ResourceBudget struct {
	MaxCPUPercent    float64
	MaxMemoryPercent float64
}

// edge is a directed producer->consumer link between two stage ids.
type edge struct {
	from, to string
	kind     EdgeKind
}

// Pipeline is a DAG of Stages plus a flow-control policy.
type Pipeline struct {
	mu sync.RWMutex

	id       string
	name     string
	strategy Strategy

	maxParallelism int
	failurePolicy  FailurePolicy
	budget         *ResourceBudget

	stages   map[string]*Stage
	order    []string // insertion order, for deterministic iteration
	edges    []edge
	cancelled bool
}

// Options configures a new Pipeline.
type Options struct {
	Name           string
	Strategy       Strategy
	MaxParallelism int
	FailurePolicy  FailurePolicy
	Budget         *ResourceBudget
}

// New creates an empty Pipeline. Stages and edges are added with AddStage
// and AddEdge before calling Build.
func New(opts Options) *Pipeline {
	strategy := opts.Strategy
	if strategy == "" {
		// Open Question (a): default scheduling strategy is Parallel.
		strategy = Parallel
	}
	maxParallelism := opts.MaxParallelism
	if maxParallelism <= 0 {
		maxParallelism = 4
	}
	failurePolicy := opts.FailurePolicy
	if failurePolicy == "" {
		if strategy == Sequential {
			failurePolicy = StopOnFirstFailure
		} else {
			failurePolicy = CompletePeersThenFail
		}
	}
	return &Pipeline{
		id:             uuid.NewString(),
		name:           opts.Name,
		strategy:       strategy,
		maxParallelism: maxParallelism,
		failurePolicy:  failurePolicy,
		budget:         opts.Budget,
		stages:         make(map[string]*Stage),
	}
}

func (p *Pipeline) ID() string         { return p.id }
func (p *Pipeline) Name() string       { return p.name }
func (p *Pipeline) Strategy() Strategy { return p.strategy }

// AddStage registers a new stage built from def and returns its id. Stage
// names must be unique within the pipeline; DependsOn references other
// stages by name and is resolved at Build time.
func (p *Pipeline) AddStage(def Definition) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		if p.stages[id].Name() == def.Name {
			return "", corerr.New(corerr.Validation, corerr.ReasonNone, def.Name,
				"duplicate stage name")
		}
	}
	id := uuid.NewString()
	s := newStage(id, def)
	p.stages[id] = s
	p.order = append(p.order, id)
	for _, dep := range def.DependsOn {
		p.edges = append(p.edges, edge{from: dep, to: def.Name, kind: EdgeDirect})
	}
	return id, nil
}

// AddConditionalEdge marks the edge from producerName to consumerName as
// Conditional: consumerName only receives upstream data if producerName's
// terminating Empty carries ExitCode == 0 (Open Question (c)).
func (p *Pipeline) AddConditionalEdge(producerName, consumerName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.edges {
		if p.edges[i].from == producerName && p.edges[i].to == consumerName {
			p.edges[i].kind = EdgeConditional
			return
		}
	}
	p.edges = append(p.edges, edge{from: producerName, to: consumerName, kind: EdgeConditional})
}

func (p *Pipeline) stageByName(name string) (*Stage, bool) {
	for _, id := range p.order {
		if p.stages[id].Name() == name {
			return p.stages[id], true
		}
	}
	return nil, false
}

// Build resolves name-based dependency edges into id-based ones, checks
// every stage is reachable from at least one source, and verifies the
// graph is acyclic via DFS. It must be called before Execute.
func (p *Pipeline) Build() (*graph, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.order) == 0 {
		return nil, corerr.New(corerr.Validation, corerr.ReasonEmptyPipeline, p.id,
			"pipeline has no stages")
	}

	g := newGraph(p.order)
	for _, e := range p.edges {
		fromStage, ok := p.stageByName(e.from)
		if !ok {
			return nil, corerr.New(corerr.Validation, corerr.ReasonNone, e.from,
				fmt.Sprintf("dependency stage %q not found", e.from))
		}
		toStage, ok := p.stageByName(e.to)
		if !ok {
			return nil, corerr.New(corerr.Validation, corerr.ReasonNone, e.to,
				fmt.Sprintf("dependency stage %q not found", e.to))
		}
		g.addEdge(fromStage.ID(), toStage.ID(), e.kind)
	}

	if g.hasCycle() {
		return nil, corerr.New(corerr.Validation, corerr.ReasonCyclicPipeline, p.id,
			"pipeline graph contains a cycle")
	}
	if !g.allReachableFromSources() {
		return nil, corerr.New(corerr.Validation, corerr.ReasonNone, p.id,
			"pipeline graph has a stage unreachable from any source")
	}
	return g, nil
}

func (p *Pipeline) stage(id string) (*Stage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.stages[id]
	return s, ok
}

// Stages returns the pipeline's stages in insertion order.
func (p *Pipeline) Stages() []*Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Stage, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.stages[id])
	}
	return out
}

func (p *Pipeline) markCancelled() {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
}

func (p *Pipeline) isCancelled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cancelled
}

// Cancel requests cancellation of every running stage.
func (p *Pipeline) Cancel() {
	p.markCancelled()
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range p.order {
		p.stages[id].requestCancel()
	}
}
