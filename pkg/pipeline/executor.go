package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ResourceChecker is the admission source ResourceOptimized scheduling
// consults before starting a stage. *resource.Monitor satisfies this via
// its CPUUsagePercent/MemoryUsagePercent methods; kept local so
// pkg/pipeline never imports pkg/resource.
type ResourceChecker interface {
	CPUUsagePercent() float64
	MemoryUsagePercent() float64
}

// StageResult records one stage's outcome after a pipeline run.
type StageResult struct {
	Name          string
	Success       bool
	ExitCode      int
	Output        []Data
	Error         string
	ExecutionTime time.Duration
}

// Result is the full outcome of one Execute call.
type Result struct {
	PipelineID string
	Stages     []StageResult
	Success    bool
}

// Executor runs a built Pipeline according to its Strategy.
type Executor struct {
	logger  zerolog.Logger
	broker  *events.Broker
	checker ResourceChecker
}

// NewExecutor builds an Executor. broker and checker may be nil.
func NewExecutor(broker *events.Broker, checker ResourceChecker) *Executor {
	return &Executor{
		logger:  log.WithComponent("pipeline-executor"),
		broker:  broker,
		checker: checker,
	}
}

func (e *Executor) emit(t events.EventType, stageName, detail string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		Type:      t,
		Timestamp: time.Now(),
		Message:   detail,
		Metadata:  map[string]string{"stage": stageName},
	})
}

// Execute runs pl to completion. initial seeds the input of stages that
// have no producers (source stages), keyed by stage name; stages not
// present in initial start from an Empty(0) input.
func (e *Executor) Execute(ctx context.Context, pl *Pipeline, initial map[string]Data) (*Result, error) {
	g, err := pl.Build()
	if err != nil {
		return nil, err
	}
	e.emit(events.EventPipelineStarted, "", pl.Name())

	var res *Result
	if pl.strategy == DataFlow {
		res, err = e.executeDataFlow(ctx, pl, g, initial)
	} else {
		maxParallelism := pl.maxParallelism
		if pl.strategy == Sequential {
			maxParallelism = 1
		}
		res, err = e.executeLevels(ctx, pl, g, initial, maxParallelism)
	}

	if err != nil {
		e.emit(events.EventPipelineFailed, "", err.Error())
		return res, err
	}
	e.emit(events.EventPipelineCompleted, "", pl.Name())
	return res, nil
}

// executeLevels runs Sequential/Parallel/ResourceOptimized scheduling:
// stages are grouped into dependency levels (width 1 for Sequential) and
// each stage's Transform is invoked once against the full batch of its
// producers' combined output, rather than streamed item by item.
func (e *Executor) executeLevels(ctx context.Context, pl *Pipeline, g *graph, initial map[string]Data, maxParallelism int) (*Result, error) {
	levels := g.levels(maxParallelism)

	outputs := make(map[string][]Data)
	exitCodes := make(map[string]int)
	var mu sync.Mutex
	var results []StageResult
	var firstErr error

	for _, level := range levels {
		grp, gctx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(int64(maxParallelism))

		for _, id := range level {
			id := id
			grp.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				stage, _ := pl.stage(id)

				if pl.strategy == ResourceOptimized {
					if err := e.awaitAdmission(gctx, stage, pl.budget); err != nil {
						mu.Lock()
						results = append(results, StageResult{Name: stage.Name(), Success: false, Error: err.Error()})
						mu.Unlock()
						return err
					}
				}

				mu.Lock()
				input, skip, skipExit := gatherInput(g, id, pl, outputs, exitCodes, initial)
				mu.Unlock()

				start := time.Now()
				if skip {
					stage.setState(StateCompleted)
					mu.Lock()
					outputs[id] = nil
					exitCodes[id] = skipExit
					results = append(results, StageResult{Name: stage.Name(), Success: skipExit == 0, ExitCode: skipExit})
					mu.Unlock()
					return nil
				}

				stage.setState(StatePreparing)
				stage.recordStart()
				stage.setState(StateRunning)
				e.emit(events.EventStageStarted, stage.Name(), "")

				stageCtx, stageCancel := context.WithCancel(gctx)
				stage.setCancelFunc(stageCancel)
				itemCtx := stageCtx
				var cancel context.CancelFunc
				if stage.timeout > 0 {
					itemCtx, cancel = context.WithTimeout(stageCtx, stage.timeout)
				}
				out, err := e.runTransformWithRetry(itemCtx, stage, input)
				if cancel != nil {
					cancel()
				}
				stageCancel()
				stage.recordItem(out, err)
				stage.recordFinish()
				elapsed := time.Since(start)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					stage.setState(StateFailed)
					e.emit(events.EventStageFailed, stage.Name(), err.Error())
					exitCodes[id] = 1
					results = append(results, StageResult{
						Name: stage.Name(), Success: false, ExitCode: 1,
						Error: err.Error(), ExecutionTime: elapsed,
					})
					return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, stage.Name(), err)
				}
				stage.setState(StateCompleted)
				e.emit(events.EventPipelineStageDone, stage.Name(), "")
				outputs[id] = out
				exitCodes[id] = 0
				results = append(results, StageResult{
					Name: stage.Name(), Success: true, Output: out, ExecutionTime: elapsed,
				})
				return nil
			})
		}

		if err := grp.Wait(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if pl.failurePolicy == StopOnFirstFailure {
				return &Result{PipelineID: pl.ID(), Stages: results, Success: false}, firstErr
			}
		}
	}

	return &Result{PipelineID: pl.ID(), Stages: results, Success: firstErr == nil}, firstErr
}

// gatherInput combines the outputs already produced by id's dependencies
// into a single Data value: a lone producer's output batch passes
// through as KindBatch, multiple producers combine into a KindMap keyed
// by producer stage name. A Conditional producer whose recorded exit code
// is non-zero causes the whole stage to be skipped (Open Question (c)):
// it never runs its Transform and immediately carries that exit code
// onward.
func gatherInput(g *graph, id string, pl *Pipeline, outputs map[string][]Data, exitCodes map[string]int, initial map[string]Data) (Data, bool, int) {
	deps := g.deps[id]
	if len(deps) == 0 {
		stage, _ := pl.stage(id)
		if d, ok := initial[stage.Name()]; ok {
			return d, false, 0
		}
		return Empty(0), false, 0
	}

	for dep := range deps {
		if g.kindOf(dep, id) == EdgeConditional && exitCodes[dep] != 0 {
			return Data{}, true, exitCodes[dep]
		}
	}

	if len(deps) == 1 {
		for dep := range deps {
			return Data{Kind: KindBatch, Batch: outputs[dep]}, false, 0
		}
	}

	m := make(map[string]Data, len(deps))
	for dep := range deps {
		producer, _ := pl.stage(dep)
		m[producer.Name()] = Data{Kind: KindBatch, Batch: outputs[dep]}
	}
	return Data{Kind: KindMap, Map: m}, false, 0
}

// executeDataFlow runs DataFlow scheduling: every stage's runner starts
// concurrently and streams item by item as soon as at least one upstream
// item is available, per §4.4.
func (e *Executor) executeDataFlow(ctx context.Context, pl *Pipeline, g *graph, initial map[string]Data) (*Result, error) {
	channels := make(map[string]chan Data, len(g.nodes))
	for _, id := range g.nodes {
		channels[id] = make(chan Data, 1)
	}

	grp, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var results []StageResult

	for _, id := range g.nodes {
		id := id
		stage, _ := pl.stage(id)
		out := channels[id]

		var in <-chan Data
		deps := g.deps[id]
		if len(deps) == 0 {
			seed := make(chan Data, 2)
			if d, ok := initial[stage.Name()]; ok {
				seed <- d
			}
			seed <- Empty(0)
			close(seed)
			in = seed
		} else {
			producerOut := make(map[string]<-chan Data, len(deps))
			var producers []string
			for dep := range deps {
				producerOut[dep] = channels[dep]
				producers = append(producers, dep)
			}
			in = e.mergeInputs(gctx, producers, producerOut, func(p string) EdgeKind { return g.kindOf(p, id) })
		}

		grp.Go(func() error {
			start := time.Now()
			err := e.runStage(gctx, stage, in, out)
			elapsed := time.Since(start)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, StageResult{
				Name: stage.Name(), Success: err == nil, ExecutionTime: elapsed,
				Error: errString(err),
			})
			if err != nil && pl.failurePolicy == StopOnFirstFailure {
				return err
			}
			return nil
		})
	}

	err := grp.Wait()
	return &Result{PipelineID: pl.ID(), Stages: results, Success: err == nil}, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *Executor) awaitAdmission(ctx context.Context, stage *Stage, budget *ResourceBudget) error {
	if e.checker == nil || budget == nil {
		return nil
	}
	attempts := stage.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if (budget.MaxCPUPercent <= 0 || e.checker.CPUUsagePercent() <= budget.MaxCPUPercent) &&
			(budget.MaxMemoryPercent <= 0 || e.checker.MemoryUsagePercent() <= budget.MaxMemoryPercent) {
			return nil
		}
		select {
		case <-time.After(stage.retry.delay(attempt + 1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return corerr.New(corerr.Resource, corerr.ReasonConcurrencyLimit, stage.Name(),
		fmt.Sprintf("resource budget exceeded after %d admission attempts", attempts))
}
