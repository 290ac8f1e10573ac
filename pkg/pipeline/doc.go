// Package pipeline implements Pipeline, Stage and the four scheduling
// strategies (Sequential, Parallel, DataFlow, ResourceOptimized)
// described for the pipeline engine.
//
// A Pipeline is built by adding Stage Definitions and dependency edges,
// then Executed:
//
//	pl := pipeline.New(pipeline.Options{Name: "etl", Strategy: pipeline.Parallel})
//	pl.AddStage(pipeline.Definition{Name: "extract", Transform: extract})
//	pl.AddStage(pipeline.Definition{Name: "transform", DependsOn: []string{"extract"}, Transform: xform})
//	exec := pipeline.NewExecutor(broker, monitor)
//	result, err := exec.Execute(ctx, pl, map[string]pipeline.Data{
//		"extract": pipeline.TextData("seed input"),
//	})
//
// Source stages — those with no DependsOn — take their input from
// Execute's initial map, keyed by stage name. Under Sequential, Parallel
// and ResourceOptimized an unseeded source stage still runs its Transform
// once, against an Empty(0) input. Under DataFlow an unseeded source stage
// receives only the terminating Empty value, so it never runs its
// Transform and completes with zero records processed.
//
// Sequential and Parallel/ResourceOptimized run each stage's Transform
// once against the full combined batch of its producers' output
// (single producer: its whole output as one Batch value; multiple
// producers: a Map keyed by producer stage name). DataFlow instead runs
// every stage concurrently as a streaming item-by-item runner, letting a
// downstream stage start consuming before its upstream has fully
// finished.
package pipeline
