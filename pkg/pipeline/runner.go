package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/events"
)

// runStage is the per-stage runner: it owns an input channel and an
// output channel, receives one Data item at a time, checks cancellation,
// applies the stage's Transform under an optional per-item timeout,
// forwards results, and updates metrics. A trailing Empty value
// propagates downstream and terminates the runner, per §4.4.
func (e *Executor) runStage(ctx context.Context, s *Stage, in <-chan Data, out chan<- Data) error {
	defer close(out)

	ctx, cancel := context.WithCancel(ctx)
	s.setCancelFunc(cancel)
	defer cancel()

	s.setState(StatePreparing)
	s.recordStart()
	s.setState(StateRunning)
	e.emit(events.EventStageStarted, s.Name(), "")
	defer s.recordFinish()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateCancelled)
			e.emit(events.EventStageCancelled, s.Name(), "")
			return ctx.Err()
		case item, ok := <-in:
			if !ok {
				s.setState(StateCompleted)
				return nil
			}
			if item.IsTerminator() {
				out <- item
				s.setState(StateCompleted)
				return nil
			}

			itemCtx := ctx
			var itemCancel context.CancelFunc
			if s.itemDeadline > 0 {
				itemCtx, itemCancel = context.WithTimeout(ctx, s.itemDeadline)
			}
			results, err := e.runTransformWithRetry(itemCtx, s, item)
			if itemCancel != nil {
				itemCancel()
			}
			s.recordItem(results, err)
			if err != nil {
				s.setState(StateFailed)
				e.emit(events.EventStageFailed, s.Name(), err.Error())
				out <- Empty(1)
				return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, s.Name(), err)
			}
			for _, r := range results {
				out <- r
			}
		}
	}
}

func (e *Executor) runTransformWithRetry(ctx context.Context, s *Stage, item Data) ([]Data, error) {
	var lastErr error
	attempts := s.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.recordRetry()
			e.emit(events.EventStageRetried, s.Name(), lastErr.Error())
			select {
			case <-time.After(s.retry.delay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		out, err := s.transform(ctx, item)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// taggedData tags a Data value with the id of the producer stage it came
// from, used while fanning multiple producers into one consumer's input.
type taggedData struct {
	producer string
	data     Data
}

// mergeInputs fans producerOut channels into a single input channel for
// consumer, honoring per-edge Conditional semantics: a Conditional
// producer's items are buffered until its terminator arrives; if that
// terminator carries a non-zero ExitCode, the buffered items are dropped
// and the edge contributes nothing (Open Question (c)). If every inbound
// edge is Conditional and all of them short-circuit, the consumer itself
// never receives any data and is finalized as completed-with-no-work by
// the caller once its merged input closes immediately with only a
// terminator.
func (e *Executor) mergeInputs(ctx context.Context, producers []string, producerOut map[string]<-chan Data, kindOf func(producer string) EdgeKind) <-chan Data {
	merged := make(chan Data)
	if len(producers) == 0 {
		close(merged)
		return merged
	}

	raw := make(chan taggedData)
	var wg sync.WaitGroup
	for _, p := range producers {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for {
				select {
				case d, ok := <-producerOut[p]:
					if !ok {
						return
					}
					select {
					case raw <- taggedData{producer: p, data: d}:
					case <-ctx.Done():
						return
					}
					if d.IsTerminator() {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(p)
	}
	go func() {
		wg.Wait()
		close(raw)
	}()

	go func() {
		defer close(merged)
		pending := map[string][]Data{}
		done := map[string]bool{}
		worstExit := 0
		for td := range raw {
			kind := kindOf(td.producer)
			if td.data.IsTerminator() {
				done[td.producer] = true
				if td.data.ExitCode > worstExit {
					worstExit = td.data.ExitCode
				}
				if kind == EdgeConditional && td.data.ExitCode == 0 {
					for _, item := range pending[td.producer] {
						select {
						case merged <- item:
						case <-ctx.Done():
							return
						}
					}
				}
				pending[td.producer] = nil
				continue
			}
			if kind == EdgeConditional {
				pending[td.producer] = append(pending[td.producer], td.data)
				continue
			}
			select {
			case merged <- td.data:
			case <-ctx.Done():
				return
			}
		}
		select {
		case merged <- Empty(worstExit):
		case <-ctx.Done():
		}
	}()

	return merged
}
