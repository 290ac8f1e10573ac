package pipeline

import (
	"context"
	"sync"
	"time"
)

// Kind is the operation a Stage performs.
type Kind string

const (
	KindCommand   Kind = "Command"
	KindFilter    Kind = "Filter"
	KindMap       Kind = "Map"
	KindReduce    Kind = "Reduce"
	KindAggregate Kind = "Aggregate"
	KindSplit     Kind = "Split"
	KindJoin      Kind = "Join"
	KindSort      Kind = "Sort"
	KindGroup     Kind = "Group"
	KindTransform Kind = "Transform"
	KindValidate  Kind = "Validate"
	KindLoad      Kind = "Load"
	KindStore     Kind = "Store"
	KindImport    Kind = "Import"
	KindExport    Kind = "Export"
	KindScript    Kind = "Script"
	KindCustom    Kind = "Custom"
)

// State is a Stage's position in its state machine.
type State string

const (
	StateInitial   State = "Initial"
	StatePreparing State = "Preparing"
	StateRunning   State = "Running"
	StatePaused    State = "Paused"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
	StateCancelled State = "Cancelled"
)

// EdgeKind controls whether a downstream stage receives data unconditionally
// or only when its upstream producer terminated successfully.
type EdgeKind string

const (
	EdgeDirect      EdgeKind = "Direct"
	EdgeConditional EdgeKind = "Conditional"
)

// Transform processes one input item and produces zero or more output
// items. Implementations must be safe to retry: RetryPolicy may invoke
// Transform again on the same input after a failure.
type Transform func(ctx context.Context, in Data) ([]Data, error)

// RetryPolicy is a stage's local retry budget, independent from (but
// shaped like) corerr.RetryPolicy: a fixed Interval between attempts, or
// exponential back-off (Interval doubled per attempt, capped at 64x), up to
// MaxAttempts.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Exponential bool
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if !p.Exponential {
		return p.Interval
	}
	mult := time.Duration(1)
	for i := 0; i < attempt && mult < 64; i++ {
		mult *= 2
	}
	if mult > 64 {
		mult = 64
	}
	return p.Interval * mult
}

// Metrics tracks one stage's execution counters, matching the reference
// StageMetrics plus a caller-extensible custom map (§4 supplement).
type Metrics struct {
	RecordsProcessed uint64
	BytesProcessed   uint64
	Errors           uint64
	Retries          uint64
	CPUTimeMs        uint64
	MemoryPeakBytes  uint64
	StartedAt        *time.Time
	FinishedAt       *time.Time
	Custom           map[string]float64
}

// Definition is the static, user-authored description of a stage: how to
// build its runtime Stage counterpart.
type Definition struct {
	Name         string
	Kind         Kind
	InputKind    DataKind
	OutputKind   DataKind
	DependsOn    []string
	Transform    Transform
	Timeout      time.Duration
	Retry        RetryPolicy
	ItemTimeout  time.Duration
}

// Stage is a single typed data transformer in a Pipeline's DAG.
type Stage struct {
	mu sync.RWMutex

	id         string
	name       string
	kind       Kind
	inputKind  DataKind
	outputKind DataKind
	transform  Transform
	timeout    time.Duration
	itemDeadline time.Duration
	retry      RetryPolicy

	state   State
	metrics Metrics

	cancel context.CancelFunc
}

func newStage(id string, def Definition) *Stage {
	return &Stage{
		id:           id,
		name:         def.Name,
		kind:         def.Kind,
		inputKind:    def.InputKind,
		outputKind:   def.OutputKind,
		transform:    def.Transform,
		timeout:      def.Timeout,
		itemDeadline: def.ItemTimeout,
		retry:        def.Retry,
		state:        StateInitial,
		metrics:      Metrics{Custom: make(map[string]float64)},
	}
}

func (s *Stage) ID() string   { return s.id }
func (s *Stage) Name() string { return s.name }
func (s *Stage) Kind() Kind   { return s.kind }

func (s *Stage) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Stage) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Metrics returns a copy of the stage's current metrics.
func (s *Stage) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	custom := make(map[string]float64, len(s.metrics.Custom))
	for k, v := range s.metrics.Custom {
		custom[k] = v
	}
	m := s.metrics
	m.Custom = custom
	return m
}

// AddCustomMetric attaches a named counter a Transform implementation
// wants to surface (e.g. "records_filtered").
func (s *Stage) AddCustomMetric(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics.Custom == nil {
		s.metrics.Custom = make(map[string]float64)
	}
	s.metrics.Custom[key] = value
}

func (s *Stage) recordStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.metrics.StartedAt = &now
}

func (s *Stage) recordFinish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.metrics.FinishedAt = &now
}

func (s *Stage) recordItem(out []Data, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.metrics.Errors++
		return
	}
	s.metrics.RecordsProcessed++
	for _, d := range out {
		s.metrics.BytesProcessed += uint64(d.Size())
	}
}

func (s *Stage) recordRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Retries++
}

// cancellation handle: set when the runner starts, invoked by Pipeline's
// Cancel.
func (s *Stage) setCancelFunc(c context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = c
}

func (s *Stage) requestCancel() {
	s.mu.RLock()
	c := s.cancel
	s.mu.RUnlock()
	if c != nil {
		c()
	}
}
