package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cyraxred/reactor/internal/toposort"
)

// ExecutionMode selects how the Scheduler dispatches tools whose dependencies are satisfied.
type ExecutionMode int

const (
	// Sequential runs tools one at a time in dependency/priority order (the default).
	Sequential ExecutionMode = iota
	// Parallel partitions tools into dependency waves and runs each wave with a bounded
	// worker pool.
	Parallel
)

// SchedulerOptions configures one pipeline run.
type SchedulerOptions struct {
	Mode             ExecutionMode
	MaxConcurrent    int // only consulted in Parallel mode; <=0 means 1
	FailFast         bool
	EnabledFeatures  map[string]bool
}

// ToolResult pairs one Tool's name with what it produced, preserving overall execution order
// in the PipelineResult regardless of wave-completion order in Parallel mode.
type ToolResult struct {
	Tool   string
	Output *ToolOutput
	Err    error
}

// PipelineResult is what ExecuteAll/ExecutePipeline return: the ordered outcome of every tool
// that was eligible to run, plus whether the run was cancelled before completion.
type PipelineResult struct {
	RunID     string
	Results   []ToolResult
	Cancelled bool
	Duration  time.Duration
}

// Scheduler resolves execution order from a ToolRegistry and runs tools respecting priority,
// the dependency DAG, and optional parallelism, invoking each tool's lifecycle hooks and
// isolating panics to the offending tool. It generalizes the teacher's Pipeline.Run() (which
// walked PipelineItems over a fixed git-commit sequence) to run a DAG of Tools once per
// ExecutionContext instead of once per commit.
type Scheduler struct {
	registry *ToolRegistry
	logger   Logger
	events   EventPublisher
	breakers *BreakerBank

	mu        sync.Mutex
	suspended bool
	gate      chan struct{}
}

// NewScheduler constructs a Scheduler bound to one registry. events/logger/breakers may be nil
// (NopPublisher/NewLogger()/NewBreakerBank() are substituted).
func NewScheduler(registry *ToolRegistry, logger Logger, events EventPublisher, breakers *BreakerBank) *Scheduler {
	if logger == nil {
		logger = NewLogger()
	}
	if events == nil {
		events = NopPublisher{}
	}
	if breakers == nil {
		breakers = NewBreakerBank()
	}
	return &Scheduler{registry: registry, logger: logger, events: events, breakers: breakers}
}

// Resolve returns the execution order without running anything (spec's "dry run"/--dump-dag
// analogue, see SPEC_FULL.md's SUPPLEMENTED FEATURES).
func (s *Scheduler) Resolve() ([]Tool, error) {
	return s.registry.ListInExecutionOrder()
}

// Suspend halts dispatch of further waves/tools until Resume is called. A wave or tool already
// running is not interrupted; only the next one is held back (spec §4.7: "suspend/resume halt
// dispatch between waves, not within a wave").
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspended {
		return
	}
	s.suspended = true
	s.gate = make(chan struct{})
}

// Resume releases a previously suspended Scheduler.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.suspended {
		return
	}
	s.suspended = false
	close(s.gate)
	s.gate = nil
}

func (s *Scheduler) waitIfSuspended(ctx context.Context) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return ctx.Err()
	}
	select {
	case <-gate:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteAll resolves the full registry and runs every eligible tool. This is the teacher's
// Pipeline.Run() entry point generalized from "over all commits" to "once, over one
// ExecutionContext".
func (s *Scheduler) ExecuteAll(ctx context.Context, ec *ExecutionContext, opts SchedulerOptions) (*PipelineResult, error) {
	ordered, err := s.registry.ListInExecutionOrder()
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, ec, ordered, opts)
}

// ExecutePipeline is ExecuteAll tagged with a caller-supplied run identifier, for correlating
// published events with an external request.
func (s *Scheduler) ExecutePipeline(ctx context.Context, id string, ec *ExecutionContext, opts SchedulerOptions) (*PipelineResult, error) {
	ordered, err := s.registry.ListInExecutionOrder()
	if err != nil {
		return nil, err
	}
	return s.executeWithID(ctx, id, ec, ordered, opts)
}

// ExecuteImmediate runs a single named tool outside of the regular wave/order machinery,
// assuming its dependencies have already been satisfied by the caller. Used for ad hoc
// re-runs of one tool (e.g. "just re-lint this file") without re-running the whole pipeline.
func (s *Scheduler) ExecuteImmediate(ctx context.Context, name string, ec *ExecutionContext) (*ToolOutput, error) {
	t, ok := s.registry.Lookup(name)
	if !ok {
		return nil, NewEngineError(CategoryDependency, "execute_immediate", nil,
			"tool \""+name+"\" is not registered")
	}
	runID := uuid.NewString()
	out, err := s.runOne(ctx, ec, t, runID)
	return out, err
}

func (s *Scheduler) execute(ctx context.Context, ec *ExecutionContext, ordered []Tool, opts SchedulerOptions) (*PipelineResult, error) {
	return s.executeWithID(ctx, uuid.NewString(), ec, ordered, opts)
}

func (s *Scheduler) executeWithID(ctx context.Context, runID string, ec *ExecutionContext, ordered []Tool, opts SchedulerOptions) (*PipelineResult, error) {
	eligible := Eligible(ec, ordered, opts.EnabledFeatures)
	names := make([]string, 0, len(eligible))
	for _, t := range eligible {
		names = append(names, t.Name())
	}
	start := time.Now()
	s.registry.markRunning()
	defer s.registry.markIdle()
	s.events.Publish(PipelineStarted{RunID: runID, Tools: names, At: start})

	var result *PipelineResult
	switch opts.Mode {
	case Parallel:
		result = s.runParallel(ctx, ec, eligible, opts, runID)
	default:
		result = s.runSequential(ctx, ec, eligible, opts, runID)
	}
	result.RunID = runID
	result.Duration = time.Since(start)

	var pipelineErr error
	for _, r := range result.Results {
		if r.Err != nil {
			pipelineErr = r.Err
			break
		}
	}
	s.events.Publish(PipelineCompleted{
		RunID: runID, Cancelled: result.Cancelled, Err: pipelineErr, Duration: result.Duration,
	})
	return result, nil
}

func (s *Scheduler) runSequential(ctx context.Context, ec *ExecutionContext, tools []Tool, opts SchedulerOptions, runID string) *PipelineResult {
	results := make([]ToolResult, 0, len(tools))
	cancelled := false
	for _, t := range tools {
		if err := s.waitIfSuspended(ctx); err != nil {
			cancelled = true
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		out, err := s.runOne(ctx, ec, t, runID)
		results = append(results, ToolResult{Tool: t.Name(), Output: out, Err: err})
		if err != nil && opts.FailFast {
			break
		}
	}
	return &PipelineResult{Results: results, Cancelled: cancelled}
}

func (s *Scheduler) runParallel(ctx context.Context, ec *ExecutionContext, tools []Tool, opts SchedulerOptions, runID string) *PipelineResult {
	order := map[string]int{}
	for i, t := range tools {
		order[t.Name()] = i
	}
	graph := toposort.NewGraphWithInsertionOrder()
	byName := map[string]Tool{}
	for _, t := range tools {
		graph.AddNode(t.Name())
		byName[t.Name()] = t
	}
	for _, t := range tools {
		for dep := range t.Dependencies() {
			if _, ok := byName[dep]; ok {
				graph.AddEdge(dep, t.Name())
			}
		}
	}
	positions := graph.BreadthSort()
	// BreadthSort can leave a tool on the same level as one of its dependencies; tools arrive in
	// topological order, so one pass lifts every tool above all of its dependencies.
	for _, t := range tools {
		pos := positions[t.Name()]
		for dep := range t.Dependencies() {
			if dp, ok := positions[dep]; ok && dp.Level >= pos.Level {
				pos.Level = dp.Level + 1
			}
		}
		positions[t.Name()] = pos
	}
	maxLevel := 0
	waves := map[int][]Tool{}
	for name, pos := range positions {
		waves[pos.Level] = append(waves[pos.Level], byName[name])
		if pos.Level > maxLevel {
			maxLevel = pos.Level
		}
	}

	concurrency := int64(opts.MaxConcurrent)
	if concurrency <= 0 {
		concurrency = 1
	}

	resultsByName := map[string]ToolResult{}
	var resultsMu sync.Mutex
	cancelled := false

	for level := 0; level <= maxLevel && !cancelled; level++ {
		wave := waves[level]
		if len(wave) == 0 {
			continue
		}
		sort.Sort(byPriorityThenName(wave))
		if err := s.waitIfSuspended(ctx); err != nil {
			cancelled = true
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		sem := semaphore.NewWeighted(concurrency)
		g, gctx := errgroup.WithContext(context.Background())
		var failed int32
		for _, t := range wave {
			t := t
			if err := sem.Acquire(gctx, 1); err != nil {
				cancelled = true
				continue
			}
			g.Go(func() error {
				defer sem.Release(1)
				out, err := s.runOne(ctx, ec, t, runID)
				resultsMu.Lock()
				resultsByName[t.Name()] = ToolResult{Tool: t.Name(), Output: out, Err: err}
				resultsMu.Unlock()
				if err != nil {
					atomic.AddInt32(&failed, 1)
				}
				return nil
			})
		}
		_ = g.Wait()
		if failed > 0 && opts.FailFast {
			break
		}
	}

	results := make([]ToolResult, 0, len(resultsByName))
	ordered := make([]string, 0, len(resultsByName))
	for name := range resultsByName {
		ordered = append(ordered, name)
	}
	sort.Slice(ordered, func(i, j int) bool { return order[ordered[i]] < order[ordered[j]] })
	for _, name := range ordered {
		results = append(results, resultsByName[name])
	}
	return &PipelineResult{Results: results, Cancelled: cancelled}
}

func (s *Scheduler) runOne(ctx context.Context, ec *ExecutionContext, t Tool, runID string) (out *ToolOutput, err error) {
	start := time.Now()
	s.events.Publish(ToolStarted{RunID: runID, Tool: t.Name(), At: start})
	hooks := t.Hooks()

	defer func() {
		duration := time.Since(start)
		if out != nil {
			out.Duration = duration
		}
		s.events.Publish(ToolCompleted{RunID: runID, Tool: t.Name(), Success: err == nil, Duration: duration, Err: err})
		if err != nil {
			s.logger.Errorf("%s failed: %v", t.Name(), err)
			if hooks.OnError != nil {
				hooks.OnError(ec, err)
			}
		}
	}()

	if hooks.Before != nil {
		if berr := hooks.Before(ec); berr != nil {
			err = NewEngineError(CategoryDependency, "before:"+t.Name(), berr)
			return nil, err
		}
	}

	retryTimeouts := false
	if rt, ok := t.(RetryableTimeout); ok {
		retryTimeouts = rt.RetryTimeouts()
	}

	attempt := func() (*ToolOutput, error) {
		execCtx := ctx
		if t.Timeout() > 0 {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(ctx, t.Timeout())
			defer cancel()
		}
		run := func() (*ToolOutput, error) {
			return s.callExecute(execCtx, ec, t)
		}
		var o *ToolOutput
		var aerr error
		if ext, ok := t.(ExternalCollaborator); ok && ext.UsesExternalProvider() {
			o, aerr = s.breakers.Execute(t.Name(), run)
		} else {
			o, aerr = run()
		}
		if execCtx.Err() == context.DeadlineExceeded {
			aerr = TimeoutError(t.Name(), t.Timeout())
		}
		return o, aerr
	}

	// spec §7/§9 (P9): Network/Transient errors are retried with exponential backoff; a
	// Timeout is only retried when the tool itself opts in via RetryableTimeout, since
	// retrying a non-idempotent tool's timed-out Execute could double its side effects.
	isRetryable := func(e error) bool {
		var ee *EngineError
		if !errors.As(e, &ee) {
			return false
		}
		if ee.Category == CategoryTimeout {
			return retryTimeouts
		}
		return ee.Retryable()
	}
	sleep := func(d time.Duration) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	err = Retry(DefaultRetryPolicy(), isRetryable, sleep, func() error {
		out, err = attempt()
		return err
	})
	if err != nil {
		return out, err
	}

	if hooks.After != nil {
		if aerr := hooks.After(ec, out); aerr != nil {
			err = NewEngineError(CategoryDependency, "after:"+t.Name(), aerr)
			return out, err
		}
	}
	return out, nil
}

// callExecute invokes t.Execute with panic recovery, so one misbehaving tool never brings down
// the rest of the pipeline (spec §9: panics become ExecutionError::WorkerPanic on that tool
// only).
func (s *Scheduler) callExecute(ctx context.Context, ec *ExecutionContext, t Tool) (out *ToolOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = WorkerPanic(t.Name(), r)
		}
	}()
	return t.Execute(ctx, ec)
}
