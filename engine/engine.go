// Package engine wires the dispatch pipeline together for one run: resolve
// specs, build the queue, execute through the bounded pool, aggregate results.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loadflare/dispatch"
	"loadflare/log"
	"loadflare/runner"
	"loadflare/stats"
)

// Options is the immutable configuration of a run. It is assembled once by
// the caller (flags over config file) and passed by value; nothing mutates it
// afterwards.
type Options struct {
	Commands        []dispatch.CommandInput
	DefaultRequests int
	Concurrency     int
	// Timeout bounds each invocation. Zero means unbounded.
	Timeout time.Duration
	// Grace is the post-cancellation grace period. Zero means the default.
	Grace time.Duration
	// OutputCap bounds captured output per invocation. Zero means the default.
	OutputCap int
	// Success overrides the exit-code-zero success policy when non-nil.
	Success func(exitCode int) bool
}

// Engine executes one load-test run. Construction fails fast on invalid
// configuration, before any process is spawned.
type Engine struct {
	id    uuid.UUID
	specs []dispatch.CommandSpec
	tasks []dispatch.Task
	agg   *stats.Aggregator
	exec  *dispatch.Executor
	start time.Time
}

// New validates the options and prepares the task queue and aggregator.
// Invalid configuration returns *dispatch.ConfigError.
func New(opts Options) (*Engine, error) {
	specs, err := dispatch.Resolve(opts.Commands, opts.DefaultRequests, opts.Concurrency)
	if err != nil {
		return nil, err
	}

	return &Engine{
		id:    uuid.New(),
		specs: specs,
		tasks: dispatch.BuildQueue(specs),
		agg:   stats.NewAggregator(specs),
		exec: &dispatch.Executor{
			Workers: opts.Concurrency,
			Grace:   opts.Grace,
			Runner: &runner.Runner{
				Timeout:   opts.Timeout,
				OutputCap: opts.OutputCap,
				Success:   opts.Success,
			},
		},
	}, nil
}

// ID returns the run's identifier, used to correlate log lines.
func (e *Engine) ID() uuid.UUID { return e.id }

// TaskCount returns the total number of tasks the run will execute.
func (e *Engine) TaskCount() int { return len(e.tasks) }

// Stats returns the live aggregator for progress snapshots.
func (e *Engine) Stats() *stats.Aggregator { return e.agg }

// Elapsed returns the wall time since Run started.
func (e *Engine) Elapsed() time.Duration {
	if e.start.IsZero() {
		return 0
	}
	return time.Since(e.start)
}

// Run executes the whole queue. It blocks until every task has a result,
// including cancelled placeholders when ctx is cancelled mid-run.
func (e *Engine) Run(ctx context.Context) error {
	e.start = time.Now()
	log.InfoLog.Printf("run %s: %d commands, %d tasks, %d workers",
		e.id, len(e.specs), len(e.tasks), e.exec.Workers)

	err := e.exec.Run(ctx, e.tasks, e.agg)

	snap := e.agg.Snapshot()
	log.InfoLog.Printf("run %s finished in %v: %d succeeded, %d failed",
		e.id, time.Since(e.start), snap.Global.Succeeded, snap.Global.Failed)
	return err
}
