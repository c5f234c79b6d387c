package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"loadflare/log"
	"loadflare/runner"
)

// DefaultGracePeriod is how long in-flight invocations may keep running after
// the run is cancelled before they are forcibly terminated.
const DefaultGracePeriod = 5 * time.Second

// Invoker executes a single invocation. *runner.Runner is the production
// implementation.
type Invoker interface {
	Run(ctx context.Context, argv []string) runner.Invocation
}

// Executor dispatches a task queue to a fixed-size worker pool. The ceiling is
// strict: the pool has exactly Workers goroutines and each runs at most one
// invocation at a time, so no more than Workers external processes are ever
// live. Claim order is FIFO over the queue; completion order is whatever the
// invocations' latencies make it.
type Executor struct {
	// Workers is the concurrency ceiling C. Must be positive; validated by Resolve.
	Workers int
	// Grace is the post-cancellation grace period. Zero means DefaultGracePeriod.
	Grace time.Duration
	// Runner executes individual invocations.
	Runner Invoker
}

// Run dispatches every task to the pool and records exactly one result per
// task on the sink. Cancelling ctx stops further claims immediately; tasks
// already in flight get the grace period to finish, then their process groups
// are killed. Tasks that never started are recorded as cancelled. Run returns
// ctx's error when the run was cancelled, nil otherwise.
func (e *Executor) Run(ctx context.Context, tasks []Task, sink Sink) error {
	// The kill context outlives ctx on purpose: in-flight invocations are
	// allowed to finish during the grace period after cancellation.
	killCtx, kill := context.WithCancel(context.Background())
	defer kill()

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-watchdogDone:
		case <-ctx.Done():
			grace := e.Grace
			if grace <= 0 {
				grace = DefaultGracePeriod
			}
			log.InfoLog.Printf("run cancelled, allowing %v for in-flight invocations", grace)
			select {
			case <-watchdogDone:
			case <-time.After(grace):
				kill()
			}
		}
	}()

	var cursor atomic.Int64
	var g errgroup.Group
	for w := 0; w < e.Workers; w++ {
		g.Go(func() error {
			for {
				// Cooperative cancellation: never claim after cancel.
				if ctx.Err() != nil {
					return nil
				}
				i := int(cursor.Add(1)) - 1
				if i >= len(tasks) {
					return nil
				}
				res := Result{Task: tasks[i], Invocation: e.Runner.Run(killCtx, tasks[i].Argv)}
				if err := sink.Record(res); err != nil {
					log.ErrorLog.Printf("recording task %d/%d: %v", tasks[i].CommandIndex, tasks[i].Sequence, err)
				}
			}
		})
	}
	_ = g.Wait()

	// Anything past the final claim position was never started.
	claimed := int(cursor.Load())
	if claimed > len(tasks) {
		claimed = len(tasks)
	}
	for i := claimed; i < len(tasks); i++ {
		res := Result{
			Task:       tasks[i],
			Invocation: runner.Invocation{ExitCode: -1, Kind: runner.KindCancelled},
		}
		if err := sink.Record(res); err != nil {
			log.ErrorLog.Printf("recording cancelled task %d/%d: %v", tasks[i].CommandIndex, tasks[i].Sequence, err)
		}
	}

	return ctx.Err()
}
