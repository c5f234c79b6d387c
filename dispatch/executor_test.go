package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadflare/runner"
)

// fakeInvoker counts live invocations so tests can assert the ceiling without
// spawning processes.
type fakeInvoker struct {
	delay    time.Duration
	live     atomic.Int32
	maxLive  atomic.Int32
	honorCtx bool
}

func (f *fakeInvoker) Run(ctx context.Context, argv []string) runner.Invocation {
	n := f.live.Add(1)
	defer f.live.Add(-1)
	for {
		max := f.maxLive.Load()
		if n <= max || f.maxLive.CompareAndSwap(max, n) {
			break
		}
	}

	inv := runner.Invocation{StartTime: time.Now()}
	if f.honorCtx {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			inv.ExitCode = -1
			inv.Kind = runner.KindCancelled
			return inv
		}
	} else {
		time.Sleep(f.delay)
	}
	inv.Success = true
	inv.Duration = f.delay
	return inv
}

// collectSink records results and complains about duplicates, like the real
// aggregator does.
type collectSink struct {
	mu      sync.Mutex
	results []Result
	seen    map[[2]int]bool
	dupes   int
}

func newCollectSink() *collectSink {
	return &collectSink{seen: map[[2]int]bool{}}
}

func (s *collectSink) Record(res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int{res.Task.CommandIndex, res.Task.Sequence}
	if s.seen[key] {
		s.dupes++
	}
	s.seen[key] = true
	s.results = append(s.results, res)
	return nil
}

func makeTasks(n int) []Task {
	specs := []CommandSpec{{Raw: "x", Argv: []string{"x"}, ResolvedCount: n}}
	return BuildQueue(specs)
}

func TestExecutor_OneResultPerTask(t *testing.T) {
	inv := &fakeInvoker{delay: time.Millisecond}
	sink := newCollectSink()
	exec := &Executor{Workers: 4, Runner: inv}

	err := exec.Run(context.Background(), makeTasks(25), sink)
	require.NoError(t, err)
	assert.Len(t, sink.results, 25)
	assert.Zero(t, sink.dupes)
}

func TestExecutor_CeilingIsStrict(t *testing.T) {
	inv := &fakeInvoker{delay: 10 * time.Millisecond}
	sink := newCollectSink()
	exec := &Executor{Workers: 3, Runner: inv}

	err := exec.Run(context.Background(), makeTasks(30), sink)
	require.NoError(t, err)
	assert.LessOrEqual(t, inv.maxLive.Load(), int32(3))
	// The pool should actually use its workers, not degrade to serial.
	assert.Greater(t, inv.maxLive.Load(), int32(1))
}

func TestExecutor_MultiCommandInterleaved(t *testing.T) {
	specs := []CommandSpec{
		{Raw: "A", Argv: []string{"A"}, ResolvedCount: 10},
		{Raw: "B", Argv: []string{"B"}, ResolvedCount: 3},
	}
	tasks := BuildQueue(specs)
	require.Len(t, tasks, 13)

	inv := &fakeInvoker{delay: time.Millisecond}
	sink := newCollectSink()
	exec := &Executor{Workers: 5, Runner: inv}

	err := exec.Run(context.Background(), tasks, sink)
	require.NoError(t, err)
	assert.Len(t, sink.results, 13)
	assert.Zero(t, sink.dupes)
	assert.LessOrEqual(t, inv.maxLive.Load(), int32(5))
}

func TestExecutor_CancelStopsClaims(t *testing.T) {
	inv := &fakeInvoker{delay: 20 * time.Millisecond, honorCtx: true}
	sink := newCollectSink()
	exec := &Executor{Workers: 2, Grace: 50 * time.Millisecond, Runner: inv}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := exec.Run(ctx, makeTasks(100), sink)
	assert.ErrorIs(t, err, context.Canceled)

	// Every task still gets exactly one result; the unclaimed tail is
	// recorded as cancelled.
	require.Len(t, sink.results, 100)
	assert.Zero(t, sink.dupes)

	cancelled := 0
	for _, res := range sink.results {
		if res.Invocation.Kind == runner.KindCancelled {
			cancelled++
		}
	}
	assert.Greater(t, cancelled, 0)
	assert.Less(t, cancelled, 100)
}

func TestExecutor_CompletionOrderIndependent(t *testing.T) {
	// Workers pulling FIFO with equal delays still complete out of order
	// sometimes; all the sink may assume is exactly-once per identity.
	inv := &fakeInvoker{delay: time.Millisecond}
	sink := newCollectSink()
	exec := &Executor{Workers: 8, Runner: inv}

	err := exec.Run(context.Background(), makeTasks(64), sink)
	require.NoError(t, err)
	assert.Len(t, sink.seen, 64)
}
