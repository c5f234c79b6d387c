// Package stats accumulates invocation results into per-command and global
// statistics. The aggregator accepts results from any number of workers in
// arbitrary completion order and guarantees exactly-once accounting: results
// are slotted by queue position, and a duplicate slot is rejected.
package stats

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"loadflare/dispatch"
)

// AggregateStats summarizes a set of recorded results. Latency figures are
// computed over invocations that actually started; a run aborted before a
// task was claimed contributes to Failed but not to the latency distribution.
type AggregateStats struct {
	Total     int
	Succeeded int
	Failed    int
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P95       time.Duration
}

// CommandStats is the aggregate for one command of the run.
type CommandStats struct {
	Raw      string
	Expected int
	AggregateStats
}

// Snapshot is a consistent read-only view of the aggregator at one instant.
type Snapshot struct {
	Commands []CommandStats
	Global   AggregateStats
	// Expected is the total number of tasks the run will produce.
	Expected int
	// Recorded is how many results had arrived when the snapshot was taken.
	Recorded int
}

// Done reports whether every expected result has been recorded.
func (s Snapshot) Done() bool {
	return s.Recorded >= s.Expected
}

// Aggregator is the concurrently-safe result accumulator for one run.
type Aggregator struct {
	mu       sync.Mutex
	specs    []dispatch.CommandSpec
	results  []*dispatch.Result // indexed by queue position
	recorded int
}

// NewAggregator creates an aggregator sized for the given specs.
func NewAggregator(specs []dispatch.CommandSpec) *Aggregator {
	total := 0
	for _, spec := range specs {
		total += spec.ResolvedCount
	}
	return &Aggregator{
		specs:   specs,
		results: make([]*dispatch.Result, total),
	}
}

// Record stores one result. It implements dispatch.Sink. A result for an
// already-recorded queue position is rejected, never double-counted.
func (a *Aggregator) Record(res dispatch.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := res.Task.QueueIndex
	if i < 0 || i >= len(a.results) {
		return fmt.Errorf("result for unknown queue position %d", i)
	}
	if a.results[i] != nil {
		return fmt.Errorf("duplicate result for task %d/%d", res.Task.CommandIndex, res.Task.Sequence)
	}
	r := res
	a.results[i] = &r
	a.recorded++
	return nil
}

// Recorded returns how many results have arrived so far.
func (a *Aggregator) Recorded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recorded
}

// Results returns the recorded results in queue order. Positions without a
// result yet are skipped, so during a run the list only contains completed
// invocations; after completion it is the full ordered listing.
func (a *Aggregator) Results() []dispatch.Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]dispatch.Result, 0, a.recorded)
	for _, r := range a.results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Snapshot computes per-command and global statistics over the results
// recorded so far. It can be called at any time for progress reporting and
// once more after the executor finishes for the final figures.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Commands: make([]CommandStats, len(a.specs)),
		Expected: len(a.results),
		Recorded: a.recorded,
	}

	perCmd := make([][]time.Duration, len(a.specs))
	var global []time.Duration
	for i, spec := range a.specs {
		snap.Commands[i] = CommandStats{Raw: spec.Raw, Expected: spec.ResolvedCount}
	}

	for _, r := range a.results {
		if r == nil {
			continue
		}
		cs := &snap.Commands[r.Task.CommandIndex]
		cs.Total++
		snap.Global.Total++
		if r.Invocation.Success {
			cs.Succeeded++
			snap.Global.Succeeded++
		} else {
			cs.Failed++
			snap.Global.Failed++
		}
		if !r.Invocation.StartTime.IsZero() {
			perCmd[r.Task.CommandIndex] = append(perCmd[r.Task.CommandIndex], r.Invocation.Duration)
			global = append(global, r.Invocation.Duration)
		}
	}

	for i := range snap.Commands {
		fillLatency(&snap.Commands[i].AggregateStats, perCmd[i])
	}
	fillLatency(&snap.Global, global)
	return snap
}

func fillLatency(agg *AggregateStats, durations []time.Duration) {
	if len(durations) == 0 {
		return
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	agg.Min = sorted[0]
	agg.Max = sorted[len(sorted)-1]
	agg.Mean = sum / time.Duration(len(sorted))
	agg.P95 = sorted[percentileIndex(len(sorted), 95)]
}

// percentileIndex returns the ceil-rank index for percentile p over n sorted
// samples.
func percentileIndex(n, p int) int {
	if n <= 1 || p <= 0 {
		return 0
	}
	if p >= 100 {
		return n - 1
	}
	rank := (n*p + 99) / 100
	idx := rank - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
